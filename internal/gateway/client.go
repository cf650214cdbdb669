package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/whorules/arm-controller/internal/circuitbreaker"
	"github.com/whorules/arm-controller/internal/ratelimit"
)

const (
	target = "gateway"

	timeLimitersPath    = "/internal/timelimiters"
	dynamicTimeoutsPath = "/dynamic-timeouts"
	retryPath           = "/internal/resilience/retry"
	bulkheadPath        = "/internal/resilience/bulkhead"

	maxErrorBody = 512
)

// HTTPError is a non-2xx answer from the gateway admin API.
type HTTPError struct {
	Operation string
	Status    int
	Body      string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway %s returned status %d", e.Operation, e.Status)
	}
	return fmt.Sprintf("gateway %s returned status %d: %s", e.Operation, e.Status, e.Body)
}

func (e *HTTPError) StatusCode() int {
	return e.Status
}

// Config configures the gateway admin client.
type Config struct {
	URL        string
	Timeout    time.Duration
	RPS        float64
	Burst      int
	Breaker    circuitbreaker.Config
	HTTPClient *http.Client
}

// Client talks to the gateway's resilience admin endpoints.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	breaker *circuitbreaker.Breaker
	limiter *ratelimit.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("gateway url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = target
	}
	return &Client{
		baseURL: base,
		http:    cfg.HTTPClient,
		timeout: cfg.Timeout,
		breaker: circuitbreaker.New(cfg.Breaker),
		limiter: ratelimit.NewLimiter(cfg.RPS, cfg.Burst, target),
	}, nil
}

// TimeLimiters returns the configured timeout per route in milliseconds.
func (c *Client) TimeLimiters(ctx context.Context) (map[string]int64, error) {
	var out map[string]int64
	if err := c.call(ctx, "get_timelimiters", http.MethodGet, timeLimitersPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type changeTimeoutRequest struct {
	RouteID       string `json:"routeId"`
	TimeoutMillis int    `json:"timeoutMillis"`
}

func (c *Client) ChangeTimeout(ctx context.Context, routeID string, millis int) error {
	return c.call(ctx, "change_timeout", http.MethodPost, dynamicTimeoutsPath,
		changeTimeoutRequest{RouteID: routeID, TimeoutMillis: millis}, nil)
}

// RetryPolicies returns the retry policy per route.
func (c *Client) RetryPolicies(ctx context.Context) (map[string]RetryPolicy, error) {
	var out map[string]RetryPolicy
	if err := c.call(ctx, "get_retry", http.MethodGet, retryPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ChangeRetry(ctx context.Context, routeID string, policy RetryPolicy) error {
	return c.call(ctx, "change_retry", http.MethodPost, retryPath+"/"+url.PathEscape(routeID), policy, nil)
}

// Bulkheads returns the bulkhead configuration per route.
func (c *Client) Bulkheads(ctx context.Context) (map[string]BulkheadConfig, error) {
	var out map[string]BulkheadConfig
	if err := c.call(ctx, "get_bulkhead", http.MethodGet, bulkheadPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ChangeBulkhead(ctx context.Context, routeID string, cfg BulkheadConfig) error {
	return c.call(ctx, "change_bulkhead", http.MethodPost, bulkheadPath+"/"+url.PathEscape(routeID), cfg, nil)
}

func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	started := time.Now()
	err := c.limiter.Wait(ctx)
	if err == nil {
		err = c.breaker.Execute(func() error {
			return c.do(ctx, op, method, path, in, out)
		}, countsTowardsBreaker)
	}
	ratelimit.RecordCall(target, op, started, err)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Operation: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// countsTowardsBreaker keeps client-side rejections (4xx other than 429) from
// opening the breaker.
func countsTowardsBreaker(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= http.StatusInternalServerError || httpErr.Status == http.StatusTooManyRequests
	}
	return true
}
