package prometheus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"

	"github.com/whorules/arm-controller/internal/circuitbreaker"
	"github.com/whorules/arm-controller/internal/control"
	"github.com/whorules/arm-controller/internal/ratelimit"
)

const (
	target    = "prometheus"
	queryPath = "/api/v1/query"
)

// Config configures the Prometheus query client.
type Config struct {
	URL     string
	Timeout time.Duration
	Breaker circuitbreaker.Config
}

// Client runs instant queries through the Prometheus HTTP API and hands the
// undecoded series to the controller, which does its own strict parsing.
type Client struct {
	api     api.Client
	timeout time.Duration
	breaker *circuitbreaker.Breaker
	nowFunc func() time.Time
}

var _ control.MetricSource = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("prometheus url is required")
	}
	c, err := api.NewClient(api.Config{Address: cfg.URL})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	return NewWithAPI(c, cfg), nil
}

// NewWithAPI builds a Client over an existing api.Client.
func NewWithAPI(c api.Client, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = target
	}
	return &Client{
		api:     c,
		timeout: cfg.Timeout,
		breaker: circuitbreaker.New(cfg.Breaker),
		nowFunc: time.Now,
	}
}

type response struct {
	Status    string `json:"status"`
	ErrorType string `json:"errorType,omitempty"`
	Error     string `json:"error,omitempty"`
	Data      struct {
		ResultType string            `json:"resultType"`
		Result     []json.RawMessage `json:"result"`
	} `json:"data"`
}

type vectorEntry struct {
	Metric map[string]string `json:"metric"`
	Value  []any             `json:"value"`
}

// Query runs an instant query. A non-success answer is returned as-is so the
// controller can classify it; transport failures are wrapped in
// control.ErrMetricUnavailable.
func (c *Client) Query(ctx context.Context, query string) (control.QueryResult, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body []byte
	err := c.breaker.Execute(func() error {
		var callErr error
		body, callErr = c.do(ctx, query)
		return callErr
	}, nil)
	ratelimit.RecordCall(target, "query", started, err)
	if err != nil {
		return control.QueryResult{}, fmt.Errorf("%w: %w", control.ErrMetricUnavailable, err)
	}
	return decode(body)
}

func (c *Client) do(ctx context.Context, query string) ([]byte, error) {
	u := c.api.URL(queryPath, nil)
	form := url.Values{}
	form.Set("query", query)
	form.Set("time", formatTime(c.nowFunc()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, body, err := c.api.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("prometheus query: %w", err)
	}
	// 4xx/5xx answers from Prometheus still carry a JSON error envelope.
	if resp.StatusCode >= http.StatusInternalServerError && !json.Valid(body) {
		return nil, fmt.Errorf("prometheus returned status %d", resp.StatusCode)
	}
	return body, nil
}

func decode(body []byte) (control.QueryResult, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return control.QueryResult{}, fmt.Errorf("%w: decode response: %w", control.ErrMetricUnavailable, err)
	}
	out := control.QueryResult{Status: r.Status}
	if r.Status != "success" {
		if r.Error != "" {
			out.Status = fmt.Sprintf("%s (%s: %s)", r.Status, r.ErrorType, r.Error)
		}
		return out, nil
	}
	if r.Data.ResultType != "" && r.Data.ResultType != "vector" {
		return control.QueryResult{}, fmt.Errorf("%w: unexpected result type %q", control.ErrMetricUnavailable, r.Data.ResultType)
	}
	out.Series = make([]control.Series, 0, len(r.Data.Result))
	for _, raw := range r.Data.Result {
		var e vectorEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			// Keep the slot so the controller counts it as malformed.
			out.Series = append(out.Series, control.Series{})
			continue
		}
		out.Series = append(out.Series, control.Series{Labels: e.Metric, Value: e.Value})
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return fmt.Sprintf("%.3f", float64(t.UnixNano())/1e9)
}
