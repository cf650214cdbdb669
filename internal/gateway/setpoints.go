package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/whorules/arm-controller/internal/control"
	"github.com/whorules/arm-controller/internal/domain/model"
	"github.com/whorules/arm-controller/internal/retry"
)

var (
	_ control.SetpointApplier = (*TimeoutSetpoints)(nil)
	_ control.BaselineFetcher = (*TimeoutSetpoints)(nil)
	_ control.SetpointApplier = (*RetrySetpoints)(nil)
	_ control.BaselineFetcher = (*RetrySetpoints)(nil)
	_ control.SetpointApplier = (*BulkheadSetpoints)(nil)
	_ control.BaselineFetcher = (*BulkheadSetpoints)(nil)
)

// TimeoutSetpoints exposes per-route timeouts (milliseconds) as setpoints.
type TimeoutSetpoints struct {
	client *Client
}

func NewTimeoutSetpoints(c *Client) *TimeoutSetpoints {
	return &TimeoutSetpoints{client: c}
}

func (t *TimeoutSetpoints) Apply(ctx context.Context, key model.ResourceKey, value int) error {
	return t.client.ChangeTimeout(ctx, key.String(), value)
}

func (t *TimeoutSetpoints) Baseline(ctx context.Context) (map[model.ResourceKey]int, error) {
	limiters, err := t.client.TimeLimiters(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[model.ResourceKey]int, len(limiters))
	for route, millis := range limiters {
		out[model.ResourceKey(route)] = int(min(millis, math.MaxInt32))
	}
	return out, nil
}

// RetrySetpoints exposes the per-route attempt budget as a setpoint. Every push
// sends the full policy built from Template with MaxAttempts replaced.
type RetrySetpoints struct {
	client      *Client
	template    RetryPolicy
	seedRoutes  []string
	minAttempts int
	logger      *slog.Logger
}

func NewRetrySetpoints(c *Client, template RetryPolicy, seedRoutes []string, minAttempts int, logger *slog.Logger) *RetrySetpoints {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrySetpoints{
		client:      c,
		template:    template,
		seedRoutes:  seedRoutes,
		minAttempts: minAttempts,
		logger:      logger.With("component", "retry_setpoints"),
	}
}

// Policy returns the policy that a push of attempts would send.
func (r *RetrySetpoints) Policy(attempts int) RetryPolicy {
	p := r.template
	p.MaxAttempts = attempts
	p.Statuses = append([]int(nil), r.template.Statuses...)
	p.Methods = append([]string(nil), r.template.Methods...)
	return p
}

func (r *RetrySetpoints) Apply(ctx context.Context, key model.ResourceKey, value int) error {
	return r.client.ChangeRetry(ctx, key.String(), r.Policy(value))
}

// Baseline reads the gateway's retry table. When the gateway does not expose
// it (a terminal error such as 404) and seed routes are configured, those
// routes start at the minimum attempt budget.
func (r *RetrySetpoints) Baseline(ctx context.Context) (map[model.ResourceKey]int, error) {
	policies, err := r.client.RetryPolicies(ctx)
	if err != nil {
		if len(r.seedRoutes) == 0 || retry.Classify(err).IsTransient() {
			return nil, err
		}
		r.logger.Warn("retry table unavailable, seeding configured routes",
			"routes", len(r.seedRoutes), "attempts", r.minAttempts, "error", err)
		out := make(map[model.ResourceKey]int, len(r.seedRoutes))
		for _, route := range r.seedRoutes {
			out[model.ResourceKey(route)] = r.minAttempts
		}
		return out, nil
	}
	out := make(map[model.ResourceKey]int, len(policies))
	for route, p := range policies {
		out[model.ResourceKey(route)] = p.MaxAttempts
	}
	return out, nil
}

// BulkheadSetpoints exposes per-route max concurrent calls as setpoints.
type BulkheadSetpoints struct {
	client    *Client
	maxWaitMs int64
}

func NewBulkheadSetpoints(c *Client, maxWaitMs int64) *BulkheadSetpoints {
	return &BulkheadSetpoints{client: c, maxWaitMs: maxWaitMs}
}

func (b *BulkheadSetpoints) Apply(ctx context.Context, key model.ResourceKey, value int) error {
	if value < 1 {
		return fmt.Errorf("bulkhead for %s: max concurrent calls must be >= 1, got %d", key, value)
	}
	return b.client.ChangeBulkhead(ctx, key.String(), BulkheadConfig{MaxConcurrentCalls: value, MaxWaitMs: b.maxWaitMs})
}

func (b *BulkheadSetpoints) Baseline(ctx context.Context) (map[model.ResourceKey]int, error) {
	cfgs, err := b.client.Bulkheads(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[model.ResourceKey]int, len(cfgs))
	for route, cfg := range cfgs {
		out[model.ResourceKey(route)] = cfg.MaxConcurrentCalls
	}
	return out, nil
}
