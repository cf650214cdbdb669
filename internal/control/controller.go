package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/whorules/arm-controller/internal/domain/model"
	"github.com/whorules/arm-controller/internal/metrics"
	"github.com/whorules/arm-controller/internal/tracing"
)

// seedSlack pushes the seeded LastChangedAt past the longest cooldown so the
// first decision after startup is never gated.
const seedSlack = time.Minute

// DefaultResourceLabel is the series label that carries the route id.
const DefaultResourceLabel = "routeId"

// GuardQuery is an auxiliary signal that must be present for a resource
// before the controller acts on it.
type GuardQuery struct {
	Name  string
	Query string
}

// Config describes what one controller instance tunes.
type Config struct {
	Parameter     model.Parameter
	Query         string
	Guards        []GuardQuery
	ResourceLabel string
}

// Change describes a setpoint movement that the gateway accepted.
type Change struct {
	TickID    string
	Parameter model.Parameter
	Key       model.ResourceKey
	Before    int
	After     int
	Action    Action
	Region    Region
	Value     float64
	Guards    map[string]float64
	AtMax     bool
	At        time.Time
}

// ApplyFailureEvent describes a setpoint push the gateway did not accept.
type ApplyFailureEvent struct {
	TickID    string
	Parameter model.Parameter
	Key       model.ResourceKey
	Current   int
	Wanted    int
	Action    Action
	Err       error
	At        time.Time
}

// OutcomeKind is the per-resource result of a tick.
type OutcomeKind string

const (
	OutcomeApplied          OutcomeKind = "applied"
	OutcomeNoop             OutcomeKind = "noop"
	OutcomeSuppressed       OutcomeKind = "suppressed"
	OutcomeApplyFailed      OutcomeKind = "apply_failed"
	OutcomeDroppedMalformed OutcomeKind = "dropped_malformed"
	OutcomeDroppedUnknown   OutcomeKind = "dropped_unknown"
	OutcomeSkippedGuard     OutcomeKind = "skipped_guard"
)

// Outcome is what happened to one series during a tick.
type Outcome struct {
	Key      model.ResourceKey
	Kind     OutcomeKind
	Decision Decision
	Before   int
	After    int
	Err      error
}

// TickReport summarizes one evaluation.
type TickReport struct {
	TickID    string
	Parameter model.Parameter
	StartedAt time.Time
	Duration  time.Duration
	Samples   int
	Outcomes  []Outcome
}

// Count returns the number of outcomes of the given kind.
func (r TickReport) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

type policyBox struct {
	policy Policy
}

// Controller runs the decide, gate and apply cycle for one tunable parameter.
type Controller struct {
	cfg       Config
	source    MetricSource
	applier   SetpointApplier
	baseline  BaselineFetcher
	policy    atomic.Pointer[policyBox]
	store     *StateStore
	ready     atomic.Bool
	tickMu    sync.Mutex
	nowFunc   func() time.Time
	observers []ChangeObserver
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures a Controller.
type Option func(*Controller)

func WithNowFunc(fn func() time.Time) Option {
	return func(c *Controller) { c.nowFunc = fn }
}

func WithObserver(o ChangeObserver) Option {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func New(
	cfg Config,
	policy Policy,
	source MetricSource,
	applier SetpointApplier,
	baseline BaselineFetcher,
	opts ...Option,
) (*Controller, error) {
	if cfg.Parameter == "" {
		return nil, errors.New("controller parameter is required")
	}
	if cfg.Query == "" {
		return nil, fmt.Errorf("%s controller: query is required", cfg.Parameter)
	}
	if source == nil || applier == nil || baseline == nil {
		return nil, fmt.Errorf("%s controller: source, applier and baseline are required", cfg.Parameter)
	}
	if policy == nil {
		return nil, fmt.Errorf("%s controller: %w: nil policy", cfg.Parameter, ErrInvalidPolicy)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%s controller: %w", cfg.Parameter, err)
	}
	if cfg.ResourceLabel == "" {
		cfg.ResourceLabel = DefaultResourceLabel
	}
	c := &Controller{
		cfg:      cfg,
		source:   source,
		applier:  applier,
		baseline: baseline,
		store:    NewStateStore(),
		nowFunc:  time.Now,
		logger:   slog.Default(),
		tracer:   tracing.Tracer("arm-controller/control"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "controller", "parameter", cfg.Parameter.String())
	c.policy.Store(&policyBox{policy: policy})
	metrics.ControllerReady.WithLabelValues(cfg.Parameter.String()).Set(0)
	return c, nil
}

func (c *Controller) Parameter() model.Parameter {
	return c.cfg.Parameter
}

func (c *Controller) Ready() bool {
	return c.ready.Load()
}

// Policy returns the policy in force.
func (c *Controller) Policy() Policy {
	return c.policy.Load().policy
}

// UpdatePolicy atomically replaces the policy. A policy whose bounds exclude
// a current setpoint is rejected so the clamp invariant keeps holding. It
// waits for an in-flight tick or initialization to finish.
func (c *Controller) UpdatePolicy(p Policy) error {
	if p == nil {
		return fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	lo, hi := p.Bounds()
	for key, st := range c.store.Snapshot() {
		if st.CurrentValue < lo || st.CurrentValue > hi {
			return fmt.Errorf("%w: route %s setpoint %d outside [%d, %d]", ErrInvalidPolicy, key, st.CurrentValue, lo, hi)
		}
	}
	c.policy.Store(&policyBox{policy: p})
	return nil
}

// State returns a copy of the record for key.
func (c *Controller) State(key model.ResourceKey) (State, bool) {
	return c.store.Get(key)
}

// Snapshot returns a copy of all state records.
func (c *Controller) Snapshot() map[model.ResourceKey]State {
	return c.store.Snapshot()
}

// Initialize fetches the gateway baseline and seeds state. It succeeds at most
// once; later calls on a ready controller return nil.
func (c *Controller) Initialize(ctx context.Context) error {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	return c.initializeLocked(ctx)
}

func (c *Controller) initializeLocked(ctx context.Context) error {
	if c.ready.Load() {
		return nil
	}
	baseline, err := c.baseline.Baseline(ctx)
	if err != nil {
		return fmt.Errorf("fetch %s baseline: %w", c.cfg.Parameter, err)
	}

	p := c.Policy()
	lo, hi := p.Bounds()
	seededAt := c.nowFunc().Add(-(p.MaxWindow() + seedSlack))
	initial := make(map[model.ResourceKey]State, len(baseline))
	for key, value := range baseline {
		clamped := clamp(value, lo, hi)
		if clamped != value {
			c.logger.Warn("baseline outside bounds, clamped",
				"route_id", key.String(), "baseline", value, "seeded", clamped, "min", lo, "max", hi)
		}
		initial[key] = State{CurrentValue: clamped, LastChangedAt: seededAt}
		metrics.SetpointValue.WithLabelValues(c.cfg.Parameter.String(), key.String()).Set(float64(clamped))
	}
	c.store.Seed(initial)
	c.ready.Store(true)

	metrics.ControllerReady.WithLabelValues(c.cfg.Parameter.String()).Set(1)
	metrics.ControllerTrackedResources.WithLabelValues(c.cfg.Parameter.String()).Set(float64(c.store.Len()))
	c.logger.Info("controller initialized", "routes", c.store.Len())
	return nil
}

// Evaluate runs one tick: query, decide per sample, gate, apply and record.
// Apply failures are joined into the returned error; they never stop the
// tick. Overlapping calls return ErrTickInProgress without doing anything.
func (c *Controller) Evaluate(ctx context.Context) (TickReport, error) {
	param := c.cfg.Parameter.String()
	if !c.tickMu.TryLock() {
		metrics.ControllerTicksSkipped.WithLabelValues(param).Inc()
		return TickReport{Parameter: c.cfg.Parameter}, ErrTickInProgress
	}
	defer c.tickMu.Unlock()

	now := c.nowFunc()
	report := TickReport{TickID: uuid.NewString(), Parameter: c.cfg.Parameter, StartedAt: now}
	started := time.Now()
	defer func() {
		report.Duration = time.Since(started)
		metrics.ControllerTickLatency.WithLabelValues(param).Observe(report.Duration.Seconds())
	}()

	ctx, span := c.tracer.Start(ctx, "control.Evaluate", trace.WithAttributes(
		attribute.String("parameter", param),
		attribute.String("tick_id", report.TickID),
	))
	defer span.End()

	if !c.ready.Load() {
		if err := c.initializeLocked(ctx); err != nil {
			metrics.ControllerTicksTotal.WithLabelValues(param, "not_ready").Inc()
			span.SetStatus(codes.Error, "not ready")
			return report, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
	}

	result, err := c.source.Query(ctx, c.cfg.Query)
	if err == nil && result.Status != "success" {
		err = fmt.Errorf("query status %q", result.Status)
	}
	if err != nil {
		metrics.ControllerTicksTotal.WithLabelValues(param, "metric_unavailable").Inc()
		span.SetStatus(codes.Error, "metric unavailable")
		c.logger.Warn("metric query failed, skipping tick", "tick_id", report.TickID, "error", err)
		if errors.Is(err, ErrMetricUnavailable) {
			return report, err
		}
		return report, fmt.Errorf("%w: %w", ErrMetricUnavailable, err)
	}

	guards := c.queryGuards(ctx, report.TickID)
	policy := c.Policy()
	report.Samples = len(result.Series)

	var failures []error
	for _, series := range result.Series {
		outcome := c.evaluateSeries(ctx, report.TickID, now, policy, series, guards)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Kind == OutcomeApplyFailed {
			failures = append(failures, outcome.Err)
		}
	}

	joined := errors.Join(failures...)
	tickOutcome := "ok"
	if joined != nil {
		tickOutcome = "apply_failed"
		span.RecordError(joined)
		span.SetStatus(codes.Error, "apply failed")
	}
	metrics.ControllerTicksTotal.WithLabelValues(param, tickOutcome).Inc()
	c.logger.Debug("tick evaluated",
		"tick_id", report.TickID,
		"samples", report.Samples,
		"applied", report.Count(OutcomeApplied),
		"suppressed", report.Count(OutcomeSuppressed),
		"failed", len(failures),
	)
	return report, joined
}

// queryGuards returns nil when no guards are configured. A failed guard query
// leaves its signal absent, which skips every resource this tick.
func (c *Controller) queryGuards(ctx context.Context, tickID string) map[string]map[model.ResourceKey]float64 {
	if len(c.cfg.Guards) == 0 {
		return nil
	}
	out := make(map[string]map[model.ResourceKey]float64, len(c.cfg.Guards))
	for _, g := range c.cfg.Guards {
		res, err := c.source.Query(ctx, g.Query)
		if err == nil && res.Status != "success" {
			err = fmt.Errorf("query status %q", res.Status)
		}
		if err != nil {
			c.logger.Warn("guard query failed", "tick_id", tickID, "guard", g.Name, "error", err)
			out[g.Name] = map[model.ResourceKey]float64{}
			continue
		}
		out[g.Name] = decodeByKey(res.Series, c.cfg.ResourceLabel)
	}
	return out
}

func (c *Controller) guardValues(key model.ResourceKey, guards map[string]map[model.ResourceKey]float64) (map[string]float64, bool) {
	if guards == nil {
		return nil, true
	}
	values := make(map[string]float64, len(guards))
	for name, byKey := range guards {
		v, ok := byKey[key]
		if !ok {
			return nil, false
		}
		values[name] = v
		metrics.GuardSignal.WithLabelValues(c.cfg.Parameter.String(), key.String(), name).Set(v)
	}
	return values, true
}

func (c *Controller) evaluateSeries(
	ctx context.Context,
	tickID string,
	now time.Time,
	policy Policy,
	series Series,
	guards map[string]map[model.ResourceKey]float64,
) Outcome {
	param := c.cfg.Parameter.String()

	sample, err := decodeSeries(series, c.cfg.ResourceLabel)
	if err != nil {
		metrics.SamplesDropped.WithLabelValues(param, "malformed").Inc()
		c.logger.Warn("dropping malformed sample", "tick_id", tickID, "route_id", sample.Key.String(), "error", err)
		return Outcome{Key: sample.Key, Kind: OutcomeDroppedMalformed, Err: err}
	}

	st, ok := c.store.Get(sample.Key)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownResource, sample.Key)
		metrics.SamplesDropped.WithLabelValues(param, "unknown_resource").Inc()
		c.logger.Debug("dropping sample for unknown route", "tick_id", tickID, "route_id", sample.Key.String())
		return Outcome{Key: sample.Key, Kind: OutcomeDroppedUnknown, Err: err}
	}

	guardVals, ok := c.guardValues(sample.Key, guards)
	if !ok {
		metrics.SamplesDropped.WithLabelValues(param, "guard_missing").Inc()
		c.logger.Info("guard signal missing, skipping route", "tick_id", tickID, "route_id", sample.Key.String())
		return Outcome{Key: sample.Key, Kind: OutcomeSkippedGuard, Before: st.CurrentValue, After: st.CurrentValue}
	}

	d := policy.Decide(st, sample.Value)
	metrics.DecisionsTotal.WithLabelValues(param, string(d.Proposed), string(d.Region)).Inc()

	before := st.CurrentValue
	st.StableStreak = d.Streak
	outcome := Outcome{Key: sample.Key, Kind: OutcomeNoop, Decision: d, Before: before, After: before}

	switch {
	case d.Action == ActionNoop:
	case !CooldownElapsed(now, st.LastChangedAt, policy.Window(d.Action)):
		outcome.Kind = OutcomeSuppressed
		metrics.DecisionsSuppressed.WithLabelValues(param, string(d.Action)).Inc()
		c.logger.Debug("change suppressed by cooldown",
			"tick_id", tickID, "route_id", sample.Key.String(), "action", string(d.Action),
			"since_last_change", now.Sub(st.LastChangedAt).String())
	default:
		if err := c.apply(ctx, sample.Key, d.Next); err != nil {
			err = fmt.Errorf("%w: %s route %s %d -> %d: %w", ErrApplyFailure, param, sample.Key, before, d.Next, err)
			outcome.Kind = OutcomeApplyFailed
			outcome.Err = err
			metrics.SetpointApplyFailures.WithLabelValues(param).Inc()
			c.logger.Error("setpoint push failed", "tick_id", tickID, "route_id", sample.Key.String(),
				"before", before, "after", d.Next, "error", err)
			c.notifyFailure(ctx, ApplyFailureEvent{
				TickID: tickID, Parameter: c.cfg.Parameter, Key: sample.Key,
				Current: before, Wanted: d.Next, Action: d.Action, Err: err, At: now,
			})
			break
		}
		st.CurrentValue = d.Next
		st.LastChangedAt = now
		st.StableStreak = 0
		outcome.Kind = OutcomeApplied
		outcome.After = d.Next

		_, hi := policy.Bounds()
		metrics.SetpointChangesTotal.WithLabelValues(param, string(d.Action)).Inc()
		metrics.SetpointValue.WithLabelValues(param, sample.Key.String()).Set(float64(d.Next))
		c.logger.Info("setpoint changed",
			"tick_id", tickID, "route_id", sample.Key.String(), "action", string(d.Action),
			"region", string(d.Region), "value", sample.Value, "before", before, "after", d.Next,
			"guards", sortedGuards(guardVals))
		c.notifyChange(ctx, Change{
			TickID: tickID, Parameter: c.cfg.Parameter, Key: sample.Key,
			Before: before, After: d.Next, Action: d.Action, Region: d.Region,
			Value: sample.Value, Guards: guardVals, AtMax: d.Next == hi, At: now,
		})
	}

	c.store.Put(sample.Key, st)
	metrics.StableStreak.WithLabelValues(param, sample.Key.String()).Set(float64(st.StableStreak))
	return outcome
}

func (c *Controller) apply(ctx context.Context, key model.ResourceKey, value int) error {
	ctx, span := c.tracer.Start(ctx, "control.Apply", trace.WithAttributes(
		attribute.String("parameter", c.cfg.Parameter.String()),
		attribute.String("route_id", key.String()),
		attribute.Int("value", value),
	))
	defer span.End()
	if err := c.applier.Apply(ctx, key, value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Controller) notifyChange(ctx context.Context, change Change) {
	for _, o := range c.observers {
		o.SetpointChanged(ctx, change)
	}
}

func (c *Controller) notifyFailure(ctx context.Context, failure ApplyFailureEvent) {
	for _, o := range c.observers {
		o.ApplyFailed(ctx, failure)
	}
}

func sortedGuards(g map[string]float64) []string {
	if len(g) == 0 {
		return nil
	}
	out := make([]string, 0, len(g))
	for name, v := range g {
		out = append(out, fmt.Sprintf("%s=%.3f", name, v))
	}
	sort.Strings(out)
	return out
}
