package control

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/whorules/arm-controller/internal/domain/model"
	"github.com/whorules/arm-controller/internal/retry"
)

// Ticker delivers evaluation triggers.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a Ticker firing every interval.
type TickerFactory func(interval time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.Ticker.
func NewTimeTicker(interval time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(interval)}
}

// RunnerConfig controls the scheduling of one controller.
type RunnerConfig struct {
	Interval     time.Duration
	ReadyDelay   time.Duration
	InitAttempts int
	InitBackoff  time.Duration
	NewTicker    TickerFactory
}

// Evaluator is the part of Controller the runner drives.
type Evaluator interface {
	Parameter() model.Parameter
	Ready() bool
	Initialize(ctx context.Context) error
	Evaluate(ctx context.Context) (TickReport, error)
}

// Runner schedules ticks of one controller from a single goroutine.
type Runner struct {
	ctrl     Evaluator
	cfg      RunnerConfig
	reporter TickReporter
	logger   *slog.Logger
}

func NewRunner(ctrl Evaluator, cfg RunnerConfig, reporter TickReporter, logger *slog.Logger) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.InitAttempts <= 0 {
		cfg.InitAttempts = 1
	}
	if cfg.InitBackoff <= 0 {
		cfg.InitBackoff = time.Second
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTimeTicker
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		ctrl:     ctrl,
		cfg:      cfg,
		reporter: reporter,
		logger:   logger.With("component", "runner", "parameter", ctrl.Parameter().String()),
	}
}

// Run waits the readiness grace delay, initializes the controller and then
// evaluates on every tick until ctx is cancelled. A tick in flight when ctx is
// cancelled runs to completion.
func (r *Runner) Run(ctx context.Context) error {
	if r.cfg.ReadyDelay > 0 {
		timer := time.NewTimer(r.cfg.ReadyDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	if err := r.initialize(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Error("controller startup fault, will retry on next tick", "error", err)
		if r.reporter != nil {
			r.reporter.StartupFault(r.ctrl.Parameter(), err)
		}
	}

	ticker := r.cfg.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("runner started", "interval", r.cfg.Interval.String())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopped")
			return nil
		case <-ticker.C():
			r.tick(context.WithoutCancel(ctx))
		}
	}
}

// initialize retries transient baseline failures with exponential backoff.
func (r *Runner) initialize(ctx context.Context) error {
	backoff := r.cfg.InitBackoff
	var err error
	for attempt := 1; attempt <= r.cfg.InitAttempts; attempt++ {
		if err = r.ctrl.Initialize(ctx); err == nil {
			if r.reporter != nil {
				r.reporter.TickSucceeded(r.ctrl.Parameter(), true)
			}
			return nil
		}
		decision := retry.Classify(err)
		if !decision.IsTransient() || attempt == r.cfg.InitAttempts {
			break
		}
		r.logger.Warn("controller initialization failed, retrying",
			"attempt", attempt, "max_attempts", r.cfg.InitAttempts,
			"backoff", backoff.String(), "reason", decision.Reason, "error", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return err
}

func (r *Runner) tick(ctx context.Context) {
	report, err := r.ctrl.Evaluate(ctx)
	switch {
	case err == nil:
		if r.reporter != nil {
			r.reporter.TickSucceeded(r.ctrl.Parameter(), r.ctrl.Ready())
		}
	case errors.Is(err, ErrTickInProgress):
		r.logger.Warn("previous tick still running, trigger skipped")
	case errors.Is(err, ErrApplyFailure):
		r.logger.Warn("tick completed with apply failures",
			"tick_id", report.TickID, "failed", report.Count(OutcomeApplyFailed))
		r.reportFailure(err)
	default:
		r.logger.Warn("tick failed", "tick_id", report.TickID, "error", err)
		r.reportFailure(err)
	}
}

func (r *Runner) reportFailure(err error) {
	if r.reporter != nil {
		r.reporter.TickFailed(r.ctrl.Parameter(), err)
	}
}
