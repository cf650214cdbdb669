package policy

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/whorules/arm-controller/internal/control"
	"github.com/whorules/arm-controller/internal/domain/model"
	"github.com/whorules/arm-controller/internal/metrics"
	"github.com/whorules/arm-controller/internal/store"
)

const watcherDefaultInterval = 30 * time.Second

// Updater is the part of a controller the watcher replaces policies on.
type Updater interface {
	Parameter() model.Parameter
	UpdatePolicy(p control.Policy) error
}

// Watcher polls the runtime_policies table and swaps the live policy of one
// controller. Every poll rebuilds the policy from the configured base, so
// deleting an override reverts to the base value.
type Watcher struct {
	repo     store.RuntimePolicyRepository
	target   Updater
	base     control.Policy
	logger   *slog.Logger
	interval time.Duration

	lastSeen map[string]string
}

func NewWatcher(repo store.RuntimePolicyRepository, target Updater, base control.Policy, logger *slog.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = watcherDefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		repo:     repo,
		target:   target,
		base:     base,
		logger:   logger.With("component", "policy_watcher", "parameter", target.Parameter().String()),
		interval: interval,
		lastSeen: map[string]string{},
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("policy watcher started", "poll_interval", w.interval.String())

	w.Poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("policy watcher stopping")
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll reads the overrides once and applies them if they changed.
func (w *Watcher) Poll(ctx context.Context) {
	param := w.target.Parameter().String()

	overrides, err := w.repo.GetActive(ctx, w.target.Parameter())
	if err != nil {
		w.logger.Warn("policy watcher poll failed", "error", err)
		metrics.PolicyWatcherErrors.WithLabelValues(param).Inc()
		return
	}
	if maps.Equal(overrides, w.lastSeen) {
		return
	}

	next, err := ApplyOverrides(w.base, overrides)
	if err == nil {
		err = w.target.UpdatePolicy(next)
	}
	if err != nil {
		// Remember the rejected set so the same bad row is not re-logged every poll.
		w.lastSeen = maps.Clone(overrides)
		metrics.PolicyUpdatesTotal.WithLabelValues(param, "rejected").Inc()
		w.logger.Warn("runtime policy rejected", "overrides", overrides, "error", err)
		return
	}

	w.lastSeen = maps.Clone(overrides)
	metrics.PolicyUpdatesTotal.WithLabelValues(param, "applied").Inc()
	w.logger.Info("runtime policy applied", "overrides", overrides)
}
