package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/whorules/arm-controller/internal/control"
	"github.com/whorules/arm-controller/internal/domain/model"
)

const defaultSendTimeout = 5 * time.Second

type routeKey struct {
	parameter model.Parameter
	key       model.ResourceKey
}

// ChangeAlerts turns controller outcomes into alerts. It raises
// APPLY_FAILURE once a route has failed threshold pushes in a row and
// PINNED_AT_MAX whenever a panic increase lands on the upper bound.
type ChangeAlerts struct {
	alerter     Alerter
	threshold   int
	sendTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	failures map[routeKey]int
}

var _ control.ChangeObserver = (*ChangeAlerts)(nil)

// NewChangeAlerts builds the observer. A threshold below 1 is treated as 1.
func NewChangeAlerts(alerter Alerter, threshold int, logger *slog.Logger) *ChangeAlerts {
	if threshold < 1 {
		threshold = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeAlerts{
		alerter:     alerter,
		threshold:   threshold,
		sendTimeout: defaultSendTimeout,
		logger:      logger.With("component", "change_alerts"),
		failures:    make(map[routeKey]int),
	}
}

func (o *ChangeAlerts) SetpointChanged(ctx context.Context, c control.Change) {
	o.mu.Lock()
	delete(o.failures, routeKey{c.Parameter, c.Key})
	o.mu.Unlock()

	if c.Region != control.RegionPanic || !c.AtMax {
		return
	}
	o.send(ctx, Alert{
		Type:      AlertTypePinnedAtMax,
		Parameter: c.Parameter.String(),
		Route:     c.Key.String(),
		Title:     "Setpoint pinned at upper bound",
		Message:   fmt.Sprintf("panic increase %d -> %d reached the policy maximum", c.Before, c.After),
		Fields: map[string]string{
			"value":   strconv.FormatFloat(c.Value, 'g', -1, 64),
			"tick_id": c.TickID,
		},
	})
}

func (o *ChangeAlerts) ApplyFailed(ctx context.Context, f control.ApplyFailureEvent) {
	k := routeKey{f.Parameter, f.Key}
	o.mu.Lock()
	o.failures[k]++
	n := o.failures[k]
	o.mu.Unlock()

	if n < o.threshold {
		return
	}
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	o.send(ctx, Alert{
		Type:      AlertTypeApplyFailure,
		Parameter: f.Parameter.String(),
		Route:     f.Key.String(),
		Title:     "Gateway rejected setpoint",
		Message:   msg,
		Fields: map[string]string{
			"consecutive_failures": strconv.Itoa(n),
			"current":              strconv.Itoa(f.Current),
			"wanted":               strconv.Itoa(f.Wanted),
		},
	})
}

// ConsecutiveFailures reports the current failure run for a route.
func (o *ChangeAlerts) ConsecutiveFailures(p model.Parameter, key model.ResourceKey) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failures[routeKey{p, key}]
}

func (o *ChangeAlerts) send(ctx context.Context, a Alert) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.sendTimeout)
	defer cancel()
	if err := o.alerter.Send(sendCtx, a); err != nil {
		o.logger.Warn("alert dispatch failed", "type", a.Type, "route_id", a.Route, "error", err)
	}
}
