package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whorules/arm-controller/internal/control"
	"github.com/whorules/arm-controller/internal/domain/model"
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recordingAlerter) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recordingAlerter) sent() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

func failure(key model.ResourceKey) control.ApplyFailureEvent {
	return control.ApplyFailureEvent{
		TickID:    "tick-1",
		Parameter: model.ParameterTimeout,
		Key:       key,
		Current:   1100,
		Wanted:    1200,
		Action:    control.ActionIncrease,
		Err:       errors.New("status 500"),
		At:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestChangeAlerts_ApplyFailureThreshold(t *testing.T) {
	rec := &recordingAlerter{}
	obs := NewChangeAlerts(rec, 3, testLogger())
	ctx := context.Background()

	obs.ApplyFailed(ctx, failure("r1"))
	obs.ApplyFailed(ctx, failure("r1"))
	assert.Empty(t, rec.sent(), "below threshold must not alert")

	obs.ApplyFailed(ctx, failure("r1"))
	sent := rec.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, AlertTypeApplyFailure, sent[0].Type)
	assert.Equal(t, "timeout", sent[0].Parameter)
	assert.Equal(t, "r1", sent[0].Route)
	assert.Equal(t, "3", sent[0].Fields["consecutive_failures"])
	assert.Equal(t, "status 500", sent[0].Message)

	// Failures on another route are counted separately.
	obs.ApplyFailed(ctx, failure("r2"))
	assert.Len(t, rec.sent(), 1)
	assert.Equal(t, 1, obs.ConsecutiveFailures(model.ParameterTimeout, "r2"))
}

func TestChangeAlerts_SuccessResetsFailureRun(t *testing.T) {
	rec := &recordingAlerter{}
	obs := NewChangeAlerts(rec, 2, testLogger())
	ctx := context.Background()

	obs.ApplyFailed(ctx, failure("r1"))
	obs.SetpointChanged(ctx, control.Change{
		Parameter: model.ParameterTimeout,
		Key:       "r1",
		Before:    1100,
		After:     1200,
		Action:    control.ActionIncrease,
		Region:    control.RegionAboveBand,
	})
	assert.Equal(t, 0, obs.ConsecutiveFailures(model.ParameterTimeout, "r1"))

	obs.ApplyFailed(ctx, failure("r1"))
	assert.Empty(t, rec.sent())
}

func TestChangeAlerts_PinnedAtMax(t *testing.T) {
	rec := &recordingAlerter{}
	obs := NewChangeAlerts(rec, 3, testLogger())
	ctx := context.Background()

	base := control.Change{
		TickID:    "tick-9",
		Parameter: model.ParameterConcurrency,
		Key:       "payments",
		Before:    29,
		After:     30,
		Action:    control.ActionIncrease,
		Value:     9,
	}

	notPanic := base
	notPanic.Region = control.RegionAboveBand
	notPanic.AtMax = true
	obs.SetpointChanged(ctx, notPanic)

	notMax := base
	notMax.Region = control.RegionPanic
	obs.SetpointChanged(ctx, notMax)
	assert.Empty(t, rec.sent())

	pinned := base
	pinned.Region = control.RegionPanic
	pinned.AtMax = true
	obs.SetpointChanged(ctx, pinned)

	sent := rec.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, AlertTypePinnedAtMax, sent[0].Type)
	assert.Equal(t, "concurrency", sent[0].Parameter)
	assert.Equal(t, "payments", sent[0].Route)
	assert.Equal(t, "9", sent[0].Fields["value"])
	assert.Equal(t, "tick-9", sent[0].Fields["tick_id"])
}

func TestChangeAlerts_SendErrorIsSwallowed(t *testing.T) {
	rec := &recordingAlerter{err: errors.New("webhook down")}
	obs := NewChangeAlerts(rec, 0, testLogger())

	assert.NotPanics(t, func() {
		obs.ApplyFailed(context.Background(), failure("r1"))
	})
	assert.Len(t, rec.sent(), 1, "threshold below 1 alerts on the first failure")
}

func TestChangeAlerts_NilLoggerFallsBackToDefault(t *testing.T) {
	rec := &recordingAlerter{err: errors.New("webhook down")}
	var obs *ChangeAlerts
	require.NotPanics(t, func() { obs = NewChangeAlerts(rec, 1, nil) })

	require.NotPanics(t, func() { obs.ApplyFailed(context.Background(), failure("r1")) })
	assert.Len(t, rec.sent(), 1)
}
