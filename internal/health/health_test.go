package health

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whorules/arm-controller/internal/domain/model"
)

func TestControllerHealth_RecordSuccess(t *testing.T) {
	h := NewControllerHealth(model.ParameterTimeout, 0)
	h.RecordSuccess(true)

	snap := h.Snapshot()
	assert.Equal(t, string(StatusHealthy), snap.Status)
	assert.True(t, snap.Ready)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.NotNil(t, snap.LastSuccessAt)
}

func TestControllerHealth_FailureDegradesThenUnhealthy(t *testing.T) {
	h := NewControllerHealth(model.ParameterRetry, 3)

	assert.False(t, h.RecordFailure(errors.New("metric unavailable")))
	assert.Equal(t, string(StatusDegraded), h.Snapshot().Status)

	assert.False(t, h.RecordFailure(nil))
	assert.True(t, h.RecordFailure(nil), "should transition at threshold")
	assert.Equal(t, string(StatusUnhealthy), h.Snapshot().Status)

	assert.False(t, h.RecordFailure(nil), "already unhealthy")
	snap := h.Snapshot()
	assert.Equal(t, 4, snap.ConsecutiveFailures)
	assert.Equal(t, "metric unavailable", snap.LastError)
}

func TestControllerHealth_Recovery(t *testing.T) {
	h := NewControllerHealth(model.ParameterConcurrency, 2)
	h.RecordFailure(nil)
	h.RecordFailure(nil)
	require.Equal(t, string(StatusUnhealthy), h.Snapshot().Status)

	assert.True(t, h.RecordSuccess(true))
	assert.Equal(t, string(StatusHealthy), h.Snapshot().Status)
	assert.False(t, h.RecordSuccess(true))
}

func TestControllerHealth_SnapshotFields(t *testing.T) {
	h := NewControllerHealth(model.ParameterTimeout, 0)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.nowFunc = func() time.Time { return fixed }

	snap := h.Snapshot()
	assert.Equal(t, "timeout", snap.Parameter)
	assert.Equal(t, string(StatusUnknown), snap.Status)
	assert.False(t, snap.Ready)
	assert.Nil(t, snap.LastSuccessAt)
	assert.Nil(t, snap.LastFailureAt)

	h.RecordFailure(errors.New("boom"))
	require.NotNil(t, h.Snapshot().LastFailureAt)
	assert.Equal(t, fixed, *h.Snapshot().LastFailureAt)
}

func TestRegistry_Transitions(t *testing.T) {
	var got []Event
	reg := NewRegistry(2, func(ev Event, snap Snapshot) {
		got = append(got, ev)
		assert.Equal(t, "retry", snap.Parameter)
	})
	reg.Register(model.ParameterRetry)

	reg.TickFailed(model.ParameterRetry, errors.New("x"))
	reg.TickFailed(model.ParameterRetry, errors.New("x"))
	reg.TickFailed(model.ParameterRetry, errors.New("x"))
	reg.TickSucceeded(model.ParameterRetry, true)
	reg.TickSucceeded(model.ParameterRetry, true)

	assert.Equal(t, []Event{EventUnhealthy, EventRecovered}, got)
}

func TestRegistry_StartupFault(t *testing.T) {
	var got []Event
	var last Snapshot
	reg := NewRegistry(5, func(ev Event, snap Snapshot) {
		got = append(got, ev)
		last = snap
	})

	reg.StartupFault(model.ParameterTimeout, errors.New("gateway unavailable"))

	assert.Equal(t, []Event{EventStartupFault}, got)
	assert.Equal(t, string(StatusDegraded), last.Status)
	assert.Equal(t, "gateway unavailable", last.LastError)
	assert.False(t, reg.Ready())
}

func TestRegistry_ReadyRequiresEveryController(t *testing.T) {
	reg := NewRegistry(0, nil)
	assert.False(t, reg.Ready(), "empty registry is not ready")

	reg.Register(model.ParameterTimeout)
	reg.Register(model.ParameterRetry)

	reg.TickSucceeded(model.ParameterTimeout, true)
	assert.False(t, reg.Ready())

	reg.TickSucceeded(model.ParameterRetry, false)
	assert.False(t, reg.Ready())

	reg.TickSucceeded(model.ParameterRetry, true)
	assert.True(t, reg.Ready())

	snaps := reg.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "retry", snaps[0].Parameter)
	assert.Equal(t, "timeout", snaps[1].Parameter)
}

func TestHandler_Readyz(t *testing.T) {
	reg := NewRegistry(0, nil)
	reg.Register(model.ParameterTimeout)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(Handler(reg, logger))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	reg.TickSucceeded(model.ParameterTimeout, true)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status      string     `json:"status"`
		Controllers []Snapshot `json:"controllers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body.Status)
	require.Len(t, body.Controllers, 1)
	assert.Equal(t, string(StatusHealthy), body.Controllers[0].Status)
}

func TestHandler_HealthzAndMetrics(t *testing.T) {
	reg := NewRegistry(0, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(Handler(reg, logger))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}
