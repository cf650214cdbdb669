package health

import (
	"sync"
	"time"

	"github.com/whorules/arm-controller/internal/domain/model"
)

// Status represents the health state of a controller.
type Status string

const (
	StatusUnknown   Status = "UNKNOWN"
	StatusHealthy   Status = "HEALTHY"
	StatusDegraded  Status = "DEGRADED"
	StatusUnhealthy Status = "UNHEALTHY"

	// DefaultUnhealthyThreshold is the number of consecutive failed ticks
	// before a controller is considered unhealthy.
	DefaultUnhealthyThreshold = 5
)

// ControllerHealth tracks tick outcomes of a single controller. One failed
// tick makes it DEGRADED; a run of unhealthyThreshold failures makes it
// UNHEALTHY; any successful tick makes it HEALTHY again.
type ControllerHealth struct {
	mu                  sync.RWMutex
	parameter           model.Parameter
	status              Status
	ready               bool
	consecutiveFailures int
	lastSuccessAt       *time.Time
	lastFailureAt       *time.Time
	lastError           string
	unhealthyThreshold  int
	nowFunc             func() time.Time
}

// NewControllerHealth creates a tracker for one parameter. A threshold
// below 1 falls back to DefaultUnhealthyThreshold.
func NewControllerHealth(parameter model.Parameter, unhealthyThreshold int) *ControllerHealth {
	if unhealthyThreshold < 1 {
		unhealthyThreshold = DefaultUnhealthyThreshold
	}
	return &ControllerHealth{
		parameter:          parameter,
		status:             StatusUnknown,
		unhealthyThreshold: unhealthyThreshold,
		nowFunc:            time.Now,
	}
}

// RecordSuccess records a completed tick and returns true if it represents
// a recovery from an unhealthy state.
func (h *ControllerHealth) RecordSuccess(ready bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.nowFunc()
	wasUnhealthy := h.status == StatusUnhealthy
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now
	h.lastError = ""
	h.ready = ready
	h.status = StatusHealthy
	return wasUnhealthy
}

// RecordFailure records a failed tick. Returns true if the controller
// transitioned to unhealthy on this call.
func (h *ControllerHealth) RecordFailure(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.nowFunc()
	h.consecutiveFailures++
	h.lastFailureAt = &now
	if err != nil {
		h.lastError = err.Error()
	}
	if h.consecutiveFailures >= h.unhealthyThreshold {
		if h.status != StatusUnhealthy {
			h.status = StatusUnhealthy
			return true
		}
		return false
	}
	h.status = StatusDegraded
	return false
}

// Ready reports whether the last successful tick saw an initialized controller.
func (h *ControllerHealth) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Snapshot returns the current health state.
func (h *ControllerHealth) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Snapshot{
		Parameter:           h.parameter.String(),
		Status:              string(h.status),
		Ready:               h.ready,
		ConsecutiveFailures: h.consecutiveFailures,
		LastSuccessAt:       h.lastSuccessAt,
		LastFailureAt:       h.lastFailureAt,
		LastError:           h.lastError,
	}
}

// Snapshot is a point-in-time view of controller health (JSON-safe).
type Snapshot struct {
	Parameter           string     `json:"parameter"`
	Status              string     `json:"status"`
	Ready               bool       `json:"ready"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}
