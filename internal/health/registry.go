package health

import (
	"sort"
	"sync"

	"github.com/whorules/arm-controller/internal/control"
	"github.com/whorules/arm-controller/internal/domain/model"
	"github.com/whorules/arm-controller/internal/metrics"
)

// Event is a health change worth telling an operator about.
type Event string

const (
	EventUnhealthy    Event = "unhealthy"
	EventRecovered    Event = "recovered"
	EventStartupFault Event = "startup_fault"
)

// EventFunc receives health events. It runs on the runner goroutine.
type EventFunc func(ev Event, snap Snapshot)

// Registry holds one tracker per enabled controller and receives runner tick
// results.
type Registry struct {
	mu        sync.RWMutex
	trackers  map[model.Parameter]*ControllerHealth
	threshold int
	onEvent   EventFunc
}

var _ control.TickReporter = (*Registry)(nil)

// NewRegistry creates a registry. onEvent may be nil.
func NewRegistry(unhealthyThreshold int, onEvent EventFunc) *Registry {
	return &Registry{
		trackers:  make(map[model.Parameter]*ControllerHealth),
		threshold: unhealthyThreshold,
		onEvent:   onEvent,
	}
}

// Register adds a tracker for parameter. Readiness is gated on every
// registered parameter, so register each enabled controller before serving.
func (r *Registry) Register(parameter model.Parameter) *ControllerHealth {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.trackers[parameter]; ok {
		return h
	}
	h := NewControllerHealth(parameter, r.threshold)
	r.trackers[parameter] = h
	return h
}

func (r *Registry) tracker(parameter model.Parameter) *ControllerHealth {
	r.mu.RLock()
	h, ok := r.trackers[parameter]
	r.mu.RUnlock()
	if ok {
		return h
	}
	return r.Register(parameter)
}

func (r *Registry) TickSucceeded(parameter model.Parameter, ready bool) {
	h := r.tracker(parameter)
	recovered := h.RecordSuccess(ready)
	metrics.ControllerConsecutiveFailures.WithLabelValues(parameter.String()).Set(0)
	if recovered {
		r.emit(EventRecovered, h.Snapshot())
	}
}

func (r *Registry) TickFailed(parameter model.Parameter, err error) {
	h := r.tracker(parameter)
	transitioned := h.RecordFailure(err)
	snap := h.Snapshot()
	metrics.ControllerConsecutiveFailures.WithLabelValues(parameter.String()).Set(float64(snap.ConsecutiveFailures))
	if transitioned {
		r.emit(EventUnhealthy, snap)
	}
}

// StartupFault counts as a failed tick and is always emitted.
func (r *Registry) StartupFault(parameter model.Parameter, err error) {
	r.TickFailed(parameter, err)
	r.emit(EventStartupFault, r.tracker(parameter).Snapshot())
}

func (r *Registry) emit(ev Event, snap Snapshot) {
	if r.onEvent != nil {
		r.onEvent(ev, snap)
	}
}

// Ready reports whether every registered controller is ready. An empty
// registry is never ready.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.trackers) == 0 {
		return false
	}
	for _, h := range r.trackers {
		if !h.Ready() {
			return false
		}
	}
	return true
}

// Snapshots returns the state of every tracker ordered by parameter.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.trackers))
	for _, h := range r.trackers {
		out = append(out, h.Snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Parameter < out[j].Parameter })
	return out
}
