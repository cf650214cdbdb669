package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/whorules/arm-controller/internal/control"
	"github.com/whorules/arm-controller/internal/metrics"
)

// ChangeEvent is the persisted record of an applied setpoint change.
type ChangeEvent struct {
	ID        uuid.UUID          `json:"id"`
	TickID    string             `json:"tick_id"`
	Parameter string             `json:"parameter"`
	RouteID   string             `json:"route_id"`
	Before    int                `json:"before"`
	After     int                `json:"after"`
	Action    string             `json:"action"`
	Region    string             `json:"region"`
	Value     float64            `json:"value"`
	Guards    map[string]float64 `json:"guards,omitempty"`
	At        time.Time          `json:"at"`
}

// Sink stores change events.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev ChangeEvent) error
}

// Journal fans applied changes out to every sink. Sink failures are logged and
// counted; they never fail the tick that produced the change.
type Journal struct {
	sinks        []Sink
	writeTimeout time.Duration
	logger       *slog.Logger
}

var _ control.ChangeObserver = (*Journal)(nil)

func New(logger *slog.Logger, writeTimeout time.Duration, sinks ...Sink) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	return &Journal{
		sinks:        sinks,
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "journal"),
	}
}

func NewEvent(c control.Change) ChangeEvent {
	return ChangeEvent{
		ID:        uuid.New(),
		TickID:    c.TickID,
		Parameter: c.Parameter.String(),
		RouteID:   c.Key.String(),
		Before:    c.Before,
		After:     c.After,
		Action:    string(c.Action),
		Region:    string(c.Region),
		Value:     c.Value,
		Guards:    c.Guards,
		At:        c.At.UTC(),
	}
}

func (j *Journal) SetpointChanged(ctx context.Context, c control.Change) {
	if len(j.sinks) == 0 {
		return
	}
	ev := NewEvent(c)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.writeTimeout)
	defer cancel()
	for _, s := range j.sinks {
		if err := s.Write(ctx, ev); err != nil {
			metrics.JournalWritesTotal.WithLabelValues(s.Name(), "error").Inc()
			j.logger.Warn("journal write failed",
				"sink", s.Name(), "event_id", ev.ID.String(), "route_id", ev.RouteID, "error", err)
			continue
		}
		metrics.JournalWritesTotal.WithLabelValues(s.Name(), "ok").Inc()
	}
}

// ApplyFailed is a no-op; failed pushes are not journaled.
func (j *Journal) ApplyFailed(context.Context, control.ApplyFailureEvent) {}
