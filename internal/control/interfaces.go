package control

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks

import (
	"context"

	"github.com/whorules/arm-controller/internal/domain/model"
)

// Series is one raw instant-vector entry: its label set and the
// undecoded [timestamp, "value"] pair.
type Series struct {
	Labels map[string]string
	Value  []any
}

// QueryResult is the undecoded answer of a metric query.
type QueryResult struct {
	Status string
	Series []Series
}

// MetricSource runs an instant query against the metrics backend.
type MetricSource interface {
	Query(ctx context.Context, query string) (QueryResult, error)
}

// SetpointApplier pushes a new setpoint for one resource to the gateway.
type SetpointApplier interface {
	Apply(ctx context.Context, key model.ResourceKey, value int) error
}

// BaselineFetcher reads the setpoints currently configured on the gateway.
type BaselineFetcher interface {
	Baseline(ctx context.Context) (map[model.ResourceKey]int, error)
}

// ChangeObserver is notified after every applied change and every failed push.
// Observers run synchronously on the tick goroutine while the tick lock is
// held, so a slow observer delays the rest of the tick and any policy update.
// Implementations must bound their own work with a timeout.
type ChangeObserver interface {
	SetpointChanged(ctx context.Context, change Change)
	ApplyFailed(ctx context.Context, failure ApplyFailureEvent)
}

// TickReporter receives the result of every runner tick.
type TickReporter interface {
	TickSucceeded(parameter model.Parameter, ready bool)
	TickFailed(parameter model.Parameter, err error)
	// StartupFault is called once when initialization exhausts its attempts.
	StartupFault(parameter model.Parameter, err error)
}
