package store

import (
	"context"

	"github.com/whorules/arm-controller/internal/domain/model"
	"github.com/whorules/arm-controller/internal/journal"
)

// SetpointChangeRepository persists the decision journal.
type SetpointChangeRepository interface {
	Write(ctx context.Context, ev journal.ChangeEvent) error
}

// RuntimePolicyRepository provides the live policy overrides per parameter.
type RuntimePolicyRepository interface {
	GetActive(ctx context.Context, parameter model.Parameter) (map[string]string, error)
}
