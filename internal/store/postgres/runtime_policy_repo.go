package postgres

import (
	"context"
	"fmt"

	"github.com/whorules/arm-controller/internal/domain/model"
	"github.com/whorules/arm-controller/internal/store"
)

type RuntimePolicyRepo struct {
	db *DB
}

var _ store.RuntimePolicyRepository = (*RuntimePolicyRepo)(nil)

func NewRuntimePolicyRepo(db *DB) *RuntimePolicyRepo {
	return &RuntimePolicyRepo{db: db}
}

// GetActive returns the active policy overrides of one parameter as raw key/value pairs.
func (r *RuntimePolicyRepo) GetActive(ctx context.Context, parameter model.Parameter) (map[string]string, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT policy_key, policy_value
		FROM runtime_policies
		WHERE parameter = $1 AND is_active = true
	`, parameter.String())
	if err != nil {
		return nil, fmt.Errorf("get active runtime policies: %w", err)
	}
	defer rows.Close()

	policies := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan runtime policy: %w", err)
		}
		policies[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read runtime policy rows: %w", err)
	}

	return policies, nil
}

// Set upserts one active override.
func (r *RuntimePolicyRepo) Set(ctx context.Context, parameter model.Parameter, key, value string) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runtime_policies (parameter, policy_key, policy_value, is_active, updated_at)
		VALUES ($1, $2, $3, true, now())
		ON CONFLICT (parameter, policy_key)
		DO UPDATE SET policy_value = EXCLUDED.policy_value, is_active = true, updated_at = now()
	`, parameter.String(), key, value)
	if err != nil {
		return fmt.Errorf("set runtime policy %s.%s: %w", parameter, key, err)
	}
	return nil
}
