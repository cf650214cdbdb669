package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/whorules/arm-controller/internal/journal"
	"github.com/whorules/arm-controller/internal/store"
)

// SetpointChangeRepo journals applied setpoint changes.
type SetpointChangeRepo struct {
	db *DB
}

var (
	_ journal.Sink                   = (*SetpointChangeRepo)(nil)
	_ store.SetpointChangeRepository = (*SetpointChangeRepo)(nil)
)

func NewSetpointChangeRepo(db *DB) *SetpointChangeRepo {
	return &SetpointChangeRepo{db: db}
}

func (r *SetpointChangeRepo) Name() string {
	return "postgres"
}

func (r *SetpointChangeRepo) Write(ctx context.Context, ev journal.ChangeEvent) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var guards []byte
	if len(ev.Guards) > 0 {
		var err error
		if guards, err = json.Marshal(ev.Guards); err != nil {
			return fmt.Errorf("encode guards: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO setpoint_changes (
			id, tick_id, parameter, route_id, before_value, after_value,
			action, region, signal, guards, changed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.TickID, ev.Parameter, ev.RouteID, ev.Before, ev.After,
		ev.Action, ev.Region, ev.Value, nullableJSON(guards), ev.At)
	if err != nil {
		return fmt.Errorf("insert setpoint change: %w", err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
