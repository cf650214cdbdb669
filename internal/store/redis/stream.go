package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whorules/arm-controller/internal/journal"
)

// DefaultStream is the stream applied setpoint changes are published to.
const DefaultStream = "armctl:setpoints"

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Stream publishes setpoint change events to a Redis stream so other
// processes (dashboards, gateway replicas) can follow controller activity.
type Stream struct {
	client *redis.Client
	adder  streamAdder
	stream string
	maxLen int64
}

var _ journal.Sink = (*Stream)(nil)

func NewStream(ctx context.Context, url, stream string, maxLen int64) (*Stream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := newStream(client, stream, maxLen)
	s.client = client
	return s, nil
}

func newStream(adder streamAdder, stream string, maxLen int64) *Stream {
	if stream == "" {
		stream = DefaultStream
	}
	return &Stream{adder: adder, stream: stream, maxLen: maxLen}
}

func (s *Stream) Name() string {
	return "redis"
}

// Write appends ev to the stream, trimming it to roughly maxLen entries.
func (s *Stream) Write(ctx context.Context, ev journal.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"event_id":  ev.ID.String(),
			"parameter": ev.Parameter,
			"route_id":  ev.RouteID,
			"payload":   string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.adder.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *Stream) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
