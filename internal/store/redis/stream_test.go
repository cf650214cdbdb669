package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whorules/arm-controller/internal/journal"
)

type fakeAdder struct {
	mu    sync.Mutex
	calls []*redis.XAddArgs
	err   error
}

func (f *fakeAdder) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, a)
	return redis.NewStringResult("1700000000000-0", f.err)
}

func testEvent() journal.ChangeEvent {
	return journal.ChangeEvent{
		ID:        uuid.MustParse("6f1c1f2e-1b7a-4b8e-9a43-0d2b5a1e9c11"),
		TickID:    "tick-9",
		Parameter: "retry",
		RouteID:   "vets_route",
		Before:    1,
		After:     2,
		Action:    "increase",
		Region:    "above_band",
		Value:     1.6,
		At:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStream_WritePublishesEvent(t *testing.T) {
	t.Parallel()

	adder := &fakeAdder{}
	s := newStream(adder, "", 1000)
	require.NoError(t, s.Write(context.Background(), testEvent()))

	require.Len(t, adder.calls, 1)
	args := adder.calls[0]
	assert.Equal(t, DefaultStream, args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.(map[string]any)
	assert.Equal(t, "6f1c1f2e-1b7a-4b8e-9a43-0d2b5a1e9c11", values["event_id"])
	assert.Equal(t, "vets_route", values["route_id"])

	var decoded journal.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, testEvent(), decoded)
}

func TestStream_WriteWithoutTrim(t *testing.T) {
	t.Parallel()

	adder := &fakeAdder{}
	s := newStream(adder, "custom:stream", 0)
	require.NoError(t, s.Write(context.Background(), testEvent()))
	assert.Equal(t, "custom:stream", adder.calls[0].Stream)
	assert.Zero(t, adder.calls[0].MaxLen)
	assert.Equal(t, "redis", s.Name())
	assert.NoError(t, s.Close())
}

func TestStream_WriteError(t *testing.T) {
	t.Parallel()

	s := newStream(&fakeAdder{err: errors.New("READONLY")}, "", 0)
	err := s.Write(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xadd armctl:setpoints")
}

func TestNewStream_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewStream(context.Background(), "://bad", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis url")
}
