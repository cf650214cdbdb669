package control_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/whorules/arm-controller/internal/control"
	"github.com/whorules/arm-controller/internal/control/mocks"
	"github.com/whorules/arm-controller/internal/domain/model"
	"github.com/whorules/arm-controller/internal/retry"
)

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.once.Do(func() { close(m.stopped) }) }

// fakeEvaluator records calls; Evaluate signals on evaluated after each tick.
type fakeEvaluator struct {
	mu         sync.Mutex
	ready      bool
	initErrs   []error
	initCalls  int
	evalErr    error
	evalCalls  int
	evaluated  chan struct{}
	initialize chan struct{}
}

func newFakeEvaluator() *fakeEvaluator {
	return &fakeEvaluator{evaluated: make(chan struct{}, 16), initialize: make(chan struct{}, 16)}
}

func (f *fakeEvaluator) Parameter() model.Parameter { return model.ParameterTimeout }

func (f *fakeEvaluator) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeEvaluator) Initialize(context.Context) error {
	f.mu.Lock()
	defer func() {
		f.mu.Unlock()
		f.initialize <- struct{}{}
	}()
	f.initCalls++
	if len(f.initErrs) > 0 {
		err := f.initErrs[0]
		f.initErrs = f.initErrs[1:]
		return err
	}
	f.ready = true
	return nil
}

func (f *fakeEvaluator) Evaluate(context.Context) (control.TickReport, error) {
	f.mu.Lock()
	defer func() {
		f.mu.Unlock()
		f.evaluated <- struct{}{}
	}()
	f.evalCalls++
	return control.TickReport{TickID: fmt.Sprintf("tick-%d", f.evalCalls)}, f.evalErr
}

func (f *fakeEvaluator) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls, f.evalCalls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRunner(t *testing.T, r *control.Runner) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return cancel, done
}

func TestRunner_InitializesThenEvaluatesOnEveryTick(t *testing.T) {
	mc := gomock.NewController(t)
	reporter := mocks.NewMockTickReporter(mc)
	reporter.EXPECT().TickSucceeded(model.ParameterTimeout, true).Times(3)

	eval := newFakeEvaluator()
	ticker := newManualTicker()
	r := control.NewRunner(eval, control.RunnerConfig{
		Interval:  time.Second,
		NewTicker: func(time.Duration) control.Ticker { return ticker },
	}, reporter, quietLogger())

	cancel, done := startRunner(t, r)
	<-eval.initialize

	ticker.ch <- time.Now()
	<-eval.evaluated
	ticker.ch <- time.Now()
	<-eval.evaluated

	cancel()
	require.NoError(t, <-done)
	<-ticker.stopped

	initCalls, evalCalls := eval.counts()
	assert.Equal(t, 1, initCalls)
	assert.Equal(t, 2, evalCalls)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunner_LogsComponentAttributesOnce(t *testing.T) {
	out := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(out, nil))

	eval := newFakeEvaluator()
	ticker := newManualTicker()
	r := control.NewRunner(eval, control.RunnerConfig{
		NewTicker: func(time.Duration) control.Ticker { return ticker },
	}, nil, logger)

	cancel, done := startRunner(t, r)
	<-eval.initialize
	cancel()
	require.NoError(t, <-done)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, `"component":`), line)
		assert.Equal(t, 1, strings.Count(line, `"parameter":`), line)
		assert.Contains(t, line, `"component":"runner"`)
	}
}

func TestRunner_RetriesTransientInitFailures(t *testing.T) {
	mc := gomock.NewController(t)
	reporter := mocks.NewMockTickReporter(mc)
	reporter.EXPECT().TickSucceeded(model.ParameterTimeout, true).Times(1)

	eval := newFakeEvaluator()
	eval.initErrs = []error{retry.Transient(errors.New("gateway unavailable")), context.DeadlineExceeded}
	ticker := newManualTicker()
	r := control.NewRunner(eval, control.RunnerConfig{
		InitAttempts: 3,
		InitBackoff:  time.Millisecond,
		NewTicker:    func(time.Duration) control.Ticker { return ticker },
	}, reporter, quietLogger())

	cancel, done := startRunner(t, r)
	for i := 0; i < 3; i++ {
		<-eval.initialize
	}
	cancel()
	require.NoError(t, <-done)

	initCalls, _ := eval.counts()
	assert.Equal(t, 3, initCalls)
}

func TestRunner_TerminalInitFailureIsReportedWithoutRetry(t *testing.T) {
	mc := gomock.NewController(t)
	reporter := mocks.NewMockTickReporter(mc)
	reporter.EXPECT().StartupFault(model.ParameterTimeout, gomock.Any()).Times(1)

	eval := newFakeEvaluator()
	eval.initErrs = []error{retry.Terminal(errors.New("baseline schema mismatch"))}
	ticker := newManualTicker()
	r := control.NewRunner(eval, control.RunnerConfig{
		InitAttempts: 5,
		InitBackoff:  time.Millisecond,
		NewTicker:    func(time.Duration) control.Ticker { return ticker },
	}, reporter, quietLogger())

	cancel, done := startRunner(t, r)
	<-eval.initialize

	// The controller is still not ready; the tick drives initialization again.
	reporter.EXPECT().TickSucceeded(model.ParameterTimeout, false).Times(1)
	ticker.ch <- time.Now()
	<-eval.evaluated

	cancel()
	require.NoError(t, <-done)
	initCalls, evalCalls := eval.counts()
	assert.Equal(t, 1, initCalls)
	assert.Equal(t, 1, evalCalls)
}

func TestRunner_ReportsTickFailures(t *testing.T) {
	mc := gomock.NewController(t)
	reporter := mocks.NewMockTickReporter(mc)
	reporter.EXPECT().TickSucceeded(model.ParameterTimeout, true).Times(1)
	reporter.EXPECT().TickFailed(model.ParameterTimeout, gomock.Any()).Do(func(_ model.Parameter, err error) {
		assert.ErrorIs(t, err, control.ErrMetricUnavailable)
	})

	eval := newFakeEvaluator()
	eval.evalErr = fmt.Errorf("%w: connection refused", control.ErrMetricUnavailable)
	ticker := newManualTicker()
	r := control.NewRunner(eval, control.RunnerConfig{
		NewTicker: func(time.Duration) control.Ticker { return ticker },
	}, reporter, quietLogger())

	cancel, done := startRunner(t, r)
	<-eval.initialize
	ticker.ch <- time.Now()
	<-eval.evaluated
	cancel()
	require.NoError(t, <-done)
}

func TestRunner_CancelDuringReadyDelay(t *testing.T) {
	eval := newFakeEvaluator()
	r := control.NewRunner(eval, control.RunnerConfig{ReadyDelay: time.Hour}, nil, quietLogger())

	cancel, done := startRunner(t, r)
	cancel()
	require.NoError(t, <-done)

	initCalls, _ := eval.counts()
	assert.Equal(t, 0, initCalls)
}
