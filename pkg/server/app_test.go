package server

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu      sync.Mutex
	calls   []string
	ticks   int
	tickErr error
	reason  string
	crashed error
}

func (l *recordingListener) record(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *recordingListener) Start(context.Context) error { l.record("start"); return nil }

func (l *recordingListener) Tick(context.Context) error {
	l.record("tick")
	l.ticks++
	if l.ticks == 2 && l.tickErr != nil {
		return l.tickErr
	}
	return nil
}

func (l *recordingListener) Stop(reason string) error {
	l.record("stop")
	l.reason = reason
	return nil
}

func (l *recordingListener) Crash(_ context.Context, cause error) string {
	l.record("crash")
	l.crashed = cause
	return "/tmp/crash.txt"
}

// loopScheduler ticks until ctx ends or tick fails, then cancels via fn.
type loopScheduler struct {
	ticks int
	after func()
}

func (s *loopScheduler) Run(ctx context.Context, tick func(context.Context) error) error {
	for i := 0; i < s.ticks; i++ {
		if ctx.Err() != nil {
			return nil
		}
		if err := tick(ctx); err != nil {
			return err
		}
	}
	if s.after != nil {
		s.after()
	}
	<-ctx.Done()
	return nil
}

type blockingRunner struct{ stopped chan struct{} }

func (r *blockingRunner) Run(ctx context.Context) error {
	<-ctx.Done()
	close(r.stopped)
	return ctx.Err()
}

func TestAppStopsOnCancel(t *testing.T) {
	l := &recordingListener{}
	ctx, cancel := context.WithCancel(context.Background())
	bg := &blockingRunner{stopped: make(chan struct{})}
	app := New(l, &loopScheduler{ticks: 2, after: cancel}, WithSignals(), WithBackground(bg))

	require.NoError(t, app.Run(ctx))
	assert.Equal(t, []string{"start", "tick", "tick", "stop"}, l.calls)
	assert.Equal(t, StopRequested, l.reason)
	select {
	case <-bg.stopped:
	case <-time.After(time.Second):
		t.Fatal("background runner not stopped")
	}
}

func TestAppStopsOnSignal(t *testing.T) {
	l := &recordingListener{}
	app := New(l, &loopScheduler{ticks: 1, after: func() {
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGHUP)
	}}, WithSignals(syscall.SIGHUP))

	require.NoError(t, app.Run(context.Background()))
	assert.Equal(t, "SIGHUP", l.reason)
}

func TestAppCrashesOnTickError(t *testing.T) {
	boom := errors.New("observation log: disk full")
	l := &recordingListener{tickErr: boom}
	app := New(l, &loopScheduler{ticks: 3}, WithSignals())

	err := app.Run(context.Background())
	var ce *CrashError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "/tmp/crash.txt", ce.ReportPath)
	assert.Equal(t, []string{"start", "tick", "tick", "crash"}, l.calls)
	assert.Empty(t, l.reason, "no stop event after a crash")
}
