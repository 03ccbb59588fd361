package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSyncer struct {
	calls   atomic.Int32
	failing atomic.Bool
}

func (f *fakeSyncer) Sync(_ context.Context) error {
	f.calls.Add(1)
	if f.failing.Load() {
		return errors.New("sync failed")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunTick_Success(t *testing.T) {
	syncer := &fakeSyncer{}
	s := New(syncer, time.Second, discardLogger())
	if ok := s.runTick(context.Background()); !ok {
		t.Fatalf("expected runTick to report success")
	}
	if syncer.calls.Load() != 1 {
		t.Fatalf("expected exactly one sync call, got %d", syncer.calls.Load())
	}
}

func TestRunTick_Failure(t *testing.T) {
	syncer := &fakeSyncer{}
	syncer.failing.Store(true)
	s := New(syncer, time.Second, discardLogger())
	if ok := s.runTick(context.Background()); ok {
		t.Fatalf("expected runTick to report failure")
	}
}

func TestRun_TicksImmediatelyThenStopsOnCancel(t *testing.T) {
	syncer := &fakeSyncer{}
	s := New(syncer, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for syncer.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if syncer.calls.Load() == 0 {
		t.Fatalf("expected the first tick to run immediately")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}
}

func TestRun_FailingFirstTickRunsImmediately(t *testing.T) {
	syncer := &fakeSyncer{}
	syncer.failing.Store(true)
	s := New(syncer, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for syncer.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if syncer.calls.Load() == 0 {
		t.Fatalf("expected at least one failed tick before the test deadline")
	}
}
