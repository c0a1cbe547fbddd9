package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitAll(t *testing.T, s *Supervisor) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Wait(ctx)
}

func TestGoCapturesFirstError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	boom := errors.New("boom")
	s.Go("fails", func(context.Context) error { return boom })
	if err := waitAll(t, s); !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want %v", err, boom)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("panics", func(context.Context) error { panic("kaboom") })
	err := waitAll(t, s)
	if err == nil {
		t.Fatal("panic not reported as error")
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("fails", func(context.Context) error { return errors.New("boom") })
	s.Go0("waits", func(ctx context.Context) { <-ctx.Done() })
	if err := waitAll(t, s); err == nil {
		t.Fatal("expected first error from Wait")
	}
	if s.Context().Err() == nil {
		t.Fatal("context not cancelled after error")
	}
}

func TestErrorAfterCancelIsIgnored(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go0("waits", func(ctx context.Context) { <-ctx.Done() })
	s.Cancel()
	s.Go("late", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := waitAll(t, s); err != nil {
		t.Fatalf("shutdown errors should be swallowed, got %v", err)
	}
}

func TestGoRestartRestartsUntilCancel(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs int32
	s.GoRestart("loop", time.Millisecond, 4*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("transient")
	})

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&runs) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&runs); got < 3 {
		t.Fatalf("runs = %d, want >= 3", got)
	}

	s.Cancel()
	if err := waitAll(t, s); err != nil {
		t.Fatalf("Wait after cancel = %v", err)
	}
	if n := s.Active(); n != 0 {
		t.Fatalf("active = %d, want 0", n)
	}
}
