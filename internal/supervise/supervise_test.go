package supervise

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRestartsOnErrorAndPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	var restarts atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Loop(ctx, "test", nil, func(ctx context.Context) error {
			switch runs.Add(1) {
			case 1:
				return errors.New("boom")
			case 2:
				panic("kaboom")
			default:
				<-ctx.Done()
				return ctx.Err()
			}
		},
			WithBackoff(time.Millisecond, 5*time.Millisecond),
			OnRestart(func(int, error) { restarts.Add(1) }),
		)
	}()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("runs = %d, want 3", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Loop() = %v, want nil on cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Loop did not return after cancel")
	}
	if restarts.Load() != 2 {
		t.Errorf("restarts = %d, want 2", restarts.Load())
	}
}

func TestLoopStopsOnFatal(t *testing.T) {
	cause := errors.New("queue gone")
	var runs int
	err := Loop(context.Background(), "test", nil, func(context.Context) error {
		runs++
		return Fatal(cause)
	}, WithBackoff(time.Millisecond, time.Millisecond))

	if !errors.Is(err, cause) {
		t.Errorf("Loop() = %v, want %v", err, cause)
	}
	if !IsFatal(err) {
		t.Error("returned error should be fatal")
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
}

func TestFatalNil(t *testing.T) {
	if Fatal(nil) != nil {
		t.Error("Fatal(nil) should be nil")
	}
	if IsFatal(errors.New("plain")) {
		t.Error("plain error should not be fatal")
	}
}
