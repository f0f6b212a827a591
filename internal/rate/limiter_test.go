package rate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackToBackCallsAreSpaced(t *testing.T) {
	limiter := NewLimiter(50 * time.Millisecond)
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	limiter.Release(nil)
	first := time.Now()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	limiter.Release(nil)

	if elapsed := time.Since(first); elapsed < 50*time.Millisecond {
		t.Fatalf("second call admitted after %v, want >= 50ms", elapsed)
	}
}

func TestFailedCallDoesNotAdvanceCooldown(t *testing.T) {
	limiter := NewLimiter(time.Hour)
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	limiter.Release(errors.New("boom"))

	// The failed call never stamped the cool-down, so this must not block.
	done := make(chan struct{})
	go func() {
		if err := limiter.Acquire(ctx); err != nil {
			t.Errorf("second acquire: %v", err)
		}
		limiter.Release(nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire blocked despite failed first call")
	}
}

func TestCancelledWaiterReleasesSlot(t *testing.T) {
	limiter := NewLimiter(time.Hour)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	limiter.Release(nil)

	// Second caller is stuck in the hour-long cool-down; cancel it.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// The slot must have been released on cancellation: a third caller
	// can take it (it will wait in cool-down, but not on the slot).
	select {
	case limiter.sem <- struct{}{}:
		<-limiter.sem
	case <-time.After(time.Second):
		t.Fatal("slot still held after cancelled acquire")
	}
}

func TestCancelledWhileWaitingForSlot(t *testing.T) {
	limiter := NewLimiter(time.Millisecond)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	limiter.Release(nil)
}
