package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/planner/internal/persistence"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         time.Millisecond,
		MaxElapsedTime:      time.Second,
		Multiplier:          1,
		RandomizationFactor: 0,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWithRetryRecoversFromTransientErrors(t *testing.T) {
	cb := newStoreBreaker("test", quietLogger())
	attempts := 0

	err := withRetry(context.Background(), cb, fastRetry(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryStopsOnNotFound(t *testing.T) {
	cb := newStoreBreaker("test", quietLogger())
	attempts := 0

	err := withRetry(context.Background(), cb, fastRetry(), func(context.Context) error {
		attempts++
		return fmt.Errorf("task x: %w", persistence.ErrNotFound)
	})
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("breaker state = %s, want closed", cb.State())
	}
}

func TestWithRetryTripsBreaker(t *testing.T) {
	cb := newStoreBreaker("test", quietLogger())
	attempts := 0

	err := withRetry(context.Background(), cb, fastRetry(), func(context.Context) error {
		attempts++
		return errors.New("disk I/O error")
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want ErrOpenState", err)
	}
	if attempts != 5 {
		t.Errorf("attempts = %d, want 5", attempts)
	}
}

func TestWithRetryHonoursCancelledContext(t *testing.T) {
	cb := newStoreBreaker("test", quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := withRetry(ctx, cb, fastRetry(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Error("operation ran after cancellation")
	}
}
