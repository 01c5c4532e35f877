package scraper

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryWithBackoff() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("always fails")
	attempts := 0
	err := RetryWithBackoff(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want last error", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 try + 2 retries)", attempts)
	}
}

func TestRetryWithBackoff_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("not found")
	attempts := 0
	err := RetryWithBackoff(context.Background(), 5, time.Millisecond, func() error {
		attempts++
		return Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want unwrapped sentinel", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, 3, time.Hour, func() error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
