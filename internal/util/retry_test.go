package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithContext_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	result, err := RetryWithContext(context.Background(), 3, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("unexpected result: %q", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithContext_ReturnsLastError(t *testing.T) {
	wantErr := errors.New("persistent")
	calls := 0
	_, err := RetryWithContext(context.Background(), 2, func(ctx context.Context) (int, error) {
		calls++
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryWithContext_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithContext(ctx, 5, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("should not retry")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected 0 calls after cancel, got %d", calls)
	}
}

func TestRetryWithBackoff_WaitsBetweenAttempts(t *testing.T) {
	calls := 0
	start := time.Now()
	_, err := RetryWithBackoff(context.Background(), 2, 20*time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected at least one backoff wait, elapsed %v", elapsed)
	}
}

func TestRetryWithBackoff_DoesNotRetryContextErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := RetryWithBackoff(ctx, 3, time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
