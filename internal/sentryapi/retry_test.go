package sentryapi

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_NetworkErrorRetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &NetworkError{Cause: errors.New("dial tcp: timeout")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_NetworkErrorExhausted(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return &NetworkError{Cause: errors.New("connection refused")}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != len(networkBackoff)+1 {
		t.Errorf("calls = %d, want %d", calls, len(networkBackoff)+1)
	}
}

func TestWithRetry_RateLimitedRetriesOnce(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return &RateLimited{RetryAfterSeconds: 0}
	})
	if err == nil {
		t.Fatal("expected error after single rate-limit retry")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWithRetry_ServerErrorRetriesTwice(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return &ServerError{Status: 503}
	})
	if err == nil {
		t.Fatal("expected error after exhausting server error retries")
	}
	if calls != maxServerErrorRetries+1 {
		t.Errorf("calls = %d, want %d", calls, maxServerErrorRetries+1)
	}
}

func TestWithRetry_AuthErrorNeverRetries(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return &AuthError{Subtype: SubtypeUnauthenticated, Status: 401}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, func() error {
		calls++
		cancel()
		return &NetworkError{Cause: errors.New("timeout")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestJitter_WithinBounds(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		j := jitter(d)
		if j < 80*time.Millisecond || j > 120*time.Millisecond {
			t.Fatalf("jitter(%v) = %v, out of ±20%% bounds", d, j)
		}
	}
}
