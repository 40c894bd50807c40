package backend

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if result != "ok" || calls != 1 {
		t.Errorf("result = %q, calls = %d", result, calls)
	}
}

func TestRetryRecoversFromRetryableError(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ServerError{ProviderError: ProviderError{
				BackendError: BackendError{Message: "overloaded"}, Retryable: true,
			}}
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if result != "recovered" || calls != 3 {
		t.Errorf("result = %q, calls = %d, want recovered after 3", result, calls)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) (string, error) {
		calls++
		return "", &AuthenticationError{ProviderError: ProviderError{
			BackendError: BackendError{Message: "bad key"},
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on auth failure)", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	failure := &ServerError{ProviderError: ProviderError{
		BackendError: BackendError{Message: "still down"}, Retryable: true,
	}}
	_, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "", failure
	})
	if !errors.Is(err, failure) {
		t.Errorf("err = %v, want the last failure", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestRetryAfterBeyondMaxDelayFailsImmediately(t *testing.T) {
	after := 120.0 // seconds, far past MaxDelay
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", &RateLimitError{ProviderError: ProviderError{
			BackendError: BackendError{Message: "slow down"},
			Retryable:    true,
			RetryAfter:   &after,
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (Retry-After exceeded MaxDelay)", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, RetryPolicy{MaxRetries: 1, BaseDelay: time.Minute, MaxDelay: time.Minute, Multiplier: 1},
		func(ctx context.Context) (string, error) {
			return "", &ServerError{ProviderError: ProviderError{
				BackendError: BackendError{Message: "down"}, Retryable: true,
			}}
		})

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want NetworkError from cancellation", err)
	}
}

func TestDelayGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 4 * time.Second, Multiplier: 2.0}

	if d := p.Delay(0); d != time.Second {
		t.Errorf("Delay(0) = %v, want 1s", d)
	}
	if d := p.Delay(1); d != 2*time.Second {
		t.Errorf("Delay(1) = %v, want 2s", d)
	}
	if d := p.Delay(5); d != 4*time.Second {
		t.Errorf("Delay(5) = %v, want capped at 4s", d)
	}
}

func TestDelayJitterStaysInRange(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2.0, Jitter: true}
	for i := 0; i < 50; i++ {
		d := p.Delay(0)
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Fatalf("jittered delay %v outside [0.5s, 1.5s]", d)
		}
	}
}
