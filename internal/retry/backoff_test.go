package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	config := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	result := RetryWithBackoff(context.Background(), config, func() error {
		calls++
		return nil
	})

	if !result.Success {
		t.Error("expected success")
	}
	if result.Attempts != 1 || calls != 1 {
		t.Errorf("expected exactly one attempt, got %d (calls %d)", result.Attempts, calls)
	}
}

func TestRetryWithBackoff_RetriesThenSucceeds(t *testing.T) {
	config := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	result := RetryWithBackoff(context.Background(), config, func() error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})

	if !result.Success {
		t.Error("expected eventual success")
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
	if len(result.RetryReasons) != 2 {
		t.Errorf("expected 2 retry reasons, got %v", result.RetryReasons)
	}
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	config := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	permanent := errors.New("permanent failure")
	result := RetryWithBackoff(context.Background(), config, func() error {
		return permanent
	})

	if result.Success {
		t.Error("expected failure")
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", result.Attempts)
	}
	if !errors.Is(result.LastError, permanent) {
		t.Errorf("expected last error to be preserved, got %v", result.LastError)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	config := RetryConfig{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := RetryWithBackoff(ctx, config, func() error {
		return errors.New("timeout")
	})

	if result.Success {
		t.Error("expected failure on cancelled context")
	}
	if result.Attempts > 2 {
		t.Errorf("expected early exit, got %d attempts", result.Attempts)
	}
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("Service Unavailable (503)"), true},
		{errors.New("invalid api key"), false},
		{errors.New("malformed request"), false},
	}

	for _, tc := range cases {
		if got := IsRetryableError(tc.err); got != tc.retryable {
			t.Errorf("IsRetryableError(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
}

func TestIsRateLimitError(t *testing.T) {
	if !IsRateLimitError(errors.New("googleapi: quota exceeded")) {
		t.Error("quota errors should be rate-limit errors")
	}
	if IsRateLimitError(errors.New("connection refused")) {
		t.Error("connection errors are not rate-limit errors")
	}
}

func TestCalculateDelay_Capped(t *testing.T) {
	config := RetryConfig{BaseDelay: time.Second, MaxDelay: 4 * time.Second, Multiplier: 2.0}

	if d := calculateDelay(config, 0); d != time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", d)
	}
	if d := calculateDelay(config, 10); d != 4*time.Second {
		t.Errorf("attempt 10: expected cap of 4s, got %v", d)
	}
}
