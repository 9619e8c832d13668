package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/deskcore/internal/ratelimit"
	"github.com/deskcore/internal/retry"
)

// ErrRateLimited is surfaced after the single permitted wait-then-retry on a
// quota signal also fails. The orchestrator maps it to a neutral transient
// message, never a crash.
var ErrRateLimited = errors.New("model service rate limited")

// ResilientClient wraps a Client with the turn-processing call policy: a
// token from the shared budget, an explicit timeout per call, one bounded
// backoff retry for transient failures, and one wait-then-retry for quota
// signals. There is no unbounded retry loop anywhere behind it.
type ResilientClient struct {
	client      Client
	budget      *ratelimit.Budget
	timeout     time.Duration
	retryConfig retry.RetryConfig
}

// NewResilientClient builds the standard wrapper. budget may be nil in tests.
func NewResilientClient(client Client, budget *ratelimit.Budget, timeout time.Duration) *ResilientClient {
	return &ResilientClient{
		client:      client,
		budget:      budget,
		timeout:     timeout,
		retryConfig: retry.ExtractionRetryConfig(),
	}
}

// Complete runs one gated, timed, bounded-retry completion.
func (rc *ResilientClient) Complete(ctx context.Context, prompt string) (string, error) {
	if rc.budget != nil {
		if err := rc.budget.Acquire(ctx); err != nil {
			return "", fmt.Errorf("awaiting call budget: %w", err)
		}
	}

	if rc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	response, err := rc.client.Complete(ctx, prompt)
	if err == nil {
		return response, nil
	}

	if retry.IsRateLimitError(err) {
		// The service itself says quota exceeded: one bounded wait, one retry,
		// then surface.
		if rc.budget != nil {
			if werr := rc.budget.AwaitQuotaRetry(ctx); werr != nil {
				return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
		}
		response, err = rc.client.Complete(ctx, prompt)
		if err == nil {
			return response, nil
		}
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	if retry.IsRetryableError(err) {
		var out string
		result := retry.RetryWithBackoffAndReason(ctx, rc.retryConfig, func() (error, string) {
			resp, callErr := rc.client.Complete(ctx, prompt)
			if callErr != nil {
				return callErr, callErr.Error()
			}
			out = resp
			return nil, "success"
		})
		if result.Success {
			return out, nil
		}
		log.Warn().Err(result.LastError).Int("attempts", result.Attempts).
			Msg("extraction call failed after bounded retry")
		return "", fmt.Errorf("extraction call failed: %w", result.LastError)
	}

	return "", fmt.Errorf("extraction call failed: %w", err)
}

// TryComplete runs a completion only when a token is available without
// blocking. Optional calls (department classification, lenient judge) use
// this so they silently step aside under load.
func (rc *ResilientClient) TryComplete(ctx context.Context, prompt string) (string, bool) {
	if rc.budget != nil && !rc.budget.TryAcquire() {
		log.Debug().Msg("skipping optional model call, budget exhausted")
		return "", false
	}

	if rc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	response, err := rc.client.Complete(ctx, prompt)
	if err != nil {
		log.Debug().Err(err).Msg("optional model call failed")
		return "", false
	}
	return response, true
}
