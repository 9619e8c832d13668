package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrBudgetExhausted is returned when a non-blocking acquisition finds no
// token available.
var ErrBudgetExhausted = errors.New("model call budget exhausted")

// Budget is the shared token bucket gating every call to the language-model
// service. Worker goroutines processing independent conversations all draw
// from the same bucket. The mutex guards the check-and-decrement together
// with the call counters.
type Budget struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	retryWait time.Duration

	granted int64
	denied  int64
}

// NewBudget creates a bucket of `capacity` tokens refilled evenly over
// `window`. retryWait bounds the single wait-then-retry performed after a
// quota-exceeded signal from the service.
func NewBudget(capacity int, window, retryWait time.Duration) *Budget {
	if capacity <= 0 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Budget{
		limiter:   rate.NewLimiter(rate.Limit(float64(capacity)/window.Seconds()), capacity),
		retryWait: retryWait,
	}
}

// Acquire blocks until a token is available or the context expires. This is
// the gate for mandatory extraction calls.
func (b *Budget) Acquire(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		b.mu.Lock()
		b.denied++
		b.mu.Unlock()
		return err
	}
	b.mu.Lock()
	b.granted++
	b.mu.Unlock()
	return nil
}

// TryAcquire takes a token without blocking. Optional calls (department
// classification, lenient judge) use this: when the bucket is dry they are
// simply skipped.
func (b *Budget) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.limiter.Allow() {
		b.denied++
		return false
	}
	b.granted++
	return true
}

// AwaitQuotaRetry performs the single bounded wait allowed after the service
// itself reports quota exhaustion. Returns an error when the context expires
// before the wait completes; the caller surfaces the original failure after
// the retry also fails.
func (b *Budget) AwaitQuotaRetry(ctx context.Context) error {
	wait := b.retryWait
	if wait <= 0 {
		wait = time.Second
	}
	log.Debug().Dur("wait", wait).Msg("quota exceeded, waiting before single retry")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Stats returns tokens granted and denied since creation.
func (b *Budget) Stats() (granted, denied int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.granted, b.denied
}
