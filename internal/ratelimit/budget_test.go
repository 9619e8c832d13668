package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryAcquire_DrainsBucket(t *testing.T) {
	b := NewBudget(3, time.Hour, time.Millisecond)

	for i := 0; i < 3; i++ {
		require.True(t, b.TryAcquire(), "token %d should be available", i)
	}
	require.False(t, b.TryAcquire(), "bucket should be empty")

	granted, denied := b.Stats()
	require.EqualValues(t, 3, granted)
	require.EqualValues(t, 1, denied)
}

func TestAcquire_BlocksUntilContextExpires(t *testing.T) {
	b := NewBudget(1, time.Hour, time.Millisecond)
	require.NoError(t, b.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Acquire(ctx)
	require.Error(t, err, "empty bucket with an hour-long refill must time out")
}

func TestTryAcquire_Concurrent(t *testing.T) {
	b := NewBudget(10, time.Hour, time.Millisecond)

	var wg sync.WaitGroup
	var mu sync.Mutex
	got := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryAcquire() {
				mu.Lock()
				got++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, got, "exactly capacity tokens must be granted")
}

func TestAwaitQuotaRetry_Bounded(t *testing.T) {
	b := NewBudget(1, time.Minute, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, b.AwaitQuotaRetry(context.Background()))
	require.Less(t, time.Since(start), 200*time.Millisecond)
}
