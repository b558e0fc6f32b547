package ratelimiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.WaitIfNeeded(context.Background()))
	}
	assert.Equal(t, 3, rl.count)
}

func TestRateLimiter_ResetsAfterInterval(t *testing.T) {
	t.Parallel()

	current := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return current }
	rl.lastReset = current

	assert.Equal(t, time.Duration(0), rl.reserve())
	assert.Equal(t, time.Minute, rl.reserve(), "second call in the same window should wait for the full window")

	current = current.Add(61 * time.Second)
	assert.Equal(t, time.Duration(0), rl.reserve(), "window should reset")
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, time.Hour)
	require.NoError(t, rl.WaitIfNeeded(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.WaitIfNeeded(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.WaitIfNeeded(context.Background()))
	}
}

func TestRateLimiter_ConcurrentUse(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(50, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rl.WaitIfNeeded(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, rl.count)
}
