package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiter(t *testing.T) {
	limiter := NewLimiter("coingecko", 60) // 1 per second, burst 5

	assert.Equal(t, "coingecko", limiter.Name())
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(), "request %d should be within the burst", i)
	}
}

func TestLimiterWait(t *testing.T) {
	limiter := NewLimiter("test", 120)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimiterBackoff(t *testing.T) {
	limiter := NewLimiter("test", 60)
	initial := limiter.Backoff()

	limiter.SignalRateLimited()
	assert.Equal(t, initial, limiter.Backoff(), "first 429 waits the initial backoff")

	limiter.SignalRateLimited()
	after2 := limiter.Backoff()
	assert.Equal(t, 2*initial, after2)

	for i := 0; i < 20; i++ {
		limiter.SignalRateLimited()
	}
	assert.Equal(t, maxBackoff, limiter.Backoff())

	limiter.ResetBackoff()
	assert.Equal(t, initial, limiter.Backoff())
}

func TestLimiterWaitHonoursBackoff(t *testing.T) {
	limiter := NewLimiter("test", 600)
	limiter.SignalRateLimited()

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), initialBackoff)
}

func TestLimiterContextCancellation(t *testing.T) {
	limiter := NewLimiter("test", 1) // burst of 1
	limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, limiter.Wait(ctx))

	limiter.SignalRateLimited()
	assert.ErrorIs(t, limiter.Wait(ctx), context.Canceled)
}
