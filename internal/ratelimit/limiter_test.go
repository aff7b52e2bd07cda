package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-quiz-service/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLimiterRejectsAfterMax(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLimiterWithClock(Config{MaxRequests: 3, Window: time.Minute}, clock.Now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 3-(i+1), d.Remaining)
	}

	clock.Advance(20 * time.Second)
	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 40*time.Second, d.RetryAfter)

	other, err := l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "quotas are per key")

	clock.Advance(40 * time.Second)
	d, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "window elapsed")
	assert.Equal(t, 2, d.Remaining)
}

func TestCheckReturnsRateLimitError(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLimiterWithClock(Config{MaxRequests: 1, Window: 10 * time.Second}, clock.Now)

	_, err := Check(context.Background(), l, "k")
	require.NoError(t, err)

	_, err = Check(context.Background(), l, "k")
	require.ErrorIs(t, err, domain.ErrRateLimited)
	var rle *domain.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 10, rle.RetryAfterSeconds())
}

func TestMemoryLimiterSweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLimiterWithClock(Config{MaxRequests: 5, Window: time.Minute}, clock.Now)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	clock.Advance(30 * time.Second)
	_, _ = l.Allow(ctx, "b")
	require.Equal(t, 2, l.Len())

	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestMemoryLimiterStartStop(t *testing.T) {
	l := NewMemoryLimiter(Config{MaxRequests: 5, Window: 10 * time.Millisecond, SweepInterval: 5 * time.Millisecond})
	_, _ = l.Allow(context.Background(), "a")

	l.Start(context.Background())
	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	l.Stop()
	l.Stop()
}

func TestMemoryLimiterStopWithoutStart(t *testing.T) {
	l := NewMemoryLimiter(Config{MaxRequests: 1})
	l.Stop()
}

func TestMemoryLimiterConcurrentAllow(t *testing.T) {
	l := NewMemoryLimiter(Config{MaxRequests: 50, Window: time.Hour})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(context.Background(), "shared")
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
