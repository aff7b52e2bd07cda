// Package ratelimit guards endpoints with a fixed window request counter per client key.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"voice-quiz-service/internal/domain"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request from key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config bounds every key to MaxRequests per Window.
type Config struct {
	MaxRequests   int
	Window        time.Duration
	SweepInterval time.Duration
}

// Check runs l for key and converts a rejection into a *domain.RateLimitError.
func Check(ctx context.Context, l Limiter, key string) (Decision, error) {
	d, err := l.Allow(ctx, key)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, &domain.RateLimitError{RetryAfter: d.RetryAfter}
	}
	return d, nil
}

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is process local. Instances do not share quotas.
// Start launches the periodic sweep of expired entries; Stop ends it.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.Window
	}
	return &MemoryLimiter{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// NewMemoryLimiterWithClock is test-only for deterministic windows.
func NewMemoryLimiterWithClock(cfg Config, now func() time.Time) *MemoryLimiter {
	l := NewMemoryLimiter(cfg)
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(l.cfg.Window)}
		return Decision{Allowed: true, Limit: l.cfg.MaxRequests, Remaining: l.cfg.MaxRequests - 1}, nil
	}

	if e.count >= l.cfg.MaxRequests {
		return Decision{
			Allowed:    false,
			Limit:      l.cfg.MaxRequests,
			RetryAfter: e.resetAt.Sub(now),
		}, nil
	}

	e.count++
	return Decision{Allowed: true, Limit: l.cfg.MaxRequests, Remaining: l.cfg.MaxRequests - e.count}, nil
}

// Sweep drops entries whose window has expired and returns how many were removed.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start runs the sweep loop until ctx is done or Stop is called.
func (l *MemoryLimiter) Start(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the sweep loop started by Start and waits for it to exit.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	if l.started.Load() {
		<-l.done
	}
}
