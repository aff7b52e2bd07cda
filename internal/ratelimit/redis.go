package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLimiter shares quotas across instances with INCR and EXPIRE per key.
// Redis failures fail open.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	prefix string
	log    *zap.Logger
}

func NewRedisLimiter(client *redis.Client, cfg Config, log *zap.Logger) *RedisLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLimiter{client: client, cfg: cfg, prefix: "rl:validate:", log: log}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	redisKey := l.prefix + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		l.log.Warn("rate limiter redis error, allowing request", zap.String("key", redisKey), zap.Error(err))
		return Decision{Allowed: true, Limit: l.cfg.MaxRequests, Remaining: l.cfg.MaxRequests}, nil
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.cfg.Window).Err(); err != nil {
			l.log.Warn("rate limiter failed to set ttl", zap.String("key", redisKey), zap.Error(err))
		}
	}

	ttl, err := l.client.PTTL(ctx, redisKey).Result()
	if err == nil && ttl == -1 {
		// A counter without expiry would never reset; restart its window.
		if err := l.client.Expire(ctx, redisKey, l.cfg.Window).Err(); err != nil {
			l.log.Warn("rate limiter failed to repair ttl", zap.String("key", redisKey), zap.Error(err))
		}
	}
	if err != nil || ttl < 0 {
		ttl = l.cfg.Window
	}

	remaining := l.cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if int(count) > l.cfg.MaxRequests {
		return Decision{Allowed: false, Limit: l.cfg.MaxRequests, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Limit: l.cfg.MaxRequests, Remaining: remaining}, nil
}
