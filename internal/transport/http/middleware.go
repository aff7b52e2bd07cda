package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"voice-quiz-service/internal/domain"
	"voice-quiz-service/internal/ratelimit"
)

// requestLogger writes one structured line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= 500 {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

// rateLimit rejects clients that exceeded their quota, keyed by client address.
// Limiter failures other than a rejection let the request through.
func rateLimit(l ratelimit.Limiter, onReject func(), log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		d, err := ratelimit.Check(c.Request.Context(), l, key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		var limited *domain.RateLimitError
		if errors.As(err, &limited) {
			if onReject != nil {
				onReject()
			}
			log.Warn("rate limit exceeded", zap.String("client_ip", key), zap.Duration("retry_after", limited.RetryAfter))
			writeError(c, log, err)
			c.Abort()
			return
		}
		if err != nil {
			log.Warn("rate limiter failed, allowing request", zap.String("client_ip", key), zap.Error(err))
		}
		c.Next()
	}
}
