package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-quiz-service/internal/domain"
)

const callerKey = "caller"

// RequireAuth rejects requests without a valid bearer credential.
func RequireAuth(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header"})
			return
		}
		caller, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization"})
			return
		}
		c.Set(callerKey, &caller)
		c.Next()
	}
}

// OptionalAuth attaches the caller when a valid credential is present and
// otherwise lets the request through as anonymous.
func OptionalAuth(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := BearerToken(c.GetHeader("Authorization")); token != "" {
			if caller, err := v.Verify(c.Request.Context(), token); err == nil {
				c.Set(callerKey, &caller)
			}
		}
		c.Next()
	}
}

// CallerFrom returns the caller set by RequireAuth or OptionalAuth, or nil.
func CallerFrom(c *gin.Context) *domain.Caller {
	v, ok := c.Get(callerKey)
	if !ok {
		return nil
	}
	caller, _ := v.(*domain.Caller)
	return caller
}
