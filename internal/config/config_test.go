package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
auth:
  jwt_secret: from-file
ratelimit:
  window: 30s
`)
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 30, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 30*time.Second, TTLDuration(cfg.RateLimit.Window, time.Minute))
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	cfg := Config{}
	cfg.RateLimit.Backend = "redis"
	cfg.RateLimit.MaxRequests = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
	assert.Contains(t, err.Error(), "max_requests")
	assert.Contains(t, err.Error(), "redis.addr")
}

func TestTTLDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
	assert.Equal(t, 2*time.Second, TTLDuration("2s", time.Minute))
}
