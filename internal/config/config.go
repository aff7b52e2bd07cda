package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		Mode           string   `yaml:"mode"`
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"auth"`
	RateLimit struct {
		Backend       string `yaml:"backend"` // memory or redis
		MaxRequests   int    `yaml:"max_requests"`
		Window        string `yaml:"window"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"ratelimit"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
}

func (c *Config) applyDefaults() {
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 30
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "voice-quiz-service"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("ratelimit.max_requests must be positive, got %d", c.RateLimit.MaxRequests))
	}
	switch c.Server.Mode {
	case "", "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("unknown server.mode %q", c.Server.Mode))
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("ratelimit.backend redis requires redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ratelimit.backend %q", c.RateLimit.Backend))
	}
	return errors.Join(errs...)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
