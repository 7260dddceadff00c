package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	DatabaseURL            string `env:"DATABASE_URL,required"`
	RedisURL               string `env:"REDIS_URL,required"`
	AuthAppID              string `env:"AUTH_APP_ID,required"`
	AuthIssuer             string `env:"AUTH_ISSUER" envDefault:"privy.io"`
	AuthVerificationKey    string `env:"AUTH_VERIFICATION_KEY"`
	ExecutorURL            string `env:"EXECUTOR_URL"`
	ExecutorTimeoutSeconds int    `env:"EXECUTOR_TIMEOUT_SECONDS" envDefault:"30"`
	RateLimitPerMin        int    `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) ExecutorTimeout() time.Duration {
	return time.Duration(c.ExecutorTimeoutSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.AuthVerificationKey == "" {
		return fmt.Errorf("AUTH_VERIFICATION_KEY is required")
	}
	if !strings.Contains(c.AuthVerificationKey, "BEGIN PUBLIC KEY") {
		return fmt.Errorf("AUTH_VERIFICATION_KEY must be a PEM-encoded public key")
	}

	if isProduction {
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.ExecutorURL != "" && strings.HasPrefix(c.ExecutorURL, "http://") {
			log.Warn().Msg("EXECUTOR_URL uses http:// in production: consider using https://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
