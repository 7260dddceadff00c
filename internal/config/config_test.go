package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("ExecutorTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{ExecutorTimeoutSeconds: 30}
		assert.Equal(t, 30*time.Second, cfg.ExecutorTimeout())
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"PORT":                  os.Getenv("PORT"),
		"DATABASE_URL":          os.Getenv("DATABASE_URL"),
		"REDIS_URL":             os.Getenv("REDIS_URL"),
		"AUTH_APP_ID":           os.Getenv("AUTH_APP_ID"),
		"AUTH_ISSUER":           os.Getenv("AUTH_ISSUER"),
		"AUTH_VERIFICATION_KEY": os.Getenv("AUTH_VERIFICATION_KEY"),
		"EXECUTOR_URL":          os.Getenv("EXECUTOR_URL"),
		"RATE_LIMIT_PER_MIN":    os.Getenv("RATE_LIMIT_PER_MIN"),
		"LOG_LEVEL":             os.Getenv("LOG_LEVEL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("AUTH_APP_ID", "app-test")
		os.Unsetenv("PORT")
		os.Unsetenv("AUTH_ISSUER")
		os.Unsetenv("RATE_LIMIT_PER_MIN")
		os.Unsetenv("LOG_LEVEL")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
		assert.Equal(t, "privy.io", cfg.AuthIssuer)
		assert.Equal(t, 60, cfg.RateLimitPerMin)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("AUTH_APP_ID", "app-test")
		os.Setenv("PORT", "3000")
		os.Setenv("RATE_LIMIT_PER_MIN", "120")
		os.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, 120, cfg.RateLimitPerMin)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails when required values missing", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("AUTH_APP_ID", "app-test")

		_, err := Load()
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("rejects non-PEM verification key", func(t *testing.T) {
		cfg := &Config{AuthVerificationKey: "not-a-key"}
		require.Error(t, cfg.Validate(false))
	})

	t.Run("requires verification key", func(t *testing.T) {
		cfg := &Config{RedisURL: "rediss://localhost:6379"}
		require.Error(t, cfg.Validate(false))
	})

	t.Run("accepts PEM key", func(t *testing.T) {
		cfg := &Config{
			AuthVerificationKey: "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----",
			RedisURL:            "rediss://localhost:6379",
		}
		require.NoError(t, cfg.Validate(true))
	})
}
