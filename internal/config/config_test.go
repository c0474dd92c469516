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

	t.Run("RequestTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{RequestTTLSeconds: 300}
		assert.Equal(t, 300*time.Second, cfg.RequestTTL())
	})

	t.Run("RequestTTL is capped at the hard ceiling", func(t *testing.T) {
		cfg := &Config{RequestTTLSeconds: 3600}
		assert.Equal(t, MaxRequestTTL, cfg.RequestTTL())
	})

	t.Run("PairingTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{PairingTTLSeconds: 300}
		assert.Equal(t, 5*time.Minute, cfg.PairingTTL())
	})

	t.Run("ConnectionTTL converts hours to duration", func(t *testing.T) {
		cfg := &Config{ConnectionTTLHours: 24}
		assert.Equal(t, 24*time.Hour, cfg.ConnectionTTL())
	})

	t.Run("AuditRetention converts days to duration", func(t *testing.T) {
		cfg := &Config{AuditRetentionDays: 30}
		assert.Equal(t, 30*24*time.Hour, cfg.AuditRetention())
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"PORT":                os.Getenv("PORT"),
		"DATABASE_URL":        os.Getenv("DATABASE_URL"),
		"REDIS_URL":           os.Getenv("REDIS_URL"),
		"PUSH_GATEWAY_URL":    os.Getenv("PUSH_GATEWAY_URL"),
		"REQUEST_TTL_SECONDS": os.Getenv("REQUEST_TTL_SECONDS"),
		"PAIRING_TTL_SECONDS": os.Getenv("PAIRING_TTL_SECONDS"),
		"LOG_LEVEL":           os.Getenv("LOG_LEVEL"),
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
		os.Unsetenv("PORT")
		os.Unsetenv("REQUEST_TTL_SECONDS")
		os.Unsetenv("PAIRING_TTL_SECONDS")
		os.Unsetenv("LOG_LEVEL")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8787, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
		assert.Equal(t, 600, cfg.RequestTTLSeconds)
		assert.Equal(t, 300, cfg.PairingTTLSeconds)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PORT", "3000")
		os.Setenv("REQUEST_TTL_SECONDS", "120")
		os.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, 120, cfg.RequestTTLSeconds)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails without required DATABASE_URL", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fails without required REDIS_URL", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Unsetenv("REDIS_URL")

		_, err := Load()
		assert.Error(t, err)
	})
}
