package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                 int    `env:"PORT" envDefault:"8787"`
	DatabaseURL          string `env:"DATABASE_URL,required"`
	RedisURL             string `env:"REDIS_URL,required"`
	PushGatewayURL       string `env:"PUSH_GATEWAY_URL"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
	RequestTTLSeconds    int    `env:"REQUEST_TTL_SECONDS" envDefault:"600"`
	PairingTTLSeconds    int    `env:"PAIRING_TTL_SECONDS" envDefault:"300"`
	ConnectionTTLHours   int    `env:"CONNECTION_TTL_HOURS" envDefault:"24"`
	AuditRetentionDays   int    `env:"AUDIT_RETENTION_DAYS" envDefault:"30"`
	PairAttemptsPerMin   int    `env:"PAIR_ATTEMPTS_PER_MIN" envDefault:"10"`
	SubmitRequestsPerMin int    `env:"SUBMIT_REQUESTS_PER_MIN" envDefault:"60"`
}

// RequestTTL caps how long an undecided ApprovalRequest may live.
func (c *Config) RequestTTL() time.Duration {
	ttl := time.Duration(c.RequestTTLSeconds) * time.Second
	if ttl > MaxRequestTTL {
		return MaxRequestTTL
	}
	return ttl
}

func (c *Config) PairingTTL() time.Duration {
	return time.Duration(c.PairingTTLSeconds) * time.Second
}

func (c *Config) ConnectionTTL() time.Duration {
	return time.Duration(c.ConnectionTTLHours) * time.Hour
}

func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
