package hook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// PairingFileName holds the saved pairing id in the user's home directory,
// written by the pair command.
const PairingFileName = ".watch-relay-pairing"

type Config struct {
	RelayURL            string `env:"WATCH_RELAY_URL" envDefault:"http://localhost:8787"`
	PairingID           string `env:"WATCH_RELAY_PAIRING_ID"`
	SessionActive       string `env:"WATCH_RELAY_SESSION_ACTIVE"`
	PollIntervalSeconds int    `env:"WATCH_RELAY_POLL_INTERVAL" envDefault:"1"`
	TimeoutSeconds      int    `env:"WATCH_RELAY_TIMEOUT" envDefault:"120"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse hook config: %w", err)
	}
	return cfg, nil
}

// IsSessionActive reports whether this agent session opted in to watch
// approvals. Other sessions fall through to terminal permission prompts.
func (c *Config) IsSessionActive() bool {
	return c.SessionActive == "1"
}

// ResolvePairingID prefers the environment variable, then the pairing file.
// Empty means not configured.
func (c *Config) ResolvePairingID() string {
	if id := strings.TrimSpace(c.PairingID); id != "" {
		return id
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(home, PairingFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
