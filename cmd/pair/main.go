// watch-relay-pair opens a pairing session on the relay, shows the code to
// enter on the watch, and waits for the device to redeem it. On success the
// pairing id is saved so the hook can find it.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edgeoftrust/watch-relay/internal/hook"
)

type pairConfig struct {
	RelayURL string `env:"WATCH_RELAY_URL" envDefault:"http://localhost:8787"`
}

const statusPollInterval = 2 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := pairConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to parse config")
	}

	baseURL := strings.TrimRight(cfg.RelayURL, "/")
	client := &http.Client{Timeout: 10 * time.Second}

	session, err := createSession(client, baseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pairing session")
	}

	fmt.Println()
	fmt.Println("  Pairing code:")
	fmt.Println()
	fmt.Printf("      %s\n", session.Code)
	fmt.Println()
	fmt.Printf("  Enter this code on your watch before %s.\n", session.ExpiresAt.Local().Format("15:04:05"))
	fmt.Println("  Waiting for the watch...")
	fmt.Println()

	pairingID, err := waitForPairing(client, baseURL, session)
	if err != nil {
		log.Fatal().Err(err).Msg("pairing failed")
	}

	if err := savePairingID(pairingID); err != nil {
		log.Fatal().Err(err).Str("pairingId", pairingID).Msg("paired, but failed to save pairing id")
	}

	fmt.Println("  Paired successfully.")
	fmt.Printf("  Pairing id saved to ~/%s\n", hook.PairingFileName)
}

type pairingSession struct {
	Code      string    `json:"code"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func createSession(client *http.Client, baseURL string) (*pairingSession, error) {
	resp, err := client.Post(baseURL+"/pair", "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("relay returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var session pairingSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

func waitForPairing(client *http.Client, baseURL string, session *pairingSession) (string, error) {
	url := fmt.Sprintf("%s/pair/%s/status", baseURL, session.SessionID)

	for time.Now().Before(session.ExpiresAt) {
		time.Sleep(statusPollInterval)

		resp, err := client.Get(url)
		if err != nil {
			// Transient; the session is still open on the relay.
			continue
		}

		var status struct {
			Paired    bool   `json:"paired"`
			PairingID string `json:"pairingId"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("pairing session no longer exists")
		}
		if resp.StatusCode != http.StatusOK || decodeErr != nil {
			continue
		}

		if status.Paired {
			return status.PairingID, nil
		}
	}

	return "", fmt.Errorf("pairing code expired before the watch redeemed it")
}

func savePairingID(pairingID string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	path := filepath.Join(home, hook.PairingFileName)
	return os.WriteFile(path, []byte(pairingID+"\n"), 0600)
}
