// watch-relay-hook is a PreToolUse hook. It reads the tool event from stdin,
// submits it to the relay, and blocks until the paired watch decides.
//
// Exit protocol: exit 0 with a permissionDecision JSON on stdout allows the
// tool; exit 2 with a reason on stderr denies it; plain exit 0 with no output
// defers the decision back to the terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edgeoftrust/watch-relay/internal/hook"
)

const (
	exitAllow = 0
	exitDeny  = 2
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	os.Exit(run())
}

func run() int {
	cfg, err := hook.LoadConfig()
	if err != nil {
		log.Warn().Err(err).Msg("hook config invalid, deferring to terminal")
		return exitAllow
	}

	// Only sessions that opted in route approvals to the watch.
	if !cfg.IsSessionActive() {
		return exitAllow
	}

	ev, err := hook.ParseToolEvent(os.Stdin)
	if err != nil {
		return exitAllow
	}
	if !ev.RequiresApproval() {
		return exitAllow
	}

	pairingID := cfg.ResolvePairingID()
	if pairingID == "" {
		fmt.Fprintln(os.Stderr, "Watch relay not configured. Run 'watch-relay-pair' to set up.")
		return exitAllow
	}

	relay := hook.NewHTTPRelayClient(cfg.RelayURL)
	gate := hook.NewGate(
		relay,
		pairingID,
		time.Duration(cfg.PollIntervalSeconds)*time.Second,
		time.Duration(cfg.TimeoutSeconds)*time.Second,
	)

	outcome := gate.Check(context.Background(), ev)
	if outcome.Deferred {
		fmt.Fprintln(os.Stderr, outcome.Reason)
		return exitAllow
	}
	if !outcome.Allowed {
		fmt.Fprintln(os.Stderr, outcome.Reason)
		return exitDeny
	}

	return emitAllow()
}

// emitAllow prints the hookSpecificOutput payload the agent expects for an
// explicit allow.
func emitAllow() int {
	output := map[string]any{
		"hookSpecificOutput": map[string]any{
			"hookEventName":      "PreToolUse",
			"permissionDecision": "allow",
		},
	}
	if err := json.NewEncoder(os.Stdout).Encode(output); err != nil {
		return exitDeny
	}
	return exitAllow
}
