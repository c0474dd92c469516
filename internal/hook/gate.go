package hook

import (
	"context"
	"time"

	"github.com/edgeoftrust/watch-relay/internal/model"
)

// Outcome is the hook's verdict on one tool invocation. Deferred means the
// watch session has ended and the decision falls back to the terminal prompt
// instead of being allowed or denied here.
type Outcome struct {
	Allowed  bool
	Deferred bool
	Reason   string
}

// Gate submits an approval request and blocks until a terminal decision. The
// default posture is deny: a timeout, an expired request, or an unreachable
// relay after submission all refuse the action rather than letting it through
// unattended.
type Gate struct {
	relay        RelayClient
	pairingID    string
	pollInterval time.Duration
	timeout      time.Duration

	// replaceable in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

const (
	DefaultPollInterval = 1 * time.Second
	DefaultGateTimeout  = 120 * time.Second
)

func NewGate(relay RelayClient, pairingID string, pollInterval, timeout time.Duration) *Gate {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultGateTimeout
	}
	return &Gate{
		relay:        relay,
		pairingID:    pairingID,
		pollInterval: pollInterval,
		timeout:      timeout,
		now:          time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// Check runs one tool event through the approval flow. Session control flags
// set from the device are honored first: an ended session defers back to the
// terminal, a paused one denies until resumed.
func (g *Gate) Check(ctx context.Context, ev *ToolEvent) Outcome {
	if g.relay.SessionEnded(ctx, g.pairingID) {
		return Outcome{Deferred: true, Reason: "Watch session ended. Using terminal mode."}
	}
	if g.relay.SessionPaused(ctx, g.pairingID) {
		return Outcome{Allowed: false, Reason: "Session paused from watch. Resume on watch to continue."}
	}

	req := SubmitRequest{
		PairingID:   g.pairingID,
		Kind:        string(ev.Kind()),
		Title:       ev.Title(),
		Description: ev.Description(),
		FilePath:    ev.FilePath(),
		Command:     ev.Command(),
		RiskTier:    string(ev.RiskTier()),
		TTLSeconds:  int(g.timeout / time.Second),
	}

	requestID, err := g.relay.Submit(ctx, req)
	if err != nil {
		return Outcome{Allowed: false, Reason: "Relay unavailable: " + err.Error()}
	}

	return g.await(ctx, requestID)
}

// await polls until the decision is terminal or the deadline passes. Poll
// errors are tolerated; the relay may be briefly unreachable while a decision
// already sits recorded on the other side.
func (g *Gate) await(ctx context.Context, requestID string) Outcome {
	deadline := g.now().Add(g.timeout)

	for g.now().Before(deadline) {
		status, err := g.relay.Poll(ctx, g.pairingID, requestID)
		if err == nil {
			switch status {
			case model.DecisionStatusApproved:
				return Outcome{Allowed: true}
			case model.DecisionStatusRejected:
				return Outcome{Allowed: false, Reason: "Action rejected from watch"}
			case model.DecisionStatusExpired:
				return Outcome{Allowed: false, Reason: "Approval request expired"}
			}
		}

		if serr := g.sleep(ctx, g.pollInterval); serr != nil {
			return Outcome{Allowed: false, Reason: "Interrupted while waiting for approval"}
		}
	}

	return Outcome{Allowed: false, Reason: "Timed out waiting for approval"}
}
