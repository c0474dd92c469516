package watch

import (
	"context"
	"errors"
	"net"
)

// Terminal conditions. Hitting one of these stops the state machine; the user
// has to intervene (fix configuration, tap retry). Everything else is assumed
// to be a transient network problem worth backing off and retrying:
// conflating the two either retries forever on a bad URL or gives up on a
// blip.
var (
	ErrInvalidURL         = errors.New("invalid relay URL")
	ErrMaxRetriesExceeded = errors.New("maximum reconnect attempts exceeded")
	ErrNotConnected       = errors.New("not connected")
)

// IsRecoverable classifies a transport failure. Timeouts and I/O errors are
// retried through backoff; configuration errors and exhausted retries are
// surfaced for explicit user action.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrMaxRetriesExceeded) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Unclassified send/receive failures are treated as transient.
	return true
}
