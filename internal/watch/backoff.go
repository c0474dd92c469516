package watch

import (
	"math"
	"math/rand"
	"time"
)

// MinDelay is the floor applied after jitter so a retry never fires
// effectively immediately.
const MinDelay = 100 * time.Millisecond

// BackoffConfig produces exponential delays with jitter. Per-call jitter
// keeps a fleet of clients from reconnecting in lockstep after an outage.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	JitterFactor float64
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     60 * time.Second,
		JitterFactor: 0.2,
	}
}

// Delay returns the wait before retry number attempt (0-based), jittered by
// ±JitterFactor and clamped to [InitialDelay, MaxDelay] before jitter.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	base := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	base = math.Min(base, float64(c.MaxDelay))
	base = math.Max(base, float64(c.InitialDelay))

	jitter := 1 + (rand.Float64()*2-1)*c.JitterFactor
	delay := time.Duration(base * jitter)

	if delay < MinDelay {
		delay = MinDelay
	}
	return delay
}
