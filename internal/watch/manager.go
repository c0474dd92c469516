package watch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// Status is a snapshot of the manager's connection state. NextDelay is only
// meaningful while reconnecting.
type Status struct {
	State     ConnectionState
	Attempt   int
	NextDelay time.Duration
}

// StatusListener receives every state transition. Called synchronously from
// the manager; keep it fast.
type StatusListener func(Status)

const DefaultMaxReconnectAttempts = 10

// ConnectionManager wraps a Transport with reconnection. Consecutive failed
// attempts share one counter so the backoff keeps growing across a flapping
// relay; any successful connect resets it.
type ConnectionManager struct {
	transport   Transport
	backoff     BackoffConfig
	maxAttempts int

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	state    ConnectionState
	attempt  int
	listener StatusListener
}

func NewConnectionManager(transport Transport, backoff BackoffConfig) *ConnectionManager {
	return &ConnectionManager{
		transport:   transport,
		backoff:     backoff,
		maxAttempts: DefaultMaxReconnectAttempts,
		sleep:       sleepCtx,
		state:       StateDisconnected,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *ConnectionManager) OnStatusChange(fn StatusListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

func (m *ConnectionManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state, Attempt: m.attempt}
}

func (m *ConnectionManager) setStatus(s Status) {
	m.mu.Lock()
	m.state = s.State
	m.attempt = s.Attempt
	fn := m.listener
	m.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

// Connect establishes the initial connection, retrying with backoff on
// recoverable failures. Returns ErrMaxRetriesExceeded once the attempt
// budget is spent.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.setStatus(Status{State: StateConnecting})

	if err := m.transport.Connect(ctx); err != nil {
		if !IsRecoverable(err) {
			m.setStatus(Status{State: StateDisconnected})
			return err
		}
		return m.reconnect(ctx)
	}

	m.setStatus(Status{State: StateConnected})
	return nil
}

// Send delivers one payload, triggering the reconnect loop on a recoverable
// failure. The original send error is returned either way so the caller's
// queue can count the retry.
func (m *ConnectionManager) Send(ctx context.Context, path string, payload []byte) error {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state != StateConnected {
		return ErrNotConnected
	}

	err := m.transport.Send(ctx, path, payload)
	if err == nil {
		return nil
	}

	if IsRecoverable(err) {
		log.Warn().Err(err).Msg("send failed, reconnecting")
		if rerr := m.reconnect(ctx); rerr != nil {
			log.Error().Err(rerr).Msg("reconnect failed")
		}
	}
	return err
}

// Retry resets the attempt counter and tries to connect again. Used after
// the budget is exhausted and the user explicitly asks for another go.
func (m *ConnectionManager) Retry(ctx context.Context) error {
	m.mu.Lock()
	m.attempt = 0
	m.mu.Unlock()
	return m.Connect(ctx)
}

func (m *ConnectionManager) Close() error {
	m.setStatus(Status{State: StateDisconnected})
	return m.transport.Close()
}

func (m *ConnectionManager) reconnect(ctx context.Context) error {
	m.mu.Lock()
	attempt := m.attempt
	m.mu.Unlock()

	for attempt < m.maxAttempts {
		attempt++
		delay := m.backoff.Delay(attempt - 1)

		m.setStatus(Status{State: StateReconnecting, Attempt: attempt, NextDelay: delay})
		log.Info().
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("reconnecting")

		if err := m.sleep(ctx, delay); err != nil {
			m.setStatus(Status{State: StateDisconnected, Attempt: attempt})
			return err
		}

		m.setStatus(Status{State: StateConnecting, Attempt: attempt})
		err := m.transport.Connect(ctx)
		if err == nil {
			m.setStatus(Status{State: StateConnected})
			return nil
		}
		if !IsRecoverable(err) {
			m.setStatus(Status{State: StateDisconnected, Attempt: attempt})
			return err
		}
	}

	m.setStatus(Status{State: StateDisconnected, Attempt: attempt})
	return ErrMaxRetriesExceeded
}
