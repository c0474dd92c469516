package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	connectErrs []error
	connectIdx  int
	sendErr     error
	sent        []string
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectIdx < len(f.connectErrs) {
		err := f.connectErrs[f.connectIdx]
		f.connectIdx++
		return err
	}
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, path string, payload []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, path)
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func newTestManager(transport Transport) (*ConnectionManager, *[]time.Duration, *[]Status) {
	m := NewConnectionManager(transport, BackoffConfig{
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     60 * time.Second,
		JitterFactor: 0.2,
	})

	sleeps := &[]time.Duration{}
	m.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}

	statuses := &[]Status{}
	m.OnStatusChange(func(s Status) {
		*statuses = append(*statuses, s)
	})
	return m, sleeps, statuses
}

func assertJittered(t *testing.T, base, actual time.Duration) {
	t.Helper()
	lo := time.Duration(float64(base) * 0.8)
	hi := time.Duration(float64(base) * 1.2)
	assert.GreaterOrEqual(t, actual, lo)
	assert.LessOrEqual(t, actual, hi)
}

func TestManagerReconnectBackoffProgression(t *testing.T) {
	transient := errors.New("connection refused")
	transport := &fakeTransport{
		connectErrs: []error{transient, transient, transient, nil},
	}
	m, sleeps, statuses := newTestManager(transport)

	err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateConnected, m.Status().State)

	require.Len(t, *sleeps, 3)
	assertJittered(t, 1*time.Second, (*sleeps)[0])
	assertJittered(t, 2*time.Second, (*sleeps)[1])
	assertJittered(t, 4*time.Second, (*sleeps)[2])

	var reconnecting []Status
	for _, s := range *statuses {
		if s.State == StateReconnecting {
			reconnecting = append(reconnecting, s)
		}
	}
	require.Len(t, reconnecting, 3)
	for i, s := range reconnecting {
		assert.Equal(t, i+1, s.Attempt)
	}
}

func TestManagerGivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("connection refused")
	errs := make([]error, DefaultMaxReconnectAttempts+1)
	for i := range errs {
		errs[i] = transient
	}
	transport := &fakeTransport{connectErrs: errs}
	m, sleeps, _ := newTestManager(transport)

	err := m.Connect(context.Background())
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, StateDisconnected, m.Status().State)
	assert.Len(t, *sleeps, DefaultMaxReconnectAttempts)
}

func TestManagerStopsOnNonRecoverableError(t *testing.T) {
	transport := &fakeTransport{connectErrs: []error{ErrInvalidURL}}
	m, sleeps, _ := newTestManager(transport)

	err := m.Connect(context.Background())
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Equal(t, StateDisconnected, m.Status().State)
	assert.Empty(t, *sleeps)
}

func TestManagerSendRequiresConnection(t *testing.T) {
	transport := &fakeTransport{}
	m, _, _ := newTestManager(transport)

	err := m.Send(context.Background(), "/approval/p/r/respond", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestManagerSendFailureTriggersReconnect(t *testing.T) {
	transient := errors.New("broken pipe")
	transport := &fakeTransport{
		connectErrs: []error{nil, transient, nil},
	}
	m, sleeps, _ := newTestManager(transport)

	require.NoError(t, m.Connect(context.Background()))

	transport.sendErr = transient
	err := m.Send(context.Background(), "/approval/p/r/respond", []byte(`{}`))
	assert.ErrorIs(t, err, transient)

	// Reconnect succeeded after two attempts; the attempt counter resets so
	// the next outage starts from the initial delay again.
	assert.Equal(t, StateConnected, m.Status().State)
	assert.Equal(t, 0, m.Status().Attempt)
	require.Len(t, *sleeps, 2)
	assertJittered(t, 1*time.Second, (*sleeps)[0])
	assertJittered(t, 2*time.Second, (*sleeps)[1])
}

func TestManagerSendFailureBackoffProgression(t *testing.T) {
	transient := errors.New("broken pipe")
	transport := &fakeTransport{
		connectErrs: []error{nil, transient, transient, nil},
	}
	m, sleeps, statuses := newTestManager(transport)

	require.NoError(t, m.Connect(context.Background()))
	transport.sendErr = transient

	err := m.Send(context.Background(), "/approval/p/r/respond", []byte(`{}`))
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, StateConnected, m.Status().State)

	var reconnecting []Status
	for _, s := range *statuses {
		if s.State == StateReconnecting {
			reconnecting = append(reconnecting, s)
		}
	}
	require.Len(t, reconnecting, 3)
	require.Len(t, *sleeps, 3)
	for i, s := range reconnecting {
		assert.Equal(t, i+1, s.Attempt)
	}
	assertJittered(t, 1*time.Second, (*sleeps)[0])
	assertJittered(t, 2*time.Second, (*sleeps)[1])
	assertJittered(t, 4*time.Second, (*sleeps)[2])
}

func TestManagerRetryResetsAttemptCounter(t *testing.T) {
	transient := errors.New("connection refused")
	errs := make([]error, DefaultMaxReconnectAttempts+1)
	for i := range errs {
		errs[i] = transient
	}
	transport := &fakeTransport{connectErrs: errs}
	m, sleeps, _ := newTestManager(transport)

	require.ErrorIs(t, m.Connect(context.Background()), ErrMaxRetriesExceeded)

	firstRun := len(*sleeps)
	require.NoError(t, m.Retry(context.Background()))
	assert.Equal(t, StateConnected, m.Status().State)
	// Retry starts a fresh backoff sequence.
	if len(*sleeps) > firstRun {
		assertJittered(t, 1*time.Second, (*sleeps)[firstRun])
	}
}
