package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/edgeoftrust/watch-relay/internal/errors"
	"github.com/edgeoftrust/watch-relay/internal/model"
)

var codePattern = regexp.MustCompile(`^[A-Z2-9]{4}-[A-Z2-9]{4}$`)

func newTestPairingService(pairings *mockPairingStore) *PairingService {
	return NewPairingService(pairings, 5*time.Minute, 24*time.Hour)
}

func TestPairingCreate(t *testing.T) {
	pairings := newMockPairingStore()
	svc := newTestPairingService(pairings)

	session, err := svc.Create(context.Background())
	require.NoError(t, err)

	assert.Regexp(t, codePattern, session.Code)
	assert.NotContains(t, session.Code, "0")
	assert.NotContains(t, session.Code, "O")
	assert.NotContains(t, session.Code, "1")
	assert.NotContains(t, session.Code, "I")
	assert.NotEmpty(t, session.SessionID)
	assert.NotEmpty(t, session.PairingID)
	assert.Equal(t, model.PairingSessionPending, session.Status)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), session.ExpiresAt, 2*time.Second)
}

func TestPairingCompleteHappyPath(t *testing.T) {
	pairings := newMockPairingStore()
	svc := newTestPairingService(pairings)

	session, err := svc.Create(context.Background())
	require.NoError(t, err)

	completed, err := svc.Complete(context.Background(), session.Code, "apns-token-1")
	require.NoError(t, err)
	assert.Equal(t, session.PairingID, completed.PairingID)

	conn, err := pairings.FindConnection(context.Background(), session.PairingID)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, "apns-token-1", conn.DeviceToken)
}

func TestPairingCompleteNormalizesCode(t *testing.T) {
	pairings := newMockPairingStore()
	svc := newTestPairingService(pairings)

	session, err := svc.Create(context.Background())
	require.NoError(t, err)

	// Lowercase with surrounding whitespace still redeems.
	sloppy := "  " + regexp.MustCompile(`[A-Z]`).ReplaceAllStringFunc(session.Code, func(s string) string {
		return string(s[0] + 32)
	}) + " "
	_, err = svc.Complete(context.Background(), sloppy, "token")
	require.NoError(t, err)
}

func TestPairingCompleteInvalidCode(t *testing.T) {
	svc := newTestPairingService(newMockPairingStore())

	_, err := svc.Complete(context.Background(), "AAAA-BBBB", "token")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidCode, apperrors.GetCode(err))
}

func TestPairingCompleteExpiredSession(t *testing.T) {
	pairings := newMockPairingStore()
	svc := newTestPairingService(pairings)

	session, err := svc.Create(context.Background())
	require.NoError(t, err)

	session.ExpiresAt = time.Now().Add(-time.Minute)

	_, err = svc.Complete(context.Background(), session.Code, "token")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePairingExpired, apperrors.GetCode(err))
}

func TestPairingCompleteOnlyOnce(t *testing.T) {
	pairings := newMockPairingStore()
	svc := newTestPairingService(pairings)

	session, err := svc.Create(context.Background())
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), session.Code, "first-device")
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), session.Code, "second-device")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAlreadyPaired, apperrors.GetCode(err))

	// The first device's connection is untouched.
	conn, err := pairings.FindConnection(context.Background(), session.PairingID)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, "first-device", conn.DeviceToken)
}

func TestPairingStatus(t *testing.T) {
	pairings := newMockPairingStore()
	svc := newTestPairingService(pairings)

	session, err := svc.Create(context.Background())
	require.NoError(t, err)

	paired, pairingID, err := svc.Status(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.False(t, paired)
	assert.Empty(t, pairingID)

	_, err = svc.Complete(context.Background(), session.Code, "token")
	require.NoError(t, err)

	paired, pairingID, err = svc.Status(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.True(t, paired)
	assert.Equal(t, session.PairingID, pairingID)
}

func TestPairingStatusUnknownSession(t *testing.T) {
	svc := newTestPairingService(newMockPairingStore())

	_, _, err := svc.Status(context.Background(), "11111111-2222-4333-8444-555555555555")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}
