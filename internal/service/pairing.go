package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edgeoftrust/watch-relay/internal/audit"
	apperrors "github.com/edgeoftrust/watch-relay/internal/errors"
	"github.com/edgeoftrust/watch-relay/internal/model"
	"github.com/edgeoftrust/watch-relay/internal/store"
)

// Ambiguous characters (0/O, 1/I) are excluded; the code is typed on a small
// screen.
const pairingCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type PairingService struct {
	pairings      store.PairingStore
	sessionTTL    time.Duration
	connectionTTL time.Duration
}

func NewPairingService(pairings store.PairingStore, sessionTTL, connectionTTL time.Duration) *PairingService {
	return &PairingService{
		pairings:      pairings,
		sessionTTL:    sessionTTL,
		connectionTTL: connectionTTL,
	}
}

// Create opens a pairing session: a short human-enterable code bound to a
// fresh pairing id, valid for the session TTL unless redeemed.
func (s *PairingService) Create(ctx context.Context) (*model.PairingSession, error) {
	var code string
	for attempts := 0; attempts < 10; attempts++ {
		code = generateRandomCode()
		existing, _ := s.pairings.FindSessionByCode(ctx, code)
		if existing == nil {
			break
		}
	}

	now := time.Now()
	session := &model.PairingSession{
		SessionID: uuid.NewString(),
		Code:      code,
		PairingID: uuid.NewString(),
		Status:    model.PairingSessionPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	if err := s.pairings.SaveSession(ctx, session, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("save pairing session: %w", err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventPairingCreated,
		PairingID: session.PairingID,
	})

	log.Info().
		Str("sessionId", session.SessionID).
		Str("code", code).
		Time("expiresAt", session.ExpiresAt).
		Msg("pairing session created")

	return session, nil
}

// Complete redeems a code from the remote device, exactly once, and opens the
// PairingConnection the relay requires before accepting requests.
func (s *PairingService) Complete(ctx context.Context, code, deviceToken string) (*model.PairingSession, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	session, err := s.pairings.FindSessionByCode(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("find session by code: %w", err)
	}
	if session == nil {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventPairingCodeInvalid,
			Details: map[string]interface{}{"code": normalized},
		})
		return nil, apperrors.InvalidPairingCode()
	}

	if time.Now().After(session.ExpiresAt) {
		return nil, apperrors.PairingExpired()
	}
	if session.Status != model.PairingSessionPending {
		return nil, apperrors.AlreadyPaired()
	}

	if err := s.pairings.RedeemSession(ctx, session); err != nil {
		if err == store.ErrSessionRedeemed {
			return nil, apperrors.AlreadyPaired()
		}
		return nil, fmt.Errorf("redeem session: %w", err)
	}

	now := time.Now()
	conn := &model.PairingConnection{
		PairingID:   session.PairingID,
		DeviceToken: deviceToken,
		PairedAt:    now,
		LastSeenAt:  now,
	}
	if err := s.pairings.SaveConnection(ctx, conn, s.connectionTTL); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventPairingCompleted,
		PairingID: session.PairingID,
	})

	log.Info().
		Str("sessionId", session.SessionID).
		Str("pairingId", session.PairingID).
		Msg("pairing completed")

	return session, nil
}

// Status reports whether a session has been redeemed. The pairing id is only
// revealed once pairing completes.
func (s *PairingService) Status(ctx context.Context, sessionID string) (paired bool, pairingID string, err error) {
	session, err := s.pairings.FindSession(ctx, sessionID)
	if err != nil {
		return false, "", fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return false, "", apperrors.NotFound("Pairing session")
	}

	if session.Status == model.PairingSessionCompleted {
		return true, session.PairingID, nil
	}
	return false, "", nil
}

func generateRandomCode() string {
	chars := []byte(pairingCodeChars)
	part1 := make([]byte, 4)
	part2 := make([]byte, 4)

	for i := 0; i < 4; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		part1[i] = chars[n.Int64()]
	}
	for i := 0; i < 4; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		part2[i] = chars[n.Int64()]
	}

	return fmt.Sprintf("%s-%s", string(part1), string(part2))
}
