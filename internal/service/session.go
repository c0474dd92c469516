package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edgeoftrust/watch-relay/internal/audit"
	apperrors "github.com/edgeoftrust/watch-relay/internal/errors"
	"github.com/edgeoftrust/watch-relay/internal/store"
)

// SessionControlService lets the paired device end or pause the watch session
// from the wrist. Ending makes the hook fall back to terminal prompts; pausing
// makes it deny until the session is resumed.
type SessionControlService struct {
	sessions      store.SessionControlStore
	pairings      store.PairingStore
	connectionTTL time.Duration
}

func NewSessionControlService(sessions store.SessionControlStore, pairings store.PairingStore, connectionTTL time.Duration) *SessionControlService {
	return &SessionControlService{
		sessions:      sessions,
		pairings:      pairings,
		connectionTTL: connectionTTL,
	}
}

func (s *SessionControlService) End(ctx context.Context, pairingID string) error {
	if err := s.requireConnection(ctx, pairingID); err != nil {
		return err
	}
	if err := s.sessions.MarkEnded(ctx, pairingID, s.connectionTTL); err != nil {
		return fmt.Errorf("mark session ended: %w", err)
	}

	audit.Log(ctx, audit.Event{Type: audit.EventSessionEnded, PairingID: pairingID})
	log.Info().Str("pairingId", pairingID).Msg("session ended from device")
	return nil
}

func (s *SessionControlService) Pause(ctx context.Context, pairingID string) error {
	if err := s.requireConnection(ctx, pairingID); err != nil {
		return err
	}
	if err := s.sessions.Pause(ctx, pairingID, s.connectionTTL); err != nil {
		return fmt.Errorf("pause session: %w", err)
	}

	audit.Log(ctx, audit.Event{Type: audit.EventSessionPaused, PairingID: pairingID})
	log.Info().Str("pairingId", pairingID).Msg("session paused from device")
	return nil
}

func (s *SessionControlService) Resume(ctx context.Context, pairingID string) error {
	if err := s.requireConnection(ctx, pairingID); err != nil {
		return err
	}
	if err := s.sessions.Resume(ctx, pairingID); err != nil {
		return fmt.Errorf("resume session: %w", err)
	}

	audit.Log(ctx, audit.Event{Type: audit.EventSessionResumed, PairingID: pairingID})
	log.Info().Str("pairingId", pairingID).Msg("session resumed from device")
	return nil
}

// Active reports whether the session is still live for the hook. A missing
// pairing reads as ended; the hook treats both the same way.
func (s *SessionControlService) Active(ctx context.Context, pairingID string) (bool, error) {
	ended, err := s.sessions.IsEnded(ctx, pairingID)
	if err != nil {
		return false, fmt.Errorf("check session ended: %w", err)
	}
	return !ended, nil
}

func (s *SessionControlService) Interrupted(ctx context.Context, pairingID string) (bool, error) {
	paused, err := s.sessions.IsPaused(ctx, pairingID)
	if err != nil {
		return false, fmt.Errorf("check session paused: %w", err)
	}
	return paused, nil
}

func (s *SessionControlService) requireConnection(ctx context.Context, pairingID string) error {
	conn, err := s.pairings.FindConnection(ctx, pairingID)
	if err != nil {
		return fmt.Errorf("find connection: %w", err)
	}
	if conn == nil {
		return apperrors.UnknownPairing()
	}
	return nil
}
