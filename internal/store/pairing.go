package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/edgeoftrust/watch-relay/internal/redis"

	"github.com/edgeoftrust/watch-relay/internal/model"
)

// ErrSessionRedeemed is returned when a second completion races the first.
var ErrSessionRedeemed = errors.New("pairing session already redeemed")

// PairingStore holds the short-lived pairing handshake state and the durable
// pairing connections.
type PairingStore interface {
	SaveSession(ctx context.Context, session *model.PairingSession, ttl time.Duration) error
	FindSession(ctx context.Context, sessionID string) (*model.PairingSession, error)
	FindSessionByCode(ctx context.Context, code string) (*model.PairingSession, error)
	// RedeemSession flips the session to completed. Exactly one caller wins;
	// the rest get ErrSessionRedeemed.
	RedeemSession(ctx context.Context, session *model.PairingSession) error
	SaveConnection(ctx context.Context, conn *model.PairingConnection, ttl time.Duration) error
	FindConnection(ctx context.Context, pairingID string) (*model.PairingConnection, error)
	// TouchConnection refreshes lastSeenAt and the connection TTL.
	TouchConnection(ctx context.Context, pairingID string, ttl time.Duration) error
}

type pairingStore struct {
	rdb *redisclient.Client
}

func NewPairingStore(rdb *redisclient.Client) PairingStore {
	return &pairingStore{rdb: rdb}
}

func (s *pairingStore) SaveSession(ctx context.Context, session *model.PairingSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, redisclient.PairingSessionKey(session.SessionID), data, ttl)
	pipe.Set(ctx, redisclient.PairingCodeKey(session.Code), session.SessionID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *pairingStore) FindSession(ctx context.Context, sessionID string) (*model.PairingSession, error) {
	data, err := s.rdb.Get(ctx, redisclient.PairingSessionKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session model.PairingSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *pairingStore) FindSessionByCode(ctx context.Context, code string) (*model.PairingSession, error) {
	sessionID, err := s.rdb.Get(ctx, redisclient.PairingCodeKey(code)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.FindSession(ctx, sessionID)
}

func (s *pairingStore) RedeemSession(ctx context.Context, session *model.PairingSession) error {
	// SETNX on a redemption marker is the single mutation gate for the
	// session; only the winner may rewrite the session record.
	marker := redisclient.PairingSessionKey(session.SessionID) + ":redeemed"
	won, err := s.rdb.SetNX(ctx, marker, time.Now().UnixMilli(), time.Until(session.ExpiresAt)).Result()
	if err != nil {
		return fmt.Errorf("redeem session: %w", err)
	}
	if !won {
		return ErrSessionRedeemed
	}

	session.Status = model.PairingSessionCompleted
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, redisclient.PairingSessionKey(session.SessionID), data, time.Until(session.ExpiresAt))
	pipe.Del(ctx, redisclient.PairingCodeKey(session.Code))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *pairingStore) SaveConnection(ctx context.Context, conn *model.PairingConnection, ttl time.Duration) error {
	data, err := json.Marshal(connectionRecord{
		PairingID:   conn.PairingID,
		DeviceToken: conn.DeviceToken,
		PairedAt:    conn.PairedAt,
		LastSeenAt:  conn.LastSeenAt,
	})
	if err != nil {
		return fmt.Errorf("marshal connection: %w", err)
	}
	return s.rdb.Set(ctx, redisclient.ConnectionKey(conn.PairingID), data, ttl).Err()
}

func (s *pairingStore) FindConnection(ctx context.Context, pairingID string) (*model.PairingConnection, error) {
	data, err := s.rdb.Get(ctx, redisclient.ConnectionKey(pairingID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec connectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal connection: %w", err)
	}
	return &model.PairingConnection{
		PairingID:   rec.PairingID,
		DeviceToken: rec.DeviceToken,
		PairedAt:    rec.PairedAt,
		LastSeenAt:  rec.LastSeenAt,
	}, nil
}

func (s *pairingStore) TouchConnection(ctx context.Context, pairingID string, ttl time.Duration) error {
	conn, err := s.FindConnection(ctx, pairingID)
	if err != nil {
		return err
	}
	if conn == nil {
		return nil
	}
	conn.LastSeenAt = time.Now()
	return s.SaveConnection(ctx, conn, ttl)
}

// connectionRecord is the stored shape of a PairingConnection. The model
// hides DeviceToken from JSON responses; the store still has to persist it.
type connectionRecord struct {
	PairingID   string    `json:"pairingId"`
	DeviceToken string    `json:"deviceToken,omitempty"`
	PairedAt    time.Time `json:"pairedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}
