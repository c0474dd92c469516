package store

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/edgeoftrust/watch-relay/internal/redis"
)

// SessionControlStore holds the remote-controlled session flags: the watch
// can end a session (hook falls back to terminal prompts) or pause it (hook
// denies until resumed). Flags share the connection TTL so they never outlive
// the pairing they gate.
type SessionControlStore interface {
	MarkEnded(ctx context.Context, pairingID string, ttl time.Duration) error
	IsEnded(ctx context.Context, pairingID string) (bool, error)
	Pause(ctx context.Context, pairingID string, ttl time.Duration) error
	Resume(ctx context.Context, pairingID string) error
	IsPaused(ctx context.Context, pairingID string) (bool, error)
}

type sessionControlStore struct {
	rdb *redisclient.Client
}

func NewSessionControlStore(rdb *redisclient.Client) SessionControlStore {
	return &sessionControlStore{rdb: rdb}
}

func (s *sessionControlStore) MarkEnded(ctx context.Context, pairingID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, redisclient.SessionEndedKey(pairingID), time.Now().UnixMilli(), ttl).Err()
}

func (s *sessionControlStore) IsEnded(ctx context.Context, pairingID string) (bool, error) {
	return s.flagSet(ctx, redisclient.SessionEndedKey(pairingID))
}

func (s *sessionControlStore) Pause(ctx context.Context, pairingID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, redisclient.SessionPausedKey(pairingID), time.Now().UnixMilli(), ttl).Err()
}

func (s *sessionControlStore) Resume(ctx context.Context, pairingID string) error {
	return s.rdb.Del(ctx, redisclient.SessionPausedKey(pairingID)).Err()
}

func (s *sessionControlStore) IsPaused(ctx context.Context, pairingID string) (bool, error) {
	return s.flagSet(ctx, redisclient.SessionPausedKey(pairingID))
}

func (s *sessionControlStore) flagSet(ctx context.Context, key string) (bool, error) {
	_, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
