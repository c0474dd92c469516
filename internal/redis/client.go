package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// Key builders. Every ephemeral record lives under one of these prefixes and
// carries a TTL, so expiry is handled by redis itself rather than a sweeper.

func RequestKey(requestID string) string {
	return fmt.Sprintf("approval:request:%s", requestID)
}

func DecisionKey(requestID string) string {
	return fmt.Sprintf("approval:decision:%s", requestID)
}

func PendingSetKey(pairingID string) string {
	return fmt.Sprintf("approval:pending:%s", pairingID)
}

func PairingSessionKey(sessionID string) string {
	return fmt.Sprintf("pairing:session:%s", sessionID)
}

func PairingCodeKey(code string) string {
	return fmt.Sprintf("pairing:code:%s", code)
}

func ConnectionKey(pairingID string) string {
	return fmt.Sprintf("pairing:connection:%s", pairingID)
}

func PushDebounceKey(pairingID string) string {
	return fmt.Sprintf("push:debounce:%s", pairingID)
}

func SessionEndedKey(pairingID string) string {
	return fmt.Sprintf("session:ended:%s", pairingID)
}

func SessionPausedKey(pairingID string) string {
	return fmt.Sprintf("session:paused:%s", pairingID)
}

// EventChannel is the pub/sub channel fanning approval events out to
// subscribed event streams for a pairing.
func EventChannel(pairingID string) string {
	return fmt.Sprintf("events:%s", pairingID)
}
