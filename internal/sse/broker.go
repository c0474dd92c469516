package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/edgeoftrust/watch-relay/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
)

// Event types published on a pairing's channel.
const (
	EventApprovalPending = "approval.pending"
	EventApprovalDecided = "approval.decided"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	PairingID string
	Events    chan Event
	Done      chan struct{}
}

// Broker fans approval events out to event-stream subscribers for a pairing.
// Redis pub/sub carries events across relay instances.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // pairingID -> set of clients
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(pairingID string) *Client {
	client := &Client{
		PairingID: pairingID,
		Events:    make(chan Event, 100),
		Done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[pairingID] == nil {
		b.clients[pairingID] = make(map[*Client]bool)
		go b.subscribeToRedis(pairingID)
	}
	b.clients[pairingID][client] = true
	clientCount := len(b.clients[pairingID])
	b.mu.Unlock()

	log.Info().
		Str("pairingId", pairingID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.PairingID]; ok {
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.PairingID)
		}

		log.Info().
			Str("pairingId", client.PairingID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, pairingID string, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(Event{Type: eventType, Data: payload})
	if err != nil {
		return err
	}

	channel := redisclient.EventChannel(pairingID)
	return b.redis.Publish(ctx, channel, raw).Err()
}

func (b *Broker) subscribeToRedis(pairingID string) {
	channel := redisclient.EventChannel(pairingID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("pairingId", pairingID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(pairingID, event)
		}
	}
}

func (b *Broker) broadcast(pairingID string, event Event) {
	b.mu.RLock()
	clients := b.clients[pairingID]
	b.mu.RUnlock()

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("pairingId", pairingID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
}

func (b *Broker) ClientCount(pairingID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[pairingID])
}
