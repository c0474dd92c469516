package watch

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

const DefaultMaxRetries = 3

// QueuedMessage is an outbound payload buffered until a send succeeds or its
// retries run out.
type QueuedMessage struct {
	ID         string
	Payload    json.RawMessage
	Priority   Priority
	CreatedAt  time.Time
	RetryCount int
	MaxRetries int

	seq uint64
}

func (m *QueuedMessage) CanRetry() bool {
	return m.RetryCount < m.MaxRetries
}

// PriorityMessageQueue buffers outbound messages and drains them strictly by
// priority, FIFO within a tier. Enqueue never applies backpressure: outbound
// decisions are small and infrequent. A message whose retries are exhausted
// is dropped and logged rather than retried forever; the hook's own timeout
// is the correctness backstop for a decision that never arrives.
type PriorityMessageQueue struct {
	mu       sync.Mutex
	messages []*QueuedMessage
	nextSeq  uint64
}

func NewPriorityMessageQueue() *PriorityMessageQueue {
	return &PriorityMessageQueue{}
}

func (q *PriorityMessageQueue) Enqueue(payload json.RawMessage, priority Priority) *QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg := &QueuedMessage{
		ID:         uuid.NewString(),
		Payload:    payload,
		Priority:   priority,
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
		seq:        q.nextSeq,
	}
	q.nextSeq++
	q.messages = append(q.messages, msg)

	log.Debug().
		Str("messageId", msg.ID).
		Str("priority", priority.String()).
		Int("queued", len(q.messages)).
		Msg("message enqueued")

	return msg
}

func (q *PriorityMessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// SendFunc attempts delivery of one message.
type SendFunc func(ctx context.Context, msg *QueuedMessage) error

// Drain makes one delivery pass over the queue in priority order. Messages
// that fail but can still retry stay queued for the next pass; the rest are
// removed. Returns how many were sent and how many were dropped.
func (q *PriorityMessageQueue) Drain(ctx context.Context, send SendFunc) (sent, dropped int) {
	q.mu.Lock()
	batch := make([]*QueuedMessage, len(q.messages))
	copy(batch, q.messages)
	q.mu.Unlock()

	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].Priority != batch[j].Priority {
			return batch[i].Priority > batch[j].Priority
		}
		return batch[i].seq < batch[j].seq
	})

	var done []*QueuedMessage
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}

		if err := send(ctx, msg); err != nil {
			msg.RetryCount++
			if msg.CanRetry() {
				log.Warn().
					Err(err).
					Str("messageId", msg.ID).
					Int("retryCount", msg.RetryCount).
					Msg("send failed, will retry")
				continue
			}
			log.Error().
				Err(err).
				Str("messageId", msg.ID).
				Int("retryCount", msg.RetryCount).
				Msg("send retries exhausted, dropping message")
			dropped++
			done = append(done, msg)
			continue
		}

		sent++
		done = append(done, msg)
	}

	if len(done) > 0 {
		q.remove(done)
	}
	return sent, dropped
}

func (q *PriorityMessageQueue) remove(done []*QueuedMessage) {
	finished := make(map[uint64]bool, len(done))
	for _, msg := range done {
		finished[msg.seq] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	remaining := q.messages[:0]
	for _, msg := range q.messages {
		if !finished[msg.seq] {
			remaining = append(remaining, msg)
		}
	}
	q.messages = remaining
}
