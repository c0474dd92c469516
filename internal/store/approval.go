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

// ApprovalStore is the ephemeral KV behind submit/poll/respond. Records expire
// by redis TTL; nothing here needs a sweeper.
type ApprovalStore interface {
	SaveRequest(ctx context.Context, req *model.ApprovalRequest, ttl time.Duration) error
	// FindRequest returns (nil, nil) when the request never existed or has expired.
	FindRequest(ctx context.Context, requestID string) (*model.ApprovalRequest, error)
	ListPending(ctx context.Context, pairingID string) ([]model.ApprovalRequest, error)
	// RecordDecision atomically stores the decision unless one already exists.
	// It returns the winning decision and whether this call recorded it.
	RecordDecision(ctx context.Context, decision *model.Decision, ttl time.Duration) (*model.Decision, bool, error)
	// FindDecision returns (nil, nil) when no decision has been recorded.
	FindDecision(ctx context.Context, requestID string) (*model.Decision, error)
}

// recordDecisionScript is a compare-and-set: the first decision for a request
// id sticks, every later write observes the original unchanged. A plain
// read-then-write here would let two near-simultaneous responders both win.
var recordDecisionScript = goredis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
    return {0, existing}
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return {1, ARGV[1]}
`)

type approvalStore struct {
	rdb *redisclient.Client
}

func NewApprovalStore(rdb *redisclient.Client) ApprovalStore {
	return &approvalStore{rdb: rdb}
}

func (s *approvalStore) SaveRequest(ctx context.Context, req *model.ApprovalRequest, ttl time.Duration) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, redisclient.RequestKey(req.RequestID), data, ttl)
	pipe.ZAdd(ctx, redisclient.PendingSetKey(req.PairingID), goredis.Z{
		Score:  float64(req.CreatedAt.UnixMilli()),
		Member: req.RequestID,
	})
	// NX arms the TTL when the index is first created; GT then only ever
	// extends it, so a short-lived request cannot shorten the index below
	// the lifetime of a longer-lived one already in it.
	pipe.ExpireNX(ctx, redisclient.PendingSetKey(req.PairingID), ttl)
	pipe.ExpireGT(ctx, redisclient.PendingSetKey(req.PairingID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save request: %w", err)
	}
	return nil
}

func (s *approvalStore) FindRequest(ctx context.Context, requestID string) (*model.ApprovalRequest, error) {
	data, err := s.rdb.Get(ctx, redisclient.RequestKey(requestID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var req model.ApprovalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	return &req, nil
}

func (s *approvalStore) ListPending(ctx context.Context, pairingID string) ([]model.ApprovalRequest, error) {
	ids, err := s.rdb.ZRange(ctx, redisclient.PendingSetKey(pairingID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	requests := make([]model.ApprovalRequest, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		req, err := s.FindRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if req == nil {
			// Request TTL fired; drop the dangling index entry.
			stale = append(stale, id)
			continue
		}
		requests = append(requests, *req)
	}

	if len(stale) > 0 {
		s.rdb.ZRem(ctx, redisclient.PendingSetKey(pairingID), stale...)
	}

	return requests, nil
}

func (s *approvalStore) RecordDecision(ctx context.Context, decision *model.Decision, ttl time.Duration) (*model.Decision, bool, error) {
	data, err := json.Marshal(decision)
	if err != nil {
		return nil, false, fmt.Errorf("marshal decision: %w", err)
	}

	result, err := recordDecisionScript.Run(ctx, s.rdb.Client,
		[]string{redisclient.DecisionKey(decision.RequestID)},
		data, ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("record decision: %w", err)
	}
	if len(result) != 2 {
		return nil, false, fmt.Errorf("record decision: unexpected script result")
	}

	won := result[0].(int64) == 1
	stored, ok := result[1].(string)
	if !ok {
		return nil, false, fmt.Errorf("record decision: unexpected script payload")
	}

	var winner model.Decision
	if err := json.Unmarshal([]byte(stored), &winner); err != nil {
		return nil, false, fmt.Errorf("unmarshal decision: %w", err)
	}

	if won {
		s.rdb.ZRem(ctx, redisclient.PendingSetKey(decision.PairingID), decision.RequestID)
	}

	return &winner, won, nil
}

func (s *approvalStore) FindDecision(ctx context.Context, requestID string) (*model.Decision, error) {
	data, err := s.rdb.Get(ctx, redisclient.DecisionKey(requestID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var decision model.Decision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, fmt.Errorf("unmarshal decision: %w", err)
	}
	return &decision, nil
}
