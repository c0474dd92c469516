package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edgeoftrust/watch-relay/internal/audit"
	"github.com/edgeoftrust/watch-relay/internal/config"
	apperrors "github.com/edgeoftrust/watch-relay/internal/errors"
	"github.com/edgeoftrust/watch-relay/internal/model"
	"github.com/edgeoftrust/watch-relay/internal/push"
	"github.com/edgeoftrust/watch-relay/internal/repository"
	"github.com/edgeoftrust/watch-relay/internal/sse"
	"github.com/edgeoftrust/watch-relay/internal/store"
)

const auditWriteTimeout = 5 * time.Second

// Notifier is the best-effort wake-up path to the remote device. Failures are
// logged and swallowed; correctness never depends on a push arriving.
type Notifier interface {
	Push(ctx context.Context, deviceToken string, n push.Notification) bool
	ShouldNotify(ctx context.Context, pairingID string) bool
}

type ApprovalService struct {
	approvals     store.ApprovalStore
	pairings      store.PairingStore
	auditRepo     repository.DecisionAuditRepository
	notifier      Notifier
	broker        *sse.Broker
	requestTTL    time.Duration
	connectionTTL time.Duration
}

func NewApprovalService(
	approvals store.ApprovalStore,
	pairings store.PairingStore,
	auditRepo repository.DecisionAuditRepository,
	notifier Notifier,
	broker *sse.Broker,
	requestTTL time.Duration,
	connectionTTL time.Duration,
) *ApprovalService {
	if requestTTL <= 0 || requestTTL > config.MaxRequestTTL {
		requestTTL = config.MaxRequestTTL
	}
	return &ApprovalService{
		approvals:     approvals,
		pairings:      pairings,
		auditRepo:     auditRepo,
		notifier:      notifier,
		broker:        broker,
		requestTTL:    requestTTL,
		connectionTTL: connectionTTL,
	}
}

// Submit validates the pairing, persists the request, and fires the wake-up
// push. The push outcome never affects the result.
func (s *ApprovalService) Submit(ctx context.Context, params model.CreateApprovalRequestParams) (*model.ApprovalRequest, error) {
	conn, err := s.pairings.FindConnection(ctx, params.PairingID)
	if err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	if conn == nil {
		return nil, apperrors.UnknownPairing()
	}

	now := time.Now()
	ttl := s.requestTTL
	if !params.ExpiresAt.IsZero() {
		if remaining := time.Until(params.ExpiresAt); remaining > 0 && remaining < ttl {
			ttl = remaining
		}
	}

	req := &model.ApprovalRequest{
		RequestID:   uuid.NewString(),
		PairingID:   params.PairingID,
		Kind:        params.Kind,
		Title:       params.Title,
		Description: params.Description,
		FilePath:    params.FilePath,
		Command:     params.Command,
		RiskTier:    params.RiskTier,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if req.Kind == "" {
		req.Kind = model.RequestKindToolUse
	}
	if req.RiskTier == "" {
		req.RiskTier = model.RiskTierMedium
	}

	if err := s.approvals.SaveRequest(ctx, req, ttl); err != nil {
		return nil, fmt.Errorf("save request: %w", err)
	}

	if err := s.pairings.TouchConnection(ctx, req.PairingID, s.connectionTTL); err != nil {
		log.Warn().Err(err).Str("pairingId", req.PairingID).Msg("failed to touch connection")
	}

	log.Info().
		Str("requestId", req.RequestID).
		Str("pairingId", req.PairingID).
		Str("kind", string(req.Kind)).
		Str("riskTier", string(req.RiskTier)).
		Time("expiresAt", req.ExpiresAt).
		Msg("approval request submitted")

	s.notifyPending(req, conn.DeviceToken)

	return req, nil
}

// Poll reports the current state of a request without blocking. A request
// that has vanished with no recorded decision is implicitly denied as expired.
func (s *ApprovalService) Poll(ctx context.Context, pairingID, requestID string) (model.DecisionStatus, *model.Decision, error) {
	decision, err := s.approvals.FindDecision(ctx, requestID)
	if err != nil {
		return "", nil, fmt.Errorf("find decision: %w", err)
	}
	if decision != nil {
		if decision.PairingID != pairingID {
			audit.Log(ctx, audit.Event{
				Type:      audit.EventRespondUnauthorized,
				PairingID: pairingID,
				RequestID: requestID,
				Details:   map[string]interface{}{"operation": "poll"},
			})
			return "", nil, apperrors.Unauthorized("pairing id does not own this request")
		}
		return decision.Status(), decision, nil
	}

	req, err := s.approvals.FindRequest(ctx, requestID)
	if err != nil {
		return "", nil, fmt.Errorf("find request: %w", err)
	}
	if req == nil {
		return model.DecisionStatusExpired, nil, nil
	}
	if req.PairingID != pairingID {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventRespondUnauthorized,
			PairingID: pairingID,
			RequestID: requestID,
			Details:   map[string]interface{}{"operation": "poll"},
		})
		return "", nil, apperrors.Unauthorized("pairing id does not own this request")
	}
	return model.DecisionStatusPending, nil, nil
}

// ListPending returns the undecided requests for a pairing, oldest first.
func (s *ApprovalService) ListPending(ctx context.Context, pairingID string) ([]model.ApprovalRequest, error) {
	requests, err := s.approvals.ListPending(ctx, pairingID)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	if err := s.pairings.TouchConnection(ctx, pairingID, s.connectionTTL); err != nil {
		log.Warn().Err(err).Str("pairingId", pairingID).Msg("failed to touch connection")
	}

	return requests, nil
}

// Respond records a decision exactly once. The ownership check runs before
// anything is written, so a guessed requestId answered from an unrelated
// pairing creates no Decision. Replays observe the original value unchanged.
func (s *ApprovalService) Respond(ctx context.Context, pairingID, requestID string, approved bool, deviceID string) (*model.Decision, error) {
	req, err := s.approvals.FindRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}

	if req == nil {
		// The request record may have expired after a decision was recorded;
		// a replayed respond must still get the original decision back.
		existing, err := s.approvals.FindDecision(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("find decision: %w", err)
		}
		if existing != nil {
			if existing.PairingID != pairingID {
				s.logUnauthorized(ctx, pairingID, requestID)
				return nil, apperrors.Unauthorized("pairing id does not own this request")
			}
			return existing, nil
		}
		return nil, apperrors.RequestExpired()
	}

	if req.PairingID != pairingID {
		s.logUnauthorized(ctx, pairingID, requestID)
		return nil, apperrors.Unauthorized("pairing id does not own this request")
	}

	decision := &model.Decision{
		RequestID:      requestID,
		PairingID:      pairingID,
		Approved:       approved,
		DecidedAt:      time.Now(),
		SourceDeviceID: deviceID,
	}

	winner, won, err := s.approvals.RecordDecision(ctx, decision, config.MaxRequestTTL)
	if err != nil {
		return nil, fmt.Errorf("record decision: %w", err)
	}

	if !won {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventDecisionReplayed,
			PairingID: pairingID,
			RequestID: requestID,
			Details: map[string]interface{}{
				"attempted": approved,
				"recorded":  winner.Approved,
			},
		})
		return winner, nil
	}

	log.Info().
		Str("requestId", requestID).
		Str("pairingId", pairingID).
		Bool("approved", approved).
		Msg("decision recorded")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventDecisionRecorded,
		PairingID: pairingID,
		RequestID: requestID,
		Details:   map[string]interface{}{"approved": approved},
	})

	if err := s.pairings.TouchConnection(ctx, pairingID, s.connectionTTL); err != nil {
		log.Warn().Err(err).Str("pairingId", pairingID).Msg("failed to touch connection")
	}

	s.writeAudit(req, winner)
	s.publishDecided(winner)

	return winner, nil
}

// DecisionHistory pages through the durable audit trail for a pairing,
// newest first.
func (s *ApprovalService) DecisionHistory(ctx context.Context, pairingID string, limit, offset int) ([]model.DecisionAudit, int, error) {
	if s.auditRepo == nil {
		return nil, 0, nil
	}

	records, err := s.auditRepo.FindByPairingID(ctx, pairingID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	total, err := s.auditRepo.CountByPairingID(ctx, pairingID)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	return records, total, nil
}

// DecisionTrail returns every audit row written for a request id. More than
// one row indicates replayed responds that raced the first write.
func (s *ApprovalService) DecisionTrail(ctx context.Context, requestID string) ([]model.DecisionAudit, error) {
	if s.auditRepo == nil {
		return nil, nil
	}

	records, err := s.auditRepo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return records, nil
}

func (s *ApprovalService) logUnauthorized(ctx context.Context, pairingID, requestID string) {
	audit.Log(ctx, audit.Event{
		Type:      audit.EventRespondUnauthorized,
		PairingID: pairingID,
		RequestID: requestID,
		Details:   map[string]interface{}{"operation": "respond"},
	})
}

func (s *ApprovalService) notifyPending(req *model.ApprovalRequest, deviceToken string) {
	if s.broker != nil {
		if err := s.broker.Publish(context.Background(), req.PairingID, sse.EventApprovalPending, req); err != nil {
			log.Warn().Err(err).Str("requestId", req.RequestID).Msg("failed to publish pending event")
		}
	}

	if s.notifier == nil {
		return
	}

	// Fire-and-forget: a dead push gateway must not slow down submit.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if !s.notifier.ShouldNotify(ctx, req.PairingID) {
			log.Debug().Str("requestId", req.RequestID).Msg("push debounced")
			return
		}

		pending, err := s.approvals.ListPending(ctx, req.PairingID)
		pendingCount := 1
		if err == nil && len(pending) > 0 {
			pendingCount = len(pending)
		}

		if !s.notifier.Push(ctx, deviceToken, push.BuildNotification(req, pendingCount)) {
			log.Warn().Str("requestId", req.RequestID).Msg("push delivery failed")
		}
	}()
}

func (s *ApprovalService) writeAudit(req *model.ApprovalRequest, decision *model.Decision) {
	if s.auditRepo == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()

		var sourceDevice *string
		if decision.SourceDeviceID != "" {
			sourceDevice = &decision.SourceDeviceID
		}

		if _, err := s.auditRepo.Create(ctx, model.CreateDecisionAuditParams{
			RequestID:      decision.RequestID,
			PairingID:      decision.PairingID,
			Kind:           string(req.Kind),
			Title:          req.Title,
			RiskTier:       string(req.RiskTier),
			Approved:       decision.Approved,
			SourceDeviceID: sourceDevice,
			DecidedAt:      decision.DecidedAt,
		}); err != nil {
			log.Error().Err(err).Str("requestId", decision.RequestID).Msg("failed to write decision audit")
		}
	}()
}

func (s *ApprovalService) publishDecided(decision *model.Decision) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(context.Background(), decision.PairingID, sse.EventApprovalDecided, decision); err != nil {
		log.Warn().Err(err).Str("requestId", decision.RequestID).Msg("failed to publish decided event")
	}
}
