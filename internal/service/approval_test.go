package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/edgeoftrust/watch-relay/internal/errors"
	"github.com/edgeoftrust/watch-relay/internal/model"
	"github.com/edgeoftrust/watch-relay/internal/store"
)

type mockApprovalStore struct {
	mu        sync.Mutex
	requests  map[string]*model.ApprovalRequest
	decisions map[string]*model.Decision
}

func newMockApprovalStore() *mockApprovalStore {
	return &mockApprovalStore{
		requests:  make(map[string]*model.ApprovalRequest),
		decisions: make(map[string]*model.Decision),
	}
}

func (m *mockApprovalStore) SaveRequest(ctx context.Context, req *model.ApprovalRequest, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.RequestID] = req
	return nil
}

func (m *mockApprovalStore) FindRequest(ctx context.Context, requestID string) (*model.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[requestID], nil
}

func (m *mockApprovalStore) ListPending(ctx context.Context, pairingID string) ([]model.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ApprovalRequest
	for _, req := range m.requests {
		if req.PairingID != pairingID {
			continue
		}
		if _, decided := m.decisions[req.RequestID]; decided {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

func (m *mockApprovalStore) RecordDecision(ctx context.Context, decision *model.Decision, ttl time.Duration) (*model.Decision, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.decisions[decision.RequestID]; ok {
		return existing, false, nil
	}
	m.decisions[decision.RequestID] = decision
	return decision, true, nil
}

func (m *mockApprovalStore) FindDecision(ctx context.Context, requestID string) (*model.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decisions[requestID], nil
}

func (m *mockApprovalStore) dropRequest(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, requestID)
}

type mockPairingStore struct {
	mu          sync.Mutex
	sessions    map[string]*model.PairingSession
	byCode      map[string]*model.PairingSession
	connections map[string]*model.PairingConnection
	touched     map[string]int
}

func newMockPairingStore() *mockPairingStore {
	return &mockPairingStore{
		sessions:    make(map[string]*model.PairingSession),
		byCode:      make(map[string]*model.PairingSession),
		connections: make(map[string]*model.PairingConnection),
		touched:     make(map[string]int),
	}
}

func (m *mockPairingStore) SaveSession(ctx context.Context, session *model.PairingSession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = session
	m.byCode[session.Code] = session
	return nil
}

func (m *mockPairingStore) FindSession(ctx context.Context, sessionID string) (*model.PairingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID], nil
}

func (m *mockPairingStore) FindSessionByCode(ctx context.Context, code string) (*model.PairingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byCode[code], nil
}

func (m *mockPairingStore) RedeemSession(ctx context.Context, session *model.PairingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.sessions[session.SessionID]
	if stored == nil {
		return nil
	}
	if stored.Status != model.PairingSessionPending {
		return store.ErrSessionRedeemed
	}
	stored.Status = model.PairingSessionCompleted
	return nil
}

func (m *mockPairingStore) SaveConnection(ctx context.Context, conn *model.PairingConnection, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.PairingID] = conn
	return nil
}

func (m *mockPairingStore) FindConnection(ctx context.Context, pairingID string) (*model.PairingConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections[pairingID], nil
}

func (m *mockPairingStore) TouchConnection(ctx context.Context, pairingID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[pairingID]++
	return nil
}

func (m *mockPairingStore) addConnection(pairingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.connections[pairingID] = &model.PairingConnection{
		PairingID:   pairingID,
		DeviceToken: "device-token",
		PairedAt:    now,
		LastSeenAt:  now,
	}
}

func newTestApprovalService(approvals *mockApprovalStore, pairings *mockPairingStore) *ApprovalService {
	return NewApprovalService(approvals, pairings, nil, nil, nil, 10*time.Minute, 24*time.Hour)
}

const (
	testPairingID  = "0f0e9a1c-472e-4f2b-9d38-1c2a6f3e8b01"
	otherPairingID = "9b1d2c3e-5a6f-4708-b192-d3e4f5a6b7c8"
)

func TestSubmitUnknownPairing(t *testing.T) {
	svc := newTestApprovalService(newMockApprovalStore(), newMockPairingStore())

	_, err := svc.Submit(context.Background(), model.CreateApprovalRequestParams{
		PairingID: testPairingID,
		Title:     "Run: ls",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnknownPairing, apperrors.GetCode(err))
}

func TestSubmitAppliesDefaults(t *testing.T) {
	approvals := newMockApprovalStore()
	pairings := newMockPairingStore()
	pairings.addConnection(testPairingID)
	svc := newTestApprovalService(approvals, pairings)

	req, err := svc.Submit(context.Background(), model.CreateApprovalRequestParams{
		PairingID: testPairingID,
		Title:     "Do something",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, req.RequestID)
	assert.Equal(t, model.RequestKindToolUse, req.Kind)
	assert.Equal(t, model.RiskTierMedium, req.RiskTier)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), req.ExpiresAt, 2*time.Second)
	assert.Equal(t, 1, pairings.touched[testPairingID])
}

func TestSubmitCapsCallerTTL(t *testing.T) {
	approvals := newMockApprovalStore()
	pairings := newMockPairingStore()
	pairings.addConnection(testPairingID)
	svc := newTestApprovalService(approvals, pairings)

	req, err := svc.Submit(context.Background(), model.CreateApprovalRequestParams{
		PairingID: testPairingID,
		Title:     "Run: ls",
		ExpiresAt: time.Now().Add(30 * time.Second),
	})

	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), req.ExpiresAt, 2*time.Second)
}

func TestPollLifecycle(t *testing.T) {
	approvals := newMockApprovalStore()
	pairings := newMockPairingStore()
	pairings.addConnection(testPairingID)
	svc := newTestApprovalService(approvals, pairings)

	req, err := svc.Submit(context.Background(), model.CreateApprovalRequestParams{
		PairingID: testPairingID,
		Title:     "Run: ls",
	})
	require.NoError(t, err)

	status, decision, err := svc.Poll(context.Background(), testPairingID, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionStatusPending, status)
	assert.Nil(t, decision)

	_, err = svc.Respond(context.Background(), testPairingID, req.RequestID, true, "watch-1")
	require.NoError(t, err)

	status, decision, err = svc.Poll(context.Background(), testPairingID, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionStatusApproved, status)
	require.NotNil(t, decision)
	assert.True(t, decision.Approved)
}

func TestPollVanishedRequestIsExpired(t *testing.T) {
	svc := newTestApprovalService(newMockApprovalStore(), newMockPairingStore())

	status, decision, err := svc.Poll(context.Background(), testPairingID, "11111111-2222-4333-8444-555555555555")
	require.NoError(t, err)
	assert.Equal(t, model.DecisionStatusExpired, status)
	assert.Nil(t, decision)
}

func TestPollUnauthorizedPairing(t *testing.T) {
	approvals := newMockApprovalStore()
	pairings := newMockPairingStore()
	pairings.addConnection(testPairingID)
	svc := newTestApprovalService(approvals, pairings)

	req, err := svc.Submit(context.Background(), model.CreateApprovalRequestParams{
		PairingID: testPairingID,
		Title:     "Run: ls",
	})
	require.NoError(t, err)

	_, _, err = svc.Poll(context.Background(), otherPairingID, req.RequestID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetCode(err))
}

func TestRespondIdempotent(t *testing.T) {
	approvals := newMockApprovalStore()
	pairings := newMockPairingStore()
	pairings.addConnection(testPairingID)
	svc := newTestApprovalService(approvals, pairings)

	req, err := svc.Submit(context.Background(), model.CreateApprovalRequestParams{
		PairingID: testPairingID,
		Title:     "Run: ls",
	})
	require.NoError(t, err)

	first, err := svc.Respond(context.Background(), testPairingID, req.RequestID, true, "watch-1")
	require.NoError(t, err)
	assert.True(t, first.Approved)

	// A conflicting replay observes the original decision unchanged.
	second, err := svc.Respond(context.Background(), testPairingID, req.RequestID, false, "watch-2")
	require.NoError(t, err)
	assert.True(t, second.Approved)
	assert.Equal(t, first.DecidedAt, second.DecidedAt)
	assert.Equal(t, "watch-1", second.SourceDeviceID)
}

func TestRespondUnauthorizedCreatesNoDecision(t *testing.T) {
	approvals := newMockApprovalStore()
	pairings := newMockPairingStore()
	pairings.addConnection(testPairingID)
	svc := newTestApprovalService(approvals, pairings)

	req, err := svc.Submit(context.Background(), model.CreateApprovalRequestParams{
		PairingID: testPairingID,
		Title:     "Run: rm -rf /tmp/x",
	})
	require.NoError(t, err)

	_, err = svc.Respond(context.Background(), otherPairingID, req.RequestID, true, "intruder")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetCode(err))

	decision, err := approvals.FindDecision(context.Background(), req.RequestID)
	require.NoError(t, err)
	assert.Nil(t, decision)

	// The rightful owner can still decide.
	recorded, err := svc.Respond(context.Background(), testPairingID, req.RequestID, false, "watch-1")
	require.NoError(t, err)
	assert.False(t, recorded.Approved)
}

func TestRespondExpiredRequest(t *testing.T) {
	svc := newTestApprovalService(newMockApprovalStore(), newMockPairingStore())

	_, err := svc.Respond(context.Background(), testPairingID, "11111111-2222-4333-8444-555555555555", true, "watch-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRequestExpired, apperrors.GetCode(err))
}

func TestRespondReplayAfterRequestRecordExpired(t *testing.T) {
	approvals := newMockApprovalStore()
	pairings := newMockPairingStore()
	pairings.addConnection(testPairingID)
	svc := newTestApprovalService(approvals, pairings)

	req, err := svc.Submit(context.Background(), model.CreateApprovalRequestParams{
		PairingID: testPairingID,
		Title:     "Run: ls",
	})
	require.NoError(t, err)

	first, err := svc.Respond(context.Background(), testPairingID, req.RequestID, true, "watch-1")
	require.NoError(t, err)

	// The request record expires; the decision outlives it.
	approvals.dropRequest(req.RequestID)

	replayed, err := svc.Respond(context.Background(), testPairingID, req.RequestID, false, "watch-1")
	require.NoError(t, err)
	assert.True(t, replayed.Approved)
	assert.Equal(t, first.DecidedAt, replayed.DecidedAt)
}

func TestListPendingTouchesConnection(t *testing.T) {
	approvals := newMockApprovalStore()
	pairings := newMockPairingStore()
	pairings.addConnection(testPairingID)
	svc := newTestApprovalService(approvals, pairings)

	_, err := svc.Submit(context.Background(), model.CreateApprovalRequestParams{
		PairingID: testPairingID,
		Title:     "Run: ls",
	})
	require.NoError(t, err)

	requests, err := svc.ListPending(context.Background(), testPairingID)
	require.NoError(t, err)
	assert.Len(t, requests, 1)
	assert.Equal(t, 2, pairings.touched[testPairingID])
}

type failingAuditRepo struct{}

func (failingAuditRepo) Create(ctx context.Context, params model.CreateDecisionAuditParams) (*model.DecisionAudit, error) {
	return nil, errDBDown
}

func (failingAuditRepo) FindByRequestID(ctx context.Context, requestID string) ([]model.DecisionAudit, error) {
	return nil, errDBDown
}

func (failingAuditRepo) FindByPairingID(ctx context.Context, pairingID string, limit, offset int) ([]model.DecisionAudit, error) {
	return nil, errDBDown
}

func (failingAuditRepo) CountByPairingID(ctx context.Context, pairingID string) (int, error) {
	return 0, errDBDown
}

func (failingAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errDBDown
}

var errDBDown = errors.New("connection refused")

func TestDecisionHistoryDatabaseError(t *testing.T) {
	svc := NewApprovalService(
		newMockApprovalStore(), newMockPairingStore(), failingAuditRepo{},
		nil, nil, 10*time.Minute, 24*time.Hour,
	)

	_, _, err := svc.DecisionHistory(context.Background(), testPairingID, 50, 0)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeDatabase, appErr.Code)
	assert.ErrorIs(t, err, errDBDown)

	_, err = svc.DecisionTrail(context.Background(), "11111111-2222-4333-8444-555555555555")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabase, apperrors.GetCode(err))
}

func TestDecisionHistoryWithoutRepo(t *testing.T) {
	svc := newTestApprovalService(newMockApprovalStore(), newMockPairingStore())

	records, total, err := svc.DecisionHistory(context.Background(), testPairingID, 50, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, records)
}
