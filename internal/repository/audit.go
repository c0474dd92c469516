package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgeoftrust/watch-relay/internal/model"
)

type DecisionAuditRepository interface {
	Create(ctx context.Context, params model.CreateDecisionAuditParams) (*model.DecisionAudit, error)
	FindByRequestID(ctx context.Context, requestID string) ([]model.DecisionAudit, error)
	FindByPairingID(ctx context.Context, pairingID string, limit, offset int) ([]model.DecisionAudit, error)
	CountByPairingID(ctx context.Context, pairingID string) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type decisionAuditRepo struct {
	db *sqlx.DB
}

func NewDecisionAuditRepository(db *sqlx.DB) DecisionAuditRepository {
	return &decisionAuditRepo{db: db}
}

func (r *decisionAuditRepo) Create(ctx context.Context, params model.CreateDecisionAuditParams) (*model.DecisionAudit, error) {
	var audit model.DecisionAudit
	err := r.db.GetContext(ctx, &audit, `
		INSERT INTO decision_audit (request_id, pairing_id, kind, title, risk_tier, approved, source_device_id, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`, params.RequestID, params.PairingID, params.Kind, params.Title,
		params.RiskTier, params.Approved, params.SourceDeviceID, params.DecidedAt)
	if err != nil {
		return nil, err
	}
	return &audit, nil
}

func (r *decisionAuditRepo) FindByRequestID(ctx context.Context, requestID string) ([]model.DecisionAudit, error) {
	var audits []model.DecisionAudit
	err := r.db.SelectContext(ctx, &audits, `
		SELECT * FROM decision_audit
		WHERE request_id = $1
		ORDER BY created_at ASC
	`, requestID)
	return audits, err
}

func (r *decisionAuditRepo) FindByPairingID(ctx context.Context, pairingID string, limit, offset int) ([]model.DecisionAudit, error) {
	var audits []model.DecisionAudit
	err := r.db.SelectContext(ctx, &audits, `
		SELECT * FROM decision_audit
		WHERE pairing_id = $1
		ORDER BY decided_at DESC
		LIMIT $2 OFFSET $3
	`, pairingID, limit, offset)
	return audits, err
}

func (r *decisionAuditRepo) CountByPairingID(ctx context.Context, pairingID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM decision_audit WHERE pairing_id = $1
	`, pairingID)
	return count, err
}

func (r *decisionAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM decision_audit WHERE decided_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
