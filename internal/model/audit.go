package model

import "time"

// DecisionAudit is the durable Postgres trail of recorded decisions. The
// relay writes it best-effort after the ephemeral store accepts a decision,
// including late ones that arrive after the hook's own deadline.
type DecisionAudit struct {
	ID             int64     `db:"id" json:"id"`
	RequestID      string    `db:"request_id" json:"requestId"`
	PairingID      string    `db:"pairing_id" json:"pairingId"`
	Kind           string    `db:"kind" json:"kind"`
	Title          string    `db:"title" json:"title"`
	RiskTier       string    `db:"risk_tier" json:"riskTier"`
	Approved       bool      `db:"approved" json:"approved"`
	SourceDeviceID *string   `db:"source_device_id" json:"sourceDeviceId,omitempty"`
	DecidedAt      time.Time `db:"decided_at" json:"decidedAt"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

type CreateDecisionAuditParams struct {
	RequestID      string
	PairingID      string
	Kind           string
	Title          string
	RiskTier       string
	Approved       bool
	SourceDeviceID *string
	DecidedAt      time.Time
}
