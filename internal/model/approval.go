package model

import "time"

// ApprovalRequest is a pending permission question routed to a paired
// remote client. Immutable once stored; it disappears when its TTL fires.
type ApprovalRequest struct {
	RequestID   string      `json:"requestId"`
	PairingID   string      `json:"pairingId"`
	Kind        RequestKind `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	FilePath    string      `json:"filePath,omitempty"`
	Command     string      `json:"command,omitempty"`
	RiskTier    RiskTier    `json:"riskTier"`
	CreatedAt   time.Time   `json:"createdAt"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

type CreateApprovalRequestParams struct {
	PairingID   string
	Kind        RequestKind
	Title       string
	Description string
	FilePath    string
	Command     string
	RiskTier    RiskTier
	ExpiresAt   time.Time
}

// Decision is the single recorded outcome for a request. The first write
// wins; every later respond for the same requestId sees this value unchanged.
type Decision struct {
	RequestID      string    `json:"requestId"`
	PairingID      string    `json:"pairingId"`
	Approved       bool      `json:"approved"`
	DecidedAt      time.Time `json:"decidedAt"`
	SourceDeviceID string    `json:"sourceDeviceId,omitempty"`
}

func (d *Decision) Status() DecisionStatus {
	if d.Approved {
		return DecisionStatusApproved
	}
	return DecisionStatusRejected
}
