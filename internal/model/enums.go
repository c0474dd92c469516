package model

type RiskTier string

const (
	RiskTierLow    RiskTier = "low"
	RiskTierMedium RiskTier = "medium"
	RiskTierHigh   RiskTier = "high"
)

type RequestKind string

const (
	RequestKindBash       RequestKind = "bash"
	RequestKindFileEdit   RequestKind = "file_edit"
	RequestKindFileCreate RequestKind = "file_create"
	RequestKindFileRead   RequestKind = "file_read"
	RequestKindToolUse    RequestKind = "tool_use"
)

type PairingSessionStatus string

const (
	PairingSessionPending   PairingSessionStatus = "pending"
	PairingSessionCompleted PairingSessionStatus = "completed"
	PairingSessionExpired   PairingSessionStatus = "expired"
)

// DecisionStatus is the terminal-or-pending state a poll observes.
type DecisionStatus string

const (
	DecisionStatusPending  DecisionStatus = "pending"
	DecisionStatusApproved DecisionStatus = "approved"
	DecisionStatusRejected DecisionStatus = "rejected"
	DecisionStatusExpired  DecisionStatus = "expired"
)
