package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// MaxRequestTTL is the hard ceiling on ApprovalRequest lifetime, regardless
// of what the submitting hook asks for.
const MaxRequestTTL = 10 * time.Minute

// PushDebounceWindow suppresses repeat notifications to the same pairing so a
// burst of tool calls does not turn into a barrage on the wrist.
const PushDebounceWindow = 3 * time.Second
