package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 1 // sqlite: one writer
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	LedgerMaxConnsPerHost  = 100
	// Upper bound on concurrent ledger calls in one release or dispatch.
	VaultCreditConcurrency = 8
	ReconcileBatchSize     = 100

	// Releases the reconciler attempts before leaving a tournament flagged
	// for RetrySettlement.
	MaxAutoSettlementAttempts = 5
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	MaxPlayersLimit = 1024
	MaxNameLength   = 120
)
