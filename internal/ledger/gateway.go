// Package ledger is the engine's view of the external token ledger.
package ledger

import (
	"context"
	"errors"
)

type Outcome int

const (
	Applied Outcome = iota + 1
	AlreadyApplied
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyApplied:
		return "already_applied"
	default:
		return "unknown"
	}
}

const (
	ReasonXP       = "tournament-xp"
	ReasonPrize    = "tournament-prize"
	ReasonEntryFee = "tournament-entry-fee"
	ReasonSponsor  = "tournament-sponsor"
	ReasonRefund   = "tournament-refund"
)

// Transfer is one credit or debit. Key makes the transfer idempotent: a
// gateway applies a given key at most once.
type Transfer struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
	Key     string `json:"idempotency_key"`
}

// Gateway is the capability the engine needs from the ledger. A failed call
// returns a non-nil error; AlreadyApplied counts as success.
type Gateway interface {
	Credit(ctx context.Context, t Transfer) (Outcome, error)
	Debit(ctx context.Context, t Transfer) (Outcome, error)
	BalanceOf(ctx context.Context, account string) (int64, error)
}

var (
	// ErrInsufficientFunds is permanent and never retried.
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnavailable       = errors.New("ledger unavailable")
)
