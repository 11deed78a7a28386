package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"tournament-engine/internal/apperr"
)

// Retrier wraps a Gateway with bounded exponential backoff. Every attempt
// reuses the transfer's idempotency key, so a retry after a timeout that did
// land is reported by the ledger as AlreadyApplied rather than paid twice.
type Retrier struct {
	gw         Gateway
	maxRetries uint64
	base       time.Duration
	logger     zerolog.Logger
}

func NewRetrier(gw Gateway, maxRetries uint64, base time.Duration, logger zerolog.Logger) *Retrier {
	return &Retrier{gw: gw, maxRetries: maxRetries, base: base, logger: logger}
}

func (r *Retrier) Gateway() Gateway {
	return r.gw
}

func (r *Retrier) Credit(ctx context.Context, t Transfer) error {
	return r.do(ctx, "credit", t, r.gw.Credit)
}

func (r *Retrier) Debit(ctx context.Context, t Transfer) error {
	return r.do(ctx, "debit", t, r.gw.Debit)
}

func (r *Retrier) BalanceOf(ctx context.Context, account string) (int64, error) {
	balance, err := r.gw.BalanceOf(ctx, account)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeLedgerUnavailable, err, "failed to read balance of %s", account)
	}
	return balance, nil
}

func (r *Retrier) do(ctx context.Context, op string, t Transfer, call func(context.Context, Transfer) (Outcome, error)) error {
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.base))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		outcome, err := call(ctx, t)
		if err == nil {
			r.logger.Debug().
				Str("op", op).
				Str("account", t.Account).
				Int64("amount", t.Amount).
				Str("key", t.Key).
				Str("outcome", outcome.String()).
				Int("attempt", attempt).
				Msg("ledger call applied")
			return nil
		}
		if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, context.Canceled) {
			return err
		}
		r.logger.Warn().
			Err(err).
			Str("op", op).
			Str("key", t.Key).
			Int("attempt", attempt).
			Msg("ledger call failed, retrying")
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInsufficientFunds) {
		return apperr.Wrap(apperr.CodeInsufficientFunds, err, "ledger rejected %s %s", op, t.Key)
	}
	r.logger.Error().
		Err(err).
		Str("op", op).
		Str("account", t.Account).
		Str("key", t.Key).
		Int("attempts", attempt).
		Msg("ledger call gave up")
	return apperr.Wrap(apperr.CodeLedgerUnavailable, err, "failed to %s %s", op, t.Key)
}
