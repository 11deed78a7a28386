// Package vault escrows tournament funds and releases the prize pool by
// finishing position.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/constants"
	"tournament-engine/internal/domain"
	"tournament-engine/internal/ledger"
)

type Store interface {
	Allocations(ctx context.Context, tournamentID string) ([]domain.PrizeAllocation, error)
	// CreateAllocations stores allocs unless the tournament already has
	// allocations, and returns whichever set is stored.
	CreateAllocations(ctx context.Context, tournamentID string, allocs []domain.PrizeAllocation) ([]domain.PrizeAllocation, error)
	MarkCredited(ctx context.Context, tournamentID, account string) error
}

type Vault struct {
	store  Store
	ledger *ledger.Retrier
	logger zerolog.Logger
}

func NewVault(store Store, retrier *ledger.Retrier, logger zerolog.Logger) *Vault {
	return &Vault{store: store, ledger: retrier, logger: logger}
}

// ValidateSplit checks that a prize split is a list of non-negative
// percentages summing to exactly 100.
func ValidateSplit(split []int) error {
	if len(split) == 0 {
		return apperr.New(apperr.CodeInvalidPrizeSplit, "prize split is empty")
	}
	sum := 0
	for i, pct := range split {
		if pct < 0 {
			return apperr.New(apperr.CodeInvalidPrizeSplit, "prize split entry %d is negative", i+1)
		}
		sum += pct
	}
	if sum != 100 {
		return apperr.New(apperr.CodeInvalidPrizeSplit, "prize split sums to %d, not 100", sum)
	}
	return nil
}

// Compute turns finishing order into allocations. A group tied at position p
// with k members shares the percentages of positions p..p+k-1 evenly. Any
// remainder from integer division, and the share of positions nobody
// finished in, goes to position 1 so the allocations sum to pool exactly.
func Compute(tournamentID string, pool int64, split []int, order []domain.Placement) ([]domain.PrizeAllocation, error) {
	if err := ValidateSplit(split); err != nil {
		return nil, err
	}
	if pool < 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "prize pool is negative")
	}
	if len(order) == 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "finishing order is empty")
	}

	var (
		allocs []domain.PrizeAllocation
		total  int64
	)
	for _, p := range order {
		if len(p.Accounts) == 0 {
			continue
		}
		pct := 0
		for pos := p.Position; pos < p.Position+len(p.Accounts); pos++ {
			if pos >= 1 && pos <= len(split) {
				pct += split[pos-1]
			}
		}
		each := pool * int64(pct) / int64(100*len(p.Accounts))
		for _, acct := range p.Accounts {
			allocs = append(allocs, domain.PrizeAllocation{
				TournamentID: tournamentID,
				Account:      acct,
				Position:     p.Position,
				Amount:       each,
			})
			total += each
		}
	}
	if len(allocs) == 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "finishing order names no accounts")
	}

	// allocs[0] is position 1 when the order is sorted, which standings are.
	top := 0
	for i := range allocs {
		if allocs[i].Position < allocs[top].Position {
			top = i
		}
	}
	allocs[top].Amount += pool - total
	return allocs, nil
}

// Release computes (once) and credits the allocations for a settled
// tournament. Credited allocations are never paid again; uncredited ones are
// retried with backoff. If any remain uncredited the returned error is
// SETTLEMENT_INCOMPLETE and the allocations report which were paid.
func (v *Vault) Release(ctx context.Context, tournamentID string, pool int64, split []int, order []domain.Placement) ([]domain.PrizeAllocation, error) {
	allocs, err := v.store.Allocations(ctx, tournamentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageUnavailable, err, "failed to load allocations for %s", tournamentID)
	}
	if len(allocs) == 0 {
		computed, err := Compute(tournamentID, pool, split, order)
		if err != nil {
			return nil, err
		}
		allocs, err = v.store.CreateAllocations(ctx, tournamentID, computed)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeStorageUnavailable, err, "failed to record allocations for %s", tournamentID)
		}
		v.logger.Info().Str("tournament_id", tournamentID).Int("allocations", len(allocs)).Int64("pool", pool).Msg("prize allocations computed")
	}

	var (
		mu     sync.Mutex
		failed int
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(constants.VaultCreditConcurrency)
	for i := range allocs {
		if allocs[i].Credited {
			continue
		}
		i := i
		g.Go(func() error {
			a := allocs[i]
			if a.Amount > 0 {
				err := v.ledger.Credit(gCtx, ledger.Transfer{
					Account: a.Account,
					Amount:  a.Amount,
					Reason:  ledger.ReasonPrize,
					Key:     PrizeKey(tournamentID, a.Account),
				})
				if err != nil {
					v.logger.Warn().Err(err).Str("tournament_id", tournamentID).Str("account", a.Account).Msg("prize credit failed")
					mu.Lock()
					failed++
					mu.Unlock()
					return nil
				}
			}
			if err := v.store.MarkCredited(gCtx, tournamentID, a.Account); err != nil {
				return fmt.Errorf("failed to mark %s credited: %w", a.Account, err)
			}
			mu.Lock()
			allocs[i].Credited = true
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return allocs, apperr.Wrap(apperr.CodeStorageUnavailable, err, "settlement of %s interrupted", tournamentID)
	}
	if failed > 0 {
		return allocs, apperr.New(apperr.CodeSettlementIncomplete, "%d of %d prize credits for %s failed", failed, len(allocs), tournamentID)
	}
	v.logger.Info().Str("tournament_id", tournamentID).Msg("prize pool released")
	return allocs, nil
}

// Escrow debits a contribution into the pool.
func (v *Vault) Escrow(ctx context.Context, c domain.Contribution) error {
	if c.Amount <= 0 {
		return nil
	}
	reason := ledger.ReasonEntryFee
	if c.Kind == domain.ContributionSponsor {
		reason = ledger.ReasonSponsor
	}
	return v.ledger.Debit(ctx, ledger.Transfer{Account: c.Account, Amount: c.Amount, Reason: reason, Key: c.Key})
}

// Refund returns a contribution. Its key is derived from the contribution's
// so a refund is paid at most once.
func (v *Vault) Refund(ctx context.Context, c domain.Contribution) error {
	if c.Amount <= 0 {
		return nil
	}
	return v.ledger.Credit(ctx, ledger.Transfer{Account: c.Account, Amount: c.Amount, Reason: ledger.ReasonRefund, Key: RefundKey(c.Key)})
}

func PrizeKey(tournamentID, account string) string {
	return fmt.Sprintf("prize:%s:%s", tournamentID, account)
}

func RefundKey(contributionKey string) string {
	return "refund:" + contributionKey
}
