package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/constants"
	"tournament-engine/internal/domain"
	"tournament-engine/internal/xp"
)

// release pays out a settled tournament's prize pool and records the outcome
// on the tournament. Allocations are computed once; repeat calls only retry
// the uncredited ones.
func (o *Orchestrator) release(ctx context.Context, tournamentID string) ([]domain.PrizeAllocation, error) {
	unlock, err := o.locks.Lock(ctx, releaseLock(tournamentID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := o.tournaments.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, storageErr(err, "failed to load tournament %s", tournamentID)
	}
	if t.Status != domain.StatusSettled {
		return nil, apperr.New(apperr.CodeInvalidTransition, "tournament %s is %s, not settled", t.ID, t.Status)
	}

	allocs, releaseErr := o.vault.Release(ctx, t.ID, t.PrizePool, t.Config.PrizeSplit, t.Finishing)
	if len(allocs) == 0 {
		return nil, releaseErr
	}

	_, err = o.mutate(ctx, tournamentID, func(t *domain.Tournament, fx *effects) error {
		t.Allocations = allocs
		t.SettlementIncomplete = releaseErr != nil
		t.SettlementAttempts++
		fx.dirty = true
		return nil
	})
	if err != nil {
		return allocs, err
	}

	if releaseErr != nil {
		o.logger.Warn().Err(releaseErr).Str("tournament_id", tournamentID).Msg("tournament flagged settlement incomplete")
	}
	return allocs, releaseErr
}

// RetrySettlement re-attempts the uncredited prize allocations of a settled
// tournament.
func (o *Orchestrator) RetrySettlement(ctx context.Context, tournamentID string) ([]domain.PrizeAllocation, error) {
	t, err := o.snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusSettled {
		return nil, apperr.New(apperr.CodeInvalidTransition, "tournament %s is %s, not settled", t.ID, t.Status)
	}
	return o.release(ctx, tournamentID)
}

// DispatchOutbox applies up to limit pending ledger items and returns how
// many were applied. Failed items stay pending with their error recorded.
func (o *Orchestrator) DispatchOutbox(ctx context.Context, limit int) (int, error) {
	items, err := o.outbox.PendingOutbox(ctx, limit)
	if err != nil {
		return 0, storageErr(err, "failed to load pending ledger work")
	}
	return o.dispatch(ctx, items), nil
}

func (o *Orchestrator) dispatch(ctx context.Context, items []domain.OutboxItem) int {
	var done atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(constants.VaultCreditConcurrency)
	for _, it := range items {
		it := it
		g.Go(func() error {
			if err := o.apply(gCtx, it); err != nil {
				o.logger.Warn().Err(err).Str("key", it.Key).Str("kind", string(it.Kind)).Msg("ledger work failed, left pending")
				if ferr := o.outbox.FailOutbox(gCtx, it.Key, err.Error()); ferr != nil {
					o.logger.Error().Err(ferr).Str("key", it.Key).Msg("failed to record outbox failure")
				}
				return nil
			}
			if err := o.outbox.CompleteOutbox(gCtx, it.Key); err != nil {
				o.logger.Error().Err(err).Str("key", it.Key).Msg("failed to complete outbox item")
				return nil
			}
			done.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(done.Load())
}

func (o *Orchestrator) apply(ctx context.Context, it domain.OutboxItem) error {
	switch it.Kind {
	case domain.OutboxXPGrant:
		t, err := o.snapshot(ctx, it.TournamentID)
		if err != nil {
			return err
		}
		_, err = o.meter.Grant(ctx, xp.GrantRequest{
			Account:    it.Account,
			BaseAmount: it.Amount,
			Day:        it.Day,
			Key:        it.Key,
			Rules:      rulesOf(t),
		})
		return err
	case domain.OutboxRefund:
		return o.vault.Refund(ctx, domain.Contribution{
			Account: it.Account,
			Amount:  it.Amount,
			Kind:    domain.ContributionEntryFee,
			Key:     it.Key,
		})
	case domain.OutboxEscrowReturn:
		return o.returnEscrow(ctx, it)
	default:
		return fmt.Errorf("unknown outbox kind %q", it.Kind)
	}
}

// returnEscrow credits back an abandoned debit unless the tournament ended
// up recording the contribution. The check and the credit hold the
// tournament lock so a concurrent join cannot record the key in between.
func (o *Orchestrator) returnEscrow(ctx context.Context, it domain.OutboxItem) error {
	unlock, err := o.locks.Lock(ctx, tournamentLock(it.TournamentID))
	if err != nil {
		return err
	}
	defer unlock()

	t, err := o.tournaments.GetTournament(ctx, it.TournamentID)
	if err != nil {
		return storageErr(err, "failed to load tournament %s", it.TournamentID)
	}
	key := strings.TrimPrefix(it.Key, returnKey(""))
	if hasContribution(t, key) {
		o.logger.Info().Str("tournament_id", t.ID).Str("key", key).Msg("escrow recorded after all, nothing to return")
		return nil
	}
	return o.vault.Refund(ctx, domain.Contribution{Account: it.Account, Amount: it.Amount, Key: key})
}

func rulesOf(t *domain.Tournament) xp.Rules {
	return xp.Rules{DailyCap: t.Config.DailyXPCap, StreakBonus: t.Config.StreakBonusTable}
}

// Reconcile dispatches pending ledger work and retries prize releases that
// are incomplete or were never started. A release that has failed
// MaxAutoSettlementAttempts times is left for RetrySettlement.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	dispatched, err := o.DispatchOutbox(ctx, constants.ReconcileBatchSize)
	if err != nil {
		return err
	}

	settled, err := o.tournaments.ListTournaments(ctx, domain.StatusSettled)
	if err != nil {
		return storageErr(err, "failed to list settled tournaments")
	}

	var retried, incomplete, parked int
	for _, t := range settled {
		if !t.SettlementIncomplete && len(t.Allocations) > 0 {
			continue
		}
		if t.SettlementAttempts >= constants.MaxAutoSettlementAttempts {
			parked++
			continue
		}
		retried++
		if _, err := o.release(ctx, t.ID); err != nil {
			incomplete++
			ev := o.logger.Warn()
			if t.SettlementAttempts+1 >= constants.MaxAutoSettlementAttempts {
				ev = o.logger.Error()
			}
			ev.Err(err).Str("tournament_id", t.ID).Int("attempts", t.SettlementAttempts+1).Msg("settlement still incomplete")
		}
	}

	o.logger.Debug().
		Int("dispatched", dispatched).
		Int("settlements_retried", retried).
		Int("settlements_incomplete", incomplete).
		Int("settlements_parked", parked).
		Msg("reconciliation pass finished")
	return nil
}
