// Package xp meters tournament experience points against a daily cap, with a
// streak-scaled bonus multiplier.
package xp

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/domain"
	"tournament-engine/internal/keylock"
	"tournament-engine/internal/ledger"
)

// Store keeps one XPLedgerEntry per account-day plus the applied grants.
// Missing rows are reported as (nil, nil).
type Store interface {
	EntryOn(ctx context.Context, account string, day domain.Day) (*domain.XPLedgerEntry, error)
	LastBefore(ctx context.Context, account string, day domain.Day) (*domain.XPLedgerEntry, error)
	Grant(ctx context.Context, key string) (*domain.XPGrant, error)
	// Apply upserts entry and, when grant is non-nil, records it.
	Apply(ctx context.Context, entry domain.XPLedgerEntry, grant *domain.XPGrant) error
	// Revert restores the account-day to prev (removing it when prev is nil)
	// and forgets grantKey.
	Revert(ctx context.Context, account string, day domain.Day, prev *domain.XPLedgerEntry, grantKey string) error
}

// Rules are the per-tournament economy parameters.
type Rules struct {
	DailyCap int64
	// StreakBonus[i] is the percentage applied at streak length i+1; the
	// last entry holds for longer streaks.
	StreakBonus []int64
}

func (r Rules) Multiplier(streak int) int64 {
	if len(r.StreakBonus) == 0 || streak <= 0 {
		return 100
	}
	if streak > len(r.StreakBonus) {
		streak = len(r.StreakBonus)
	}
	return r.StreakBonus[streak-1]
}

type GrantRequest struct {
	Account    string
	BaseAmount int64
	Day        domain.Day
	// Key makes the grant idempotent; a repeated key returns the amount
	// granted the first time.
	Key   string
	Rules Rules
}

type Meter struct {
	store  Store
	ledger *ledger.Retrier
	locks  *keylock.Registry
	logger zerolog.Logger
	now    func() time.Time
}

func NewMeter(store Store, retrier *ledger.Retrier, locks *keylock.Registry, logger zerolog.Logger) *Meter {
	return &Meter{
		store:  store,
		ledger: retrier,
		locks:  locks,
		logger: logger,
		now:    time.Now,
	}
}

func lockKey(account string) string {
	return "xp:" + account
}

// Advance derives the account-day row a grant on day starts from. cur is the
// existing row for day, prev the latest row before it.
func Advance(account string, day domain.Day, cur, prev *domain.XPLedgerEntry) domain.XPLedgerEntry {
	if cur != nil {
		return *cur
	}
	next := domain.XPLedgerEntry{
		Account:       account,
		Day:           day,
		StreakLength:  1,
		LastActiveDay: day,
	}
	if prev != nil && prev.LastActiveDay == day-1 {
		next.StreakLength = prev.StreakLength + 1
	}
	return next
}

// Amount applies the multiplier and clamps to what is left of the cap.
func Amount(base, multiplier, dailyCap, earned int64) int64 {
	amount := base * multiplier / 100
	if room := dailyCap - earned; amount > room {
		amount = room
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// Grant credits XP to an account for day. The local ledger row is written
// first; if the external credit then fails the row is restored and
// LEDGER_UNAVAILABLE is returned.
func (m *Meter) Grant(ctx context.Context, req GrantRequest) (int64, error) {
	if req.Account == "" {
		return 0, apperr.New(apperr.CodeInvalidArgument, "account is required")
	}
	if req.BaseAmount < 0 {
		return 0, apperr.New(apperr.CodeInvalidArgument, "base amount must not be negative")
	}
	if req.Rules.DailyCap < 0 {
		return 0, apperr.New(apperr.CodeInvalidArgument, "daily cap must not be negative")
	}

	unlock, err := m.locks.Lock(ctx, lockKey(req.Account))
	if err != nil {
		return 0, err
	}
	defer unlock()

	if req.Key != "" {
		prior, err := m.store.Grant(ctx, req.Key)
		if err != nil {
			return 0, storageErr(err, "failed to look up grant %s", req.Key)
		}
		if prior != nil {
			m.logger.Debug().Str("key", req.Key).Int64("amount", prior.Amount).Msg("xp grant already applied")
			return prior.Amount, nil
		}
	}

	cur, err := m.store.EntryOn(ctx, req.Account, req.Day)
	if err != nil {
		return 0, storageErr(err, "failed to load xp entry for %s", req.Account)
	}
	var prev *domain.XPLedgerEntry
	if cur == nil {
		prev, err = m.store.LastBefore(ctx, req.Account, req.Day)
		if err != nil {
			return 0, storageErr(err, "failed to load xp history for %s", req.Account)
		}
	}

	next := Advance(req.Account, req.Day, cur, prev)
	multiplier := req.Rules.Multiplier(next.StreakLength)
	amount := Amount(req.BaseAmount, multiplier, req.Rules.DailyCap, next.EarnedToday)
	next.EarnedToday += amount
	next.UpdatedAt = m.now()

	var grant *domain.XPGrant
	if req.Key != "" {
		grant = &domain.XPGrant{
			Key:        req.Key,
			Account:    req.Account,
			Day:        req.Day,
			BaseAmount: req.BaseAmount,
			Amount:     amount,
			CreatedAt:  next.UpdatedAt,
		}
	}
	if err := m.store.Apply(ctx, next, grant); err != nil {
		return 0, storageErr(err, "failed to record xp for %s", req.Account)
	}

	if amount > 0 {
		key := req.Key
		if key == "" {
			key = fmt.Sprintf("xp:%s:%d:%d", req.Account, req.Day, next.EarnedToday)
		}
		err := m.ledger.Credit(ctx, ledger.Transfer{
			Account: req.Account,
			Amount:  amount,
			Reason:  ledger.ReasonXP,
			Key:     key,
		})
		if err != nil {
			if rerr := m.store.Revert(ctx, req.Account, req.Day, cur, req.Key); rerr != nil {
				m.logger.Error().Err(rerr).Str("account", req.Account).Msg("failed to roll back xp entry")
			}
			m.logger.Warn().Err(err).Str("account", req.Account).Int64("amount", amount).Msg("xp credit failed, rolled back")
			return 0, apperr.Wrap(apperr.CodeLedgerUnavailable, err, "xp credit for %s not applied", req.Account)
		}
	}

	if cur == nil {
		m.restreak(ctx, next)
	}

	m.logger.Debug().
		Str("account", req.Account).
		Str("day", req.Day.String()).
		Int64("base", req.BaseAmount).
		Int64("multiplier_pct", multiplier).
		Int64("amount", amount).
		Int64("earned_today", next.EarnedToday).
		Int("streak", next.StreakLength).
		Msg("xp granted")
	return amount, nil
}

// restreak carries a newly recorded day's streak into the consecutive days
// already recorded after it. Amounts granted on those days stand.
func (m *Meter) restreak(ctx context.Context, from domain.XPLedgerEntry) {
	prev := from
	for {
		e, err := m.store.EntryOn(ctx, from.Account, prev.Day+1)
		if err != nil {
			m.logger.Error().Err(err).Str("account", from.Account).Msg("failed to load later xp entry")
			return
		}
		if e == nil || e.StreakLength == prev.StreakLength+1 {
			return
		}
		e.StreakLength = prev.StreakLength + 1
		e.UpdatedAt = m.now()
		if err := m.store.Apply(ctx, *e, nil); err != nil {
			m.logger.Error().Err(err).Str("account", from.Account).Str("day", e.Day.String()).Msg("failed to update xp streak")
			return
		}
		prev = *e
	}
}

// Status reports the account's row for day without changing it. An account
// with no activity on day shows zero earned and the streak it would carry.
func (m *Meter) Status(ctx context.Context, account string, day domain.Day) (domain.XPLedgerEntry, error) {
	cur, err := m.store.EntryOn(ctx, account, day)
	if err != nil {
		return domain.XPLedgerEntry{}, storageErr(err, "failed to load xp entry for %s", account)
	}
	if cur != nil {
		return *cur, nil
	}
	prev, err := m.store.LastBefore(ctx, account, day)
	if err != nil {
		return domain.XPLedgerEntry{}, storageErr(err, "failed to load xp history for %s", account)
	}
	out := domain.XPLedgerEntry{Account: account, Day: day}
	if prev != nil {
		out.LastActiveDay = prev.LastActiveDay
		if prev.LastActiveDay == day-1 {
			out.StreakLength = prev.StreakLength
		}
	}
	return out, nil
}

func storageErr(err error, format string, args ...any) error {
	return apperr.Wrap(apperr.CodeStorageUnavailable, err, format, args...)
}
