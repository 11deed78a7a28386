package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gosimple/slug"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/bracket"
	"tournament-engine/internal/constants"
	"tournament-engine/internal/domain"
	"tournament-engine/internal/match"
	"tournament-engine/internal/vault"
)

func EntryKey(tournamentID, account string) string {
	return fmt.Sprintf("entry:%s:%s", tournamentID, account)
}

func SponsorKey(tournamentID, key string) string {
	return fmt.Sprintf("sponsor:%s:%s", tournamentID, key)
}

// normalize fills unset economy parameters from the service defaults and
// validates the result.
func (o *Orchestrator) normalize(cfg domain.TournamentConfig) (domain.TournamentConfig, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		return cfg, apperr.New(apperr.CodeInvalidArgument, "name is required")
	}
	if utf8.RuneCountInString(cfg.Name) > constants.MaxNameLength {
		return cfg, apperr.New(apperr.CodeInvalidArgument, "name is longer than %d characters", constants.MaxNameLength)
	}
	if cfg.MaxPlayers < 1 || cfg.MaxPlayers > constants.MaxPlayersLimit {
		return cfg, apperr.New(apperr.CodeInvalidArgument, "max players must be between 1 and %d", constants.MaxPlayersLimit)
	}

	if cfg.BracketType == "" {
		cfg.BracketType = domain.SingleElimination
	}
	if cfg.BracketType != domain.SingleElimination {
		return cfg, apperr.New(apperr.CodeUnsupportedBracketType, "bracket type %q is not supported", cfg.BracketType)
	}

	if cfg.PrizePool < 0 {
		return cfg, apperr.New(apperr.CodeInvalidArgument, "prize pool must not be negative")
	}
	if cfg.EntryFee < 0 {
		return cfg, apperr.New(apperr.CodeInvalidArgument, "entry fee must not be negative")
	}
	if err := vault.ValidateSplit(cfg.PrizeSplit); err != nil {
		return cfg, err
	}

	if cfg.DailyXPCap == 0 {
		cfg.DailyXPCap = o.cfg.DefaultDailyXPCap
	}
	if cfg.DailyXPCap < 0 {
		return cfg, apperr.New(apperr.CodeInvalidArgument, "daily xp cap must not be negative")
	}
	if len(cfg.StreakBonusTable) == 0 {
		cfg.StreakBonusTable = append([]int64(nil), o.cfg.DefaultStreakBonus...)
	}
	for i, pct := range cfg.StreakBonusTable {
		if pct < 100 {
			return cfg, apperr.New(apperr.CodeInvalidArgument, "streak bonus %d is %d%%, below 100%%", i+1, pct)
		}
	}
	if cfg.XP == (domain.XPPolicy{}) {
		cfg.XP = domain.XPPolicy{Participation: o.cfg.XPParticipation, Victory: o.cfg.XPVictory}
	}
	if cfg.XP.Participation < 0 || cfg.XP.Victory < 0 {
		return cfg, apperr.New(apperr.CodeInvalidArgument, "xp amounts must not be negative")
	}

	switch cfg.Tiebreak {
	case "":
		cfg.Tiebreak = domain.TiebreakNone
	case domain.TiebreakNone, domain.TiebreakHigherSeed:
	default:
		return cfg, apperr.New(apperr.CodeInvalidArgument, "unknown tiebreak policy %q", cfg.Tiebreak)
	}
	return cfg, nil
}

func (o *Orchestrator) CreateTournament(ctx context.Context, cfg domain.TournamentConfig) (*domain.Tournament, error) {
	cfg, err := o.normalize(cfg)
	if err != nil {
		return nil, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nanoid: %w", err)
	}

	now := o.now()
	t := &domain.Tournament{
		ID:        id,
		Name:      cfg.Name,
		Slug:      slug.Make(cfg.Name),
		Status:    domain.StatusRegistration,
		Config:    cfg,
		PrizePool: cfg.PrizePool,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.tournaments.SaveTournament(ctx, t); err != nil {
		o.logger.Error().Err(err).Str("name", cfg.Name).Msg("failed to create tournament")
		return nil, storageErr(err, "failed to create tournament")
	}
	o.publish(t)

	o.logger.Info().
		Str("tournament_id", t.ID).
		Str("slug", t.Slug).
		Int("max_players", cfg.MaxPlayers).
		Int64("prize_pool", cfg.PrizePool).
		Int64("entry_fee", cfg.EntryFee).
		Msg("tournament created")
	return t.Clone(), nil
}

// Join registers account. Joining again returns the existing entry. A
// non-zero entry fee is escrowed before the entry is recorded and returned
// if the entry is not recorded.
func (o *Orchestrator) Join(ctx context.Context, tournamentID, account string) (domain.Entry, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return domain.Entry{}, apperr.New(apperr.CodeInvalidArgument, "account is required")
	}

	t, err := o.snapshot(ctx, tournamentID)
	if err != nil {
		return domain.Entry{}, err
	}
	if e, ok := t.Entry(account); ok {
		return e, nil
	}
	if err := joinable(t); err != nil {
		return domain.Entry{}, err
	}

	fee := domain.Contribution{
		Account: account,
		Amount:  t.Config.EntryFee,
		Kind:    domain.ContributionEntryFee,
		Key:     EntryKey(tournamentID, account),
	}
	if fee.Amount > 0 {
		if fee.Key, err = o.escrowKey(ctx, fee.Key); err != nil {
			return domain.Entry{}, err
		}
		if err := o.vault.Escrow(ctx, fee); err != nil {
			o.logger.Warn().Err(err).Str("tournament_id", tournamentID).Str("account", account).Msg("entry fee not collected")
			return domain.Entry{}, err
		}
	}

	var entry domain.Entry
	_, err = o.mutate(ctx, tournamentID, func(t *domain.Tournament, fx *effects) error {
		if e, ok := t.Entry(account); ok {
			entry = e
			return nil
		}
		if err := joinable(t); err != nil {
			return err
		}
		if fee.Amount > 0 {
			if err := o.escrowLive(ctx, fee.Key); err != nil {
				return err
			}
		}

		entry = domain.Entry{Account: account, Seed: len(t.Roster) + 1, JoinedAt: o.now()}
		t.Roster = append(t.Roster, entry)
		if fee.Amount > 0 {
			t.Contributions = append(t.Contributions, fee)
			t.PrizePool += fee.Amount
		}
		fx.dirty = true

		o.logger.Info().Str("tournament_id", t.ID).Str("account", account).Int("seed", entry.Seed).Msg("player joined")

		if len(t.Roster) == t.Config.MaxPlayers {
			return o.start(t, fx)
		}
		return nil
	})
	if err != nil {
		if fee.Amount > 0 {
			o.abandon(ctx, tournamentID, fee)
		}
		return domain.Entry{}, err
	}
	return entry, nil
}

func joinable(t *domain.Tournament) error {
	if t.Status != domain.StatusRegistration {
		return apperr.New(apperr.CodeRegistrationClosed, "registration for %s is closed", t.ID)
	}
	if len(t.Roster) >= t.Config.MaxPlayers {
		return apperr.New(apperr.CodeTournamentFull, "tournament %s is full", t.ID)
	}
	return nil
}

// FundPool adds a sponsor contribution to the pool before play starts. key
// makes the contribution idempotent; an empty key always adds a new one.
func (o *Orchestrator) FundPool(ctx context.Context, tournamentID, sponsor string, amount int64, key string) (*domain.Tournament, error) {
	sponsor = strings.TrimSpace(sponsor)
	if sponsor == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "sponsor is required")
	}
	if amount <= 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "amount must be positive")
	}
	if key == "" {
		generated, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate nanoid: %w", err)
		}
		key = generated
	}

	t, err := o.snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	c := domain.Contribution{
		Account: sponsor,
		Amount:  amount,
		Kind:    domain.ContributionSponsor,
	}
	if c.Key, err = o.escrowKey(ctx, SponsorKey(tournamentID, key)); err != nil {
		return nil, err
	}
	if hasContribution(t, c.Key) {
		return t, nil
	}
	if err := fundable(t); err != nil {
		return nil, err
	}

	if err := o.vault.Escrow(ctx, c); err != nil {
		o.logger.Warn().Err(err).Str("tournament_id", tournamentID).Str("sponsor", sponsor).Msg("sponsor funds not collected")
		return nil, err
	}

	t, err = o.mutate(ctx, tournamentID, func(t *domain.Tournament, fx *effects) error {
		if hasContribution(t, c.Key) {
			return nil
		}
		if err := fundable(t); err != nil {
			return err
		}
		if err := o.escrowLive(ctx, c.Key); err != nil {
			return err
		}
		t.Contributions = append(t.Contributions, c)
		t.PrizePool += c.Amount
		fx.dirty = true
		o.logger.Info().Str("tournament_id", t.ID).Str("sponsor", sponsor).Int64("amount", amount).Int64("prize_pool", t.PrizePool).Msg("prize pool funded")
		return nil
	})
	if err != nil {
		o.abandon(ctx, tournamentID, c)
		return nil, err
	}
	return t.Clone(), nil
}

func fundable(t *domain.Tournament) error {
	if t.Status != domain.StatusRegistration && t.Status != domain.StatusLocked {
		return apperr.New(apperr.CodeInvalidTransition, "prize pool of %s can no longer be funded in %s", t.ID, t.Status)
	}
	return nil
}

func hasContribution(t *domain.Tournament, key string) bool {
	for _, c := range t.Contributions {
		if c.Key == key {
			return true
		}
	}
	return false
}

// CloseRegistration locks the roster and builds the bracket. Closing a
// tournament that is already past registration is a no-op.
func (o *Orchestrator) CloseRegistration(ctx context.Context, tournamentID string) (*domain.Tournament, error) {
	t, err := o.mutate(ctx, tournamentID, func(t *domain.Tournament, fx *effects) error {
		switch t.Status {
		case domain.StatusRegistration:
			return o.start(t, fx)
		case domain.StatusCancelled:
			return apperr.New(apperr.CodeInvalidTransition, "tournament %s is cancelled", t.ID)
		default:
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// start builds the bracket, moves the tournament through locked into play
// and starts every first match whose participants are known. A one-player
// tournament finishes on the spot.
func (o *Orchestrator) start(t *domain.Tournament, fx *effects) error {
	now := o.now()
	b, err := bracket.Build(t.ID, t.Accounts(), t.Config.BracketType, now)
	if err != nil {
		return err
	}
	t.Bracket = b
	t.Status = domain.StatusLocked
	fx.dirty = true

	o.logger.Info().
		Str("tournament_id", t.ID).
		Int("players", len(t.Roster)).
		Int("rounds", b.Rounds).
		Msg("registration closed, bracket built")

	for i := range b.Matches {
		m := &b.Matches[i]
		if m.State == domain.MatchScheduled && m.HasBoth() {
			if err := match.Start(m); err != nil {
				return err
			}
		}
	}
	t.Status = domain.StatusInProgress

	if bracket.Complete(b, t.Accounts()) {
		o.finish(t, fx)
	}
	return nil
}

func (o *Orchestrator) finish(t *domain.Tournament, fx *effects) {
	at := o.now()
	t.Finishing = bracket.FinishingOrder(t.Bracket, t.Accounts())
	t.Status = domain.StatusSettled
	t.SettledAt = &at
	fx.dirty = true
	fx.release = true

	o.logger.Info().
		Str("tournament_id", t.ID).
		Str("champion", bracket.Champion(t.Bracket, t.Accounts())).
		Int64("prize_pool", t.PrizePool).
		Msg("tournament settled")
}

// CancelTournament stops a tournament that has not started play, voids its
// matches and refunds every escrowed contribution.
func (o *Orchestrator) CancelTournament(ctx context.Context, tournamentID, reason string) (*domain.Tournament, error) {
	t, err := o.mutate(ctx, tournamentID, func(t *domain.Tournament, fx *effects) error {
		switch t.Status {
		case domain.StatusCancelled:
			return nil
		case domain.StatusRegistration, domain.StatusLocked:
		default:
			return apperr.New(apperr.CodeInvalidTransition, "tournament %s cannot be cancelled in %s", t.ID, t.Status)
		}

		now := o.now()
		if t.Bracket != nil {
			for i := range t.Bracket.Matches {
				m := &t.Bracket.Matches[i]
				if m.State == domain.MatchSettled {
					continue
				}
				if err := match.Void(m, reason, now); err != nil {
					return err
				}
			}
		}
		for _, c := range t.Contributions {
			fx.outbox = append(fx.outbox, o.refundItem(t.ID, c))
		}
		t.Status = domain.StatusCancelled
		fx.dirty = true

		o.logger.Info().
			Str("tournament_id", t.ID).
			Str("reason", reason).
			Int("refunds", len(t.Contributions)).
			Msg("tournament cancelled")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// refundItem is keyed by the contribution it returns.
func (o *Orchestrator) refundItem(tournamentID string, c domain.Contribution) domain.OutboxItem {
	now := o.now()
	return domain.OutboxItem{
		Key:          c.Key,
		Kind:         domain.OutboxRefund,
		TournamentID: tournamentID,
		Account:      c.Account,
		Amount:       c.Amount,
		Day:          domain.DayOf(now),
		Status:       domain.OutboxPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func returnKey(contributionKey string) string {
	return "return:" + contributionKey
}

// escrowKey picks the ledger key for a new contribution under base. A key
// whose debit is being returned is spent, so a retry debits under the next
// one instead of colliding with the returned debit.
func (o *Orchestrator) escrowKey(ctx context.Context, base string) (string, error) {
	key := base
	for n := 2; ; n++ {
		it, err := o.outbox.GetOutbox(ctx, returnKey(key))
		if err != nil {
			return "", storageErr(err, "failed to look up escrow %s", key)
		}
		if it == nil {
			return key, nil
		}
		key = fmt.Sprintf("%s:%d", base, n)
	}
}

// escrowLive rejects recording a contribution whose debit is already being
// returned. Called under the tournament lock.
func (o *Orchestrator) escrowLive(ctx context.Context, key string) error {
	it, err := o.outbox.GetOutbox(ctx, returnKey(key))
	if err != nil {
		return storageErr(err, "failed to look up escrow %s", key)
	}
	if it != nil {
		return apperr.New(apperr.CodeConcurrentModification, "escrow %s is being returned, retry", key)
	}
	return nil
}

// abandon queues the return of a debit whose contribution was not recorded
// and tries to pay it straight away. It runs on a context detached from the
// caller's so a cancelled request still leaves the return behind.
func (o *Orchestrator) abandon(ctx context.Context, tournamentID string, c domain.Contribution) {
	ctx = context.WithoutCancel(ctx)
	now := o.now()
	item := domain.OutboxItem{
		Key:          returnKey(c.Key),
		Kind:         domain.OutboxEscrowReturn,
		TournamentID: tournamentID,
		Account:      c.Account,
		Amount:       c.Amount,
		Day:          domain.DayOf(now),
		Status:       domain.OutboxPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.outbox.Enqueue(ctx, []domain.OutboxItem{item}); err != nil {
		o.logger.Error().Err(err).Str("tournament_id", tournamentID).Str("key", c.Key).Int64("amount", c.Amount).Msg("failed to record escrow return")
		return
	}
	o.logger.Warn().Str("tournament_id", tournamentID).Str("account", c.Account).Str("key", c.Key).Msg("contribution not recorded, returning escrow")
	o.dispatch(ctx, []domain.OutboxItem{item})
}
