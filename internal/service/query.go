package service

import (
	"context"
	"strings"
	"time"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/bracket"
	"tournament-engine/internal/domain"
)

func (o *Orchestrator) GetTournament(ctx context.Context, tournamentID string) (*domain.Tournament, error) {
	return o.snapshot(ctx, tournamentID)
}

func (o *Orchestrator) ListTournaments(ctx context.Context, status domain.TournamentStatus) ([]*domain.Tournament, error) {
	out, err := o.tournaments.ListTournaments(ctx, status)
	if err != nil {
		return nil, storageErr(err, "failed to list tournaments")
	}
	return out, nil
}

func (o *Orchestrator) GetBracket(ctx context.Context, tournamentID string) (*domain.Bracket, error) {
	t, err := o.snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Bracket == nil {
		return nil, apperr.New(apperr.CodeNotFound, "tournament %s has no bracket yet", tournamentID)
	}
	return t.Bracket, nil
}

func (o *Orchestrator) GetMatch(ctx context.Context, tournamentID, matchID string) (*domain.Match, error) {
	t, err := o.snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	m, err := findMatch(t, matchID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetStandings places eliminated players by the round they went out in.
// Before the bracket exists every registrant is still alive.
func (o *Orchestrator) GetStandings(ctx context.Context, tournamentID string) (*domain.Standings, error) {
	t, err := o.snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	out := &domain.Standings{TournamentID: t.ID, Status: t.Status}
	if t.Status == domain.StatusSettled {
		out.Placements = t.Finishing
		return out, nil
	}
	out.Placements, out.Alive = bracket.Standings(t.Bracket, t.Accounts())
	return out, nil
}

func (o *Orchestrator) GetAllocations(ctx context.Context, tournamentID string) ([]domain.PrizeAllocation, error) {
	t, err := o.snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return t.Allocations, nil
}

// GetXP reports an account's XP row for the day containing on, or today when
// on is zero.
func (o *Orchestrator) GetXP(ctx context.Context, account string, on time.Time) (domain.XPLedgerEntry, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return domain.XPLedgerEntry{}, apperr.New(apperr.CodeInvalidArgument, "account is required")
	}
	if on.IsZero() {
		on = o.now()
	}
	return o.meter.Status(ctx, account, domain.DayOf(on))
}

func (o *Orchestrator) BalanceOf(ctx context.Context, account string) (int64, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return 0, apperr.New(apperr.CodeInvalidArgument, "account is required")
	}
	return o.ledger.BalanceOf(ctx, account)
}
