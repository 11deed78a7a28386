package service

import (
	"context"
	"fmt"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/bracket"
	"tournament-engine/internal/domain"
	"tournament-engine/internal/match"
)

func XPKey(tournamentID, matchID, account string) string {
	return fmt.Sprintf("xp:%s:%s:%s", tournamentID, matchID, account)
}

func findMatch(t *domain.Tournament, matchID string) (*domain.Match, error) {
	if m := t.Bracket.Find(matchID); m != nil {
		return m, nil
	}
	return nil, apperr.New(apperr.CodeNotFound, "match %s not found in tournament %s", matchID, t.ID)
}

func inPlay(t *domain.Tournament) error {
	if t.Status != domain.StatusInProgress {
		return apperr.New(apperr.CodeInvalidTransition, "tournament %s is %s, not in progress", t.ID, t.Status)
	}
	return nil
}

func (o *Orchestrator) StartMatch(ctx context.Context, tournamentID, matchID string) (*domain.Match, error) {
	var out domain.Match
	_, err := o.mutate(ctx, tournamentID, func(t *domain.Tournament, fx *effects) error {
		m, err := findMatch(t, matchID)
		if err != nil {
			return err
		}
		if err := inPlay(t); err != nil {
			return err
		}
		if m.State != domain.MatchInProgress {
			if err := match.Start(m); err != nil {
				return err
			}
			fx.dirty = true
		}
		out = *m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportResult records a result for a match in play. A tie that neither the
// report nor the tournament's tiebreak policy decides is AMBIGUOUS_RESULT and
// the match stays in progress.
func (o *Orchestrator) ReportResult(ctx context.Context, tournamentID, matchID string, r domain.Report) (*domain.Match, error) {
	var out domain.Match
	_, err := o.mutate(ctx, tournamentID, func(t *domain.Tournament, fx *effects) error {
		m, err := findMatch(t, matchID)
		if err != nil {
			return err
		}
		if err := inPlay(t); err != nil {
			return err
		}
		winner, err := match.Report(m, r, t.Config.Tiebreak, o.now())
		if err != nil {
			o.logger.Debug().Err(err).Str("match_id", matchID).Msg("report rejected")
			return err
		}
		fx.dirty = true
		out = *m

		o.logger.Info().
			Str("tournament_id", t.ID).
			Str("match_id", m.ID).
			Str("winner", winner).
			Int("score_a", r.ScoreA).
			Int("score_b", r.ScoreB).
			Bool("correction", r.Correction).
			Msg("result reported")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SettleMatch commits a reported result, moves the winner on and queues the
// match's XP. Settling a settled match returns it unchanged; its XP is queued
// again under the same keys, which the outbox and the meter both ignore.
func (o *Orchestrator) SettleMatch(ctx context.Context, tournamentID, matchID string) (*domain.Match, error) {
	var out domain.Match
	_, err := o.mutate(ctx, tournamentID, func(t *domain.Tournament, fx *effects) error {
		m, err := findMatch(t, matchID)
		if err != nil {
			return err
		}
		if m.State == domain.MatchSettled {
			fx.outbox = append(fx.outbox, o.xpItems(t, m)...)
			out = *m
			return nil
		}
		if err := inPlay(t); err != nil {
			return err
		}

		if _, _, err := match.Settle(m, o.now()); err != nil {
			return err
		}
		if err := o.decide(t, m, fx); err != nil {
			return err
		}
		fx.outbox = append(fx.outbox, o.xpItems(t, m)...)
		out = *m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ForfeitMatch voids a match in favour of the forfeiter's opponent, who
// advances. Repeating the same forfeit returns the voided match.
func (o *Orchestrator) ForfeitMatch(ctx context.Context, tournamentID, matchID, account, reason string) (*domain.Match, error) {
	var out domain.Match
	_, err := o.mutate(ctx, tournamentID, func(t *domain.Tournament, fx *effects) error {
		m, err := findMatch(t, matchID)
		if err != nil {
			return err
		}
		if m.State == domain.MatchVoided && m.Winner != "" && m.Loser() == account {
			fx.outbox = append(fx.outbox, o.xpItems(t, m)...)
			out = *m
			return nil
		}
		if err := inPlay(t); err != nil {
			return err
		}

		if _, err := match.Forfeit(m, account, reason, o.now()); err != nil {
			return err
		}
		if err := o.decide(t, m, fx); err != nil {
			return err
		}
		fx.outbox = append(fx.outbox, o.xpItems(t, m)...)
		out = *m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// decide moves a decided match's winner into the next round, starts that
// match once both sides are known and finishes the tournament after the
// final.
func (o *Orchestrator) decide(t *domain.Tournament, m *domain.Match, fx *effects) error {
	seed := m.SeedA
	if m.Winner == m.B {
		seed = m.SeedB
	}
	next, err := bracket.Advance(t.Bracket, m.Round, m.Slot, m.Winner, seed)
	if err != nil {
		return err
	}
	fx.dirty = true

	o.logger.Info().
		Str("tournament_id", t.ID).
		Str("match_id", m.ID).
		Str("winner", m.Winner).
		Str("state", string(m.State)).
		Msg("match decided")

	if next != nil && next.State == domain.MatchScheduled && next.HasBoth() {
		if err := match.Start(next); err != nil {
			return err
		}
	}
	if bracket.Complete(t.Bracket, t.Accounts()) {
		o.finish(t, fx)
	}
	return nil
}

// xpItems is the match's XP: participation for both players plus the victory
// bonus for the winner. A forfeit pays only the winner and a bye pays nobody.
func (o *Orchestrator) xpItems(t *domain.Tournament, m *domain.Match) []domain.OutboxItem {
	if m.Bye || m.Winner == "" || m.SettledAt == nil {
		return nil
	}
	policy := t.Config.XP
	day := domain.DayOf(*m.SettledAt)
	now := o.now()

	item := func(account string, amount int64) domain.OutboxItem {
		return domain.OutboxItem{
			Key:          XPKey(t.ID, m.ID, account),
			Kind:         domain.OutboxXPGrant,
			TournamentID: t.ID,
			Account:      account,
			Amount:       amount,
			Day:          day,
			Status:       domain.OutboxPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	var items []domain.OutboxItem
	if amount := policy.Participation + policy.Victory; amount > 0 {
		items = append(items, item(m.Winner, amount))
	}
	if m.State == domain.MatchSettled && policy.Participation > 0 {
		items = append(items, item(m.Loser(), policy.Participation))
	}
	return items
}
