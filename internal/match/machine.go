// Package match implements the per-match state machine:
// scheduled -> in_progress -> reported -> settled, with voided reachable from
// every state except settled.
package match

import (
	"time"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/domain"
)

// Start moves a scheduled match into play. Starting a match that is already
// in progress is a no-op.
func Start(m *domain.Match) error {
	switch m.State {
	case domain.MatchInProgress:
		return nil
	case domain.MatchScheduled:
	default:
		return transitionErr(m, domain.MatchInProgress)
	}
	if !m.HasBoth() {
		return apperr.New(apperr.CodeInvalidTransition, "match %s is waiting for participants", m.ID)
	}
	m.State = domain.MatchInProgress
	return nil
}

// Resolve determines the winner a report names. Scores decide when no winner
// is named; an even score needs explicit tiebreak data or a tiebreak policy.
func Resolve(m *domain.Match, r domain.Report, policy domain.TiebreakPolicy) (string, error) {
	if r.ScoreA < 0 || r.ScoreB < 0 {
		return "", apperr.New(apperr.CodeInvalidArgument, "scores must not be negative")
	}
	if r.Winner != "" {
		if !m.Involves(r.Winner) {
			return "", apperr.New(apperr.CodeNotAParticipant, "%s is not playing in match %s", r.Winner, m.ID)
		}
		if (r.Winner == m.A && r.ScoreA < r.ScoreB) || (r.Winner == m.B && r.ScoreB < r.ScoreA) {
			return "", apperr.New(apperr.CodeContradictoryResult, "reported winner %s has the lower score", r.Winner)
		}
		if r.ScoreA != r.ScoreB || r.TiebreakWinner == "" || r.TiebreakWinner == r.Winner {
			return r.Winner, nil
		}
		return "", apperr.New(apperr.CodeContradictoryResult, "winner %s disagrees with tiebreak winner %s", r.Winner, r.TiebreakWinner)
	}

	switch {
	case r.ScoreA > r.ScoreB:
		return m.A, nil
	case r.ScoreB > r.ScoreA:
		return m.B, nil
	}

	if r.TiebreakWinner != "" {
		if !m.Involves(r.TiebreakWinner) {
			return "", apperr.New(apperr.CodeNotAParticipant, "%s is not playing in match %s", r.TiebreakWinner, m.ID)
		}
		return r.TiebreakWinner, nil
	}
	if policy == domain.TiebreakHigherSeed && m.SeedA != m.SeedB {
		if m.SeedA < m.SeedB {
			return m.A, nil
		}
		return m.B, nil
	}
	return "", apperr.New(apperr.CodeAmbiguousResult, "match %s ended %d-%d with no tiebreak", m.ID, r.ScoreA, r.ScoreB)
}

// Report records a result. A match accepts one report; a second one is
// rejected unless it is a correction, which replaces the first and restarts
// the reported state. A rejected report leaves the match untouched.
func Report(m *domain.Match, r domain.Report, policy domain.TiebreakPolicy, now time.Time) (string, error) {
	switch m.State {
	case domain.MatchInProgress:
	case domain.MatchReported:
		if !r.Correction {
			return "", apperr.New(apperr.CodeDuplicateReport, "match %s already has a result", m.ID)
		}
	default:
		return "", transitionErr(m, domain.MatchReported)
	}

	winner, err := Resolve(m, r, policy)
	if err != nil {
		return "", err
	}

	r.Winner = winner
	r.ReportedAt = now
	m.Report = &r
	m.State = domain.MatchReported
	return winner, nil
}

// Settle finalizes a reported match. Settling an already settled match
// returns the recorded winner with settled=false so retries are harmless.
func Settle(m *domain.Match, now time.Time) (winner string, settled bool, err error) {
	switch m.State {
	case domain.MatchSettled:
		return m.Winner, false, nil
	case domain.MatchReported:
	default:
		return "", false, transitionErr(m, domain.MatchSettled)
	}
	if m.Report == nil || !m.Involves(m.Report.Winner) {
		return "", false, apperr.New(apperr.CodeBracketCorrupt, "match %s is reported without a valid winner", m.ID)
	}
	at := now
	m.Winner = m.Report.Winner
	m.State = domain.MatchSettled
	m.SettledAt = &at
	return m.Winner, true, nil
}

// Forfeit voids a match in favour of the opponent of forfeiter.
func Forfeit(m *domain.Match, forfeiter, reason string, now time.Time) (string, error) {
	if m.State == domain.MatchSettled || m.State == domain.MatchVoided {
		return "", transitionErr(m, domain.MatchVoided)
	}
	if !m.Involves(forfeiter) {
		return "", apperr.New(apperr.CodeNotAParticipant, "%s is not playing in match %s", forfeiter, m.ID)
	}
	if !m.HasBoth() {
		return "", apperr.New(apperr.CodeInvalidTransition, "match %s has no opponent for %s yet", m.ID, forfeiter)
	}
	winner := m.A
	if forfeiter == m.A {
		winner = m.B
	}
	at := now
	m.Winner = winner
	m.State = domain.MatchVoided
	m.VoidReason = reason
	m.SettledAt = &at
	return winner, nil
}

// Void cancels a match without a winner.
func Void(m *domain.Match, reason string, now time.Time) error {
	switch m.State {
	case domain.MatchSettled:
		return transitionErr(m, domain.MatchVoided)
	case domain.MatchVoided:
		return nil
	}
	at := now
	m.State = domain.MatchVoided
	m.VoidReason = reason
	m.SettledAt = &at
	return nil
}

func transitionErr(m *domain.Match, to domain.MatchState) error {
	return apperr.New(apperr.CodeInvalidTransition, "match %s cannot move from %s to %s", m.ID, m.State, to)
}
