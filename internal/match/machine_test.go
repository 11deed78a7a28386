package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func live() *domain.Match {
	return &domain.Match{ID: "m1", A: "alice", B: "bob", SeedA: 1, SeedB: 4, State: domain.MatchInProgress}
}

func TestStart(t *testing.T) {
	m := &domain.Match{ID: "m1", A: "alice", State: domain.MatchScheduled}
	require.ErrorIs(t, Start(m), apperr.ErrInvalidTransition)
	assert.Equal(t, domain.MatchScheduled, m.State)

	m.B = "bob"
	require.NoError(t, Start(m))
	assert.Equal(t, domain.MatchInProgress, m.State)
	require.NoError(t, Start(m), "starting twice is a no-op")
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		report  domain.Report
		policy  domain.TiebreakPolicy
		want    string
		wantErr *apperr.Error
	}{
		{name: "score A", report: domain.Report{ScoreA: 3, ScoreB: 1}, want: "alice"},
		{name: "score B", report: domain.Report{ScoreA: 0, ScoreB: 2}, want: "bob"},
		{name: "named winner", report: domain.Report{Winner: "bob"}, want: "bob"},
		{name: "named winner with tie score", report: domain.Report{Winner: "alice", ScoreA: 1, ScoreB: 1}, want: "alice"},
		{name: "tiebreak data", report: domain.Report{ScoreA: 2, ScoreB: 2, TiebreakWinner: "bob"}, want: "bob"},
		{name: "higher seed policy", report: domain.Report{ScoreA: 2, ScoreB: 2}, policy: domain.TiebreakHigherSeed, want: "alice"},
		{name: "tie without tiebreak", report: domain.Report{ScoreA: 2, ScoreB: 2}, policy: domain.TiebreakNone, wantErr: apperr.ErrAmbiguousResult},
		{name: "stranger", report: domain.Report{Winner: "carol"}, wantErr: apperr.ErrNotAParticipant},
		{name: "winner with lower score", report: domain.Report{Winner: "alice", ScoreA: 0, ScoreB: 3}, wantErr: &apperr.Error{Code: apperr.CodeContradictoryResult}},
		{name: "negative score", report: domain.Report{ScoreA: -1}, wantErr: &apperr.Error{Code: apperr.CodeInvalidArgument}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(live(), tt.report, tt.policy)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReportTieLeavesMatchInProgress(t *testing.T) {
	m := live()
	_, err := Report(m, domain.Report{ScoreA: 1, ScoreB: 1}, domain.TiebreakNone, now)
	require.ErrorIs(t, err, apperr.ErrAmbiguousResult)
	assert.Equal(t, domain.MatchInProgress, m.State)
	assert.Nil(t, m.Report)
}

func TestReportDuplicateAndCorrection(t *testing.T) {
	m := live()
	winner, err := Report(m, domain.Report{ScoreA: 2, ScoreB: 0}, domain.TiebreakNone, now)
	require.NoError(t, err)
	assert.Equal(t, "alice", winner)
	assert.Equal(t, domain.MatchReported, m.State)

	_, err = Report(m, domain.Report{ScoreA: 0, ScoreB: 2}, domain.TiebreakNone, now)
	require.ErrorIs(t, err, apperr.ErrDuplicateReport)
	assert.Equal(t, "alice", m.Report.Winner)

	later := now.Add(time.Minute)
	winner, err = Report(m, domain.Report{ScoreA: 0, ScoreB: 2, Correction: true}, domain.TiebreakNone, later)
	require.NoError(t, err)
	assert.Equal(t, "bob", winner)
	assert.Equal(t, later, m.Report.ReportedAt)
	assert.Equal(t, domain.MatchReported, m.State)
}

func TestReportRejectedOutsidePlay(t *testing.T) {
	m := &domain.Match{ID: "m1", A: "alice", State: domain.MatchScheduled}
	_, err := Report(m, domain.Report{Winner: "alice"}, domain.TiebreakNone, now)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	m = live()
	m.State = domain.MatchSettled
	m.Winner = "alice"
	_, err = Report(m, domain.Report{Winner: "bob", Correction: true}, domain.TiebreakNone, now)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestSettleIsIdempotent(t *testing.T) {
	m := live()
	_, _, err := Settle(m, now)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = Report(m, domain.Report{Winner: "bob"}, domain.TiebreakNone, now)
	require.NoError(t, err)

	winner, settled, err := Settle(m, now)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.Equal(t, "bob", winner)
	assert.Equal(t, "alice", m.Loser())

	winner, settled, err = Settle(m, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, settled)
	assert.Equal(t, "bob", winner)
	assert.Equal(t, now, *m.SettledAt)
}

func TestForfeit(t *testing.T) {
	m := live()
	_, err := Forfeit(m, "carol", "no-show", now)
	require.ErrorIs(t, err, apperr.ErrNotAParticipant)

	winner, err := Forfeit(m, "alice", "no-show", now)
	require.NoError(t, err)
	assert.Equal(t, "bob", winner)
	assert.Equal(t, domain.MatchVoided, m.State)
	assert.True(t, m.Decided())

	_, err = Forfeit(m, "bob", "again", now)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestForfeitNeedsOpponent(t *testing.T) {
	m := &domain.Match{ID: "m1", A: "alice", State: domain.MatchScheduled}
	_, err := Forfeit(m, "alice", "withdrawn", now)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestVoid(t *testing.T) {
	m := live()
	require.NoError(t, Void(m, "cancelled", now))
	assert.Equal(t, domain.MatchVoided, m.State)
	assert.Empty(t, m.Winner)
	require.NoError(t, Void(m, "cancelled", now))

	s := live()
	s.State = domain.MatchSettled
	require.ErrorIs(t, Void(s, "cancelled", now), apperr.ErrInvalidTransition)
}
