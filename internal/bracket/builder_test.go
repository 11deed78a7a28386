package bracket

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func roster(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("p%02d", i+1)
	}
	return out
}

func TestSeedOrder(t *testing.T) {
	assert.Equal(t, []int{1}, SeedOrder(1))
	assert.Equal(t, []int{1, 2}, SeedOrder(2))
	assert.Equal(t, []int{1, 4, 2, 3}, SeedOrder(4))
	assert.Equal(t, []int{1, 8, 4, 5, 2, 7, 3, 6}, SeedOrder(8))
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 8: 8, 9: 16, 33: 64}
	for in, want := range tests {
		assert.Equal(t, want, NextPowerOfTwo(in), "n=%d", in)
	}
}

func TestBuildErrors(t *testing.T) {
	_, err := Build("t", nil, domain.SingleElimination, now)
	require.ErrorIs(t, err, apperr.ErrInvalidRosterSize)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = Build("t", roster(4), domain.BracketType("double_elimination"), now)
	require.ErrorIs(t, err, apperr.ErrUnsupportedBracketType)

	_, err = Build("t", []string{"a", "b", "a"}, domain.SingleElimination, now)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestBuildFirstRoundPairings(t *testing.T) {
	b, err := Build("t", roster(8), domain.SingleElimination, now)
	require.NoError(t, err)

	require.Equal(t, 8, b.Size)
	require.Equal(t, 3, b.Rounds)

	pairs := [][2]string{}
	for _, m := range b.Round(0) {
		pairs = append(pairs, [2]string{m.A, m.B})
		assert.Equal(t, domain.MatchScheduled, m.State)
		assert.Equal(t, 9, m.SeedA+m.SeedB)
	}
	assert.Equal(t, [][2]string{
		{"p01", "p08"}, {"p04", "p05"}, {"p02", "p07"}, {"p03", "p06"},
	}, pairs)
}

func TestBuildMatchCount(t *testing.T) {
	for n := 1; n <= 40; n++ {
		b, err := Build("t", roster(n), domain.SingleElimination, now)
		require.NoError(t, err)

		size := NextPowerOfTwo(n)
		require.Len(t, b.Matches, size-1, "n=%d", n)

		byes := 0
		for _, m := range b.Matches {
			if m.Bye {
				byes++
				assert.Equal(t, domain.MatchSettled, m.State)
			}
		}
		assert.Equal(t, size-n, byes, "n=%d", n)
		assert.Equal(t, n-1, len(b.Matches)-byes, "decisive matches for n=%d", n)
	}
}

func TestBuildByesGoToTopSeeds(t *testing.T) {
	b, err := Build("t", roster(5), domain.SingleElimination, now)
	require.NoError(t, err)

	var byeWinners []string
	for _, m := range b.Round(0) {
		if m.Bye {
			byeWinners = append(byeWinners, m.Winner)
		}
	}
	assert.ElementsMatch(t, []string{"p01", "p02", "p03"}, byeWinners)

	// p01's bye lands them in round 1 slot 0 side A.
	next := b.At(1, 0)
	assert.Equal(t, "p01", next.A)
	assert.Equal(t, 1, next.SeedA)
}

func TestBuildIsDeterministic(t *testing.T) {
	a, err := Build("t", roster(13), domain.SingleElimination, now)
	require.NoError(t, err)
	b, err := Build("t", roster(13), domain.SingleElimination, now)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTopSeedsMeetInFinal(t *testing.T) {
	b, err := Build("t", roster(16), domain.SingleElimination, now)
	require.NoError(t, err)

	// Higher seed always wins.
	for r := 0; r < b.Rounds; r++ {
		for s := range b.Round(r) {
			m := b.At(r, s)
			winner, seed := m.A, m.SeedA
			if m.SeedB < m.SeedA {
				winner, seed = m.B, m.SeedB
			}
			m.Winner = winner
			m.State = domain.MatchSettled
			_, err := Advance(b, r, s, winner, seed)
			require.NoError(t, err)
		}
	}
	final := b.Final()
	assert.Equal(t, []int{1, 2}, []int{final.SeedA, final.SeedB})
}

func TestSinglePlayerBracket(t *testing.T) {
	b, err := Build("t", []string{"solo"}, domain.SingleElimination, now)
	require.NoError(t, err)
	assert.Empty(t, b.Matches)
	assert.Equal(t, "solo", Champion(b, []string{"solo"}))
}
