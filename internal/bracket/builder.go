// Package bracket builds single-elimination brackets and derives standings
// from them.
package bracket

import (
	"fmt"
	"math/bits"
	"time"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/domain"
)

// Build lays out a bracket for roster in registration order. Seed i is
// roster[i-1]. The roster is padded with byes up to the next power of two and
// bye matches are settled immediately.
func Build(tournamentID string, roster []string, bracketType domain.BracketType, now time.Time) (*domain.Bracket, error) {
	if bracketType != domain.SingleElimination {
		return nil, apperr.New(apperr.CodeUnsupportedBracketType, "bracket type %q is not supported", bracketType)
	}
	if len(roster) == 0 {
		return nil, apperr.New(apperr.CodeInvalidRosterSize, "roster is empty")
	}
	seen := make(map[string]struct{}, len(roster))
	for _, acct := range roster {
		if acct == "" {
			return nil, apperr.New(apperr.CodeInvalidArgument, "roster contains an empty account")
		}
		if _, dup := seen[acct]; dup {
			return nil, apperr.New(apperr.CodeInvalidArgument, "account %s appears twice in roster", acct)
		}
		seen[acct] = struct{}{}
	}

	size := NextPowerOfTwo(len(roster))
	rounds := bits.TrailingZeros(uint(size))
	b := &domain.Bracket{
		Type:    bracketType,
		Size:    size,
		Rounds:  rounds,
		Matches: make([]domain.Match, 0, size-1),
	}

	for r := 0; r < rounds; r++ {
		for s := 0; s < size>>(r+1); s++ {
			b.Matches = append(b.Matches, domain.Match{
				ID:    MatchID(tournamentID, r, s),
				Round: r,
				Slot:  s,
				State: domain.MatchScheduled,
			})
		}
	}
	if rounds == 0 {
		return b, nil
	}

	order := SeedOrder(size)
	seedAt := func(pos int) (string, int) {
		seed := order[pos]
		if seed > len(roster) {
			return "", 0
		}
		return roster[seed-1], seed
	}
	for s := 0; s < size/2; s++ {
		m := b.At(0, s)
		m.A, m.SeedA = seedAt(2 * s)
		m.B, m.SeedB = seedAt(2*s + 1)
		if m.A == "" || m.B == "" {
			m.Bye = true
		}
	}
	for s := 0; s < size/2; s++ {
		m := b.At(0, s)
		if m.Bye {
			if err := settleBye(b, m, now); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// settleBye gives the sole participant the match and moves them up.
func settleBye(b *domain.Bracket, m *domain.Match, now time.Time) error {
	winner, seed := m.A, m.SeedA
	if winner == "" {
		winner, seed = m.B, m.SeedB
	}
	if winner == "" {
		return apperr.New(apperr.CodeBracketCorrupt, "match %s has no participants", m.ID)
	}
	at := now
	m.Winner = winner
	m.State = domain.MatchSettled
	m.SettledAt = &at
	_, err := Advance(b, m.Round, m.Slot, winner, seed)
	return err
}

// Advance places winner into the match fed by (round, slot). It returns the
// receiving match, or nil if (round, slot) is the final.
func Advance(b *domain.Bracket, round, slot int, winner string, seed int) (*domain.Match, error) {
	if round == b.Rounds-1 {
		return nil, nil
	}
	next := b.At(round+1, slot/2)
	if next == nil {
		return nil, apperr.New(apperr.CodeBracketCorrupt, "no match after round %d slot %d", round, slot)
	}
	if slot%2 == 0 {
		if next.A != "" && next.A != winner {
			return nil, apperr.New(apperr.CodeBracketCorrupt, "slot A of %s already holds %s", next.ID, next.A)
		}
		next.A, next.SeedA = winner, seed
	} else {
		if next.B != "" && next.B != winner {
			return nil, apperr.New(apperr.CodeBracketCorrupt, "slot B of %s already holds %s", next.ID, next.B)
		}
		next.B, next.SeedB = winner, seed
	}
	return next, nil
}

// SeedOrder returns bracket positions to seeds for a bracket of the given
// power-of-two size, so that seed i meets seed size+1-i in the first round and
// the top seeds are kept apart until the latest rounds.
func SeedOrder(size int) []int {
	order := []int{1}
	for n := 2; n <= size; n *= 2 {
		next := make([]int, 0, n)
		for _, s := range order {
			next = append(next, s, n+1-s)
		}
		order = next
	}
	return order
}

func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func MatchID(tournamentID string, round, slot int) string {
	return fmt.Sprintf("%s-r%d-s%d", tournamentID, round, slot)
}
