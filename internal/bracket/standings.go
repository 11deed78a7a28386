package bracket

import (
	"tournament-engine/internal/domain"
)

// Champion returns the winner of the final, or the lone entrant of a
// one-player bracket.
func Champion(b *domain.Bracket, roster []string) string {
	if b == nil {
		return ""
	}
	if b.Rounds == 0 {
		if len(roster) == 1 {
			return roster[0]
		}
		return ""
	}
	final := b.Final()
	if final.Decided() {
		return final.Winner
	}
	return ""
}

// Complete reports whether the final has been decided.
func Complete(b *domain.Bracket, roster []string) bool {
	return Champion(b, roster) != ""
}

// EliminationPosition is the finishing position shared by everyone knocked
// out in round: the final's loser is 2nd, semifinal losers tie at 3rd,
// quarterfinal losers at 5th, and so on.
func EliminationPosition(b *domain.Bracket, round int) int {
	return 1<<(b.Rounds-1-round) + 1
}

// Standings places every eliminated account by elimination depth. Accounts
// still in contention are returned separately in seed order.
func Standings(b *domain.Bracket, roster []string) ([]domain.Placement, []string) {
	if b == nil {
		return nil, append([]string(nil), roster...)
	}

	var placements []domain.Placement
	placed := make(map[string]bool, len(roster))

	if champ := Champion(b, roster); champ != "" {
		placements = append(placements, domain.Placement{Position: 1, Accounts: []string{champ}})
		placed[champ] = true
	}

	for r := b.Rounds - 1; r >= 0; r-- {
		var losers []string
		for _, m := range b.Round(r) {
			if !m.Decided() {
				continue
			}
			if loser := m.Loser(); loser != "" {
				losers = append(losers, loser)
				placed[loser] = true
			}
		}
		if len(losers) > 0 {
			placements = append(placements, domain.Placement{
				Position: EliminationPosition(b, r),
				Accounts: losers,
			})
		}
	}

	var alive []string
	for _, acct := range roster {
		if !placed[acct] {
			alive = append(alive, acct)
		}
	}
	return placements, alive
}

// FinishingOrder is the complete standings of a finished bracket.
func FinishingOrder(b *domain.Bracket, roster []string) []domain.Placement {
	placements, _ := Standings(b, roster)
	return placements
}
