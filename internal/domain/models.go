package domain

import (
	"time"
)

type TournamentStatus string

const (
	StatusRegistration TournamentStatus = "registration"
	StatusLocked       TournamentStatus = "locked"
	StatusInProgress   TournamentStatus = "in_progress"
	StatusSettled      TournamentStatus = "settled"
	StatusCancelled    TournamentStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s TournamentStatus) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

type BracketType string

const (
	SingleElimination BracketType = "single_elimination"
)

type TiebreakPolicy string

const (
	TiebreakNone       TiebreakPolicy = "none"
	TiebreakHigherSeed TiebreakPolicy = "higher_seed" // lower seed number advances
)

type MatchState string

const (
	MatchScheduled  MatchState = "scheduled"
	MatchInProgress MatchState = "in_progress"
	MatchReported   MatchState = "reported"
	MatchSettled    MatchState = "settled"
	MatchVoided     MatchState = "voided"
)

// Day is a UTC calendar day counted from the Unix epoch.
type Day int64

func DayOf(t time.Time) Day {
	return Day(t.UTC().Unix() / 86400)
}

func (d Day) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

func (d Day) String() string {
	return d.Time().Format("2006-01-02")
}

type XPPolicy struct {
	Participation int64 `json:"participation"`
	Victory       int64 `json:"victory"` // on top of participation
}

type TournamentConfig struct {
	Name             string         `json:"name"`
	MaxPlayers       int            `json:"max_players"`
	BracketType      BracketType    `json:"bracket_type"`
	PrizePool        int64          `json:"prize_pool"`
	PrizeSplit       []int          `json:"prize_split"`
	EntryFee         int64          `json:"entry_fee"`
	DailyXPCap       int64          `json:"daily_xp_cap"`
	StreakBonusTable []int64        `json:"streak_bonus_table"` // percent multipliers by streak length, 1-based
	XP               XPPolicy       `json:"xp"`
	Tiebreak         TiebreakPolicy `json:"tiebreak"`
}

type Entry struct {
	Account  string    `json:"account"`
	Seed     int       `json:"seed"`
	JoinedAt time.Time `json:"joined_at"`
}

type ContributionKind string

const (
	ContributionEntryFee ContributionKind = "entry_fee"
	ContributionSponsor  ContributionKind = "sponsor"
)

type Contribution struct {
	Account string           `json:"account"`
	Amount  int64            `json:"amount"`
	Kind    ContributionKind `json:"kind"`
	Key     string           `json:"key"`
}

type Tournament struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Slug                 string            `json:"slug"`
	Status               TournamentStatus  `json:"status"`
	Config               TournamentConfig  `json:"config"`
	Roster               []Entry           `json:"roster"`
	PrizePool            int64             `json:"prize_pool"` // configured pool plus escrowed contributions
	Contributions        []Contribution    `json:"contributions,omitempty"`
	Bracket              *Bracket          `json:"bracket,omitempty"`
	Finishing            []Placement       `json:"finishing,omitempty"`
	Allocations          []PrizeAllocation `json:"allocations,omitempty"`
	SettlementIncomplete bool              `json:"settlement_incomplete"`
	SettlementAttempts   int               `json:"settlement_attempts,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
	SettledAt            *time.Time        `json:"settled_at,omitempty"`
}

func (t *Tournament) Entry(account string) (Entry, bool) {
	for _, e := range t.Roster {
		if e.Account == account {
			return e, true
		}
	}
	return Entry{}, false
}

func (t *Tournament) Accounts() []string {
	out := make([]string, len(t.Roster))
	for i, e := range t.Roster {
		out[i] = e.Account
	}
	return out
}

// Clone returns a deep copy that shares no mutable state with t.
func (t *Tournament) Clone() *Tournament {
	if t == nil {
		return nil
	}
	c := *t
	c.Config.PrizeSplit = append([]int(nil), t.Config.PrizeSplit...)
	c.Config.StreakBonusTable = append([]int64(nil), t.Config.StreakBonusTable...)
	c.Roster = append([]Entry(nil), t.Roster...)
	c.Contributions = append([]Contribution(nil), t.Contributions...)
	c.Bracket = t.Bracket.Clone()
	c.Finishing = make([]Placement, len(t.Finishing))
	for i, p := range t.Finishing {
		c.Finishing[i] = Placement{Position: p.Position, Accounts: append([]string(nil), p.Accounts...)}
	}
	c.Allocations = append([]PrizeAllocation(nil), t.Allocations...)
	if t.SettledAt != nil {
		at := *t.SettledAt
		c.SettledAt = &at
	}
	return &c
}

type Report struct {
	Winner         string    `json:"winner,omitempty"`
	ScoreA         int       `json:"score_a"`
	ScoreB         int       `json:"score_b"`
	TiebreakWinner string    `json:"tiebreak_winner,omitempty"`
	Correction     bool      `json:"correction"`
	ReportedBy     string    `json:"reported_by,omitempty"`
	ReportedAt     time.Time `json:"reported_at"`
}

type Match struct {
	ID         string     `json:"id"`
	Round      int        `json:"round"`
	Slot       int        `json:"slot"`
	A          string     `json:"participant_a,omitempty"`
	B          string     `json:"participant_b,omitempty"`
	SeedA      int        `json:"seed_a,omitempty"`
	SeedB      int        `json:"seed_b,omitempty"`
	Bye        bool       `json:"bye"`
	State      MatchState `json:"state"`
	Winner     string     `json:"winner,omitempty"`
	Report     *Report    `json:"report,omitempty"`
	VoidReason string     `json:"void_reason,omitempty"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
}

func (m *Match) HasBoth() bool {
	return m.A != "" && m.B != ""
}

func (m *Match) Involves(account string) bool {
	return account != "" && (m.A == account || m.B == account)
}

// Loser is the participant that did not win, or "" while undecided.
func (m *Match) Loser() string {
	switch {
	case m.Winner == "" || m.Bye:
		return ""
	case m.Winner == m.A:
		return m.B
	default:
		return m.A
	}
}

func (m *Match) Decided() bool {
	return m.Winner != "" && (m.State == MatchSettled || m.State == MatchVoided)
}

// Bracket is an arena of matches laid out round by round: round r occupies
// Size>>(r+1) consecutive slots.
type Bracket struct {
	Type    BracketType `json:"type"`
	Size    int         `json:"size"`
	Rounds  int         `json:"rounds"`
	Matches []Match     `json:"matches"`
}

func (b *Bracket) offset(round int) int {
	off := 0
	for r := 0; r < round; r++ {
		off += b.Size >> (r + 1)
	}
	return off
}

// SlotsIn returns the number of matches in a round.
func (b *Bracket) SlotsIn(round int) int {
	return b.Size >> (round + 1)
}

// At returns the match at (round, slot), or nil when out of range.
func (b *Bracket) At(round, slot int) *Match {
	if b == nil || round < 0 || round >= b.Rounds || slot < 0 || slot >= b.SlotsIn(round) {
		return nil
	}
	return &b.Matches[b.offset(round)+slot]
}

func (b *Bracket) Round(round int) []Match {
	if b == nil || round < 0 || round >= b.Rounds {
		return nil
	}
	off := b.offset(round)
	return b.Matches[off : off+b.SlotsIn(round)]
}

func (b *Bracket) Find(matchID string) *Match {
	if b == nil {
		return nil
	}
	for i := range b.Matches {
		if b.Matches[i].ID == matchID {
			return &b.Matches[i]
		}
	}
	return nil
}

func (b *Bracket) Final() *Match {
	if b == nil || b.Rounds == 0 {
		return nil
	}
	return b.At(b.Rounds-1, 0)
}

func (b *Bracket) Clone() *Bracket {
	if b == nil {
		return nil
	}
	c := *b
	c.Matches = make([]Match, len(b.Matches))
	for i, m := range b.Matches {
		if m.Report != nil {
			r := *m.Report
			m.Report = &r
		}
		if m.SettledAt != nil {
			at := *m.SettledAt
			m.SettledAt = &at
		}
		c.Matches[i] = m
	}
	return &c
}

type Placement struct {
	Position int      `json:"position"`
	Accounts []string `json:"accounts"`
}

type Standings struct {
	TournamentID string           `json:"tournament_id"`
	Status       TournamentStatus `json:"status"`
	Placements   []Placement      `json:"placements"`
	Alive        []string         `json:"alive,omitempty"`
}

type PrizeAllocation struct {
	TournamentID string `json:"tournament_id"`
	Account      string `json:"account"`
	Position     int    `json:"position"`
	Amount       int64  `json:"amount"`
	Credited     bool   `json:"credited"`
}

type XPLedgerEntry struct {
	Account       string    `json:"account"`
	Day           Day       `json:"day"`
	EarnedToday   int64     `json:"earned_today"`
	StreakLength  int       `json:"streak_length"`
	LastActiveDay Day       `json:"last_active_day"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type XPGrant struct {
	Key        string    `json:"key"`
	Account    string    `json:"account"`
	Day        Day       `json:"day"`
	BaseAmount int64     `json:"base_amount"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

type OutboxKind string

const (
	OutboxXPGrant OutboxKind = "xp_grant"
	OutboxRefund  OutboxKind = "refund"

	// OutboxEscrowReturn gives back a debit whose registration never
	// committed. It is skipped if the tournament holds the contribution.
	OutboxEscrowReturn OutboxKind = "escrow_return"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxDone    OutboxStatus = "done"
)

// OutboxItem is a ledger side effect recorded before it is dispatched.
type OutboxItem struct {
	ID           string       `json:"id"` // nanoid
	Key          string       `json:"key"`
	Kind         OutboxKind   `json:"kind"`
	TournamentID string       `json:"tournament_id"`
	Account      string       `json:"account"`
	Amount       int64        `json:"amount"`
	Day          Day          `json:"day"`
	Status       OutboxStatus `json:"status"`
	Attempts     int          `json:"attempts"`
	LastError    string       `json:"last_error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
