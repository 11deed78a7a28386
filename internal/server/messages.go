package server

import (
	"time"

	"tournament-engine/internal/domain"
)

type CreateTournamentRequest struct {
	Config domain.TournamentConfig `json:"config"`
}

type TournamentRequest struct {
	TournamentID string `json:"tournament_id"`
}

type TournamentResponse struct {
	Tournament *domain.Tournament `json:"tournament"`
}

type ListTournamentsRequest struct {
	Status domain.TournamentStatus `json:"status,omitempty"`
}

type ListTournamentsResponse struct {
	Tournaments []*domain.Tournament `json:"tournaments"`
}

type JoinRequest struct {
	TournamentID string `json:"tournament_id"`
	Account      string `json:"account"`
}

type JoinResponse struct {
	Entry domain.Entry `json:"entry"`
}

type FundPoolRequest struct {
	TournamentID string `json:"tournament_id"`
	Sponsor      string `json:"sponsor"`
	Amount       int64  `json:"amount"`
	// IdempotencyKey makes retries of the same funding safe.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type CancelRequest struct {
	TournamentID string `json:"tournament_id"`
	Reason       string `json:"reason,omitempty"`
}

type MatchRequest struct {
	TournamentID string `json:"tournament_id"`
	MatchID      string `json:"match_id"`
}

type MatchResponse struct {
	Match *domain.Match `json:"match"`
}

type ReportResultRequest struct {
	TournamentID   string `json:"tournament_id"`
	MatchID        string `json:"match_id"`
	Winner         string `json:"winner,omitempty"`
	ScoreA         int    `json:"score_a"`
	ScoreB         int    `json:"score_b"`
	TiebreakWinner string `json:"tiebreak_winner,omitempty"`
	Correction     bool   `json:"correction,omitempty"`
	ReportedBy     string `json:"reported_by,omitempty"`
}

type ForfeitRequest struct {
	TournamentID string `json:"tournament_id"`
	MatchID      string `json:"match_id"`
	Account      string `json:"account"`
	Reason       string `json:"reason,omitempty"`
}

type BracketResponse struct {
	Bracket *domain.Bracket `json:"bracket"`
}

type StandingsResponse struct {
	Standings *domain.Standings `json:"standings"`
}

type AllocationsResponse struct {
	Allocations []domain.PrizeAllocation `json:"allocations"`
}

type AccountRequest struct {
	Account string `json:"account"`
	// On selects the UTC day for XP lookups; zero means today.
	On time.Time `json:"on,omitempty"`
}

type XPResponse struct {
	Entry domain.XPLedgerEntry `json:"entry"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}
