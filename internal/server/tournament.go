package server

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"

	"tournament-engine/internal/domain"
	"tournament-engine/internal/middleware"
	"tournament-engine/internal/service"
)

const ServicePath = "/tournament.v1.TournamentService/"

type TournamentServer struct {
	orchestrator *service.Orchestrator
	logger       zerolog.Logger
}

func NewTournamentServer(orchestrator *service.Orchestrator, logger zerolog.Logger) *TournamentServer {
	return &TournamentServer{orchestrator: orchestrator, logger: logger}
}

// Handler mounts every procedure under ServicePath.
func (s *TournamentServer) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()

	mux.Handle(ServicePath+"CreateTournament", connect.NewUnaryHandler(ServicePath+"CreateTournament", s.CreateTournament, opts...))
	mux.Handle(ServicePath+"JoinTournament", connect.NewUnaryHandler(ServicePath+"JoinTournament", s.JoinTournament, opts...))
	mux.Handle(ServicePath+"FundPool", connect.NewUnaryHandler(ServicePath+"FundPool", s.FundPool, opts...))
	mux.Handle(ServicePath+"CloseRegistration", connect.NewUnaryHandler(ServicePath+"CloseRegistration", s.CloseRegistration, opts...))
	mux.Handle(ServicePath+"CancelTournament", connect.NewUnaryHandler(ServicePath+"CancelTournament", s.CancelTournament, opts...))
	mux.Handle(ServicePath+"RetrySettlement", connect.NewUnaryHandler(ServicePath+"RetrySettlement", s.RetrySettlement, opts...))

	mux.Handle(ServicePath+"StartMatch", connect.NewUnaryHandler(ServicePath+"StartMatch", s.StartMatch, opts...))
	mux.Handle(ServicePath+"ReportResult", connect.NewUnaryHandler(ServicePath+"ReportResult", s.ReportResult, opts...))
	mux.Handle(ServicePath+"SettleMatch", connect.NewUnaryHandler(ServicePath+"SettleMatch", s.SettleMatch, opts...))
	mux.Handle(ServicePath+"ForfeitMatch", connect.NewUnaryHandler(ServicePath+"ForfeitMatch", s.ForfeitMatch, opts...))

	mux.Handle(ServicePath+"GetTournament", connect.NewUnaryHandler(ServicePath+"GetTournament", s.GetTournament, opts...))
	mux.Handle(ServicePath+"ListTournaments", connect.NewUnaryHandler(ServicePath+"ListTournaments", s.ListTournaments, opts...))
	mux.Handle(ServicePath+"GetBracket", connect.NewUnaryHandler(ServicePath+"GetBracket", s.GetBracket, opts...))
	mux.Handle(ServicePath+"GetMatch", connect.NewUnaryHandler(ServicePath+"GetMatch", s.GetMatch, opts...))
	mux.Handle(ServicePath+"GetStandings", connect.NewUnaryHandler(ServicePath+"GetStandings", s.GetStandings, opts...))
	mux.Handle(ServicePath+"GetAllocations", connect.NewUnaryHandler(ServicePath+"GetAllocations", s.GetAllocations, opts...))
	mux.Handle(ServicePath+"GetXP", connect.NewUnaryHandler(ServicePath+"GetXP", s.GetXP, opts...))
	mux.Handle(ServicePath+"GetBalance", connect.NewUnaryHandler(ServicePath+"GetBalance", s.GetBalance, opts...))

	return ServicePath, mux
}

// fail logs err with the request's logger and converts it for the wire.
func (s *TournamentServer) fail(ctx context.Context, procedure string, err error) error {
	// The request logger already names the procedure.
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		l := s.logger.With().
			Str("request_id", middleware.GetRequestID(ctx)).
			Str("procedure", procedure).
			Logger()
		logger = &l
	}
	logger.Warn().Err(err).Msg("request failed")
	return toConnectError(err)
}

func (s *TournamentServer) CreateTournament(ctx context.Context, req *connect.Request[CreateTournamentRequest]) (*connect.Response[TournamentResponse], error) {
	t, err := s.orchestrator.CreateTournament(ctx, req.Msg.Config)
	if err != nil {
		return nil, s.fail(ctx, "CreateTournament", err)
	}
	return connect.NewResponse(&TournamentResponse{Tournament: t}), nil
}

func (s *TournamentServer) JoinTournament(ctx context.Context, req *connect.Request[JoinRequest]) (*connect.Response[JoinResponse], error) {
	entry, err := s.orchestrator.Join(ctx, req.Msg.TournamentID, req.Msg.Account)
	if err != nil {
		return nil, s.fail(ctx, "JoinTournament", err)
	}
	return connect.NewResponse(&JoinResponse{Entry: entry}), nil
}

func (s *TournamentServer) FundPool(ctx context.Context, req *connect.Request[FundPoolRequest]) (*connect.Response[TournamentResponse], error) {
	t, err := s.orchestrator.FundPool(ctx, req.Msg.TournamentID, req.Msg.Sponsor, req.Msg.Amount, req.Msg.IdempotencyKey)
	if err != nil {
		return nil, s.fail(ctx, "FundPool", err)
	}
	return connect.NewResponse(&TournamentResponse{Tournament: t}), nil
}

func (s *TournamentServer) CloseRegistration(ctx context.Context, req *connect.Request[TournamentRequest]) (*connect.Response[TournamentResponse], error) {
	t, err := s.orchestrator.CloseRegistration(ctx, req.Msg.TournamentID)
	if err != nil {
		return nil, s.fail(ctx, "CloseRegistration", err)
	}
	return connect.NewResponse(&TournamentResponse{Tournament: t}), nil
}

func (s *TournamentServer) CancelTournament(ctx context.Context, req *connect.Request[CancelRequest]) (*connect.Response[TournamentResponse], error) {
	t, err := s.orchestrator.CancelTournament(ctx, req.Msg.TournamentID, req.Msg.Reason)
	if err != nil {
		return nil, s.fail(ctx, "CancelTournament", err)
	}
	return connect.NewResponse(&TournamentResponse{Tournament: t}), nil
}

func (s *TournamentServer) RetrySettlement(ctx context.Context, req *connect.Request[TournamentRequest]) (*connect.Response[AllocationsResponse], error) {
	allocs, err := s.orchestrator.RetrySettlement(ctx, req.Msg.TournamentID)
	if err != nil {
		return nil, s.fail(ctx, "RetrySettlement", err)
	}
	return connect.NewResponse(&AllocationsResponse{Allocations: allocs}), nil
}

func (s *TournamentServer) StartMatch(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[MatchResponse], error) {
	m, err := s.orchestrator.StartMatch(ctx, req.Msg.TournamentID, req.Msg.MatchID)
	if err != nil {
		return nil, s.fail(ctx, "StartMatch", err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

func (s *TournamentServer) ReportResult(ctx context.Context, req *connect.Request[ReportResultRequest]) (*connect.Response[MatchResponse], error) {
	m, err := s.orchestrator.ReportResult(ctx, req.Msg.TournamentID, req.Msg.MatchID, domain.Report{
		Winner:         req.Msg.Winner,
		ScoreA:         req.Msg.ScoreA,
		ScoreB:         req.Msg.ScoreB,
		TiebreakWinner: req.Msg.TiebreakWinner,
		Correction:     req.Msg.Correction,
		ReportedBy:     req.Msg.ReportedBy,
	})
	if err != nil {
		return nil, s.fail(ctx, "ReportResult", err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

func (s *TournamentServer) SettleMatch(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[MatchResponse], error) {
	m, err := s.orchestrator.SettleMatch(ctx, req.Msg.TournamentID, req.Msg.MatchID)
	if err != nil {
		return nil, s.fail(ctx, "SettleMatch", err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

func (s *TournamentServer) ForfeitMatch(ctx context.Context, req *connect.Request[ForfeitRequest]) (*connect.Response[MatchResponse], error) {
	m, err := s.orchestrator.ForfeitMatch(ctx, req.Msg.TournamentID, req.Msg.MatchID, req.Msg.Account, req.Msg.Reason)
	if err != nil {
		return nil, s.fail(ctx, "ForfeitMatch", err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

func (s *TournamentServer) GetTournament(ctx context.Context, req *connect.Request[TournamentRequest]) (*connect.Response[TournamentResponse], error) {
	t, err := s.orchestrator.GetTournament(ctx, req.Msg.TournamentID)
	if err != nil {
		return nil, s.fail(ctx, "GetTournament", err)
	}
	return connect.NewResponse(&TournamentResponse{Tournament: t}), nil
}

func (s *TournamentServer) ListTournaments(ctx context.Context, req *connect.Request[ListTournamentsRequest]) (*connect.Response[ListTournamentsResponse], error) {
	list, err := s.orchestrator.ListTournaments(ctx, req.Msg.Status)
	if err != nil {
		return nil, s.fail(ctx, "ListTournaments", err)
	}
	if list == nil {
		list = []*domain.Tournament{}
	}
	return connect.NewResponse(&ListTournamentsResponse{Tournaments: list}), nil
}

func (s *TournamentServer) GetBracket(ctx context.Context, req *connect.Request[TournamentRequest]) (*connect.Response[BracketResponse], error) {
	b, err := s.orchestrator.GetBracket(ctx, req.Msg.TournamentID)
	if err != nil {
		return nil, s.fail(ctx, "GetBracket", err)
	}
	return connect.NewResponse(&BracketResponse{Bracket: b}), nil
}

func (s *TournamentServer) GetMatch(ctx context.Context, req *connect.Request[MatchRequest]) (*connect.Response[MatchResponse], error) {
	m, err := s.orchestrator.GetMatch(ctx, req.Msg.TournamentID, req.Msg.MatchID)
	if err != nil {
		return nil, s.fail(ctx, "GetMatch", err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

func (s *TournamentServer) GetStandings(ctx context.Context, req *connect.Request[TournamentRequest]) (*connect.Response[StandingsResponse], error) {
	st, err := s.orchestrator.GetStandings(ctx, req.Msg.TournamentID)
	if err != nil {
		return nil, s.fail(ctx, "GetStandings", err)
	}
	return connect.NewResponse(&StandingsResponse{Standings: st}), nil
}

func (s *TournamentServer) GetAllocations(ctx context.Context, req *connect.Request[TournamentRequest]) (*connect.Response[AllocationsResponse], error) {
	allocs, err := s.orchestrator.GetAllocations(ctx, req.Msg.TournamentID)
	if err != nil {
		return nil, s.fail(ctx, "GetAllocations", err)
	}
	return connect.NewResponse(&AllocationsResponse{Allocations: allocs}), nil
}

func (s *TournamentServer) GetXP(ctx context.Context, req *connect.Request[AccountRequest]) (*connect.Response[XPResponse], error) {
	entry, err := s.orchestrator.GetXP(ctx, req.Msg.Account, req.Msg.On)
	if err != nil {
		return nil, s.fail(ctx, "GetXP", err)
	}
	return connect.NewResponse(&XPResponse{Entry: entry}), nil
}

func (s *TournamentServer) GetBalance(ctx context.Context, req *connect.Request[AccountRequest]) (*connect.Response[BalanceResponse], error) {
	balance, err := s.orchestrator.BalanceOf(ctx, req.Msg.Account)
	if err != nil {
		return nil, s.fail(ctx, "GetBalance", err)
	}
	return connect.NewResponse(&BalanceResponse{Account: req.Msg.Account, Balance: balance}), nil
}
