package fx

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"tournament-engine/internal/api"
	"tournament-engine/internal/config"
	"tournament-engine/internal/database"
	"tournament-engine/internal/keylock"
	"tournament-engine/internal/ledger"
	"tournament-engine/internal/logger"
	"tournament-engine/internal/repository"
	"tournament-engine/internal/server"
	"tournament-engine/internal/service"
	"tournament-engine/internal/vault"
	"tournament-engine/internal/worker"
	"tournament-engine/internal/xp"
)

// ProvideGateway selects the remote ledger when LEDGER_URL is set and the
// in-process one otherwise.
func ProvideGateway(cfg *config.Config, logger zerolog.Logger) ledger.Gateway {
	if cfg.LedgerURL == "" {
		logger.Warn().Msg("LEDGER_URL not set, using in-memory ledger")
		return ledger.NewMemory()
	}
	return api.NewLedgerClient(cfg)
}

func ProvideRetrier(gw ledger.Gateway, cfg *config.Config, logger zerolog.Logger) *ledger.Retrier {
	return ledger.NewRetrier(gw, cfg.LedgerMaxRetries, cfg.LedgerRetryBase, logger)
}

func ProvideLocks(cfg *config.Config) *keylock.Registry {
	return keylock.New(cfg.LockWait)
}

func ProvideReconcilable(o *service.Orchestrator) worker.Reconcilable {
	return o
}

var Module = fx.Options(
	fx.Provide(config.Load),
	fx.Provide(logger.New),
	fx.Invoke(config.Report),
	fx.Provide(database.New),
	// repos
	fx.Provide(
		fx.Annotate(repository.NewTournamentRepository, fx.As(new(service.TournamentStore))),
		fx.Annotate(repository.NewOutboxRepository, fx.As(new(service.OutboxStore))),
		fx.Annotate(repository.NewXPRepository, fx.As(new(xp.Store))),
		fx.Annotate(repository.NewAllocationRepository, fx.As(new(vault.Store))),
	),
	// ledger
	fx.Provide(ProvideGateway),
	fx.Provide(ProvideRetrier),
	fx.Provide(ProvideLocks),
	// svc
	fx.Provide(xp.NewMeter),
	fx.Provide(vault.NewVault),
	fx.Provide(service.NewOrchestrator),
	fx.Provide(ProvideReconcilable),
	fx.Provide(worker.NewReconciler),
	// server
	fx.Provide(server.NewTournamentServer),
)
