// Package service runs the tournament lifecycle: registration, bracket play
// and settlement. It composes the bracket builder, the match state machine,
// the XP meter and the prize vault.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/config"
	"tournament-engine/internal/domain"
	"tournament-engine/internal/keylock"
	"tournament-engine/internal/ledger"
	"tournament-engine/internal/vault"
	"tournament-engine/internal/xp"
)

type TournamentStore interface {
	SaveTournament(ctx context.Context, t *domain.Tournament) error
	GetTournament(ctx context.Context, id string) (*domain.Tournament, error)
	ListTournaments(ctx context.Context, status domain.TournamentStatus) ([]*domain.Tournament, error)
}

// OutboxStore records ledger work before it is dispatched. Enqueue skips
// items whose key is already recorded.
type OutboxStore interface {
	Enqueue(ctx context.Context, items []domain.OutboxItem) error
	PendingOutbox(ctx context.Context, limit int) ([]domain.OutboxItem, error)
	GetOutbox(ctx context.Context, key string) (*domain.OutboxItem, error)
	CompleteOutbox(ctx context.Context, key string) error
	FailOutbox(ctx context.Context, key, lastErr string) error
}

type Orchestrator struct {
	tournaments TournamentStore
	outbox      OutboxStore
	meter       *xp.Meter
	vault       *vault.Vault
	ledger      *ledger.Retrier
	locks       *keylock.Registry
	cfg         *config.Config
	logger      zerolog.Logger
	now         func() time.Time

	// published holds the last committed copy of each tournament. Readers
	// get clones, so a mutation in flight is never observed half done.
	mu        sync.RWMutex
	published map[string]*domain.Tournament
}

func NewOrchestrator(
	tournaments TournamentStore,
	outbox OutboxStore,
	meter *xp.Meter,
	v *vault.Vault,
	retrier *ledger.Retrier,
	locks *keylock.Registry,
	cfg *config.Config,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		tournaments: tournaments,
		outbox:      outbox,
		meter:       meter,
		vault:       v,
		ledger:      retrier,
		locks:       locks,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		published:   make(map[string]*domain.Tournament),
	}
}

func tournamentLock(id string) string {
	return "tournament:" + id
}

func releaseLock(id string) string {
	return "release:" + id
}

// effects collects what a mutation leaves to do once the tournament lock is
// released.
type effects struct {
	dirty   bool
	outbox  []domain.OutboxItem
	release bool
}

// mutate applies fn to the stored tournament under its lock. The tournament
// is saved only when fn succeeds and marks it dirty; outbox items fn queued
// are recorded either way. Ledger work runs after the lock is released.
func (o *Orchestrator) mutate(ctx context.Context, id string, fn func(t *domain.Tournament, fx *effects) error) (*domain.Tournament, error) {
	t, fx, err := o.commit(ctx, id, fn)
	if fx != nil {
		o.afterCommit(ctx, id, fx)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (o *Orchestrator) commit(ctx context.Context, id string, fn func(t *domain.Tournament, fx *effects) error) (*domain.Tournament, *effects, error) {
	unlock, err := o.locks.Lock(ctx, tournamentLock(id))
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	t, err := o.tournaments.GetTournament(ctx, id)
	if err != nil {
		return nil, nil, storageErr(err, "failed to load tournament %s", id)
	}

	fx := &effects{}
	fnErr := fn(t, fx)

	if fnErr == nil && fx.dirty {
		t.UpdatedAt = o.now()
		if err := o.tournaments.SaveTournament(ctx, t); err != nil {
			o.logger.Error().Err(err).Str("tournament_id", id).Msg("failed to save tournament")
			return nil, nil, storageErr(err, "failed to save tournament %s", id)
		}
		o.publish(t)
	}
	if fnErr != nil {
		fx.dirty = false
		fx.release = false
	}

	if len(fx.outbox) > 0 {
		if err := o.outbox.Enqueue(ctx, fx.outbox); err != nil {
			o.logger.Error().Err(err).Str("tournament_id", id).Int("items", len(fx.outbox)).Msg("failed to record ledger work")
			fx.outbox = nil
			if fnErr == nil {
				fnErr = storageErr(err, "failed to record ledger work for %s", id)
			}
		}
	}

	return t, fx, fnErr
}

func (o *Orchestrator) afterCommit(ctx context.Context, id string, fx *effects) {
	if len(fx.outbox) > 0 {
		o.dispatch(ctx, fx.outbox)
	}
	if fx.release {
		if _, err := o.release(ctx, id); err != nil {
			o.logger.Warn().Err(err).Str("tournament_id", id).Msg("prize release incomplete, left for reconciliation")
		}
	}
}

func (o *Orchestrator) publish(t *domain.Tournament) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published[t.ID] = t.Clone()
}

// snapshot returns a private copy of the last committed tournament.
func (o *Orchestrator) snapshot(ctx context.Context, id string) (*domain.Tournament, error) {
	o.mu.RLock()
	t, ok := o.published[id]
	o.mu.RUnlock()
	if ok {
		return t.Clone(), nil
	}

	t, err := o.tournaments.GetTournament(ctx, id)
	if err != nil {
		return nil, storageErr(err, "failed to load tournament %s", id)
	}

	o.mu.Lock()
	if cur, ok := o.published[id]; !ok || cur.UpdatedAt.Before(t.UpdatedAt) {
		o.published[id] = t.Clone()
	}
	o.mu.Unlock()
	return t, nil
}

// storageErr passes domain errors through and classifies anything else as a
// storage failure.
func storageErr(err error, format string, args ...any) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Wrap(apperr.CodeStorageUnavailable, err, format, args...)
}
