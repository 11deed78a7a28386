// Package worker runs background jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"tournament-engine/internal/config"
	"tournament-engine/internal/constants"
)

// Reconcilable is the work a reconciliation pass runs.
type Reconcilable interface {
	Reconcile(ctx context.Context) error
}

// Reconciler periodically dispatches pending ledger work and retries
// incomplete prize releases.
type Reconciler struct {
	target   Reconcilable
	interval time.Duration
	logger   zerolog.Logger
	sched    gocron.Scheduler
}

func NewReconciler(target Reconcilable, cfg *config.Config, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		target:   target,
		interval: cfg.ReconcileInterval,
		logger:   logger,
	}
}

func (r *Reconciler) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(r.run),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("reconcile-settlements"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	sched.Start()
	r.sched = sched
	r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")
	return nil
}

func (r *Reconciler) Stop() error {
	if r.sched == nil {
		return nil
	}
	err := r.sched.Shutdown()
	r.sched = nil
	if err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	r.logger.Info().Msg("reconciler stopped")
	return nil
}

// RunOnce performs a single reconciliation pass.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	start := time.Now()
	if err := r.target.Reconcile(ctx); err != nil {
		r.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("reconciliation failed")
		return err
	}
	r.logger.Debug().Dur("elapsed", time.Since(start)).Msg("reconciliation done")
	return nil
}

func (r *Reconciler) run() {
	_ = r.RunOnce(context.Background())
}
