package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/domain"
)

type AllocationRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAllocationRepository(sqlDB *sql.DB, logger zerolog.Logger) *AllocationRepository {
	return &AllocationRepository{db: sqlDB, logger: logger}
}

func (r *AllocationRepository) Allocations(ctx context.Context, tournamentID string) ([]domain.PrizeAllocation, error) {
	return allocations(ctx, r.db, tournamentID)
}

// CreateAllocations inserts allocs only when the tournament has none yet, so
// a release that races a retry still pays from a single computed set.
func (r *AllocationRepository) CreateAllocations(ctx context.Context, tournamentID string, allocs []domain.PrizeAllocation) ([]domain.PrizeAllocation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := allocations(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	now := time.Now().UTC()
	for _, a := range allocs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prize_allocations (tournament_id, account, position, amount, credited, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			tournamentID, a.Account, a.Position, a.Amount, a.Credited, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert allocation for %s: %w", a.Account, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit allocations: %w", err)
	}

	r.logger.Debug().Str("tournament_id", tournamentID).Int("count", len(allocs)).Msg("allocations recorded")
	return append([]domain.PrizeAllocation(nil), allocs...), nil
}

func (r *AllocationRepository) MarkCredited(ctx context.Context, tournamentID, account string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE prize_allocations SET credited = 1 WHERE tournament_id = ? AND account = ?`,
		tournamentID, account,
	)
	if err != nil {
		return fmt.Errorf("failed to mark allocation credited: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark allocation credited: %w", err)
	}
	if n == 0 {
		return apperr.New(apperr.CodeNotFound, "allocation for %s in %s not found", account, tournamentID)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func allocations(ctx context.Context, q querier, tournamentID string) ([]domain.PrizeAllocation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tournament_id, account, position, amount, credited
		FROM prize_allocations
		WHERE tournament_id = ?
		ORDER BY position, account`,
		tournamentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	defer rows.Close()

	var out []domain.PrizeAllocation
	for rows.Next() {
		var a domain.PrizeAllocation
		if err := rows.Scan(&a.TournamentID, &a.Account, &a.Position, &a.Amount, &a.Credited); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
