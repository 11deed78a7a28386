package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/domain"
)

type OutboxRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewOutboxRepository(sqlDB *sql.DB, logger zerolog.Logger) *OutboxRepository {
	return &OutboxRepository{db: sqlDB, logger: logger}
}

// Enqueue records items in one transaction. Items whose key is already
// recorded are skipped.
func (r *OutboxRepository) Enqueue(ctx context.Context, items []domain.OutboxItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, it := range items {
		id := it.ID
		if id == "" {
			id, err = gonanoid.New()
			if err != nil {
				return fmt.Errorf("failed to generate nanoid: %w", err)
			}
		}
		status := it.Status
		if status == "" {
			status = domain.OutboxPending
		}
		createdAt := it.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_outbox
				(id, idempotency_key, kind, tournament_id, account, amount, day, status, attempts, last_error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)
			ON CONFLICT(idempotency_key) DO NOTHING`,
			id, it.Key, string(it.Kind), it.TournamentID, it.Account, it.Amount, int64(it.Day), string(status), createdAt.UTC(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", it.Key, err)
		}
	}

	return tx.Commit()
}

func (r *OutboxRepository) PendingOutbox(ctx context.Context, limit int) ([]domain.OutboxItem, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, idempotency_key, kind, tournament_id, account, amount, day, status, attempts, last_error, created_at, updated_at
		FROM ledger_outbox
		WHERE status = ?
		ORDER BY created_at, id
		LIMIT ?`,
		string(domain.OutboxPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending outbox: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxItem
	for rows.Next() {
		it, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetOutbox returns the item recorded under key, or nil.
func (r *OutboxRepository) GetOutbox(ctx context.Context, key string) (*domain.OutboxItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, kind, tournament_id, account, amount, day, status, attempts, last_error, created_at, updated_at
		FROM ledger_outbox
		WHERE idempotency_key = ?`,
		key,
	)
	it, err := scanOutbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutbox(s scanner) (domain.OutboxItem, error) {
	var (
		it           domain.OutboxItem
		kind, status string
		day          int64
	)
	err := s.Scan(&it.ID, &it.Key, &kind, &it.TournamentID, &it.Account, &it.Amount, &day,
		&status, &it.Attempts, &it.LastError, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return it, err
	}
	if err != nil {
		return it, fmt.Errorf("failed to scan outbox item: %w", err)
	}
	it.Kind = domain.OutboxKind(kind)
	it.Status = domain.OutboxStatus(status)
	it.Day = domain.Day(day)
	return it, nil
}

func (r *OutboxRepository) CompleteOutbox(ctx context.Context, key string) error {
	return r.update(ctx, key, `
		UPDATE ledger_outbox
		SET status = ?, attempts = attempts + 1, last_error = '', updated_at = ?
		WHERE idempotency_key = ?`,
		string(domain.OutboxDone), time.Now().UTC(), key,
	)
}

func (r *OutboxRepository) FailOutbox(ctx context.Context, key, lastErr string) error {
	return r.update(ctx, key, `
		UPDATE ledger_outbox
		SET attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE idempotency_key = ?`,
		lastErr, time.Now().UTC(), key,
	)
}

func (r *OutboxRepository) update(ctx context.Context, key, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("key", key).Msg("failed to update outbox item")
		return fmt.Errorf("failed to update outbox item %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update outbox item %s: %w", key, err)
	}
	if n == 0 {
		return apperr.New(apperr.CodeNotFound, "outbox item %s not found", key)
	}
	return nil
}
