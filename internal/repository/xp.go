package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tournament-engine/internal/domain"
)

type XPRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewXPRepository(sqlDB *sql.DB, logger zerolog.Logger) *XPRepository {
	return &XPRepository{db: sqlDB, logger: logger}
}

const xpEntryColumns = `account, day, earned_today, streak_length, last_active_day, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (*domain.XPLedgerEntry, error) {
	var (
		e         domain.XPLedgerEntry
		day, last int64
		updatedAt time.Time
	)
	if err := row.Scan(&e.Account, &day, &e.EarnedToday, &e.StreakLength, &last, &updatedAt); err != nil {
		return nil, err
	}
	e.Day = domain.Day(day)
	e.LastActiveDay = domain.Day(last)
	e.UpdatedAt = updatedAt
	return &e, nil
}

func (r *XPRepository) EntryOn(ctx context.Context, account string, day domain.Day) (*domain.XPLedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+xpEntryColumns+` FROM xp_entries WHERE account = ? AND day = ?`,
		account, int64(day),
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load xp entry: %w", err)
	}
	return e, nil
}

func (r *XPRepository) LastBefore(ctx context.Context, account string, day domain.Day) (*domain.XPLedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+xpEntryColumns+` FROM xp_entries WHERE account = ? AND day < ? ORDER BY day DESC LIMIT 1`,
		account, int64(day),
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load xp history: %w", err)
	}
	return e, nil
}

func (r *XPRepository) Grant(ctx context.Context, key string) (*domain.XPGrant, error) {
	var (
		g         domain.XPGrant
		day       int64
		createdAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT idempotency_key, account, day, base_amount, amount, created_at FROM xp_grants WHERE idempotency_key = ?`,
		key,
	).Scan(&g.Key, &g.Account, &day, &g.BaseAmount, &g.Amount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load xp grant: %w", err)
	}
	g.Day = domain.Day(day)
	g.CreatedAt = createdAt
	return &g, nil
}

func (r *XPRepository) Apply(ctx context.Context, entry domain.XPLedgerEntry, grant *domain.XPGrant) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO xp_entries (`+xpEntryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, day) DO UPDATE SET
			earned_today = excluded.earned_today,
			streak_length = excluded.streak_length,
			last_active_day = excluded.last_active_day,
			updated_at = excluded.updated_at`,
		entry.Account, int64(entry.Day), entry.EarnedToday, entry.StreakLength, int64(entry.LastActiveDay), entry.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert xp entry for %s: %w", entry.Account, err)
	}

	if grant != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO xp_grants (idempotency_key, account, day, base_amount, amount, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			grant.Key, grant.Account, int64(grant.Day), grant.BaseAmount, grant.Amount, grant.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to record xp grant %s: %w", grant.Key, err)
		}
	}

	return tx.Commit()
}

func (r *XPRepository) Revert(ctx context.Context, account string, day domain.Day, prev *domain.XPLedgerEntry, grantKey string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if prev == nil {
		_, err = tx.ExecContext(ctx, `DELETE FROM xp_entries WHERE account = ? AND day = ?`, account, int64(day))
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE xp_entries
			SET earned_today = ?, streak_length = ?, last_active_day = ?, updated_at = ?
			WHERE account = ? AND day = ?`,
			prev.EarnedToday, prev.StreakLength, int64(prev.LastActiveDay), prev.UpdatedAt.UTC(), account, int64(day),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to restore xp entry for %s: %w", account, err)
	}

	if grantKey != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM xp_grants WHERE idempotency_key = ?`, grantKey); err != nil {
			return fmt.Errorf("failed to drop xp grant %s: %w", grantKey, err)
		}
	}

	r.logger.Debug().Str("account", account).Str("day", day.String()).Msg("xp entry restored")
	return tx.Commit()
}
