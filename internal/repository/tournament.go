package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/domain"
)

// TournamentRepository stores each tournament aggregate as one JSON document,
// with status and timestamps lifted into columns for listing.
type TournamentRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewTournamentRepository(sqlDB *sql.DB, logger zerolog.Logger) *TournamentRepository {
	return &TournamentRepository{db: sqlDB, logger: logger}
}

func (r *TournamentRepository) SaveTournament(ctx context.Context, t *domain.Tournament) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode tournament %s: %w", t.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tournaments (id, slug, status, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug,
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		t.ID, t.Slug, string(t.Status), string(data), t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error().Err(err).Str("tournament_id", t.ID).Msg("failed to save tournament")
		return fmt.Errorf("failed to save tournament %s: %w", t.ID, err)
	}
	return nil
}

func (r *TournamentRepository) GetTournament(ctx context.Context, id string) (*domain.Tournament, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM tournaments WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.CodeNotFound, "tournament %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tournament %s: %w", id, err)
	}
	return decodeTournament(data)
}

// ListTournaments returns tournaments oldest first; an empty status lists all.
func (r *TournamentRepository) ListTournaments(ctx context.Context, status domain.TournamentStatus) ([]*domain.Tournament, error) {
	query := `SELECT data FROM tournaments ORDER BY created_at, id`
	args := []any{}
	if status != "" {
		query = `SELECT data FROM tournaments WHERE status = ? ORDER BY created_at, id`
		args = append(args, string(status))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Tournament
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan tournament: %w", err)
		}
		t, err := decodeTournament(data)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func decodeTournament(data string) (*domain.Tournament, error) {
	var t domain.Tournament
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, apperr.Wrap(apperr.CodeBracketCorrupt, err, "stored tournament is unreadable")
	}
	return &t, nil
}
