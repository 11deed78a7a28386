package repository_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/database"
	"tournament-engine/internal/domain"
	"tournament-engine/internal/repository"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTournamentRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewTournamentRepository(openDB(t), zerolog.Nop())

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tour := &domain.Tournament{
		ID:     "t1",
		Name:   "Spring Cup",
		Slug:   "spring-cup",
		Status: domain.StatusRegistration,
		Config: domain.TournamentConfig{
			Name:       "Spring Cup",
			MaxPlayers: 8,
			PrizeSplit: []int{60, 30, 10},
		},
		Roster:    []domain.Entry{{Account: "alice", Seed: 1, JoinedAt: created}},
		PrizePool: 1000,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, repo.SaveTournament(ctx, tour))

	got, err := repo.GetTournament(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "spring-cup", got.Slug)
	assert.Equal(t, []int{60, 30, 10}, got.Config.PrizeSplit)
	require.Len(t, got.Roster, 1)
	assert.Equal(t, "alice", got.Roster[0].Account)

	tour.Status = domain.StatusInProgress
	tour.UpdatedAt = created.Add(time.Hour)
	require.NoError(t, repo.SaveTournament(ctx, tour))

	got, err = repo.GetTournament(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

func TestTournamentRepository_NotFound(t *testing.T) {
	repo := repository.NewTournamentRepository(openDB(t), zerolog.Nop())
	_, err := repo.GetTournament(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTournamentRepository_ListByStatus(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewTournamentRepository(openDB(t), zerolog.Nop())

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []domain.TournamentStatus{domain.StatusRegistration, domain.StatusSettled, domain.StatusRegistration} {
		require.NoError(t, repo.SaveTournament(ctx, &domain.Tournament{
			ID:        string(rune('a' + i)),
			Status:    st,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base,
		}))
	}

	open, err := repo.ListTournaments(ctx, domain.StatusRegistration)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "a", open[0].ID)
	assert.Equal(t, "c", open[1].ID)

	all, err := repo.ListTournaments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestXPRepository_ApplyAndRevert(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewXPRepository(openDB(t), zerolog.Nop())
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	day := domain.DayOf(now)

	missing, err := repo.EntryOn(ctx, "alice", day)
	require.NoError(t, err)
	assert.Nil(t, missing)

	yesterday := domain.XPLedgerEntry{Account: "alice", Day: day - 1, EarnedToday: 40, StreakLength: 2, LastActiveDay: day - 1, UpdatedAt: now}
	require.NoError(t, repo.Apply(ctx, yesterday, nil))

	last, err := repo.LastBefore(ctx, "alice", day)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 2, last.StreakLength)
	assert.Equal(t, day-1, last.LastActiveDay)

	today := domain.XPLedgerEntry{Account: "alice", Day: day, EarnedToday: 33, StreakLength: 3, LastActiveDay: day, UpdatedAt: now}
	grant := &domain.XPGrant{Key: "g1", Account: "alice", Day: day, BaseAmount: 30, Amount: 33, CreatedAt: now}
	require.NoError(t, repo.Apply(ctx, today, grant))

	g, err := repo.Grant(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, int64(33), g.Amount)

	require.NoError(t, repo.Revert(ctx, "alice", day, nil, "g1"))

	g, err = repo.Grant(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, g)
	gone, err := repo.EntryOn(ctx, "alice", day)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.EntryOn(ctx, "alice", day-1)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, int64(40), kept.EarnedToday)
}

func TestXPRepository_DuplicateGrantRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewXPRepository(openDB(t), zerolog.Nop())
	now := time.Now().UTC()
	day := domain.DayOf(now)

	grant := &domain.XPGrant{Key: "g1", Account: "bob", Day: day, Amount: 10, CreatedAt: now}
	require.NoError(t, repo.Apply(ctx, domain.XPLedgerEntry{Account: "bob", Day: day, EarnedToday: 10, StreakLength: 1, LastActiveDay: day, UpdatedAt: now}, grant))

	err := repo.Apply(ctx, domain.XPLedgerEntry{Account: "bob", Day: day, EarnedToday: 20, StreakLength: 1, LastActiveDay: day, UpdatedAt: now}, grant)
	require.Error(t, err)

	e, err := repo.EntryOn(ctx, "bob", day)
	require.NoError(t, err)
	assert.Equal(t, int64(10), e.EarnedToday)
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewOutboxRepository(openDB(t), zerolog.Nop())

	items := []domain.OutboxItem{
		{Key: "xp:t1:m1:alice", Kind: domain.OutboxXPGrant, TournamentID: "t1", Account: "alice", Amount: 25},
		{Key: "xp:t1:m1:bob", Kind: domain.OutboxXPGrant, TournamentID: "t1", Account: "bob", Amount: 10},
	}
	require.NoError(t, repo.Enqueue(ctx, items))
	require.NoError(t, repo.Enqueue(ctx, items[:1]))

	pending, err := repo.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.NotEmpty(t, pending[0].ID)
	assert.Equal(t, domain.OutboxPending, pending[0].Status)

	require.NoError(t, repo.FailOutbox(ctx, "xp:t1:m1:bob", "ledger down"))
	require.NoError(t, repo.CompleteOutbox(ctx, "xp:t1:m1:alice"))

	pending, err = repo.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "xp:t1:m1:bob", pending[0].Key)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "ledger down", pending[0].LastError)

	err = repo.CompleteOutbox(ctx, "unknown")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	done, err := repo.GetOutbox(ctx, "xp:t1:m1:alice")
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, domain.OutboxDone, done.Status)
	assert.Equal(t, domain.OutboxXPGrant, done.Kind)
	assert.Equal(t, int64(25), done.Amount)

	missing, err := repo.GetOutbox(ctx, "return:entry:t1:carol")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAllocationRepository_CreateOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAllocationRepository(openDB(t), zerolog.Nop())

	first := []domain.PrizeAllocation{
		{TournamentID: "t1", Account: "alice", Position: 1, Amount: 60},
		{TournamentID: "t1", Account: "carol", Position: 2, Amount: 40},
	}
	got, err := repo.CreateAllocations(ctx, "t1", first)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	second := []domain.PrizeAllocation{{TournamentID: "t1", Account: "mallory", Position: 1, Amount: 100}}
	got, err = repo.CreateAllocations(ctx, "t1", second)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Account)

	require.NoError(t, repo.MarkCredited(ctx, "t1", "carol"))
	got, err = repo.Allocations(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, got[0].Credited)
	assert.True(t, got[1].Credited)

	assert.ErrorIs(t, repo.MarkCredited(ctx, "t1", "mallory"), apperr.ErrNotFound)
}
