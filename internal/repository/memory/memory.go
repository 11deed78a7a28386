// Package memory holds in-process implementations of the engine's stores,
// used by tests and by single-node runs without a database file.
package memory

import (
	"context"
	"sort"
	"sync"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/domain"
)

type xpKey struct {
	account string
	day     domain.Day
}

type XPStore struct {
	mu      sync.RWMutex
	entries map[xpKey]domain.XPLedgerEntry
	grants  map[string]domain.XPGrant
}

func NewXPStore() *XPStore {
	return &XPStore{
		entries: make(map[xpKey]domain.XPLedgerEntry),
		grants:  make(map[string]domain.XPGrant),
	}
}

func (s *XPStore) EntryOn(_ context.Context, account string, day domain.Day) (*domain.XPLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[xpKey{account, day}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *XPStore) LastBefore(_ context.Context, account string, day domain.Day) (*domain.XPLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.XPLedgerEntry
	for k, e := range s.entries {
		if k.account != account || k.day >= day {
			continue
		}
		if best == nil || e.Day > best.Day {
			e := e
			best = &e
		}
	}
	return best, nil
}

func (s *XPStore) Grant(_ context.Context, key string) (*domain.XPGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[key]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *XPStore) Apply(_ context.Context, entry domain.XPLedgerEntry, grant *domain.XPGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[xpKey{entry.Account, entry.Day}] = entry
	if grant != nil {
		s.grants[grant.Key] = *grant
	}
	return nil
}

func (s *XPStore) Revert(_ context.Context, account string, day domain.Day, prev *domain.XPLedgerEntry, grantKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev == nil {
		delete(s.entries, xpKey{account, day})
	} else {
		s.entries[xpKey{account, day}] = *prev
	}
	if grantKey != "" {
		delete(s.grants, grantKey)
	}
	return nil
}

type TournamentStore struct {
	mu          sync.RWMutex
	tournaments map[string]*domain.Tournament
}

func NewTournamentStore() *TournamentStore {
	return &TournamentStore{tournaments: make(map[string]*domain.Tournament)}
}

func (s *TournamentStore) SaveTournament(_ context.Context, t *domain.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tournaments[t.ID] = t.Clone()
	return nil
}

func (s *TournamentStore) GetTournament(_ context.Context, id string) (*domain.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tournaments[id]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "tournament %s not found", id)
	}
	return t.Clone(), nil
}

func (s *TournamentStore) ListTournaments(_ context.Context, status domain.TournamentStatus) ([]*domain.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Tournament
	for _, t := range s.tournaments {
		if status == "" || t.Status == status {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type OutboxStore struct {
	mu    sync.Mutex
	items map[string]domain.OutboxItem
	order []string
}

func NewOutboxStore() *OutboxStore {
	return &OutboxStore{items: make(map[string]domain.OutboxItem)}
}

func (s *OutboxStore) Enqueue(_ context.Context, items []domain.OutboxItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if _, ok := s.items[it.Key]; ok {
			continue
		}
		s.items[it.Key] = it
		s.order = append(s.order, it.Key)
	}
	return nil
}

func (s *OutboxStore) PendingOutbox(_ context.Context, limit int) ([]domain.OutboxItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OutboxItem
	for _, key := range s.order {
		it := s.items[key]
		if it.Status != domain.OutboxPending {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *OutboxStore) CompleteOutbox(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "outbox item %s not found", key)
	}
	it.Status = domain.OutboxDone
	it.Attempts++
	it.LastError = ""
	s.items[key] = it
	return nil
}

func (s *OutboxStore) FailOutbox(_ context.Context, key, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "outbox item %s not found", key)
	}
	it.Attempts++
	it.LastError = lastErr
	s.items[key] = it
	return nil
}

func (s *OutboxStore) GetOutbox(_ context.Context, key string) (*domain.OutboxItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

// Item returns the outbox row for key.
func (s *OutboxStore) Item(key string) (domain.OutboxItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	return it, ok
}

type AllocationStore struct {
	mu     sync.Mutex
	allocs map[string][]domain.PrizeAllocation
}

func NewAllocationStore() *AllocationStore {
	return &AllocationStore{allocs: make(map[string][]domain.PrizeAllocation)}
}

func (s *AllocationStore) Allocations(_ context.Context, tournamentID string) ([]domain.PrizeAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PrizeAllocation(nil), s.allocs[tournamentID]...), nil
}

func (s *AllocationStore) CreateAllocations(_ context.Context, tournamentID string, allocs []domain.PrizeAllocation) ([]domain.PrizeAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.allocs[tournamentID]; ok {
		return append([]domain.PrizeAllocation(nil), existing...), nil
	}
	s.allocs[tournamentID] = append([]domain.PrizeAllocation(nil), allocs...)
	return append([]domain.PrizeAllocation(nil), allocs...), nil
}

func (s *AllocationStore) MarkCredited(_ context.Context, tournamentID, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.allocs[tournamentID] {
		if s.allocs[tournamentID][i].Account == account {
			s.allocs[tournamentID][i].Credited = true
			return nil
		}
	}
	return apperr.New(apperr.CodeNotFound, "allocation for %s in %s not found", account, tournamentID)
}
