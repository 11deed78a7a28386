package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Gateway. It is the default when no remote ledger is
// configured and doubles as the test ledger.
type Memory struct {
	mu       sync.Mutex
	balances map[string]int64
	applied  map[string]Transfer
	calls    int
	failures []error
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]int64),
		applied:  make(map[string]Transfer),
	}
}

// Seed sets an opening balance.
func (m *Memory) Seed(account string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = amount
}

// FailNext makes the next n calls fail with err before touching any balance.
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, err)
	}
}

// ClearFailures drops any failures still queued by FailNext.
func (m *Memory) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = nil
}

func (m *Memory) Credit(ctx context.Context, t Transfer) (Outcome, error) {
	return m.apply(ctx, "credit", t, t.Amount)
}

func (m *Memory) Debit(ctx context.Context, t Transfer) (Outcome, error) {
	return m.apply(ctx, "debit", t, -t.Amount)
}

func (m *Memory) apply(ctx context.Context, op string, t Transfer, delta int64) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if t.Amount < 0 {
		return 0, fmt.Errorf("negative %s amount %d", op, t.Amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return 0, err
	}

	key := op + ":" + t.Key
	if _, ok := m.applied[key]; ok && t.Key != "" {
		return AlreadyApplied, nil
	}
	if delta < 0 && m.balances[t.Account]+delta < 0 {
		return 0, fmt.Errorf("%s of %d from %s: %w", op, t.Amount, t.Account, ErrInsufficientFunds)
	}
	m.balances[t.Account] += delta
	if t.Key != "" {
		m.applied[key] = t
	}
	return Applied, nil
}

func (m *Memory) BalanceOf(ctx context.Context, account string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

// Calls reports how many credit/debit calls reached the ledger.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Applied reports the transfers recorded under key for op "credit" or "debit".
func (m *Memory) Applied(op, key string) (Transfer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.applied[op+":"+key]
	return t, ok
}
