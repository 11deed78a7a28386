package vault_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-engine/internal/apperr"
	"tournament-engine/internal/domain"
	"tournament-engine/internal/ledger"
	"tournament-engine/internal/repository/memory"
	"tournament-engine/internal/vault"
)

var fourPlayerOrder = []domain.Placement{
	{Position: 1, Accounts: []string{"A"}},
	{Position: 2, Accounts: []string{"C"}},
	{Position: 3, Accounts: []string{"B", "D"}},
}

func amounts(allocs []domain.PrizeAllocation) map[string]int64 {
	out := make(map[string]int64, len(allocs))
	for _, a := range allocs {
		out[a.Account] = a.Amount
	}
	return out
}

func sum(allocs []domain.PrizeAllocation) int64 {
	var total int64
	for _, a := range allocs {
		total += a.Amount
	}
	return total
}

func TestValidateSplit(t *testing.T) {
	require.NoError(t, vault.ValidateSplit([]int{60, 30, 10}))
	require.NoError(t, vault.ValidateSplit([]int{100}))

	for _, split := range [][]int{nil, {50, 40}, {60, 50, -10}, {101}} {
		err := vault.ValidateSplit(split)
		require.ErrorIs(t, err, apperr.ErrInvalidPrizeSplit, "split %v", split)
		assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))
	}
}

func TestComputeFourPlayerScenario(t *testing.T) {
	allocs, err := vault.Compute("t1", 100, []int{60, 30, 10}, fourPlayerOrder)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 60, "C": 30, "B": 5, "D": 5}, amounts(allocs))
}

func TestComputeRemainderGoesToFirst(t *testing.T) {
	allocs, err := vault.Compute("t1", 1001, []int{50, 25, 15, 10}, fourPlayerOrder)
	require.NoError(t, err)

	got := amounts(allocs)
	// Ties at 3rd share positions 3 and 4: (15+10)% of 1001 / 2 = 125 each.
	assert.Equal(t, int64(125), got["B"])
	assert.Equal(t, int64(125), got["D"])
	assert.Equal(t, int64(250), got["C"])
	assert.Equal(t, int64(1001), sum(allocs))
	assert.Equal(t, int64(501), got["A"])
}

func TestComputeSumsToPool(t *testing.T) {
	splits := [][]int{{100}, {70, 30}, {33, 33, 34}, {40, 25, 15, 10, 5, 5}, {1, 1, 1, 97}}
	orders := [][]domain.Placement{
		{{Position: 1, Accounts: []string{"a"}}},
		{{Position: 1, Accounts: []string{"a"}}, {Position: 2, Accounts: []string{"b"}}},
		fourPlayerOrder,
		{
			{Position: 1, Accounts: []string{"a"}},
			{Position: 2, Accounts: []string{"b"}},
			{Position: 3, Accounts: []string{"c", "d"}},
			{Position: 5, Accounts: []string{"e", "f", "g", "h"}},
		},
	}
	for _, split := range splits {
		for _, order := range orders {
			for _, pool := range []int64{0, 1, 7, 99, 100, 12345, 1_000_003} {
				allocs, err := vault.Compute("t", pool, split, order)
				require.NoError(t, err)
				assert.Equal(t, pool, sum(allocs), "split %v pool %d", split, pool)
				for _, a := range allocs {
					assert.GreaterOrEqual(t, a.Amount, int64(0))
				}
			}
		}
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	_, err := vault.Compute("t", 100, []int{50}, fourPlayerOrder)
	require.ErrorIs(t, err, apperr.ErrInvalidPrizeSplit)

	_, err = vault.Compute("t", 100, []int{100}, nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func newVault(mem *ledger.Memory) (*vault.Vault, *memory.AllocationStore) {
	store := memory.NewAllocationStore()
	retrier := ledger.NewRetrier(mem, 1, time.Millisecond, zerolog.Nop())
	return vault.NewVault(store, retrier, zerolog.Nop()), store
}

func TestReleaseCreditsEveryAllocationOnce(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemory()
	v, _ := newVault(mem)

	allocs, err := v.Release(ctx, "t1", 100, []int{60, 30, 10}, fourPlayerOrder)
	require.NoError(t, err)
	for _, a := range allocs {
		assert.True(t, a.Credited, a.Account)
	}

	again, err := v.Release(ctx, "t1", 100, []int{60, 30, 10}, fourPlayerOrder)
	require.NoError(t, err)
	assert.Equal(t, allocs, again)
	assert.Equal(t, 4, mem.Calls(), "second release credits nothing")

	balance, _ := mem.BalanceOf(ctx, "A")
	assert.Equal(t, int64(60), balance)
}

func TestReleasePartialFailureThenRetry(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemory()
	v, store := newVault(mem)

	// Four allocations with two attempts each.
	mem.FailNext(8, errors.New("ledger down"))

	allocs, err := v.Release(ctx, "t1", 100, []int{60, 30, 10}, fourPlayerOrder)
	require.ErrorIs(t, err, apperr.ErrSettlementIncomplete)
	assert.Equal(t, apperr.KindExternalDependency, apperr.KindOf(err))
	require.Len(t, allocs, 4)

	stored, err := store.Allocations(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, allocs, stored)

	// A later retry pays only what is still owed.
	allocs, err = v.Release(ctx, "t1", 999, []int{100}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), sum(allocs), "allocations are computed once")
	for _, acct := range []string{"A", "B", "C", "D"} {
		balance, _ := mem.BalanceOf(ctx, acct)
		assert.Equal(t, amounts(allocs)[acct], balance, acct)
	}
}

func TestEscrowAndRefund(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemory()
	mem.Seed("alice", 30)
	v, _ := newVault(mem)

	c := domain.Contribution{Account: "alice", Amount: 25, Kind: domain.ContributionEntryFee, Key: "entry:t1:alice"}
	require.NoError(t, v.Escrow(ctx, c))
	require.NoError(t, v.Escrow(ctx, c), "escrow retry is idempotent")

	balance, _ := mem.BalanceOf(ctx, "alice")
	assert.Equal(t, int64(5), balance)

	err := v.Escrow(ctx, domain.Contribution{Account: "alice", Amount: 25, Key: "entry:t2:alice"})
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	require.NoError(t, v.Refund(ctx, c))
	require.NoError(t, v.Refund(ctx, c))
	balance, _ = mem.BalanceOf(ctx, "alice")
	assert.Equal(t, int64(30), balance)
}
