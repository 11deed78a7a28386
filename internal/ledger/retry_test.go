package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-engine/internal/apperr"
)

func TestRetrierRecoversFromTransientFailures(t *testing.T) {
	mem := NewMemory()
	mem.FailNext(2, errors.New("timeout"))
	r := NewRetrier(mem, 3, time.Millisecond, zerolog.Nop())

	require.NoError(t, r.Credit(context.Background(), Transfer{Account: "alice", Amount: 10, Key: "k1"}))

	balance, err := mem.BalanceOf(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
	assert.Equal(t, 3, mem.Calls())
}

func TestRetrierGivesUp(t *testing.T) {
	mem := NewMemory()
	mem.FailNext(10, ErrUnavailable)
	r := NewRetrier(mem, 2, time.Millisecond, zerolog.Nop())

	err := r.Credit(context.Background(), Transfer{Account: "alice", Amount: 10, Key: "k1"})
	require.ErrorIs(t, err, apperr.ErrLedgerUnavailable)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, apperr.KindExternalDependency, apperr.KindOf(err))
	assert.Equal(t, 3, mem.Calls())
}

func TestRetrierDoesNotRetryInsufficientFunds(t *testing.T) {
	mem := NewMemory()
	r := NewRetrier(mem, 5, time.Millisecond, zerolog.Nop())

	err := r.Debit(context.Background(), Transfer{Account: "alice", Amount: 10, Key: "fee"})
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Equal(t, 1, mem.Calls())
}

func TestMemoryIdempotentByKey(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	mem.Seed("bob", 50)

	out, err := mem.Debit(ctx, Transfer{Account: "bob", Amount: 20, Key: "entry"})
	require.NoError(t, err)
	assert.Equal(t, Applied, out)

	out, err = mem.Debit(ctx, Transfer{Account: "bob", Amount: 20, Key: "entry"})
	require.NoError(t, err)
	assert.Equal(t, AlreadyApplied, out)

	out, err = mem.Credit(ctx, Transfer{Account: "bob", Amount: 20, Key: "entry"})
	require.NoError(t, err)
	assert.Equal(t, Applied, out, "credit and debit keys are separate")

	balance, _ := mem.BalanceOf(ctx, "bob")
	assert.Equal(t, int64(50), balance)
}
