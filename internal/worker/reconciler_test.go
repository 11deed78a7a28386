package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tournament-engine/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingTarget struct {
	calls atomic.Int32
	err   error
}

func (c *countingTarget) Reconcile(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestReconcilerRunsOnInterval(t *testing.T) {
	target := &countingTarget{}
	r := NewReconciler(target, &config.Config{ReconcileInterval: 10 * time.Millisecond}, zerolog.Nop())

	require.NoError(t, r.Start())
	assert.Eventually(t, func() bool { return target.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop(), "stopping twice is harmless")
}

func TestRunOncePropagatesError(t *testing.T) {
	target := &countingTarget{err: errors.New("boom")}
	r := NewReconciler(target, &config.Config{ReconcileInterval: time.Minute}, zerolog.Nop())

	err := r.RunOnce(context.Background())
	require.EqualError(t, err, "boom")
	assert.Equal(t, int32(1), target.calls.Load())
}
