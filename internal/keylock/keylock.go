// Package keylock provides mutual exclusion scoped to a string key with a
// bounded wait.
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"tournament-engine/internal/apperr"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

type Registry struct {
	mu    sync.Mutex
	locks map[string]*entry
	wait  time.Duration
}

func New(wait time.Duration) *Registry {
	return &Registry{
		locks: make(map[string]*entry),
		wait:  wait,
	}
}

// Lock blocks until key is free or the wait bound elapses. The returned
// function releases the lock and must be called exactly once.
func (r *Registry) Lock(ctx context.Context, key string) (func(), error) {
	r.mu.Lock()
	e, ok := r.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		r.locks[key] = e
	}
	e.refs++
	r.mu.Unlock()

	waitCtx := ctx
	if r.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.wait)
		defer cancel()
	}

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		r.release(key, e, false)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, apperr.Wrap(apperr.CodeLockTimeout, err, "timed out waiting for %s", key)
		}
		return nil, apperr.Wrap(apperr.CodeLockTimeout, err, "gave up waiting for %s", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.release(key, e, true) })
	}, nil
}

func (r *Registry) release(key string, e *entry, held bool) {
	if held {
		e.sem.Release(1)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(r.locks, key)
	}
}

// Len reports how many keys are currently locked or waited on.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
