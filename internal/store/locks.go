package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// entityLocks serializes batches that touch overlapping entity ids while
// letting disjoint batches commit independently. Acquisition happens in
// sorted id order, so two overlapping batches cannot deadlock and the one
// that acquires first commits first.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]chan struct{})}
}

func (e *entityLocks) lockFor(id string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		e.locks[id] = ch
	}
	return ch
}

// acquire takes the lock for every id, in sorted order, waiting at most
// timeout overall. On timeout it releases everything it already holds and
// returns false so the caller can requeue with backoff.
func (e *entityLocks) acquire(ctx context.Context, ids []string, timeout time.Duration) (bool, error) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	held := make([]string, 0, len(sorted))
	for _, id := range sorted {
		ch := e.lockFor(id)
		select {
		case ch <- struct{}{}:
			held = append(held, id)
		case <-deadline.C:
			e.release(held)
			return false, nil
		case <-ctx.Done():
			e.release(held)
			return false, ctx.Err()
		}
	}
	return true, nil
}

func (e *entityLocks) release(ids []string) {
	for _, id := range ids {
		ch := e.lockFor(id)
		select {
		case <-ch:
		default:
			// Releasing an unheld lock is a programming error; keep it
			// non-fatal so a misbehaving caller cannot wedge the store.
		}
	}
}
