package lock

import (
	"context"
	"sync"
)

// Registry is an in-process exclusive lock per key. Waiters for a key are
// granted the lock in FIFO order.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	waiters []chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*entry)}
}

// Acquire blocks until the caller holds key or ctx is done. The returned
// release func hands the lock to the next waiter and is idempotent.
func (r *Registry) Acquire(ctx context.Context, key string) (func(), error) {
	r.mu.Lock()
	e, held := r.locks[key]
	if !held {
		r.locks[key] = &entry{}
		r.mu.Unlock()
		return r.releaser(key), nil
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	r.mu.Unlock()

	select {
	case <-ch:
		return r.releaser(key), nil
	case <-ctx.Done():
	}

	r.mu.Lock()
	for i, w := range e.waiters {
		if w == ch {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			r.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	r.mu.Unlock()

	// the lock was handed over while ctx was being cancelled; pass it on
	r.release(key)
	return nil, ctx.Err()
}

// Held reports whether key is currently locked.
func (r *Registry) Held(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.locks[key]
	return ok
}

// Waiters returns the number of callers queued behind the holder of key.
func (r *Registry) Waiters(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.locks[key]; ok {
		return len(e.waiters)
	}
	return 0
}

func (r *Registry) releaser(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { r.release(key) })
	}
}

func (r *Registry) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.locks[key]
	if !ok {
		return
	}
	if len(e.waiters) == 0 {
		delete(r.locks, key)
		return
	}
	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	close(next)
}
