// Package lock provides per-key critical sections used to serialize
// conflicting writes, such as bookings against the same provider.
package lock

import (
	"context"
	"sync"
)

// Serializer runs fn while holding an exclusive lock on key. Implementations
// must not hold the lock after Serialize returns.
type Serializer interface {
	Serialize(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker serializes callers within one process. Suitable for a single
// replica or for tests.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

func (m *MemoryLocker) acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	kl, ok := m.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = kl
	}
	kl.refs++
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}

	select {
	case kl.ch <- struct{}{}:
		return func() {
			<-kl.ch
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}

func (m *MemoryLocker) Serialize(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	unlock, err := m.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}
