package lock

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/franchisefund/internal/apperror"
)

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

// Locker serializes work on a key.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

var ErrLockTimeout = apperror.ConcurrencyConflict("lock_timeout", "timed out waiting for franchise lock")

// FranchiseKey is the lock key guarding every mutation of one franchise.
func FranchiseKey(id snowflake.ID) string {
	return "franchisefund:lock:franchise:" + id.String()
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker with one mutex per key.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (Unlock, error) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*keyedEntry)
	}
	entry, ok := m.locks[key]
	if !ok {
		entry = &keyedEntry{sem: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(key, entry)
		return nil, ErrLockTimeout.Wrap(ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			m.release(key, entry)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, entry *keyedEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, key)
	}
}

// Chain acquires every locker in order and releases in reverse.
type Chain []Locker

func (c Chain) Lock(ctx context.Context, key string) (Unlock, error) {
	held := make([]Unlock, 0, len(c))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, locker := range c {
		if locker == nil {
			continue
		}
		unlock, err := locker.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
