package lock

import (
	"context"
	"sync"

	"github.com/kevin07696/newebpay-service/internal/domain/ports"
)

// entry is a one-slot semaphore shared by every waiter on the same key
type entry struct {
	sem  chan struct{}
	refs int
}

// localLocker serializes work per key inside one process.
// Entries are dropped once no holder or waiter references them.
type localLocker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewLocal creates an in-process keyed locker
func NewLocal() ports.KeyedLocker {
	return &localLocker{entries: make(map[string]*entry)}
}

func (l *localLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
	}, nil
}

func (l *localLocker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size reports tracked keys; used by tests
func (l *localLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
