package lock

import (
	"context"
	"sync"

	"nomina/pkg/platform/sentinel"
)

// InMemory is a keyed try-lock for single-instance deployments. Acquire does
// not block waiting for the holder; a held lock is an immediate ErrLocked,
// since a concurrent run over the same document is a caller bug, not
// contention to wait out.
type InMemory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{held: make(map[string]struct{})}
}

func (l *InMemory) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return nil, sentinel.ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return release, nil
}
