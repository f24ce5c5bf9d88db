package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker holds locks in process. It serves single-instance deployments
// that run without Redis.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]holder
	now  func() time.Time
	seq  uint64
}

type holder struct {
	id      uint64
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held: make(map[string]holder),
		now:  time.Now,
	}
}

func (l *MemoryLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return nil, ErrNotAcquired
	}

	l.seq++
	id := l.seq
	l.held[key] = holder{id: id, expires: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, ok := l.held[key]; ok && h.id == id {
			delete(l.held, key)
		}
		return nil
	}
	return release, nil
}

// Sweep drops expired entries and reports how many were removed.
// Expired locks never block TryLock, so sweeping only bounds memory.
func (l *MemoryLocker) Sweep(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, h := range l.held {
		if !now.Before(h.expires) {
			delete(l.held, key)
			removed++
		}
	}
	return removed, nil
}
