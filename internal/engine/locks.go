package engine

import (
	"context"
	"fmt"
	"sync"
)

// SubjectLocks hands out one exclusive lock per subject. Different subjects
// never contend. Lock entries are kept for the life of the process.
type SubjectLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewSubjectLocks() *SubjectLocks {
	return &SubjectLocks{locks: make(map[string]chan struct{})}
}

// Lock blocks until the subject's lock is free or ctx is done. The returned
// func releases it.
func (l *SubjectLocks) Lock(ctx context.Context, subject string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[subject]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[subject] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("lock subject %q: %w", subject, ctx.Err())
	}
}
