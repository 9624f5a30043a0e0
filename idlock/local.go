package idlock

import (
	"context"
	"sync"
)

type localLock struct {
	ch   chan struct{} // capacity 1: holding = one token in the channel
	refs int           // holders + waiters
}

// Local keeps one lock per id in-process. Entries are dropped as soon as no
// goroutine holds or waits for them, so the table stays proportional to the
// number of ids in flight.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

var _ Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{locks: make(map[string]*localLock)}
}

func (l *Local) Lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &localLock{ch: make(chan struct{}, 1)}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.release(id, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(id, e)
		return nil, ctx.Err()
	}
}

func (l *Local) release(id string, e *localLock) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}

// InFlight returns the number of ids currently held or waited on.
func (l *Local) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *Local) Close(context.Context) error { return nil }
