// Package asynchook moves Hooks calls off the request path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    HitMissEvery: 100, // sample ~every 100th hit/miss
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	users, _ := mongocache.New[User](mongocache.Options[User]{
//	    Namespace: "users",
//	    Store:     store,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	mongocache "github.com/drgatoxd/mongo-cache"
)

// Hooks queues events for a fixed pool of workers. A full queue drops events
// instead of blocking the caller.
type Hooks struct {
	inner   mongocache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards q against send-after-close
	closed  bool
	dropped atomic.Uint64
}

var _ mongocache.Hooks = (*Hooks)(nil)

func New(inner mongocache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) MirrorHit(ns, id string)  { h.try(func() { h.inner.MirrorHit(ns, id) }) }
func (h *Hooks) MirrorMiss(ns, id string) { h.try(func() { h.inner.MirrorMiss(ns, id) }) }
func (h *Hooks) Created(ns, id string)    { h.try(func() { h.inner.Created(ns, id) }) }
func (h *Hooks) Evicted(ns string, n int) { h.try(func() { h.inner.Evicted(ns, n) }) }
func (h *Hooks) Resynced(ns string, before, after int) {
	h.try(func() { h.inner.Resynced(ns, before, after) })
}
func (h *Hooks) MirrorError(ns string, err error) {
	h.try(func() { h.inner.MirrorError(ns, err) })
}
