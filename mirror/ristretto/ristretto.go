// Package ristretto is a bounded mirror on ristretto's TinyLFU admission policy.
// Under pressure ristretto may refuse or evict entries; Set reports refusals with
// ErrDropped and evictions silently turn into misses.
package ristretto

import (
	"errors"
	"sync"

	rc "github.com/dgraph-io/ristretto"

	"github.com/drgatoxd/mongo-cache/mirror"
)

// ErrDropped is returned by Set when ristretto did not keep the entry.
var ErrDropped = errors.New("ristretto mirror: entry dropped")

type item[M any] struct {
	id string
	m  M
}

// Mirror tracks the ids it believes are resident because ristretto cannot be
// enumerated. The set is pruned on eviction and rejection callbacks and whenever
// Values finds an id that no longer resolves.
type Mirror[M any] struct {
	c *rc.Cache

	mu  sync.Mutex
	ids map[string]struct{}
}

var _ mirror.Mirror[struct{}] = (*Mirror[struct{}])(nil)

type Config struct {
	NumCounters int64 // ~10x expected entries
	MaxCost     int64 // every document costs 1, so this is the entry budget
	BufferItems int64 // 0 => 64
	Metrics     bool
}

func New[M any](cfg Config) (*Mirror[M], error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 {
		return nil, errors.New("ristretto mirror: invalid config")
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	m := &Mirror[M]{ids: make(map[string]struct{})}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		OnEvict:     m.forget,
		OnReject:    m.forget,
		// cost is an entry count, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	m.c = c
	return m, nil
}

func (m *Mirror[M]) forget(it *rc.Item) {
	v, ok := it.Value.(item[M])
	if !ok {
		return
	}
	m.mu.Lock()
	delete(m.ids, v.id)
	m.mu.Unlock()
}

func (m *Mirror[M]) Get(id string) (M, bool) {
	var zero M
	v, ok := m.c.Get(id)
	if !ok {
		return zero, false
	}
	it, ok := v.(item[M])
	if !ok || it.id != id {
		return zero, false
	}
	return it.m, true
}

// Set waits for ristretto's buffers to drain so the entry is visible on return.
func (m *Mirror[M]) Set(id string, v M) error {
	m.mu.Lock()
	m.ids[id] = struct{}{}
	m.mu.Unlock()

	if !m.c.Set(id, item[M]{id: id, m: v}, 1) {
		m.mu.Lock()
		delete(m.ids, id)
		m.mu.Unlock()
		return ErrDropped
	}
	m.c.Wait()
	return nil
}

func (m *Mirror[M]) Delete(id string) {
	m.c.Del(id)
	m.c.Wait()
	m.mu.Lock()
	delete(m.ids, id)
	m.mu.Unlock()
}

func (m *Mirror[M]) Clear() {
	m.c.Clear()
	m.mu.Lock()
	m.ids = make(map[string]struct{})
	m.mu.Unlock()
}

func (m *Mirror[M]) Len() int { return len(m.Values()) }

func (m *Mirror[M]) Values() []M {
	m.mu.Lock()
	ids := make([]string, 0, len(m.ids))
	for id := range m.ids {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	out := make([]M, 0, len(ids))
	for _, id := range ids {
		if v, ok := m.Get(id); ok {
			out = append(out, v)
			continue
		}
		m.mu.Lock()
		delete(m.ids, id)
		m.mu.Unlock()
	}
	return out
}

func (m *Mirror[M]) Close() error {
	m.c.Close()
	return nil
}

// Metrics exposes ristretto's counters when Config.Metrics is set.
func (m *Mirror[M]) Metrics() *rc.Metrics { return m.c.Metrics }
