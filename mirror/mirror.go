// Package mirror defines the process-local copy of documents a cache keeps in
// front of its store, keyed by document id.
//
// The default Map never evicts on its own. The bounded implementations in the
// subpackages (lru, bigcache, ristretto) may drop entries at any time; a dropped
// entry is simply a miss and is fetched again from the store.
package mirror

import (
	"container/list"
	"sync"
)

// Mirror is an id-keyed document table. Implementations must be safe for
// concurrent use.
type Mirror[M any] interface {
	Get(id string) (M, bool)
	// Set stores m under id, replacing any previous entry. Errors mean the entry
	// was not stored; the mirror stays usable.
	Set(id string, m M) error
	Delete(id string)
	Clear()
	Len() int
	// Values returns a snapshot of every entry.
	Values() []M
}

// Closer is implemented by mirrors holding background resources.
type Closer interface {
	Close() error
}

type mapEntry[M any] struct {
	id string
	m  M
}

// Map is an unbounded mirror that keeps first-insertion order: Values returns
// entries in the order their ids were first set, and overwriting an id keeps
// its position.
type Map[M any] struct {
	mu    sync.RWMutex
	items map[string]*list.Element
	order *list.List
}

var _ Mirror[struct{}] = (*Map[struct{}])(nil)

func NewMap[M any]() *Map[M] {
	return &Map[M]{items: make(map[string]*list.Element), order: list.New()}
}

func (mm *Map[M]) Get(id string) (M, bool) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	if el, ok := mm.items[id]; ok {
		return el.Value.(*mapEntry[M]).m, true
	}
	var zero M
	return zero, false
}

func (mm *Map[M]) Set(id string, m M) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if el, ok := mm.items[id]; ok {
		el.Value.(*mapEntry[M]).m = m
		return nil
	}
	mm.items[id] = mm.order.PushBack(&mapEntry[M]{id: id, m: m})
	return nil
}

func (mm *Map[M]) Delete(id string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if el, ok := mm.items[id]; ok {
		mm.order.Remove(el)
		delete(mm.items, id)
	}
}

func (mm *Map[M]) Clear() {
	mm.mu.Lock()
	mm.items = make(map[string]*list.Element)
	mm.order.Init()
	mm.mu.Unlock()
}

func (mm *Map[M]) Len() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.items)
}

func (mm *Map[M]) Values() []M {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	out := make([]M, 0, len(mm.items))
	for el := mm.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*mapEntry[M]).m)
	}
	return out
}

// nop never stores anything.
type nop[M any] struct{}

// Nop returns a Mirror that disables mirroring while keeping the contract.
func Nop[M any]() Mirror[M] { return nop[M]{} }

func (nop[M]) Get(string) (M, bool) {
	var zero M
	return zero, false
}
func (nop[M]) Set(string, M) error { return nil }
func (nop[M]) Delete(string)       {}
func (nop[M]) Clear()              {}
func (nop[M]) Len() int            { return 0 }
func (nop[M]) Values() []M         { return nil }
