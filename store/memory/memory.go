// Package memory provides an in-process store.Store. It is the reference
// implementation of the store contract and the default fake in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/drgatoxd/mongo-cache/codec"
	"github.com/drgatoxd/mongo-cache/store"
)

type entry[M any] struct {
	m   M
	seq uint64
}

// Store keeps documents in a map. Results are returned in insertion order.
type Store[M store.Entity] struct {
	mu     sync.RWMutex
	docs   map[string]entry[M]
	seq    uint64
	mapper codec.Mapper[M]
	newID  func() string
}

var _ store.Store[store.Entity] = (*Store[store.Entity])(nil)

type Options[M any] struct {
	Mapper codec.Mapper[M] // nil => codec.JSONMapper
	NewID  func() string   // nil => uuid.NewString
}

func New[M store.Entity](opts Options[M]) *Store[M] {
	s := &Store[M]{
		docs:   make(map[string]entry[M]),
		mapper: opts.Mapper,
		newID:  opts.NewID,
	}
	if s.mapper == nil {
		s.mapper = codec.JSONMapper[M]{}
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

func (s *Store[M]) Mapper() codec.Mapper[M] { return s.mapper }

// Len returns the number of stored documents.
func (s *Store[M]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store[M]) FetchByID(_ context.Context, id string) (M, bool, error) {
	s.mu.RLock()
	e, ok := s.docs[id]
	s.mu.RUnlock()
	return e.m, ok, nil
}

func (s *Store[M]) FetchOne(ctx context.Context, q store.Query) (M, bool, error) {
	var zero M
	match, err := store.Compile(s.mapper, q)
	if err != nil {
		return zero, false, err
	}
	for _, m := range s.snapshot() {
		ok, err := match(m)
		if err != nil {
			return zero, false, err
		}
		if ok {
			return m, true, nil
		}
	}
	return zero, false, nil
}

func (s *Store[M]) FetchAll(_ context.Context) ([]M, error) {
	return s.snapshot(), nil
}

func (s *Store[M]) FetchMany(_ context.Context, q store.Query) ([]M, error) {
	match, err := store.Compile(s.mapper, q)
	if err != nil {
		return nil, err
	}
	out := []M{}
	for _, m := range s.snapshot() {
		ok, err := match(m)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store[M]) Insert(_ context.Context, data store.Query) (M, error) {
	var zero M
	doc, id, err := store.Seed(data, s.newID)
	if err != nil {
		return zero, err
	}
	m, err := s.mapper.Entity(doc)
	if err != nil {
		return zero, err
	}
	if m.EntityID() != id {
		return zero, fmt.Errorf("%w: entity does not carry %s %q", store.ErrInvalidID, store.IDField, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; ok {
		return zero, fmt.Errorf("%w: %q", store.ErrDuplicateID, id)
	}
	s.seq++
	s.docs[id] = entry[M]{m: m, seq: s.seq}
	return m, nil
}

func (s *Store[M]) Persist(_ context.Context, m M) error {
	id := m.EntityID()
	if id == "" {
		return store.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		s.seq++
		e.seq = s.seq
	}
	e.m = m
	s.docs[id] = e
	return nil
}

func (s *Store[M]) DeleteOne(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.docs, id)
	s.mu.Unlock()
	return nil
}

func (s *Store[M]) DeleteMany(_ context.Context, q store.Query) error {
	match, err := store.Compile(s.mapper, q)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.docs {
		ok, err := match(e.m)
		if err != nil {
			return err
		}
		if ok {
			delete(s.docs, id)
		}
	}
	return nil
}

func (s *Store[M]) Close(context.Context) error { return nil }

func (s *Store[M]) snapshot() []M {
	s.mu.RLock()
	entries := make([]entry[M], 0, len(s.docs))
	for _, e := range s.docs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]M, len(entries))
	for i, e := range entries {
		out[i] = e.m
	}
	return out
}
