// Package redis implements store.Store on a single Redis hash per collection.
//
// Layout: HSET <prefix>:doc:<namespace> <id> <record>, where record is the
// internal/wire framing of the id plus the codec-encoded document. Predicate reads
// (FetchOne, FetchMany, DeleteMany) load the whole hash and match locally, so this
// store suits small to medium collections.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/drgatoxd/mongo-cache/codec"
	"github.com/drgatoxd/mongo-cache/internal/util"
	"github.com/drgatoxd/mongo-cache/internal/wire"
	"github.com/drgatoxd/mongo-cache/store"
)

var (
	ErrNilClient   = errors.New("redis store: nil client")
	ErrNoNamespace = errors.New("redis store: namespace is required")
)

const defaultPrefix = "mcache"

type Store[M store.Entity] struct {
	rdb         goredis.UniversalClient
	key         string
	codec       codec.Codec[M]
	mapper      codec.Mapper[M]
	newID       func() string
	closeClient bool
}

var _ store.Store[store.Entity] = (*Store[store.Entity])(nil)

type Config[M any] struct {
	Client    goredis.UniversalClient
	Namespace string // collection name
	Prefix    string // "" => "mcache"

	Codec  codec.Codec[M]  // nil => codec.JSON
	Mapper codec.Mapper[M] // nil => codec.JSONMapper
	NewID  func() string   // nil => uuid.NewString

	CloseClient bool // set true only if this store exclusively owns the client
}

func New[M store.Entity](cfg Config[M]) (*Store[M], error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Namespace == "" {
		return nil, ErrNoNamespace
	}
	s := &Store[M]{
		rdb:         cfg.Client,
		key:         util.CollectionKey(coalesce(cfg.Prefix, defaultPrefix), cfg.Namespace),
		codec:       cfg.Codec,
		mapper:      cfg.Mapper,
		newID:       cfg.NewID,
		closeClient: cfg.CloseClient,
	}
	if s.codec == nil {
		s.codec = codec.JSON[M]{}
	}
	if s.mapper == nil {
		s.mapper = codec.JSONMapper[M]{}
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

func (s *Store[M]) Mapper() codec.Mapper[M] { return s.mapper }

// Key returns the Redis hash holding the collection.
func (s *Store[M]) Key() string { return s.key }

func (s *Store[M]) FetchByID(ctx context.Context, id string) (M, bool, error) {
	var zero M
	b, err := s.rdb.HGet(ctx, s.key, id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	m, err := s.decode(b)
	if err != nil {
		return zero, false, err
	}
	if m.EntityID() != id {
		return zero, false, fmt.Errorf("%w: field %q holds %q", store.ErrCorrupt, id, m.EntityID())
	}
	return m, true, nil
}

func (s *Store[M]) FetchOne(ctx context.Context, q store.Query) (M, bool, error) {
	var zero M
	match, err := store.Compile(s.mapper, q)
	if err != nil {
		return zero, false, err
	}
	all, err := s.FetchAll(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, m := range all {
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

func (s *Store[M]) FetchAll(ctx context.Context) ([]M, error) {
	vals, err := s.rdb.HVals(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]M, 0, len(vals))
	for _, v := range vals {
		m, err := s.decode([]byte(v))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store[M]) FetchMany(ctx context.Context, q store.Query) ([]M, error) {
	match, err := store.Compile(s.mapper, q)
	if err != nil {
		return nil, err
	}
	all, err := s.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
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

func (s *Store[M]) Insert(ctx context.Context, data store.Query) (M, error) {
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
	b, err := s.encode(id, m)
	if err != nil {
		return zero, err
	}
	ok, err := s.rdb.HSetNX(ctx, s.key, id, b).Result()
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("%w: %q", store.ErrDuplicateID, id)
	}
	return m, nil
}

func (s *Store[M]) Persist(ctx context.Context, m M) error {
	id := m.EntityID()
	if id == "" {
		return store.ErrInvalidID
	}
	b, err := s.encode(id, m)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.key, id, b).Err()
}

func (s *Store[M]) DeleteOne(ctx context.Context, id string) error {
	return s.rdb.HDel(ctx, s.key, id).Err()
}

func (s *Store[M]) DeleteMany(ctx context.Context, q store.Query) error {
	if len(q) == 0 {
		return s.rdb.Del(ctx, s.key).Err()
	}
	matches, err := s.FetchMany(ctx, q)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.EntityID()
	}
	return s.rdb.HDel(ctx, s.key, ids...).Err()
}

// Close releases the underlying redis client only when this store owns it.
func (s *Store[M]) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func (s *Store[M]) encode(id string, m M) ([]byte, error) {
	payload, err := s.codec.Encode(m)
	if err != nil {
		return nil, err
	}
	return wire.EncodeRecord(id, payload)
}

func (s *Store[M]) decode(b []byte) (M, error) {
	var zero M
	id, payload, err := wire.DecodeRecord(b)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", store.ErrCorrupt, err)
	}
	m, err := s.codec.Decode(payload)
	if err != nil {
		return zero, fmt.Errorf("%w: %q: %v", store.ErrCorrupt, id, err)
	}
	if m.EntityID() != id {
		return zero, fmt.Errorf("%w: record %q decodes to %q", store.ErrCorrupt, id, m.EntityID())
	}
	return m, nil
}

func coalesce(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
