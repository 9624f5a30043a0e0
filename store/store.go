// Package store defines the persistence capability the cache layer sits in front of.
//
// A Store owns one logical collection of documents. It is the source of truth: the
// cache only decides when to call it. Implementations must be safe for concurrent use.
//
// Lookups that find nothing are not errors: FetchByID and FetchOne return ok=false.
// Every other failure (transport, constraint violation, bad predicate) is returned
// as an error and is propagated unchanged by the cache.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/drgatoxd/mongo-cache/codec"
)

// IDField is the document field holding an entity's identifier.
const IDField = "_id"

var (
	// ErrDuplicateID is returned by Insert when a document with the same id exists.
	ErrDuplicateID = errors.New("store: duplicate id")
	// ErrCorrupt is returned when a stored document cannot be decoded.
	ErrCorrupt = errors.New("store: corrupt document")
	// ErrInvalidID is returned when a document carries a non-string or empty id.
	ErrInvalidID = errors.New("store: invalid id")
)

// Entity is implemented by documents managed through a Store.
type Entity interface {
	// EntityID returns the value of the _id field.
	EntityID() string
}

// Query is a sparse, recursively partial document used as an equality predicate.
// Keys are serialized field names; nested Query (or map[string]any) values constrain
// only the sub-fields they name. The empty Query matches every document.
type Query map[string]any

// Store is the capability contract of the backing collection.
type Store[M Entity] interface {
	// FetchByID returns (m, true, nil) when found and (zero, false, nil) when not.
	FetchByID(ctx context.Context, id string) (M, bool, error)
	// FetchOne returns the first document matching q, if any.
	FetchOne(ctx context.Context, q Query) (M, bool, error)
	// FetchAll returns every document in the collection.
	FetchAll(ctx context.Context) ([]M, error)
	// FetchMany returns every document matching q.
	FetchMany(ctx context.Context, q Query) ([]M, error)

	// Insert creates a document from data, assigning an id when data has none.
	// Returns ErrDuplicateID (possibly wrapped) on id conflicts.
	Insert(ctx context.Context, data Query) (M, error)
	// Persist writes the entity's current state, creating it if needed.
	Persist(ctx context.Context, m M) error

	// DeleteOne removes the document with id. Missing ids are not an error.
	DeleteOne(ctx context.Context, id string) error
	// DeleteMany removes every document matching q.
	DeleteMany(ctx context.Context, q Query) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// MapperProvider is implemented by stores that want the cache to interpret
// documents with the same field naming the store uses.
type MapperProvider[M any] interface {
	Mapper() codec.Mapper[M]
}

// Seed returns a copy of data whose IDField is set, generating one with newID when
// data carries none. The effective id is returned alongside.
func Seed(data Query, newID func() string) (map[string]any, string, error) {
	doc := make(map[string]any, len(data)+1)
	for k, v := range data {
		doc[k] = v
	}
	raw, ok := doc[IDField]
	if !ok || raw == nil {
		id := newID()
		doc[IDField] = id
		return doc, id, nil
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidID, raw)
	}
	return doc, id, nil
}
