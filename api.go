package mongocache

import (
	"context"

	"github.com/drgatoxd/mongo-cache/codec"
	"github.com/drgatoxd/mongo-cache/idlock"
	"github.com/drgatoxd/mongo-cache/mirror"
	"github.com/drgatoxd/mongo-cache/store"
)

type (
	Entity = store.Entity
	Query  = store.Query
)

// ReconcileMode decides when FetchFilter and FetchAll replace the mirror with the
// store's result set.
type ReconcileMode int

const (
	// ReconcileCount resyncs when the result size differs from the mirror size.
	// Equal sizes keep the mirror even if the documents differ.
	ReconcileCount ReconcileMode = iota
	// ReconcileIDs resyncs when the result's id set differs from the mirror's.
	ReconcileIDs
	// ReconcileAlways resyncs on every fetch.
	ReconcileAlways
)

func (r ReconcileMode) String() string {
	switch r {
	case ReconcileCount:
		return "count"
	case ReconcileIDs:
		return "ids"
	case ReconcileAlways:
		return "always"
	default:
		return "unknown"
	}
}

// Cache mediates every read and write of one collection. M is the caller's document
// type; it reports its id through EntityID.
type Cache[M Entity] interface {
	Enabled() bool
	Close(context.Context) error

	// Get returns the mirrored document or fetches it by id. ok=false when the
	// store has no such document.
	Get(ctx context.Context, id string) (m M, ok bool, err error)
	// GetOrCreate is Get that inserts {_id: id} when the store has no document.
	GetOrCreate(ctx context.Context, id string) (M, error)
	// Find always asks the store for the first document matching q.
	Find(ctx context.Context, q Query) (m M, ok bool, err error)
	// FindOrCreate is Find that inserts a document seeded from q on a miss.
	FindOrCreate(ctx context.Context, q Query) (M, error)

	// Filter matches q against mirrored documents only.
	Filter(ctx context.Context, q Query) ([]M, error)
	// FetchFilter returns the store's matches for q and reconciles the mirror.
	FetchFilter(ctx context.Context, q Query) ([]M, error)
	// All returns every mirrored document.
	All(ctx context.Context) ([]M, error)
	// FetchAll returns every stored document and reconciles the mirror.
	FetchAll(ctx context.Context) ([]M, error)
	// Reload replaces the mirror with the full collection unconditionally.
	Reload(ctx context.Context) ([]M, error)

	Create(ctx context.Context, data Query) (M, error)
	// Update shallow-merges patch into the document with id and persists it.
	// Returns false without writing when no such document exists.
	Update(ctx context.Context, id string, patch Query) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	// DeleteWhere deletes every stored match of q. Only mirrored matches are
	// evicted; unmirrored ones were never cached.
	DeleteWhere(ctx context.Context, q Query) error

	// Mirror-only helpers; none of them touch the store.
	Peek(id string) (M, bool)
	Len() int
	Evict(id string)
	Purge()
}

// Options configure a Cache. Only Namespace and Store are required.
type Options[M Entity] struct {
	// Required
	Namespace string // collection name; labels logs, hooks and metrics
	Store     store.Store[M]

	Mirror    mirror.Mirror[M] // nil => mirror.NewMap
	Mapper    codec.Mapper[M]  // nil => the store's mapper, else codec.JSONMapper
	Logger    Logger           // nil => NopLogger
	Hooks     Hooks            // nil => NopHooks
	Locker    idlock.Locker    // nil => no per-id exclusion on create-on-miss
	Reconcile ReconcileMode    // default ReconcileCount
	Disabled  bool             // bypass the mirror: every read goes to the store
}

func New[M Entity](opts Options[M]) (Cache[M], error) {
	c, err := newCache[M](opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}
