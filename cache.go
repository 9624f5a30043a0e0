package mongocache

import (
	"context"
	"fmt"

	"github.com/drgatoxd/mongo-cache/codec"
	"github.com/drgatoxd/mongo-cache/idlock"
	"github.com/drgatoxd/mongo-cache/mirror"
	"github.com/drgatoxd/mongo-cache/store"
)

type cache[M Entity] struct {
	ns        string
	store     store.Store[M]
	mirror    mirror.Mirror[M]
	mapper    codec.Mapper[M]
	log       Logger
	hooks     Hooks
	locker    idlock.Locker
	reconcile ReconcileMode
	enabled   bool
}

func newCache[M Entity](opts Options[M]) (*cache[M], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("mongocache: store is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("mongocache: namespace is required")
	}
	switch opts.Reconcile {
	case ReconcileCount, ReconcileIDs, ReconcileAlways:
	default:
		return nil, fmt.Errorf("mongocache: unknown reconcile mode %d", opts.Reconcile)
	}

	c := &cache[M]{
		ns:        opts.Namespace,
		store:     opts.Store,
		locker:    opts.Locker,
		reconcile: opts.Reconcile,
		enabled:   !opts.Disabled,
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.mapper = mapperFor(opts.Mapper, opts.Store)
	switch {
	case opts.Disabled:
		c.mirror = mirror.Nop[M]()
	case opts.Mirror != nil:
		c.mirror = opts.Mirror
	default:
		c.mirror = mirror.NewMap[M]()
	}

	return c, nil
}

func (c *cache[M]) Enabled() bool { return c.enabled }

func (c *cache[M]) Close(ctx context.Context) error {
	// mirror and locker first (best effort)
	if cl, ok := c.mirror.(mirror.Closer); ok {
		_ = cl.Close()
	}
	if c.locker != nil {
		_ = c.locker.Close(ctx)
	}
	return c.store.Close(ctx)
}

// ---- point lookups ----

func (c *cache[M]) Get(ctx context.Context, id string) (M, bool, error) {
	if m, ok := c.lookup(id); ok {
		return m, true, nil
	}
	return c.load(ctx, id)
}

func (c *cache[M]) GetOrCreate(ctx context.Context, id string) (M, error) {
	var zero M
	if m, ok := c.lookup(id); ok {
		return m, nil
	}
	if c.locker != nil {
		unlock, err := c.locker.Lock(ctx, id)
		if err != nil {
			return zero, err
		}
		defer unlock()
		// the previous holder may have created and mirrored it
		if m, ok := c.mirror.Get(id); ok {
			return m, nil
		}
	}
	m, ok, err := c.load(ctx, id)
	if err != nil {
		return zero, err
	}
	if ok {
		return m, nil
	}
	return c.create(ctx, Query{store.IDField: id})
}

func (c *cache[M]) Find(ctx context.Context, q Query) (M, bool, error) {
	var zero M
	m, ok, err := c.store.FetchOne(ctx, q)
	if err != nil || !ok {
		return zero, false, err
	}
	c.remember(m)
	return m, true, nil
}

func (c *cache[M]) FindOrCreate(ctx context.Context, q Query) (M, error) {
	var zero M
	if id, ok := q[store.IDField].(string); ok && id != "" && c.locker != nil {
		unlock, err := c.locker.Lock(ctx, id)
		if err != nil {
			return zero, err
		}
		defer unlock()
	}
	m, ok, err := c.Find(ctx, q)
	if err != nil {
		return zero, err
	}
	if ok {
		return m, nil
	}
	return c.create(ctx, q)
}

// ---- collections ----

func (c *cache[M]) Filter(_ context.Context, q Query) ([]M, error) {
	match, err := store.Compile(c.mapper, q)
	if err != nil {
		return nil, err
	}
	out := []M{}
	for _, m := range c.mirror.Values() {
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

func (c *cache[M]) FetchFilter(ctx context.Context, q Query) ([]M, error) {
	res, err := c.store.FetchMany(ctx, q)
	if err != nil {
		return nil, err
	}
	c.reconcileWith(res)
	return res, nil
}

func (c *cache[M]) All(_ context.Context) ([]M, error) {
	vals := c.mirror.Values()
	if vals == nil {
		vals = []M{}
	}
	return vals, nil
}

func (c *cache[M]) FetchAll(ctx context.Context) ([]M, error) {
	res, err := c.store.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	c.reconcileWith(res)
	return res, nil
}

func (c *cache[M]) Reload(ctx context.Context) ([]M, error) {
	res, err := c.store.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	c.resync(res)
	return res, nil
}

// ---- writes ----

func (c *cache[M]) Create(ctx context.Context, data Query) (M, error) {
	return c.create(ctx, data)
}

func (c *cache[M]) Update(ctx context.Context, id string, patch Query) (bool, error) {
	cur, ok, err := c.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	merged, err := c.merge(cur, patch)
	if err != nil {
		return false, err
	}
	if err := c.store.Persist(ctx, merged); err != nil {
		return false, err
	}
	c.remember(merged)
	return true, nil
}

func (c *cache[M]) Delete(ctx context.Context, id string) error {
	if err := c.store.DeleteOne(ctx, id); err != nil {
		return err
	}
	c.evict(id)
	return nil
}

func (c *cache[M]) DeleteAll(ctx context.Context) error {
	if err := c.store.DeleteMany(ctx, Query{}); err != nil {
		return err
	}
	n := c.mirror.Len()
	c.mirror.Clear()
	c.hooks.Evicted(c.ns, n)
	c.log.Debug("mirror cleared", Fields{"ns": c.ns, "evicted": n})
	return nil
}

func (c *cache[M]) DeleteWhere(ctx context.Context, q Query) error {
	// collect before the store call; matches are gone from the store afterwards
	local, err := c.Filter(ctx, q)
	if err != nil {
		return err
	}
	if err := c.store.DeleteMany(ctx, q); err != nil {
		return err
	}
	ids := make([]string, len(local))
	for i, m := range local {
		ids[i] = m.EntityID()
	}
	c.evict(ids...)
	return nil
}

// ---- mirror only ----

func (c *cache[M]) Peek(id string) (M, bool) { return c.mirror.Get(id) }
func (c *cache[M]) Len() int                { return c.mirror.Len() }
func (c *cache[M]) Evict(id string)         { c.evict(id) }

func (c *cache[M]) Purge() {
	n := c.mirror.Len()
	c.mirror.Clear()
	c.hooks.Evicted(c.ns, n)
	c.log.Debug("mirror purged", Fields{"ns": c.ns, "evicted": n})
}

// ---- internals ----

func (c *cache[M]) lookup(id string) (M, bool) {
	m, ok := c.mirror.Get(id)
	if ok {
		c.hooks.MirrorHit(c.ns, id)
		return m, true
	}
	c.hooks.MirrorMiss(c.ns, id)
	return m, false
}

func (c *cache[M]) load(ctx context.Context, id string) (M, bool, error) {
	var zero M
	m, ok, err := c.store.FetchByID(ctx, id)
	if err != nil || !ok {
		return zero, false, err
	}
	c.remember(m)
	return m, true, nil
}

func (c *cache[M]) create(ctx context.Context, data Query) (M, error) {
	var zero M
	m, err := c.store.Insert(ctx, data)
	if err != nil {
		return zero, err
	}
	if err := c.store.Persist(ctx, m); err != nil {
		return zero, err
	}
	c.remember(m)
	c.hooks.Created(c.ns, m.EntityID())
	c.log.Debug("document created", Fields{"ns": c.ns, "id": m.EntityID()})
	return m, nil
}

// remember mirrors m under its own id. Failures are reported, never returned.
func (c *cache[M]) remember(m M) {
	id := m.EntityID()
	if err := c.mirror.Set(id, m); err != nil {
		merr := &MirrorError{Op: "set", ID: id, Err: err}
		c.log.Warn("mirror set failed", Fields{"ns": c.ns, "id": id, "err": err})
		c.hooks.MirrorError(c.ns, merr)
	}
}

func (c *cache[M]) evict(ids ...string) {
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		c.mirror.Delete(id)
	}
	c.hooks.Evicted(c.ns, len(ids))
}

func (c *cache[M]) reconcileWith(res []M) {
	var stale bool
	switch c.reconcile {
	case ReconcileAlways:
		stale = true
	case ReconcileIDs:
		stale = !c.sameIDs(res)
	default:
		stale = len(res) != c.mirror.Len()
	}
	if !stale {
		c.log.Debug("mirror kept", Fields{"ns": c.ns, "mode": c.reconcile.String(), "size": len(res)})
		return
	}
	c.resync(res)
}

func (c *cache[M]) resync(res []M) {
	before := c.mirror.Len()
	c.mirror.Clear()
	for _, m := range res {
		c.remember(m)
	}
	c.hooks.Resynced(c.ns, before, len(res))
	c.log.Debug("mirror resynced", Fields{"ns": c.ns, "before": before, "after": len(res)})
}

func (c *cache[M]) sameIDs(res []M) bool {
	vals := c.mirror.Values()
	if len(vals) != len(res) {
		return false
	}
	have := make(map[string]struct{}, len(vals))
	for _, m := range vals {
		have[m.EntityID()] = struct{}{}
	}
	for _, m := range res {
		if _, ok := have[m.EntityID()]; !ok {
			return false
		}
	}
	return true
}

// merge replaces the top-level fields of cur named by patch.
func (c *cache[M]) merge(cur M, patch Query) (M, error) {
	var zero M
	if len(patch) == 0 {
		return cur, nil
	}
	p, err := c.mapper.Normalize(patch)
	if err != nil {
		return zero, err
	}
	if raw, ok := p[store.IDField]; ok && raw != cur.EntityID() {
		return zero, ErrIDChange
	}
	return c.mapper.Merge(cur, patch)
}
