package mongocache

// Hooks are lightweight callbacks for cache events.
// Implementations MUST be cheap and non-blocking; they run on every operation.
type Hooks interface {
	// Get/GetOrCreate answered from the mirror.
	MirrorHit(ns, id string)
	// Get/GetOrCreate had to consult the store.
	MirrorMiss(ns, id string)

	// A document was inserted by Create, GetOrCreate or FindOrCreate.
	Created(ns, id string)

	// The mirror was cleared and repopulated from a fetch result.
	// before is the mirror size prior to the resync, after the result size.
	Resynced(ns string, before, after int)

	// Documents were removed from the mirror by a delete or an explicit evict.
	Evicted(ns string, n int)

	// A mirror write failed (*MirrorError).
	MirrorError(ns string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) MirrorHit(string, string)  {}
func (NopHooks) MirrorMiss(string, string) {}
func (NopHooks) Created(string, string)    {}
func (NopHooks) Resynced(string, int, int) {}
func (NopHooks) Evicted(string, int)       {}
func (NopHooks) MirrorError(string, error) {}
