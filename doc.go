// Package mongocache implements a cache-aside access layer for one document
// collection. A Cache keeps a process-local mirror of documents keyed by id and
// decides per operation whether to answer from the mirror or consult the Store.
//
// Components:
//   - Store: the backing collection (MongoDB, Redis, in-memory), see package store.
//   - Mirror: id-keyed local copy. Unbounded ordered map by default; lru, bigcache
//     and ristretto variants are bounded, see package mirror.
//   - Mapper: turns entities into field documents for partial-match queries and
//     shallow merges, see package codec.
//   - Locker: optional per-id exclusion for create-on-miss, see package idlock.
//
// Read paths:
//
//	Get(id)          mirror hit => no store call; miss => FetchByID, mirror it
//	GetOrCreate(id)  as Get; store miss => Insert + Persist, mirror it
//	Find(q)          always FetchOne; a hit overwrites the mirror entry
//	Filter(q)        mirror only
//	FetchFilter(q)   FetchMany, then resync the mirror per ReconcileMode
//
// The mirror is never shared between processes and has no coherence protocol:
// writes made by other processes are visible only after a miss, a Find, or a resync.
//
// Store errors are returned unchanged and leave the mirror as it was before the
// call. A lookup that finds nothing is reported as ok=false, never as an error.
package mongocache
