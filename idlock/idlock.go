// Package idlock provides per-identifier mutual exclusion, used by the cache to
// make create-on-miss happen at most once per id.
//
// Local serializes goroutines of one process. Redis serializes processes sharing a
// Redis deployment; its locks expire after a TTL so a crashed holder cannot block
// an id forever.
package idlock

import "context"

// Locker serializes work on one identifier.
type Locker interface {
	// Lock blocks until id is held or ctx is done. The returned func releases the
	// lock and is safe to call more than once.
	Lock(ctx context.Context, id string) (unlock func(), err error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
