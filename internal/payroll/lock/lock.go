// Package lock provides per-document submission locks. Stage transitions are
// not atomic compare-and-swap operations on the persisted record, so the
// orchestrator must hold the document's lock for the whole pipeline run; two
// concurrent runs over the same document are never allowed.
package lock

import "context"

// Locker acquires and releases a named lock. Acquire returns
// sentinel.ErrLocked (possibly wrapped) when the lock is already held.
type Locker interface {
	// Acquire takes the lock for key. The returned release function is
	// idempotent and must be called when the pipeline run finishes.
	Acquire(ctx context.Context, key string) (release func(), err error)
}
