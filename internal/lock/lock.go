// Package lock provides short per-entity leases that serialize mutations on
// a single task or application across goroutines and processes. Leases are
// advisory; the version check at commit remains the source of truth.
package lock

import (
	"context"
	"time"
)

// Release gives the lease back. Releasing an expired or stolen lease is a no-op.
type Release func(ctx context.Context) error

// Locker acquires exclusive leases. Acquire never blocks: a held key
// returns sentinel.ErrLocked and callers back off and retry.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// Key builds a lease key for an entity.
func Key(kind, entityID string) string {
	return "vetting:lock:" + kind + ":" + entityID
}
