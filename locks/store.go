// Package locks implements the authoritative lease table used to coordinate
// exclusive editing access to shared donor records. A lease binds a lock key
// to the holder value of the actor class that claimed it; leases expire
// lazily, so a stored lease whose deadline has passed is treated as free on
// every read.
package locks

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidHolder is returned when a claim or release carries a
// non-positive holder value. Zero is reserved for "unlocked".
var ErrInvalidHolder = errors.New("holder value must be a positive integer")

// Lease is a time-bounded exclusive claim on a lock key.
type Lease struct {
	Holder    int
	ClaimedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the lease has passed its deadline at the given
// instant.
func (l Lease) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// Store defines the interface for the lease table.
//
// Implementations must make TryClaim linearizable per key: two concurrent
// claims with different holder values for the same non-expired key must
// yield exactly one success. Operations on different keys proceed
// independently.
type Store interface {
	// TryClaim attempts an atomic compare-and-set on the lease for key.
	// It succeeds when the key is free, the existing lease has expired, or
	// the existing lease already belongs to the same holder value
	// (re-entrant claim, which resets the deadline to now+ttl). On success
	// it returns (true, holder). On conflict it returns (false, current)
	// without mutating the lease, where current is the non-expired holder
	// value that owns the key.
	TryClaim(ctx context.Context, key string, holder int, ttl time.Duration) (bool, int, error)

	// Release removes the lease for key only if its holder value matches.
	// Releasing a free, expired, or differently-held key is a no-op, never
	// an error.
	Release(ctx context.Context, key string, holder int) error

	// Status reports the current holder value for each key: 0 for free or
	// expired keys, otherwise the stored holder value.
	Status(ctx context.Context, keys []string) (map[string]int, error)

	// Sweep removes expired leases to bound memory and returns how many
	// were removed. Correctness never depends on sweeping; reads already
	// treat expired leases as free.
	Sweep(ctx context.Context) (int, error)

	// Count reports the number of live leases. Claims are re-entrant and
	// releases are idempotent, so per-operation counting cannot track
	// lease cardinality; gauges derive from Count instead.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
