// Package provider defines the backing store abstraction used by memocache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a (namespace, key) pair (no
// prepended/appended metadata, no re-encoding, no mutation).
//
// Stores with a single flat keyspace flatten (ns, key) to "[prefix:]ns:key"
// with util.StorageKey, which backslash-escapes '\' and ':' inside ns. Group
// names may contain ':' and keys may contain anything; the escaping keeps every
// (ns, key) pair on its own storage key, so flushing one group never touches
// another.
// Records written by memocache carry a "MEMO" frame; foreign bytes under the
// same keys are treated as corruption and overwritten on the next miss.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned by Updater.Update when concurrent writers kept
// winning until the retry budget ran out.
var ErrConflict = errors.New("provider: update conflict, retries exhausted")

// Provider is a minimal namespaced byte store with TTLs.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, ns, key string) ([]byte, bool, error)

	// Set stores value with the given TTL; ttl <= 0 means no expiry.
	// May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, ns, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, ns, key string) error

	// Flush clears every key the provider owns.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// UpdateFunc maps the current record (found=false when absent) to the record
// to store. It may run more than once and must not have side effects.
type UpdateFunc func(cur []byte, found bool) ([]byte, error)

// Updater is implemented by providers that can run an atomic
// read-modify-write of one key.
type Updater interface {
	Update(ctx context.Context, ns, key string, ttl time.Duration, fn UpdateFunc) error
}
