package memocache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/memocache/codec"
	pr "github.com/unkn0wn-root/memocache/provider"
)

type SetCostFunc func(storageKey string, raw []byte, isAggregate bool, entries int) int64

// Producer computes the value for a key on a cache miss.
type Producer[V any] func(ctx context.Context) (V, error)

// Facade is the memoizing cache API. V is the caller's value type.
// Serialization is handled by a pluggable Codec[V].
type Facade[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// GetOrCompute returns the stored value for key, or calls produce once and
	// stores its result. Store failures degrade to a miss; producer failures
	// come back as *Error with Kind ProducerFailure.
	GetOrCompute(ctx context.Context, key string, produce Producer[V], opts CallOptions) (V, error)

	// Delete removes one single-mode record. Aggregate-mode entries can only be
	// dropped with FlushGroup (ErrAggregateKey).
	Delete(ctx context.Context, key string, opts CallOptions) error

	// FlushGroup deletes the aggregate record of group ("" => default group).
	FlushGroup(ctx context.Context, group string) bool
	// FlushAll clears the whole backing store.
	FlushAll(ctx context.Context) bool
}

// Options configure a Facade. Provider and Codec are required, plus one of
// Group or Name; everything else has sensible defaults.
type Options[V any] struct {
	// Required
	Provider pr.Provider
	Codec    c.Codec[V]
	Group    string // default group; "" => sanitized Name
	Name     string // display name the default group is derived from. e.g. "Shop Plugin"

	DefaultExpire  time.Duration  // 0 => 24h; NoExpiry => stored without TTL
	Tenants        TenantResolver // nil => tenant read from ctx (WithTenant)
	Logger         Logger         // nil => NopLogger
	Hooks          Hooks          // nil => NopHooks
	Disabled       bool           // default false (enabled)
	ComputeSetCost SetCostFunc    // default 1

	// AtomicAggregates replaces the best-effort read-modify-write of group
	// aggregates with an atomic merge: provider.Updater when the provider has
	// one, an in-process lock per group otherwise.
	AtomicAggregates bool
	// Coalesce shares one producer call between concurrent in-process misses
	// on the same address.
	Coalesce bool
}

func New[V any](opts Options[V]) (Facade[V], error) {
	return newCache[V](opts)
}
