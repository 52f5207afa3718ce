package memocache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/memocache/codec"
	"github.com/unkn0wn-root/memocache/internal/util"
	"github.com/unkn0wn-root/memocache/internal/wire"
	pr "github.com/unkn0wn-root/memocache/provider"
)

type cache[V any] struct {
	provider       pr.Provider
	codec          c.Codec[V]
	log            Logger
	hooks          Hooks
	tenants        TenantResolver
	enabled        bool
	group          string
	defaultExpire  time.Duration
	computeSetCost SetCostFunc

	atomic bool
	// nil when the provider has no atomic update
	updater pr.Updater
	stripes *util.Stripes
	// nil unless Coalesce
	flight *singleflight.Group
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("memocache: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("memocache: codec is required")
	}
	group := opts.Group
	if group == "" {
		group = util.SanitizeGroup(opts.Name)
	}
	if group == "" {
		return nil, fmt.Errorf("memocache: group or name is required")
	}

	c := &cache[V]{
		provider: opts.Provider,
		codec:    opts.Codec,
		group:    group,
		enabled:  !opts.Disabled,
		atomic:   opts.AtomicAggregates,
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.tenants = coalesce[TenantResolver](opts.Tenants, contextTenants{})
	c.defaultExpire = coalesce[time.Duration](opts.DefaultExpire, DefaultExpire)

	if opts.ComputeSetCost != nil {
		c.computeSetCost = opts.ComputeSetCost
	} else {
		c.computeSetCost = func(_ string, _ []byte, _ bool, _ int) int64 { return 1 }
	}

	if c.atomic {
		if u, ok := opts.Provider.(pr.Updater); ok {
			c.updater = u
		} else {
			// in-process stores: serialize merges per group address
			c.stripes = &util.Stripes{}
		}
	}
	if opts.Coalesce {
		c.flight = &singleflight.Group{}
	}
	return c, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

func (c *cache[V]) Close(ctx context.Context) error {
	if c.provider != nil {
		return c.provider.Close(ctx)
	}
	return nil
}

// address is one call's resolved location in the backing store.
type address struct {
	group  string // group address; namespace of both modes, key of the aggregate
	key    string // physical address
	ttl    time.Duration
	single bool
}

func (a address) storageKey() string {
	if a.single {
		return util.StorageKey("", a.group, a.key)
	}
	return util.StorageKey("", a.group, a.group)
}

func (a address) flightKey() string {
	mode := "a"
	if a.single {
		mode = "s"
	}
	return mode + "\x00" + a.group + "\x00" + a.key
}

func (c *cache[V]) resolve(ctx context.Context, key string, opts CallOptions) address {
	t := c.tenants.Tenant(ctx)
	return address{
		group:  util.GroupAddress(coalesce(opts.Group, c.group), t.Network, t.Multi),
		key:    util.PhysicalAddress(key, t.ID, t.Multi, opts.Scope == PerTenant),
		ttl:    ttl(opts.Expire, c.defaultExpire),
		single: opts.Single,
	}
}

func (c *cache[V]) GetOrCompute(ctx context.Context, key string, produce Producer[V], opts CallOptions) (V, error) {
	var zero V
	if key == "" {
		return zero, ErrEmptyKey
	}
	if produce == nil {
		return zero, ErrNilProducer
	}
	if !c.enabled {
		return c.produce(ctx, key, produce)
	}

	a := c.resolve(ctx, key, opts)
	var agg *wire.Aggregate
	if a.single {
		if v, ok := c.getSingle(ctx, a); ok {
			return v, nil
		}
	} else {
		v, ok, cur := c.getAggregate(ctx, a)
		if ok {
			return v, nil
		}
		agg = cur
	}

	fill := func() (V, error) {
		v, err := c.produce(ctx, key, produce)
		if err != nil {
			return v, err
		}
		c.store(ctx, a, agg, v)
		return v, nil
	}
	if c.flight == nil {
		return fill()
	}
	res, err, _ := c.flight.Do(a.flightKey(), func() (any, error) { return fill() })
	if err != nil {
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}

func (c *cache[V]) Delete(ctx context.Context, key string, opts CallOptions) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !opts.Single {
		return ErrAggregateKey
	}
	if !c.enabled {
		return nil
	}
	a := c.resolve(ctx, key, opts)
	if err := c.provider.Del(ctx, a.group, a.key); err != nil {
		return &Error{Kind: BackingStoreUnavailable, Op: "delete", Key: a.storageKey(), Err: err}
	}
	c.log.Debug("deleted single", Fields{"group": a.group, "key": a.key})
	return nil
}

func (c *cache[V]) FlushGroup(ctx context.Context, group string) bool {
	if !c.enabled {
		return true
	}
	t := c.tenants.Tenant(ctx)
	ga := util.GroupAddress(coalesce(group, c.group), t.Network, t.Multi)
	if err := c.provider.Del(ctx, ga, ga); err != nil {
		e := &Error{Kind: BackingStoreUnavailable, Op: "flush", Key: ga, Err: err}
		c.log.Error("flush group failed", Fields{"group": ga, "err": err})
		c.hooks.FlushFailed(ga, e)
		return false
	}
	c.log.Debug("flushed group", Fields{"group": ga})
	return true
}

func (c *cache[V]) FlushAll(ctx context.Context) bool {
	if !c.enabled {
		return true
	}
	if err := c.provider.Flush(ctx); err != nil {
		e := &Error{Kind: BackingStoreUnavailable, Op: "flush", Err: err}
		c.log.Error("flush all failed", Fields{"err": err})
		c.hooks.FlushFailed("*", e)
		return false
	}
	c.log.Info("flushed backing store", nil)
	return true
}

func (c *cache[V]) produce(ctx context.Context, key string, produce Producer[V]) (V, error) {
	v, err := produce(ctx)
	if err != nil {
		var zero V
		c.log.Debug("producer failed", Fields{"key": key, "err": err})
		return zero, &Error{Kind: ProducerFailure, Op: "produce", Key: key, Err: err}
	}
	return v, nil
}

func (c *cache[V]) getSingle(ctx context.Context, a address) (V, bool) {
	var zero V
	raw, ok, err := c.provider.Get(ctx, a.group, a.key)
	if err != nil {
		c.readFailOpen(a, BackingStoreUnavailable, "get", err)
		return zero, false
	}
	if !ok {
		return zero, false
	}
	payload, err := wire.DecodeSingle(raw)
	if err != nil {
		c.readFailOpen(a, SerializationFailure, "decode", err)
		return zero, false
	}
	v, err := c.codec.Decode(payload)
	if err != nil {
		c.readFailOpen(a, SerializationFailure, "decode", err)
		return zero, false
	}
	return v, true
}

// getAggregate looks a.key up in the group aggregate. The aggregate is
// returned even on a miss so the fill can merge into it without a second
// read; it is nil when the record was absent, unreadable or corrupt.
func (c *cache[V]) getAggregate(ctx context.Context, a address) (V, bool, *wire.Aggregate) {
	var zero V
	raw, ok, err := c.provider.Get(ctx, a.group, a.group)
	if err != nil {
		c.readFailOpen(a, BackingStoreUnavailable, "get", err)
		return zero, false, nil
	}
	if !ok {
		return zero, false, nil
	}
	agg, err := wire.DecodeAggregate(raw)
	if err != nil {
		c.readFailOpen(a, SerializationFailure, "decode", err)
		return zero, false, nil
	}
	payload, ok := agg.Get(a.key)
	if !ok {
		return zero, false, agg
	}
	v, err := c.codec.Decode(payload)
	if err != nil {
		c.readFailOpen(a, SerializationFailure, "decode", err)
		return zero, false, agg
	}
	return v, true, agg
}

func (c *cache[V]) store(ctx context.Context, a address, agg *wire.Aggregate, v V) {
	payload, err := c.codec.Encode(v)
	if err != nil {
		c.writeFailed(a, &Error{Kind: SerializationFailure, Op: "encode", Key: a.storageKey(), Err: err})
		return
	}
	if a.single {
		c.set(ctx, a, wire.EncodeSingle(payload), 1)
		return
	}
	if c.atomic {
		c.merge(ctx, a, payload)
		return
	}
	if agg == nil {
		agg = &wire.Aggregate{}
	}
	agg.Put(a.key, payload)
	raw, err := wire.EncodeAggregate(agg)
	if err != nil {
		c.writeFailed(a, &Error{Kind: SerializationFailure, Op: "encode", Key: a.storageKey(), Err: err})
		return
	}
	c.set(ctx, a, raw, agg.Len())
}

// merge adds a.key to the group aggregate atomically. The aggregate is read
// again under the lock (or inside the provider transaction); the copy read on
// the lookup path may already be stale.
func (c *cache[V]) merge(ctx context.Context, a address, payload []byte) {
	entries := 0
	fn := func(cur []byte, found bool) ([]byte, error) {
		agg := &wire.Aggregate{}
		if found {
			if decoded, err := wire.DecodeAggregate(cur); err == nil {
				agg = decoded
			} else {
				c.log.Debug("overwriting corrupt aggregate", Fields{"group": a.group, "err": err})
			}
		}
		agg.Put(a.key, payload)
		entries = agg.Len()
		return wire.EncodeAggregate(agg)
	}

	if c.updater != nil {
		err := c.updater.Update(ctx, a.group, a.group, a.ttl, fn)
		switch {
		case err == nil:
		case errors.Is(err, pr.ErrConflict):
			c.log.Warn("aggregate merge gave up", Fields{"group": a.group, "key": a.key})
			c.hooks.AggregateConflict(a.storageKey(), err)
		case errors.Is(err, wire.ErrKeyLength):
			c.writeFailed(a, &Error{Kind: SerializationFailure, Op: "encode", Key: a.storageKey(), Err: err})
		default:
			c.writeFailed(a, &Error{Kind: BackingStoreUnavailable, Op: "update", Key: a.storageKey(), Err: err})
		}
		return
	}

	unlock := c.stripes.Lock(a.group)
	defer unlock()
	cur, found, err := c.provider.Get(ctx, a.group, a.group)
	if err != nil {
		c.readFailOpen(a, BackingStoreUnavailable, "get", err)
		found = false
	}
	raw, err := fn(cur, found)
	if err != nil {
		c.writeFailed(a, &Error{Kind: SerializationFailure, Op: "encode", Key: a.storageKey(), Err: err})
		return
	}
	c.set(ctx, a, raw, entries)
}

func (c *cache[V]) set(ctx context.Context, a address, raw []byte, entries int) {
	sk := a.storageKey()
	key := a.key
	if !a.single {
		key = a.group
	}
	ok, err := c.provider.Set(ctx, a.group, key, raw, c.computeSetCost(sk, raw, !a.single, entries), a.ttl)
	if err != nil {
		c.writeFailed(a, &Error{Kind: BackingStoreUnavailable, Op: "set", Key: sk, Err: err})
		return
	}
	if !ok {
		c.log.Debug("set rejected by provider (pressure)", Fields{"key": sk, "aggregate": !a.single})
		c.hooks.StoreSetRejected(sk, !a.single)
	}
}

func (c *cache[V]) readFailOpen(a address, kind ErrorKind, op string, err error) {
	sk := a.storageKey()
	e := &Error{Kind: kind, Op: op, Key: sk, Err: err}
	c.log.Warn("cache read failed, recomputing", Fields{"key": sk, "kind": kind.String(), "err": err})
	c.hooks.ReadFailOpen(sk, e)
}

func (c *cache[V]) writeFailed(a address, e *Error) {
	c.log.Warn("cache write failed", Fields{"key": e.Key, "kind": e.Kind.String(), "err": e.Err})
	c.hooks.WriteFailed(e.Key, !a.single, e)
}
