// Package memocache memoizes computed values behind a pluggable key-value store,
// with group-based and whole-store invalidation.
//
// Components:
//   - Provider: byte store with namespaces and TTLs (e.g. Redis, Ristretto, BigCache).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - TenantResolver: tells the facade, per call, whether the host is multi-tenant
//     and which tenant is current.
//
// Addresses:
//
//	group address     <group>[_<network>]            - namespace of every record of the group
//	physical address  <key>[_<tenant>]               - per-tenant unless Scope is GlobalAcrossTenants
//
// Storage modes:
//
//	single     (ns=<group address>, key=<physical address>) -> one value
//	aggregate  (ns=<group address>, key=<group address>)    -> every value of the group
//
// FlushGroup deletes the aggregate record, dropping every aggregate-mode key of the
// group at once. Single-mode records are removed with Delete or FlushAll.
//
// Usage:
//
//	memo, _ := memocache.New[Price](memocache.Options[Price]{
//	    Name:     "Shop Plugin",
//	    Provider: p,
//	    Codec:    codec.Msgpack[Price]{},
//	})
//	price, err := memo.GetOrCompute(ctx, "price-EUR", loadPrice, memocache.CallOptions{
//	    Group:  "prices",
//	    Expire: time.Minute,
//	    Single: true,
//	})
package memocache
