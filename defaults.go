package memocache

import "time"

// DefaultExpire is the TTL used when neither Options nor CallOptions set one.
const DefaultExpire = 24 * time.Hour

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
