package memocache

import "time"

// Scope selects whether a key is stored per tenant or shared by all tenants.
type Scope uint8

const (
	PerTenant Scope = iota
	GlobalAcrossTenants
)

func (s Scope) String() string {
	switch s {
	case PerTenant:
		return "tenant"
	case GlobalAcrossTenants:
		return "global"
	default:
		return "unknown"
	}
}

// NoExpiry stores a value without TTL.
const NoExpiry time.Duration = -1

// CallOptions are per-call overrides. Zero fields fall back to the facade
// defaults, so the zero value means: default expire, default group,
// aggregate mode, per-tenant scope.
type CallOptions struct {
	Expire time.Duration // whole seconds (rounded down, at least 1s); NoExpiry => no TTL
	Group  string
	Single bool
	Scope  Scope
}

// ttl resolves the TTL handed to the provider; 0 means no expiry.
func ttl(expire, def time.Duration) time.Duration {
	if expire == 0 {
		expire = def
	}
	if expire < 0 {
		return 0
	}
	if d := expire.Truncate(time.Second); d > 0 {
		return d
	}
	return time.Second
}
