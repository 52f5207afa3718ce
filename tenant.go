package memocache

import "context"

// Tenant describes the tenant context of one call.
type Tenant struct {
	Multi   bool   // host runs in multi-tenant mode
	ID      string // current tenant; suffixes per-tenant keys
	Network string // network shared by all tenants; suffixes group addresses
}

// TenantResolver supplies the tenant context per call. The facade never
// derives it on its own.
type TenantResolver interface {
	Tenant(ctx context.Context) Tenant
}

type TenantFunc func(ctx context.Context) Tenant

func (f TenantFunc) Tenant(ctx context.Context) Tenant { return f(ctx) }

// StaticTenant resolves every call to the same tenant.
type StaticTenant Tenant

func (s StaticTenant) Tenant(context.Context) Tenant { return Tenant(s) }

type tenantKey struct{}

// WithTenant attaches t to ctx for the default resolver.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

func TenantFromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantKey{}).(Tenant)
	return t, ok
}

// contextTenants is the default resolver. No tenant in ctx => single tenant.
type contextTenants struct{}

func (contextTenants) Tenant(ctx context.Context) Tenant {
	t, _ := TenantFromContext(ctx)
	return t
}
