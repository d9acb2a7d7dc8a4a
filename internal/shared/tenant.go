package shared

import (
	"context"
	"net/http"
	"strconv"
)

// TenantHeader carries the resolved tenant on every back-office request.
const TenantHeader = "X-Tenant-ID"

type tenantContextKey struct{}

// ContextWithTenant stores the tenant id in context for the HTTP layer.
// Core services never read it from context; they take the tenant as an
// explicit parameter.
func ContextWithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant id from context, zero when absent.
func TenantFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(tenantContextKey{}).(int64)
	return id
}

// TenantFromRequest resolves the tenant from the request context or header.
func TenantFromRequest(r *http.Request) (int64, error) {
	if id := TenantFromContext(r.Context()); id != 0 {
		return id, nil
	}
	raw := r.Header.Get(TenantHeader)
	if raw == "" {
		return 0, ErrTenantRequired
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTenantRequired
	}
	return id, nil
}
