package api

import (
	"context"
	"net/http"
	"strings"
)

// TenantHeader selects the tenant an operator request acts on.
const TenantHeader = "X-Tenant-ID"

type tenantKey struct{}

func tenantMiddleware(defaultTenant string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := strings.TrimSpace(r.Header.Get(TenantHeader))
			if tenant == "" {
				tenant = defaultTenant
			}
			ctx := context.WithValue(r.Context(), tenantKey{}, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tenantFrom(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey{}).(string)
	return tenant
}
