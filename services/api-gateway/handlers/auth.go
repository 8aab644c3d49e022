package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/example/paybill-gateway/internal/domain"
	perr "github.com/example/paybill-gateway/pkg/errors"
)

type ctxKey struct{}

func withTenant(ctx context.Context, t *domain.Tenant) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// TenantFrom returns the tenant the auth middleware attached to ctx.
func TenantFrom(ctx context.Context) (*domain.Tenant, bool) {
	t, ok := ctx.Value(ctxKey{}).(*domain.Tenant)
	return t, ok && t != nil
}

// apiKey reads X-API-Key, falling back to a bearer token.
func apiKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireTenant rejects requests without a valid API key and puts the
// resolved tenant on the request context.
func RequireTenant(d Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, err := d.Tenants.ResolveTenant(r.Context(), apiKey(r))
			if err != nil {
				writeError(w, d.Log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), t)))
		})
	}
}

// requireAdmin guards tenant registration when an admin key is configured.
func requireAdmin(d Deps, next http.HandlerFunc) http.HandlerFunc {
	if d.AdminKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		k := apiKey(r)
		if k == "" {
			writeError(w, d.Log, perr.New(perr.Unauthorized, "Missing X-API-Key header"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(k), []byte(d.AdminKey)) != 1 {
			writeError(w, d.Log, perr.New(perr.Unauthorized, "Invalid admin API key"))
			return
		}
		next(w, r)
	}
}

func tenantOf(w http.ResponseWriter, r *http.Request, d Deps) (*domain.Tenant, bool) {
	t, ok := TenantFrom(r.Context())
	if !ok {
		writeError(w, d.Log, perr.New(perr.Unauthorized, "Missing X-API-Key header"))
	}
	return t, ok
}
