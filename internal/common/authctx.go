package common

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const (
	userIDKey   ctxKey = "identity/user-id"
	vendorIDKey ctxKey = "identity/vendor-id"
)

// WithUserID stores the caller's user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the caller's user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithVendorID stores the acting vendor identifier on the context.
func WithVendorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, vendorIDKey, id)
}

// VendorID extracts the acting vendor identifier from the context if present.
func VendorID(ctx context.Context) (string, bool) {
	v := ctx.Value(vendorIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// IdentityMiddleware lifts the trusted identity headers set by the fronting
// gateway into the request context. Authentication itself happens upstream.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
			ctx = WithUserID(ctx, id)
		}
		if id := strings.TrimSpace(r.Header.Get("X-Vendor-ID")); id != "" {
			ctx = WithVendorID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests that carry no user identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := UserID(r.Context()); !ok || id == "" {
			JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireVendor rejects requests that carry no vendor identity.
func RequireVendor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := VendorID(r.Context()); !ok || id == "" {
			JSONError(w, http.StatusForbidden, "FORBIDDEN", "vendor identity required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
