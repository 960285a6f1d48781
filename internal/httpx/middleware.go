package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/tealwick/storefront/internal/auth"
	"github.com/tealwick/storefront/internal/store"
)

type ctxKey int

const principalKey ctxKey = 0

// Principal is the authenticated caller extracted from a bearer token.
type Principal struct {
	UserID string
	Role   auth.Role
}

func principalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// RequireAuth rejects requests without a valid access token. Fail closed:
// a missing or malformed header is indistinguishable from an invalid token.
func RequireAuth(signer *auth.AccessSigner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, store.New(store.KindUnauthorized, "missing bearer token"))
				return
			}
			claims, err := signer.Verify(token)
			if err != nil {
				writeError(w, err)
				return
			}
			p := &Principal{UserID: claims.Subject, Role: claims.Role}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
		})
	}
}

// OptionalAuth attaches a principal when a valid token is present and lets
// anonymous requests through untouched; guest checkout depends on it.
func OptionalAuth(signer *auth.AccessSigner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearerToken(r); token != "" {
				if claims, err := signer.Verify(token); err == nil {
					p := &Principal{UserID: claims.Subject, Role: claims.Role}
					r = r.WithContext(context.WithValue(r.Context(), principalKey, p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole gates admin surfaces. Must sit behind RequireAuth.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	allowed := make(map[auth.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principalFrom(r.Context())
			if !ok {
				writeError(w, store.New(store.KindUnauthorized, "missing bearer token"))
				return
			}
			if !allowed[p.Role] {
				writeError(w, store.New(store.KindForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
