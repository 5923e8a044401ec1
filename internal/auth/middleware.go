package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
)

type contextKey struct{}

// FromContext returns the Principal placed by Middleware, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}

// WithPrincipal returns a context carrying the principal. Exported for
// handler tests.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// Middleware rejects requests without a valid bearer token and stores the
// verified Principal in the request context.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimSpace(h[len("Bearer "):])
			}

			principal, err := v.Verify(r.Context(), token)
			if err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("authentication failed")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", "Bearer")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}
