// pkg/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"cronhub/internal/auth"
)

type ctxClaimsKey struct{}

// Auth verifies the bearer token on every request and stores the
// resulting claims in the context. Verification failures terminate the
// request here; no handler ever runs with a defaulted identity.
func Auth(verifier *auth.Verifier, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			claims, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				if errors.Is(err, auth.ErrKeySetUnavailable) {
					log.Errorw("jwks unavailable", "err", err)
					http.Error(w, "verification unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func WithClaims(ctx context.Context, c auth.Claims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey{}, c)
}

// ClaimsFrom returns the verified claims, or false when the request
// was not authenticated.
func ClaimsFrom(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(ctxClaimsKey{}).(auth.Claims)
	return c, ok
}
