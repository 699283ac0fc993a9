package middleware

import (
	"context"
	"net/http"

	"chainindexer/services/query-gateway/auth"
)

// Authenticate wraps a Verifier as chi-compatible middleware: on success it
// stores *auth.Claims in the request context under ClaimsContextKey; on
// failure it responds 401 and does not call next.
func Authenticate(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifier.Authenticate(r)
			if err != nil {
				http.Error(w, "unauthorized: "+err.Error(), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext retrieves the *auth.Claims a prior Authenticate call
// placed in ctx, if any.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ClaimsContextKey).(*auth.Claims)
	return claims
}
