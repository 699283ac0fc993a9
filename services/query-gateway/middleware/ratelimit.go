// Package middleware holds services/query-gateway's HTTP middleware,
// adapted from gateway/middleware: per-identity token-bucket rate limiting
// and request observability, repointed at the compute endpoint's
// account-id identity instead of the outer gateway's API-key/IP identity.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chainindexer/services/query-gateway/auth"
)

// RateLimiter hands out one token bucket per account id, mirroring
// gateway/middleware.RateLimiter's visitor map but keyed purely on the
// authenticated account (the compute endpoint has no anonymous tier).
type RateLimiter struct {
	perSecond float64
	burst     int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	clockNow func() time.Time
}

// NewRateLimiter constructs a RateLimiter allowing perSecond sustained
// requests per account with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perSecond: perSecond,
		burst:     burst,
		visitors:  map[string]*rate.Limiter{},
		clockNow:  time.Now,
	}
}

func (rl *RateLimiter) limiterFor(accountID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.visitors[accountID]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rl.perSecond), rl.burst)
	rl.visitors[accountID] = l
	return l
}

// Middleware rejects requests from an account whose bucket is empty with
// 429. It must run after the auth middleware has placed Claims in context.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := r.Context().Value(claimsContextKey{}).(*auth.Claims)
		accountID := "anonymous"
		if claims != nil {
			accountID = claims.AccountID
		}
		if !rl.limiterFor(accountID).AllowN(rl.clockNow(), 1) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// claimsContextKey is the context key Authenticate stores Claims under and
// RateLimiter and ClaimsFromContext read them from.
type claimsContextKey struct{}

// ClaimsContextKey is exported so the auth middleware and server package
// share the same key value.
var ClaimsContextKey = claimsContextKey{}
