// Package auth resolves the bearer token on an inbound compute request to
// an account id. It is deliberately thin: spec §1 places the full
// authentication/credit-accounting system out of the compute core's scope,
// but the Environment's onFetch hook (spec §4.3/§5: "a cache lookup for the
// api-key->account mapping") needs an account id from somewhere to accrue
// against, so this package supplies the minimum viable resolver.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingToken is returned when a request carries no bearer token.
var ErrMissingToken = errors.New("auth: missing bearer token")

// Claims is the subset of JWT claims the gateway relies on.
type Claims struct {
	AccountID string
}

// Verifier validates a bearer token and resolves it to an account id.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier constructs a Verifier using an HMAC secret, mirroring the
// HS256 path of services/otc-gateway/auth (RSA/WebAuthn are not needed
// here: the compute endpoint authenticates API keys, not staff personas).
func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer}
}

// Authenticate parses and validates the bearer token from r, returning the
// resolved Claims.
func (v *Verifier) Authenticate(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == header {
		return nil, fmt.Errorf("auth: Authorization header must use the Bearer scheme")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("auth: unexpected claims type")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("auth: token missing subject")
	}
	return &Claims{AccountID: sub}, nil
}

// CreditAccrual is the onFetch hook wired into every Environment: it tallies
// rows fetched per account so the (external, out of scope) billing system
// can charge for compute usage. Kept in-process and coarse on purpose; a
// real deployment would flush this to the account-credit service spec §5
// describes as an external collaborator.
type CreditAccrual struct {
	mu    sync.Mutex
	rows  map[string]int64
}

// NewCreditAccrual returns an empty accrual tracker.
func NewCreditAccrual() *CreditAccrual {
	return &CreditAccrual{rows: map[string]int64{}}
}

// Hook returns an onFetch callback that accrues rowCount against accountID.
func (c *CreditAccrual) Hook(accountID string) func(rowCount int) {
	return func(rowCount int) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.rows[accountID] += int64(rowCount)
	}
}

// RowsFetched returns the running total for an account, for tests and
// metrics export.
func (c *CreditAccrual) RowsFetched(accountID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows[accountID]
}
