package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestVerifierAuthenticateAcceptsValidToken(t *testing.T) {
	secret := []byte("secret")
	v := NewVerifier(secret, "issuer-a")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "acct-1", "iss": "issuer-a"})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/compute", nil)
	req.Header.Set("Authorization", "Bearer "+signed)

	claims, err := v.Authenticate(req)
	require.NoError(t, err)
	require.Equal(t, "acct-1", claims.AccountID)
}

func TestVerifierAuthenticateRejectsMissingToken(t *testing.T) {
	v := NewVerifier([]byte("secret"), "issuer-a")
	req := httptest.NewRequest(http.MethodPost, "/v1/compute", nil)
	_, err := v.Authenticate(req)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestVerifierAuthenticateRejectsNonBearerScheme(t *testing.T) {
	v := NewVerifier([]byte("secret"), "issuer-a")
	req := httptest.NewRequest(http.MethodPost, "/v1/compute", nil)
	req.Header.Set("Authorization", "Basic abc123")
	_, err := v.Authenticate(req)
	require.Error(t, err)
}

func TestVerifierAuthenticateRejectsWrongSecret(t *testing.T) {
	v := NewVerifier([]byte("secret"), "issuer-a")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "acct-1", "iss": "issuer-a"})
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/compute", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	_, err = v.Authenticate(req)
	require.Error(t, err)
}

func TestVerifierAuthenticateRejectsMissingSubject(t *testing.T) {
	secret := []byte("secret")
	v := NewVerifier(secret, "issuer-a")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iss": "issuer-a"})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/compute", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	_, err = v.Authenticate(req)
	require.Error(t, err)
}

func TestCreditAccrualTalliesPerAccount(t *testing.T) {
	c := NewCreditAccrual()
	hook := c.Hook("acct-1")
	hook(3)
	hook(2)
	require.Equal(t, int64(5), c.RowsFetched("acct-1"))
	require.Equal(t, int64(0), c.RowsFetched("acct-2"))
}
