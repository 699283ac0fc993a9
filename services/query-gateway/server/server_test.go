package server

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"chainindexer/indexer/chain"
	"chainindexer/indexer/formula"
	"chainindexer/indexer/store"
	"chainindexer/services/query-gateway/auth"
)

const testJWTIssuer = "chainindexer-test"

var testJWTSecret = []byte("test-secret-do-not-use-in-prod")

func signToken(t *testing.T, accountID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": accountID,
		"iss": testJWTIssuer,
	})
	s, err := token.SignedString(testJWTSecret)
	require.NoError(t, err)
	return s
}

func echoRegistry() *formula.Registry {
	r := formula.NewRegistry()
	r.Register(formula.Registration{
		Type: formula.TypeContract,
		Name: "echo",
		Compute: func(env *formula.Env) (any, error) {
			return env.Get(env.TargetAddress, "key")
		},
	})
	return r
}

func newTestServer(t *testing.T, rateLimitPerSec float64, rateLimitBurst int) (*Server, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	adapter := store.New(db)

	tracker := chain.NewTracker(chain.State{ChainID: "test-chain", LatestBlock: chain.Block{Height: 1000}})

	srv := New(Config{
		DB:              db,
		Store:           adapter,
		Registry:        echoRegistry(),
		Cache:           formula.NewCache(db, adapter),
		Tracker:         tracker,
		ChainID:         "test-chain",
		Verifier:        auth.NewVerifier(testJWTSecret, testJWTIssuer),
		CreditAccrual:   auth.NewCreditAccrual(),
		RateLimitPerSec: rateLimitPerSec,
		RateLimitBurst:  rateLimitBurst,
	})
	return srv, db
}

func TestHandleComputePointSuccess(t *testing.T) {
	srv, db := newTestServer(t, 100, 100)
	composed, err := formula.ComposeKey("key")
	require.NoError(t, err)
	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composed, BlockHeight: 5, Value: []byte(`"hello"`)}).Error)

	body, _ := json.Marshal(map[string]any{
		"type":    "contract",
		"address": "c1",
		"formula": "echo",
		"block":   10,
	})
	req := httptest.NewRequest("POST", "/v1/compute", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "acct-1"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp computeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "hello", resp.Value)
}

func TestHandleComputeRangeWithoutStepReturnsRawSeries(t *testing.T) {
	srv, db := newTestServer(t, 100, 100)
	composed, err := formula.ComposeKey("key")
	require.NoError(t, err)
	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composed, BlockHeight: 0, Value: []byte(`"a"`)}).Error)

	body, _ := json.Marshal(map[string]any{
		"type":    "contract",
		"address": "c1",
		"formula": "echo",
		"blocks":  [2]uint64{0, 100},
	})
	req := httptest.NewRequest("POST", "/v1/compute", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "acct-1"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var samples []sampleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &samples))
	require.Len(t, samples, 1)
	require.Equal(t, "a", samples[0].Value)
}

func TestHandleComputeMissingAuthReturns401(t *testing.T) {
	srv, _ := newTestServer(t, 100, 100)
	body, _ := json.Marshal(map[string]any{"type": "contract", "address": "c1", "formula": "echo", "block": 1})
	req := httptest.NewRequest("POST", "/v1/compute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, 401, rec.Code)
}

func TestHandleComputeUnknownFormulaReturns404(t *testing.T) {
	srv, _ := newTestServer(t, 100, 100)
	body, _ := json.Marshal(map[string]any{"type": "contract", "address": "c1", "formula": "nonexistent", "block": 1})
	req := httptest.NewRequest("POST", "/v1/compute", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "acct-1"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 404, rec.Code)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "not_found", errResp.Kind)
}

func TestHandleComputeExceedsRateLimitReturns429(t *testing.T) {
	srv, db := newTestServer(t, 0.0001, 1)
	composed, err := formula.ComposeKey("key")
	require.NoError(t, err)
	require.NoError(t, db.Create(&store.WasmStateEvent{ContractAddress: "c1", Key: composed, BlockHeight: 0, Value: []byte(`"a"`)}).Error)

	token := signToken(t, "acct-rate-limited")
	makeRequest := func() int {
		body, _ := json.Marshal(map[string]any{"type": "contract", "address": "c1", "formula": "echo", "block": 1})
		req := httptest.NewRequest("POST", "/v1/compute", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, 200, makeRequest())
	require.Equal(t, 429, makeRequest())
}

func TestHandleHealthzReportsSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, 100, 100)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "test-chain", out["chainId"])
}

func TestAuthenticateMiddlewareRejectsWrongIssuer(t *testing.T) {
	srv, _ := newTestServer(t, 100, 100)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "acct-1",
		"iss": "some-other-issuer",
	})
	signed, err := token.SignedString(testJWTSecret)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]any{"type": "contract", "address": "c1", "formula": "echo", "block": 1})
	req := httptest.NewRequest("POST", "/v1/compute", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, 401, rec.Code)
}
