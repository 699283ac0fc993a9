package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromEnvRequiresDatabaseURLAndChainID(t *testing.T) {
	t.Setenv("QUERY_GATEWAY_DATABASE_URL", "")
	t.Setenv("QUERY_GATEWAY_CHAIN_ID", "")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvAppliesDefaults(t *testing.T) {
	t.Setenv("QUERY_GATEWAY_DATABASE_URL", "postgres://localhost/test")
	t.Setenv("QUERY_GATEWAY_CHAIN_ID", "test-chain")
	t.Setenv("QUERY_GATEWAY_PORT", "")
	t.Setenv("QUERY_GATEWAY_RATE_LIMIT_PER_SEC", "")
	t.Setenv("QUERY_GATEWAY_RATE_LIMIT_BURST", "")
	t.Setenv("QUERY_GATEWAY_REFRESH_CADENCE", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "8090", cfg.Port)
	require.Equal(t, float64(10), cfg.RateLimitPerSec)
	require.Equal(t, 20, cfg.RateLimitBurst)
}

func TestFromEnvParsesOverrides(t *testing.T) {
	t.Setenv("QUERY_GATEWAY_DATABASE_URL", "postgres://localhost/test")
	t.Setenv("QUERY_GATEWAY_CHAIN_ID", "test-chain")
	t.Setenv("QUERY_GATEWAY_RATE_LIMIT_PER_SEC", "5.5")
	t.Setenv("QUERY_GATEWAY_RATE_LIMIT_BURST", "3")
	t.Setenv("QUERY_GATEWAY_REFRESH_CADENCE", "2s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, 5.5, cfg.RateLimitPerSec)
	require.Equal(t, 3, cfg.RateLimitBurst)
	require.Equal(t, "2s", cfg.RefreshCadence.String())
}

func TestFromEnvRejectsInvalidRateLimit(t *testing.T) {
	t.Setenv("QUERY_GATEWAY_DATABASE_URL", "postgres://localhost/test")
	t.Setenv("QUERY_GATEWAY_CHAIN_ID", "test-chain")
	t.Setenv("QUERY_GATEWAY_RATE_LIMIT_PER_SEC", "not-a-number")
	_, err := FromEnv()
	require.Error(t, err)
}
