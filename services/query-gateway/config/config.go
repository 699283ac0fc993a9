// Package config loads services/query-gateway's runtime configuration,
// following services/otc-gateway/config's FromEnv() shape: plain
// environment variables, no config file, since this is a Postgres-backed
// service rather than the validator node's on-disk TOML config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the query gateway's runtime configuration.
type Config struct {
	Port            string
	DatabaseURL     string
	ChainID         string
	JWTIssuer       string
	JWTSecretEnv    string
	RateLimitPerSec float64
	RateLimitBurst  int
	RefreshCadence  time.Duration
	CodeIDCatalogue string // path to the YAML code-id-key catalogue
}

// FromEnv loads Config from environment variables, applying the same
// defaulting style as services/otc-gateway/config.FromEnv.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:            envOr("QUERY_GATEWAY_PORT", "8090"),
		DatabaseURL:     os.Getenv("QUERY_GATEWAY_DATABASE_URL"),
		ChainID:         os.Getenv("QUERY_GATEWAY_CHAIN_ID"),
		JWTIssuer:       envOr("QUERY_GATEWAY_JWT_ISSUER", "chainindexer"),
		JWTSecretEnv:    envOr("QUERY_GATEWAY_JWT_SECRET_ENV", "QUERY_GATEWAY_JWT_SECRET"),
		RateLimitPerSec: 10,
		RateLimitBurst:  20,
		RefreshCadence:  time.Second,
		CodeIDCatalogue: envOr("QUERY_GATEWAY_CODE_ID_CATALOGUE", "code_id_keys.yaml"),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: QUERY_GATEWAY_DATABASE_URL is required")
	}
	if cfg.ChainID == "" {
		return nil, fmt.Errorf("config: QUERY_GATEWAY_CHAIN_ID is required")
	}
	if v := os.Getenv("QUERY_GATEWAY_RATE_LIMIT_PER_SEC"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid QUERY_GATEWAY_RATE_LIMIT_PER_SEC: %w", err)
		}
		cfg.RateLimitPerSec = parsed
	}
	if v := os.Getenv("QUERY_GATEWAY_RATE_LIMIT_BURST"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid QUERY_GATEWAY_RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimitBurst = parsed
	}
	if v := os.Getenv("QUERY_GATEWAY_REFRESH_CADENCE"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid QUERY_GATEWAY_REFRESH_CADENCE: %w", err)
		}
		cfg.RefreshCadence = parsed
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
