// Command query-gateway is the process entry point for services/query-gateway:
// it wires the Event Store Adapter, Formula Registry, Computation Cache, and
// chain.Tracker refresh loop behind the HTTP server in ./server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"chainindexer/indexer/chain"
	"chainindexer/indexer/formula"
	"chainindexer/indexer/formula/catalogue"
	"chainindexer/indexer/store"
	"chainindexer/observability/logging"
	telemetry "chainindexer/observability/otel"
	"chainindexer/services/query-gateway/auth"
	"chainindexer/services/query-gateway/codeids"
	"chainindexer/services/query-gateway/config"
	gatewaymw "chainindexer/services/query-gateway/middleware"
	"chainindexer/services/query-gateway/metrics"
	"chainindexer/services/query-gateway/server"
)

func main() {
	env := strings.TrimSpace(os.Getenv("NHB_ENV"))
	logger := logging.Setup("query-gateway", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "query-gateway",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}
	adapter := store.New(db)

	catalogueFile, err := codeids.Load(cfg.CodeIDCatalogue)
	if err != nil {
		log.Fatalf("code id catalogue error: %v", err)
	}

	registry := formula.NewRegistry()
	catalogue.Register(registry)
	cache := formula.NewCache(db, adapter)

	secret := []byte(strings.TrimSpace(os.Getenv(cfg.JWTSecretEnv)))
	if len(secret) == 0 {
		log.Fatalf("missing JWT secret in env %s", cfg.JWTSecretEnv)
	}
	verifier := auth.NewVerifier(secret, cfg.JWTIssuer)
	creditAccrual := auth.NewCreditAccrual()

	initialState, err := latestChainState(context.Background(), adapter, cfg.ChainID)
	if err != nil {
		log.Fatalf("initial chain state error: %v", err)
	}
	tracker := chain.NewTracker(initialState)

	done := make(chan struct{})
	defer close(done)
	go tracker.RefreshLoop(done, cfg.RefreshCadence, func() (chain.State, error) {
		return latestChainState(context.Background(), adapter, cfg.ChainID)
	}, func(err error) {
		logger.Error("chain tracker refresh failed", "error", err)
	})

	obs := gatewaymw.NewObservability("query-gateway", "query_gateway", logger)
	srv := server.New(server.Config{
		DB:                 db,
		Store:              adapter,
		Registry:           registry,
		Cache:              cache,
		Tracker:            tracker,
		ChainID:            cfg.ChainID,
		Verifier:           verifier,
		CreditAccrual:      creditAccrual,
		CodeIDCatalogue:    catalogueFile.Keys,
		BankHistoryCodeIDs: catalogueFile.BankHistoryCodeIDs(),
		RateLimitPerSec:    cfg.RateLimitPerSec,
		RateLimitBurst:     cfg.RateLimitBurst,
		Metrics:            metrics.New("query_gateway"),
		Observability:      obs,
	})

	handler := otelhttp.NewHandler(srv.Handler(), "query-gateway")

	addr := ":" + cfg.Port
	logger.Info("starting query-gateway", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// latestChainState reads the singleton ChainState row and the highest
// ingested block into a chain.State snapshot, the seed Tracker.RefreshLoop
// keeps current thereafter (spec §5).
func latestChainState(ctx context.Context, adapter store.Adapter, chainID string) (chain.State, error) {
	row, err := adapter.ChainState(ctx, chainID)
	if err != nil {
		return chain.State{}, err
	}
	if row == nil {
		return chain.State{ChainID: chainID}, nil
	}
	return chain.State{
		ChainID:     chainID,
		LatestBlock: chain.Block{Height: row.LatestBlockHeight, TimeUnixMs: row.LatestBlockTimeUnixMs},
	}, nil
}
