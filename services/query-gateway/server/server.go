// Package server is the HTTP front end of the compute core (spec §6): a
// single POST /v1/compute endpoint accepting either a point or a ranged
// evaluation, grounded on services/otc-gateway/server's Config/New/
// buildRouter shape but stripped of everything not needed to front
// indexer/formula.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"chainindexer/indexer/chain"
	"chainindexer/indexer/formula"
	"chainindexer/indexer/store"
	"chainindexer/services/query-gateway/auth"
	gatewaymw "chainindexer/services/query-gateway/middleware"
	"chainindexer/services/query-gateway/metrics"
)

// Config captures everything the server needs to build its router.
type Config struct {
	DB       *gorm.DB
	Store    store.Adapter
	Registry *formula.Registry
	Cache    *formula.Cache
	Tracker  *chain.Tracker
	ChainID  string

	Verifier      *auth.Verifier
	CreditAccrual *auth.CreditAccrual

	CodeIDCatalogue    map[string][]uint64
	BankHistoryCodeIDs map[uint64]bool

	RateLimitPerSec float64
	RateLimitBurst  int

	Metrics       *metrics.Metrics
	Observability *gatewaymw.Observability
}

// Server wires Config into a ready-to-serve http.Handler.
type Server struct {
	cfg    Config
	router http.Handler
}

// New constructs a Server and builds its router.
func New(cfg Config) *Server {
	srv := &Server{cfg: cfg}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if s.cfg.Observability != nil {
		r.Use(s.cfg.Observability.Middleware("v1.compute"))
	}
	r.Get("/healthz", s.handleHealthz)

	limiter := gatewaymw.NewRateLimiter(s.cfg.RateLimitPerSec, s.cfg.RateLimitBurst)
	r.Group(func(r chi.Router) {
		r.Use(gatewaymw.Authenticate(s.cfg.Verifier))
		r.Use(limiter.Middleware)

		r.Post("/v1/compute", s.handleCompute)
		if handler := s.metricsHandler(); handler != nil {
			r.Handle("/metrics", handler)
		}
	})
	return r
}

// metricsHandler exposes both the HTTP-layer (Observability) and
// formula-evaluation-layer (Metrics) Prometheus registries under a single
// endpoint, or nil if neither is configured.
func (s *Server) metricsHandler() http.Handler {
	var gatherers prometheus.Gatherers
	if s.cfg.Observability != nil {
		gatherers = append(gatherers, s.cfg.Observability.Registry())
	}
	if s.cfg.Metrics != nil {
		gatherers = append(gatherers, s.cfg.Metrics.Registry)
	}
	if len(gatherers) == 0 {
		return nil
	}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Tracker.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"chainId":     snap.ChainID,
		"latestBlock": blockToWire(snap.LatestBlock),
		"time":        time.Now().UTC(),
	})
}
