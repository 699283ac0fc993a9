package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Observability is the HTTP-layer counterpart to services/query-gateway's
// formula-level metrics package, grounded on gateway/middleware.Observability
// but logging through the shared slog.Logger observability/logging.Setup
// returns rather than the stdlib *log.Logger.
type Observability struct {
	serviceName string
	logger      *slog.Logger
	tracer      trace.Tracer
	requests    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	registry    *prometheus.Registry
}

// NewObservability constructs an Observability instance registering its
// metrics under metricsPrefix.
func NewObservability(serviceName, metricsPrefix string, logger *slog.Logger) *Observability {
	if serviceName == "" {
		serviceName = "query-gateway"
	}
	if metricsPrefix == "" {
		metricsPrefix = "query_gateway"
	}
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsPrefix,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed by the query gateway.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsPrefix,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	registry.MustRegister(requests, durations)
	return &Observability{
		serviceName: serviceName,
		logger:      logger,
		tracer:      otel.Tracer(serviceName),
		requests:    requests,
		durations:   durations,
		registry:    registry,
	}
}

// Middleware wraps next with request tracing, metrics, and access logging
// under the given route label.
func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := o.tracer.Start(r.Context(), route, trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
			))
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.status_code", recorder.status))
			span.End()
			duration := time.Since(start)
			o.requests.WithLabelValues(route, r.Method, http.StatusText(recorder.status)).Inc()
			o.durations.WithLabelValues(route, r.Method).Observe(duration.Seconds())
			o.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration_ms", duration.Milliseconds(),
			)
		})
	}
}

// MetricsHandler serves the registry in Prometheus exposition format.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry so callers can combine it with
// other Prometheus registries behind a single /metrics endpoint.
func (o *Observability) Registry() *prometheus.Registry {
	return o.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
