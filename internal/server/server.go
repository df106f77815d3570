// Package server exposes the classifier over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crimson-sun/flowguard/internal/cache"
	"github.com/crimson-sun/flowguard/internal/capture"
	"github.com/crimson-sun/flowguard/internal/engine"
	"github.com/crimson-sun/flowguard/internal/output"
	"github.com/crimson-sun/flowguard/internal/telemetry"
)

const (
	maxBodyBytes      = 1 << 20
	readHeaderTimeout = 5 * time.Second
)

// Analyzer runs one live capture.
type Analyzer interface {
	Analyze(ctx context.Context) (capture.Result, error)
}

// Option configures a Server.
type Option func(*Server)

// WithAnalyzer enables /analyze_live. Without one the endpoint answers 500.
func WithAnalyzer(a Analyzer) Option {
	return func(s *Server) { s.analyzer = a }
}

// WithCache memoises /predict results.
func WithCache(c cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithOutput sends every served prediction to out as an event.
func WithOutput(out output.Output) Option {
	return func(s *Server) { s.out = out }
}

// WithRegistry registers metrics on reg and serves them on /metrics.
// Default: a private registry with Go and process collectors.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithServiceName names the server spans.
func WithServiceName(name string) Option {
	return func(s *Server) { s.serviceName = name }
}

// Server serves predictions from a shared, read-only engine.
type Server struct {
	engine      *engine.Engine
	datasetPath string
	analyzer    Analyzer
	cache       cache.Cache
	out         output.Output
	registry    *prometheus.Registry
	metrics     *Metrics
	serviceName string
	now         func() time.Time
}

// New builds a Server. eng may be unloaded; inference requests then fail
// with a server error.
func New(eng *engine.Engine, datasetPath string, opts ...Option) *Server {
	s := &Server{
		engine:      eng,
		datasetPath: datasetPath,
		out:         output.Discard,
		serviceName: "flowguard",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	s.metrics = NewMetrics(s.registry)
	return s
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler returns the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /predict", s.instrument("predict", http.HandlerFunc(s.handlePredict)))
	mux.Handle("GET /metadata", s.instrument("metadata", http.HandlerFunc(s.handleMetadata)))
	mux.Handle("POST /analyze_live", s.instrument("analyze_live", http.HandlerFunc(s.handleAnalyzeLive)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	var h http.Handler = mux
	h = recoverer(h)
	h = accessLog(h)
	h = withRequestID(h)
	h = cors(h)
	return telemetry.Handler(h, s.serviceName)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests for up to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr, "model_loaded", s.engine.Loaded(), "live_capture", s.analyzer != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
