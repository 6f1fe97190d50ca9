// Package server exposes a host.Runner over HTTP, websockets and
// JSON-RPC 2.0 on stdio.
//
// HTTP routes:
//
//	GET  /v1/apps                            registered app names
//	POST /v1/apps/{app}/instances            create an instance
//	POST /v1/instances/{id}/cycle            run one cycle with events
//	GET  /v1/instances/{id}/state            committed snapshot
//	DELETE /v1/instances/{id}                delete an instance
//	GET  /v1/instances/{id}/ws               websocket push channel
//	POST /v1/channels/{name}/messages        broadcast to subscribers
//	GET  /health
//	GET  /metrics                            when a registry is configured
//
// The websocket pushes every committed response of its instance, including
// the ones driven by timers and loaders.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/roach88/rehook/internal/host"
)

// Defaults for Config.
const (
	DefaultMetricsPath     = "/metrics"
	DefaultEventsPerSecond = 20
	DefaultBurst           = 40

	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 20
)

// Config tunes the transport.
type Config struct {
	// MetricsPath is where the registry is served.
	MetricsPath string
	// EventsPerSecond and Burst bound the events one websocket connection
	// may submit.
	EventsPerSecond float64
	Burst           int
}

func (c Config) withDefaults() Config {
	if c.MetricsPath == "" {
		c.MetricsPath = DefaultMetricsPath
	}
	if c.EventsPerSecond <= 0 {
		c.EventsPerSecond = DefaultEventsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	return c
}

// Server serves one runner.
type Server struct {
	runner   *host.Runner
	cfg      Config
	hub      *hub
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithConfig sets transport limits.
func WithConfig(c Config) Option {
	return func(s *Server) { s.cfg = c.withDefaults() }
}

// WithGatherer serves g at Config.MetricsPath.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server and registers its websocket hub as a sink of r.
func New(r *host.Runner, opts ...Option) *Server {
	s := &Server{
		runner: r,
		cfg:    Config{}.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.logger)
	r.AddSink(s.hub)
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/apps", s.listApps)
	mux.HandleFunc("POST /v1/apps/{app}/instances", s.createInstance)
	mux.HandleFunc("POST /v1/instances/{id}/cycle", s.cycle)
	mux.HandleFunc("GET /v1/instances/{id}/state", s.state)
	mux.HandleFunc("DELETE /v1/instances/{id}", s.deleteInstance)
	mux.HandleFunc("GET /v1/instances/{id}/ws", s.websocket)
	mux.HandleFunc("POST /v1/channels/{name}/messages", s.broadcast)
	mux.HandleFunc("GET /health", s.health)
	if s.gatherer != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	return mux
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully and closes open websockets.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		s.hub.closeAll()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.closeAll()
	err := srv.Shutdown(shutdownCtx)
	if serr := <-errCh; serr != nil && !errors.Is(serr, http.ErrServerClosed) {
		return serr
	}
	s.logger.Info("server stopped")
	return err
}

func (s *Server) limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(s.cfg.EventsPerSecond), s.cfg.Burst)
}
