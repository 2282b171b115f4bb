// Package server exposes the control surface: the websocket control
// protocol on /ws, Prometheus metrics on /metrics and health probes. One
// websocket connection owns exactly one session; the session dies with the
// connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxmorph/voxmorph/internal/device"
	"github.com/voxmorph/voxmorph/internal/health"
	"github.com/voxmorph/voxmorph/internal/observe"
	"github.com/voxmorph/voxmorph/internal/session"
)

// defaultStatusInterval is the push cadence for status events while a
// session is processing.
const defaultStatusInterval = 200 * time.Millisecond

// shutdownTimeout bounds the drain of in-flight requests on Run exit.
const shutdownTimeout = 10 * time.Second

// Config assembles a server.
type Config struct {
	Addr     string
	Sessions *session.Manager

	// Devices backs the getDevices action. May be nil.
	Devices *device.Registry
	// StatusInterval overrides the processing status push cadence.
	StatusInterval time.Duration
	// Checkers are evaluated by the /readyz probe.
	Checkers []health.Checker

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Server serves the control protocol.
type Server struct {
	cfg Config
	log *slog.Logger
}

// New validates the config and applies defaults.
func New(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("server: session manager is required")
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, log: cfg.Logger.With("component", "server")}, nil
}

// Handler builds the HTTP routing tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(s.cfg.Checkers...).Register(mux)
	return observe.Middleware(s.cfg.Metrics)(mux)
}

// Run serves until ctx is cancelled, then drains with a bounded shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
