package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/cadence/internal/health"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// opsServer serves /metrics, /healthz and /readyz next to a run.
type opsServer struct {
	srv *http.Server
	ln  net.Listener
}

// newOpsHandler builds the instrumented ops mux.
func newOpsHandler(h *health.Handler, m *observe.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	h.Register(mux)
	return observe.Middleware(m)(mux)
}

// startOps listens on addr and serves handler in the background.
func startOps(addr string, handler http.Handler) (*opsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &opsServer{
		srv: &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server stopped", "err", err)
		}
	}()
	slog.Info("ops server listening", "addr", ln.Addr().String())
	return s, nil
}

// Shutdown stops the server, waiting up to five seconds for in-flight scrapes.
func (s *opsServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		slog.Warn("ops server shutdown", "err", err)
	}
}
