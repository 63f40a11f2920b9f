package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vk/wiregrid/internal/ctxlog"
)

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// newMux routes /health and /metrics.
func (a *App) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}

// startServer runs the health and metrics server in the background. The
// listener is bound before returning so a bad port fails the run.
func (a *App) startServer() error {
	logger := ctxlog.FromContext(a.ctx)
	if a.config.MetricsPort <= 0 {
		logger.Debug("Metrics server not started: disabled")
		return nil
	}

	addr := fmt.Sprintf(":%d", a.config.MetricsPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	a.httpServer = &http.Server{
		Handler:           a.newMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server starting", "address", fmt.Sprintf("http://localhost%s/metrics", addr))
		// ErrServerClosed is the normal result of a graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

func (a *App) closeServer() error {
	logger := ctxlog.FromContext(a.ctx)
	if a.httpServer == nil {
		logger.Debug("Metrics server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	logger.Info("Shutting down metrics server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", "error", err)
		return err
	}
	a.httpServer = nil
	logger.Debug("Metrics server shut down gracefully.")
	return nil
}
