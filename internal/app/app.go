package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/wiregrid/internal/ctxlog"
	"github.com/vk/wiregrid/internal/engine"
	"github.com/vk/wiregrid/internal/observability"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logW       io.Writer
	logger     *slog.Logger
	config     *Config
	registry   *prometheus.Registry
	metrics    *observability.Collector
	engine     engine.Engine
	httpServer *http.Server
}

// Option customizes an App.
type Option func(*App)

// WithEngine makes the app run against eng instead of building one from
// the configuration. The caller keeps ownership of eng.
func WithEngine(eng engine.Engine) Option {
	return func(a *App) { a.engine = eng }
}

// NewApp is the constructor for the main application. The run report is
// written to outW and logs to logW. Every App has its own logger and
// metrics registry.
func NewApp(outW, logW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a := &App{
		ctx:      ctxlog.WithLogger(context.Background(), logger),
		outW:     outW,
		logW:     logW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Metrics returns the application's metrics collector. This is primarily for testing.
func (a *App) Metrics() *observability.Collector {
	return a.metrics
}
