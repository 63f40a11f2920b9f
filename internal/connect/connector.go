// Package connect compiles user connection requests into engine directives.
//
// A Connector validates everything it is given before the engine sees a
// single directive: a request either fails with a *specerr.Error and leaves
// the engine untouched, or produces exactly one directive.
package connect

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/engine"
	"github.com/vk/wiregrid/internal/observability"
)

// DefaultSynapseModel is the synapse model assumed by Disconnect when none
// is given and none is configured.
const DefaultSynapseModel = "static_synapse"

// Paths reported in logs, metrics and spans.
const (
	PathDirect    = "direct"
	PathSpatial   = "spatial"
	PathGenerator = "generator"
)

// RuleConnectionGenerator is the rule label recorded for CGConnect.
const RuleConnectionGenerator = "connection_generator"

// Config holds the defaults applied to omitted specs.
type Config struct {
	// DefaultRule is used when Connect gets no conn_spec. The zero value
	// means all_to_all.
	DefaultRule connspec.Rule
	// DefaultSynapseModel is used when Disconnect gets no syn_spec and
	// when CGConnect gets no model.
	DefaultSynapseModel string
}

// Connector compiles requests against one engine. It is safe for
// concurrent use when the engine is.
type Connector struct {
	engine  engine.Engine
	cfg     Config
	metrics *observability.Collector
	tracer  trace.TracerProvider
}

// Option configures a Connector.
type Option func(*Connector)

// WithMetrics records every request on c.
func WithMetrics(c *observability.Collector) Option {
	return func(conn *Connector) { conn.metrics = c }
}

// WithTracerProvider sets the provider spans are started from. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(conn *Connector) { conn.tracer = tp }
}

// New creates a Connector for eng.
func New(eng engine.Engine, cfg Config, opts ...Option) *Connector {
	if cfg.DefaultSynapseModel == "" {
		cfg.DefaultSynapseModel = DefaultSynapseModel
	}
	c := &Connector{engine: eng, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Connector) Config() Config { return c.cfg }

func (c *Connector) defaults() connspec.Defaults {
	return connspec.Defaults{Rule: c.cfg.DefaultRule}
}
