package connect

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vk/wiregrid/internal/connectome"
	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/ctxlog"
	"github.com/vk/wiregrid/internal/engine"
	"github.com/vk/wiregrid/internal/observability"
	"github.com/vk/wiregrid/internal/population"
	"github.com/vk/wiregrid/internal/spatial"
	"github.com/vk/wiregrid/internal/specerr"
	"github.com/vk/wiregrid/internal/synspec"
)

type connectOptions struct {
	returnConnectome bool
}

// ConnectOption tunes a single Connect call.
type ConnectOption func(*connectOptions)

// WithConnectome makes Connect return the connections from pre to post
// once the directive has been executed.
func WithConnectome() ConnectOption {
	return func(o *connectOptions) { o.returnConnectome = true }
}

// Connect compiles one connection request and hands it to the engine.
//
// connSpec may be null (configured default rule), a rule name, or an object
// with a "rule" key. synSpec may be null (engine default synapse), a
// synapse model name, or an object of parameters. Requests that carry a
// mask, a kernel, or use_on_source are sent to the engine as a spatial
// projection; everything else is sent verbatim.
//
// The returned connectome is nil unless WithConnectome is given.
func (c *Connector) Connect(ctx context.Context, pre, post *population.Collection, connSpec, synSpec cty.Value, opts ...ConnectOption) (*connectome.Connectome, error) {
	var o connectOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := observability.StartSpan(ctx, c.tracer, "connect.Connect")
	path, rule := PathDirect, "unknown"
	cs, err := c.connect(ctx, pre, post, connSpec, synSpec, &path)
	if cs != nil {
		rule = cs.Rule.String()
	}
	span.SetAttributes(attribute.String("path", path), attribute.String("rule", rule))
	c.metrics.ObserveConnect(path, rule, err)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	if !o.returnConnectome {
		return nil, nil
	}
	return c.GetConnections(ctx, FromSource(pre), ToTarget(post))
}

func (c *Connector) connect(ctx context.Context, pre, post *population.Collection, connSpec, synSpec cty.Value, path *string) (*connspec.ConnSpec, error) {
	logger := ctxlog.FromContext(ctx)

	if pre == nil {
		return nil, specerr.Typef("connect", "pre", "presynaptic population must be a population handle")
	}
	if post == nil {
		return nil, specerr.Typef("connect", "post", "postsynaptic population must be a population handle")
	}

	cs, err := connspec.Normalize(connSpec, c.defaults())
	if err != nil {
		return nil, err
	}
	spatialPath := spatial.Needed(cs)
	if spatialPath {
		*path = PathSpatial
		if err := spatial.RequireMetadata(pre, post); err != nil {
			return cs, err
		}
	}
	if err := cs.Check(); err != nil {
		return cs, err
	}
	ss, err := synspec.Validate(synSpec, cs, pre.Len(), post.Len())
	if err != nil {
		return cs, err
	}

	if spatialPath {
		proj, err := spatial.Build(pre, post, cs, ss)
		if err != nil {
			return cs, err
		}
		logger.Debug("Dispatching spatial projection.", "pre", pre, "post", post, "rule", cs.Rule, "connection_type", proj.ConnectionType)
		if err := c.engine.ConnectLayers(ctx, engine.LayersDirective{Pre: pre, Post: post, Projection: proj}); err != nil {
			return cs, fmt.Errorf("engine rejected spatial connect %s -> %s: %w", pre, post, err)
		}
		return cs, nil
	}

	logger.Debug("Dispatching direct connect.", "pre", pre, "post", post, "rule", cs.Rule, "synapse_model", ss.Model())
	if err := c.engine.Connect(ctx, engine.ConnectDirective{Pre: pre, Post: post, ConnSpec: cs, SynSpec: ss}); err != nil {
		return cs, fmt.Errorf("engine rejected connect %s -> %s: %w", pre, post, err)
	}
	return cs, nil
}
