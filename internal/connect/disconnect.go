package connect

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/ctxlog"
	"github.com/vk/wiregrid/internal/ctyconv"
	"github.com/vk/wiregrid/internal/engine"
	"github.com/vk/wiregrid/internal/observability"
	"github.com/vk/wiregrid/internal/population"
	"github.com/vk/wiregrid/internal/specerr"
	"github.com/vk/wiregrid/internal/synspec"
)

// Disconnect removes connections between pre and post.
//
// connSpec defaults to one_to_one and synSpec to the configured synapse
// model. Strings are taken as the rule and the model name respectively;
// objects are handed to the engine unchanged. Unlike Connect, no shape
// validation takes place.
func (c *Connector) Disconnect(ctx context.Context, pre, post *population.Collection, connSpec, synSpec cty.Value) error {
	ctx, span := observability.StartSpan(ctx, c.tracer, "connect.Disconnect")
	err := c.disconnect(ctx, pre, post, connSpec, synSpec, span.SetAttributes)
	c.metrics.ObserveDisconnect(err)
	observability.EndSpan(span, err)
	return err
}

func (c *Connector) disconnect(ctx context.Context, pre, post *population.Collection, connSpec, synSpec cty.Value, annotate func(...attribute.KeyValue)) error {
	if pre == nil {
		return specerr.Typef("disconnect", "pre", "presynaptic population must be a population handle")
	}
	if post == nil {
		return specerr.Typef("disconnect", "post", "postsynaptic population must be a population handle")
	}

	cs, err := wrap("conn_spec", connSpec, connspec.KeyRule, connspec.OneToOne.String())
	if err != nil {
		return err
	}
	ss, err := wrap("syn_spec", synSpec, synspec.KeySynapseModel, c.cfg.DefaultSynapseModel)
	if err != nil {
		return err
	}
	rule, _ := cs[connspec.KeyRule].(string)
	annotate(attribute.String("rule", rule))

	ctxlog.FromContext(ctx).Debug("Dispatching disconnect.", "pre", pre, "post", post, "rule", rule)
	if err := c.engine.Disconnect(ctx, engine.DisconnectDirective{Pre: pre, Post: post, ConnSpec: cs, SynSpec: ss}); err != nil {
		return fmt.Errorf("engine rejected disconnect %s -> %s: %w", pre, post, err)
	}
	return nil
}

// wrap turns null into {key: def}, a string s into {key: s}, and passes
// objects through in engine-native form.
func wrap(op string, raw cty.Value, key, def string) (map[string]any, error) {
	if ctyconv.IsAbsent(raw) {
		return map[string]any{key: def}, nil
	}
	if !raw.IsWhollyKnown() {
		return nil, specerr.Typef(op, "", "%s must be fully known before it can be compiled", op)
	}

	ty := raw.Type()
	switch {
	case ty == cty.String:
		return map[string]any{key: raw.AsString()}, nil
	case ty.IsObjectType() || ty.IsMapType():
		native, err := ctyconv.ToNative(raw)
		if err != nil {
			return nil, specerr.Typef(op, "", "cannot convert %s: %v", op, err)
		}
		m, _ := native.(map[string]any)
		if m == nil {
			m = map[string]any{}
		}
		return m, nil
	default:
		return nil, specerr.Typef(op, "", "%s must be a string or an object, got %s", op, ty.FriendlyName())
	}
}
