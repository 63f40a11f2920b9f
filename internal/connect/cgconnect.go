package connect

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vk/wiregrid/internal/ctxlog"
	"github.com/vk/wiregrid/internal/ctyconv"
	"github.com/vk/wiregrid/internal/engine"
	"github.com/vk/wiregrid/internal/observability"
	"github.com/vk/wiregrid/internal/population"
	"github.com/vk/wiregrid/internal/specerr"
)

// Parameter names a connection generator may supply values for.
const (
	CGParamWeight = "weight"
	CGParamDelay  = "delay"
)

// CGConnect connects pre and post through a connection generator owned by
// the engine.
//
// cg identifies the generator and is passed to the engine unchanged; it
// must be a string or an object. parameterMap assigns value-set indices of
// the generator to "weight" and "delay"; null means no values are taken
// from the generator. An empty model selects the configured synapse model.
func (c *Connector) CGConnect(ctx context.Context, pre, post *population.Collection, cg, parameterMap cty.Value, model string) error {
	ctx, span := observability.StartSpan(ctx, c.tracer, "connect.CGConnect")
	if model == "" {
		model = c.cfg.DefaultSynapseModel
	}
	span.SetAttributes(attribute.String("path", PathGenerator), attribute.String("synapse_model", model))

	err := c.cgConnect(ctx, pre, post, cg, parameterMap, model)
	c.metrics.ObserveConnect(PathGenerator, RuleConnectionGenerator, err)
	observability.EndSpan(span, err)
	return err
}

func (c *Connector) cgConnect(ctx context.Context, pre, post *population.Collection, cg, parameterMap cty.Value, model string) error {
	if pre == nil {
		return specerr.Typef("cg_connect", "pre", "presynaptic population must be a population handle")
	}
	if post == nil {
		return specerr.Typef("cg_connect", "post", "postsynaptic population must be a population handle")
	}

	gen, err := generator(cg)
	if err != nil {
		return err
	}
	params, err := cgParameterMap(parameterMap)
	if err != nil {
		return err
	}

	ctxlog.FromContext(ctx).Debug("Dispatching connection generator.", "pre", pre, "post", post, "synapse_model", model, "parameter_map", params)
	d := engine.CGConnectDirective{Pre: pre, Post: post, Generator: gen, ParameterMap: params, SynapseModel: model}
	if err := c.engine.CGConnect(ctx, d); err != nil {
		return fmt.Errorf("engine rejected cg_connect %s -> %s: %w", pre, post, err)
	}
	return nil
}

func generator(cg cty.Value) (any, error) {
	if ctyconv.IsAbsent(cg) {
		return nil, specerr.Typef("cg_connect", "cg", "a connection generator is required")
	}
	if !cg.IsWhollyKnown() {
		return nil, specerr.Typef("cg_connect", "cg", "connection generator must be fully known before it can be compiled")
	}
	ty := cg.Type()
	if ty != cty.String && !ty.IsObjectType() && !ty.IsMapType() {
		return nil, specerr.Typef("cg_connect", "cg", "connection generator must be a string or an object, got %s", ty.FriendlyName())
	}
	native, err := ctyconv.ToNative(cg)
	if err != nil {
		return nil, specerr.Typef("cg_connect", "cg", "cannot convert connection generator: %v", err)
	}
	if native == nil {
		native = map[string]any{}
	}
	return native, nil
}

func cgParameterMap(raw cty.Value) (map[string]int, error) {
	out := map[string]int{}
	if ctyconv.IsAbsent(raw) {
		return out, nil
	}
	if !raw.IsWhollyKnown() {
		return nil, specerr.Typef("cg_connect", "parameter_map", "parameter_map must be fully known before it can be compiled")
	}
	if ty := raw.Type(); !ty.IsObjectType() && !ty.IsMapType() {
		return nil, specerr.Typef("cg_connect", "parameter_map", "parameter_map must be an object, got %s", ty.FriendlyName())
	}

	attrs := ctyconv.Attributes(raw)
	for _, key := range ctyconv.SortedKeys(attrs) {
		if key != CGParamWeight && key != CGParamDelay {
			return nil, specerr.Valuef("cg_connect", key, "parameter_map may only contain '%s' and '%s'", CGParamWeight, CGParamDelay)
		}
		n, ok := ctyconv.WholeNumber(attrs[key])
		if !ok {
			return nil, specerr.Typef("cg_connect", key, "value-set index for '%s' must be an integer", key)
		}
		if n < 0 {
			return nil, specerr.Valuef("cg_connect", key, "value-set index for '%s' must be non-negative, got %d", key, n)
		}
		out[key] = int(n)
	}
	return out, nil
}
