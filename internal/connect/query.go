package connect

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vk/wiregrid/internal/connectome"
	"github.com/vk/wiregrid/internal/ctxlog"
	"github.com/vk/wiregrid/internal/engine"
	"github.com/vk/wiregrid/internal/observability"
	"github.com/vk/wiregrid/internal/population"
	"github.com/vk/wiregrid/internal/specerr"
)

// QueryOption adds one criterion to GetConnections. Criteria combine with
// AND.
type QueryOption func(*engine.Query) error

// FromSource restricts the query to connections leaving pop.
func FromSource(pop *population.Collection) QueryOption {
	return func(q *engine.Query) error {
		if pop == nil {
			return specerr.Typef("get_connections", "source", "source must be a population handle")
		}
		q.Sources = pop.IDs()
		return nil
	}
}

// FromSourceIDs restricts the query to connections leaving the given
// identifiers.
func FromSourceIDs(ids []int64) QueryOption {
	return func(q *engine.Query) error {
		pop, err := population.FromIDs(ids)
		if err != nil {
			return retag(err, "source")
		}
		q.Sources = pop.IDs()
		return nil
	}
}

// ToTarget restricts the query to connections entering pop.
func ToTarget(pop *population.Collection) QueryOption {
	return func(q *engine.Query) error {
		if pop == nil {
			return specerr.Typef("get_connections", "target", "target must be a population handle")
		}
		q.Targets = pop.IDs()
		return nil
	}
}

// ToTargetIDs restricts the query to connections entering the given
// identifiers.
func ToTargetIDs(ids []int64) QueryOption {
	return func(q *engine.Query) error {
		pop, err := population.FromIDs(ids)
		if err != nil {
			return retag(err, "target")
		}
		q.Targets = pop.IDs()
		return nil
	}
}

// WithSynapseModel restricts the query to one synapse model.
func WithSynapseModel(model string) QueryOption {
	return func(q *engine.Query) error {
		q.SynapseModel = model
		return nil
	}
}

// WithSynapseLabel restricts the query to one synapse label.
func WithSynapseLabel(label int) QueryOption {
	return func(q *engine.Query) error {
		if label < 0 {
			return specerr.Valuef("get_connections", "synapse_label", "synapse_label must be non-negative, got %d", label)
		}
		q.SynapseLabel = &label
		return nil
	}
}

// GetConnections returns the connections matching every given criterion.
// Without criteria it returns all connections the engine knows about. The
// result is never nil.
func (c *Connector) GetConnections(ctx context.Context, opts ...QueryOption) (*connectome.Connectome, error) {
	ctx, span := observability.StartSpan(ctx, c.tracer, "connect.GetConnections")
	result, err := c.getConnections(ctx, opts)
	span.SetAttributes(attribute.Int("connections", result.Len()))
	c.metrics.ObserveQuery(result.Len(), err)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Connector) getConnections(ctx context.Context, opts []QueryOption) (*connectome.Connectome, error) {
	var q engine.Query
	for _, opt := range opts {
		if err := opt(&q); err != nil {
			return nil, err
		}
	}

	conns, err := c.engine.GetConnections(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("engine rejected connection query: %w", err)
	}
	result := connectome.New(conns)
	ctxlog.FromContext(ctx).Debug("Connection query answered.", "connections", result.Len())
	return result, nil
}

func retag(err error, key string) error {
	var se *specerr.Error
	if errors.As(err, &se) {
		out := *se
		out.Op, out.Key = "get_connections", key
		return &out
	}
	return err
}
