package engine

import (
	"fmt"

	"github.com/vk/wiregrid/internal/population"
)

// Payload returns the engine-native form of the directive.
func (d ConnectDirective) Payload() (map[string]any, error) {
	cs, err := d.ConnSpec.Native()
	if err != nil {
		return nil, fmt.Errorf("conn_spec: %w", err)
	}
	out := map[string]any{
		"pre":       ids(d.Pre),
		"post":      ids(d.Post),
		"conn_spec": cs,
	}
	if d.SynSpec != nil {
		ss, err := d.SynSpec.Native()
		if err != nil {
			return nil, err
		}
		out["syn_spec"] = ss
	}
	return out, nil
}

// Payload returns the engine-native form of the directive.
func (d LayersDirective) Payload() (map[string]any, error) {
	proj, err := d.Projection.Native()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"pre":        ids(d.Pre),
		"post":       ids(d.Post),
		"projection": proj,
	}, nil
}

// Payload returns the engine-native form of the directive.
func (d CGConnectDirective) Payload() (map[string]any, error) {
	if d.Generator == nil {
		return nil, fmt.Errorf("cg_connect directive has no connection generator")
	}
	params := d.ParameterMap
	if params == nil {
		params = map[string]int{}
	}
	return map[string]any{
		"pre":           ids(d.Pre),
		"post":          ids(d.Post),
		"cg":            d.Generator,
		"parameter_map": params,
		"model":         d.SynapseModel,
	}, nil
}

// Payload returns the engine-native form of the directive.
func (d DisconnectDirective) Payload() (map[string]any, error) {
	return map[string]any{
		"pre":       ids(d.Pre),
		"post":      ids(d.Post),
		"conn_spec": d.ConnSpec,
		"syn_spec":  d.SynSpec,
	}, nil
}

// Payload returns the engine-native form of the query. Unset criteria are
// omitted.
func (q Query) Payload() (map[string]any, error) {
	out := map[string]any{}
	if q.Sources != nil {
		out["source"] = q.Sources
	}
	if q.Targets != nil {
		out["target"] = q.Targets
	}
	if q.SynapseModel != "" {
		out["synapse_model"] = q.SynapseModel
	}
	if q.SynapseLabel != nil {
		out["synapse_label"] = *q.SynapseLabel
	}
	return out, nil
}

func ids(c *population.Collection) []uint64 {
	out := c.IDs()
	if out == nil {
		return []uint64{}
	}
	return out
}
