// Package synspec validates per-edge synapse parameters against the chosen
// connection rule and the sizes of the two populations.
//
// A syn_spec is either a bare synapse model name or a map of parameters.
// Sequence-valued parameters are converted to dense numeric arrays whose
// shape is fully determined by the rule:
//
//	one_to_one       rank 1, (prelength)
//	all_to_all       rank 2, (postlength, prelength)
//	fixed_indegree   rank 2, (postlength, indegree)
//	fixed_outdegree  rank 2, (prelength, outdegree)
//
// Any other combination is rejected. Rank-2 arrays are flattened row-major
// before they reach the engine.
package synspec

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/ctyconv"
	"github.com/vk/wiregrid/internal/specerr"
)

// Well-known syn_spec keys.
const (
	KeySynapseModel = "synapse_model"
	KeyModel        = "model"
	KeyWeight       = "weight"
	KeyDelay        = "delay"
	KeyDistribution = "distribution"
)

// SynSpec is a validated synapse specification. Exactly one of Literal or
// Params is meaningful.
type SynSpec struct {
	// Literal is set when the syn_spec was a bare synapse model name.
	Literal string
	Params  map[string]Param
}

// IsLiteral reports whether the spec is a bare model name.
func (s *SynSpec) IsLiteral() bool { return s != nil && s.Literal != "" }

// Model returns the synapse model selected by the spec, or "" when the
// engine default applies.
func (s *SynSpec) Model() string {
	if s == nil {
		return ""
	}
	if s.Literal != "" {
		return s.Literal
	}
	for _, key := range []string{KeySynapseModel, KeyModel} {
		if sc, ok := s.Params[key].(Scalar); ok && sc.Value.Type() == cty.String {
			return sc.Value.AsString()
		}
	}
	return ""
}

// Keys returns the parameter names in lexical order.
func (s *SynSpec) Keys() []string {
	if s == nil {
		return nil
	}
	return ctyconv.SortedKeys(s.Params)
}

// Get returns the named parameter.
func (s *SynSpec) Get(key string) (Param, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.Params[key]
	return p, ok
}

// Native returns the engine-native form: a string for a literal, a map
// otherwise.
func (s *SynSpec) Native() (any, error) {
	if s == nil {
		return nil, nil
	}
	if s.IsLiteral() {
		return s.Literal, nil
	}
	out := make(map[string]any, len(s.Params))
	for _, k := range s.Keys() {
		v, err := s.Params[k].Native()
		if err != nil {
			return nil, specerr.Typef("syn_spec", k, "cannot convert '%s': %v", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Validate checks and reshapes raw syn_spec input for the given conn_spec
// and population sizes. A null input yields a nil *SynSpec, meaning "use
// the engine's default synapse model".
func Validate(raw cty.Value, cs *connspec.ConnSpec, prelength, postlength int) (*SynSpec, error) {
	if ctyconv.IsAbsent(raw) {
		return nil, nil
	}
	if !raw.IsWhollyKnown() {
		return nil, specerr.Typef("syn_spec", "", "syn_spec must be fully known before it can be compiled")
	}

	ty := raw.Type()
	switch {
	case ty == cty.String:
		return &SynSpec{Literal: raw.AsString()}, nil

	case ty.IsObjectType() || ty.IsMapType():
		attrs := ctyconv.Attributes(raw)
		spec := &SynSpec{Params: make(map[string]Param, len(attrs))}
		for _, key := range ctyconv.SortedKeys(attrs) {
			v := attrs[key]
			if ctyconv.IsAbsent(v) {
				continue
			}
			p, err := classify(key, v)
			if err != nil {
				return nil, err
			}
			if arr, ok := p.(*Array); ok {
				if p, err = checkShape(key, arr, cs, prelength, postlength); err != nil {
					return nil, err
				}
			}
			spec.Params[key] = p
		}
		return spec, nil

	default:
		return nil, specerr.Typef("syn_spec", "", "syn_spec must be a string or an object, got %s", ty.FriendlyName())
	}
}

// classify sorts one parameter value into its Param variant.
func classify(key string, v cty.Value) (Param, error) {
	ty := v.Type()
	switch {
	case ty.IsListType() || ty.IsTupleType():
		return toArray(key, v)

	case ty.IsSetType():
		return nil, specerr.Typef("syn_spec", key, "'%s' is an unordered set and cannot be used as a parameter array", key)

	case ty.IsObjectType() || ty.IsMapType():
		attrs := ctyconv.Attributes(v)
		name, ok := attrs[KeyDistribution]
		if !ok {
			return Object{Value: v}, nil
		}
		if name.Type() != cty.String {
			return nil, specerr.Typef("syn_spec", key, "'%s' of '%s' must be a string, got %s", KeyDistribution, key, name.Type().FriendlyName())
		}
		params := make(map[string]cty.Value, len(attrs)-1)
		for k, pv := range attrs {
			if k != KeyDistribution {
				params[k] = pv
			}
		}
		return Distribution{Name: name.AsString(), Params: params}, nil

	default:
		return Scalar{Value: v}, nil
	}
}
