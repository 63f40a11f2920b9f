// Package spatial decides when a connection request needs layer-based
// handling and translates such requests into the engine's projection
// vocabulary.
//
// The probability key 'p' is overloaded: with pairwise_bernoulli it is a
// plain pairwise probability the direct path understands, with any other
// rule it is a distance-dependent kernel and needs the spatial path.
package spatial

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/ctyconv"
	"github.com/vk/wiregrid/internal/population"
	"github.com/vk/wiregrid/internal/specerr"
	"github.com/vk/wiregrid/internal/synspec"
)

// ConnectionType is the orientation of a spatial degree constraint.
type ConnectionType int

const (
	// Convergent fixes the count per target.
	Convergent ConnectionType = iota + 1
	// Divergent fixes the count per source.
	Divergent
)

func (c ConnectionType) String() string {
	switch c {
	case Convergent:
		return "convergent"
	case Divergent:
		return "divergent"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c ConnectionType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Projection is the engine-facing record for a spatial request. It is
// built fresh per call.
type Projection struct {
	Mask                cty.Value
	Kernel              cty.Value
	AllowMultapses      *bool
	AllowAutapses       *bool
	ConnectionType      ConnectionType
	NumberOfConnections *int
	Weights             synspec.Param
	Delays              synspec.Param
}

// Needed reports whether cs requires the spatial path: a mask, a
// probability with a rule other than pairwise_bernoulli, or use_on_source.
func Needed(cs *connspec.ConnSpec) bool {
	return cs.Has(connspec.KeyMask) ||
		(cs.Has(connspec.KeyP) && cs.Rule != connspec.PairwiseBernoulli) ||
		cs.Has(connspec.KeyUseOnSource)
}

// RequireMetadata fails with a type error naming the first side that has
// no spatial metadata.
func RequireMetadata(pre, post *population.Collection) error {
	if !pre.HasSpatial() {
		return specerr.Typef("spatial", "pre", "presynaptic population must have spatial information to connect with mask or kernel")
	}
	if !post.HasSpatial() {
		return specerr.Typef("spatial", "post", "postsynaptic population must have spatial information to connect with mask or kernel")
	}
	return nil
}

// Build validates a spatial request and produces its projection.
func Build(pre, post *population.Collection, cs *connspec.ConnSpec, ss *synspec.SynSpec) (*Projection, error) {
	if err := RequireMetadata(pre, post); err != nil {
		return nil, err
	}

	if err := ConnSchema.Check(cs.Keys()); err != nil {
		return nil, err
	}

	proj := &Projection{}
	if mask, ok := cs.Get(connspec.KeyMask); ok {
		proj.Mask = mask
	}
	if p, ok := cs.Get(connspec.KeyP); ok {
		proj.Kernel = p
	}
	var err error
	if proj.AllowMultapses, err = optionalSwitch(cs, connspec.KeyMultapses); err != nil {
		return nil, err
	}
	if proj.AllowAutapses, err = optionalSwitch(cs, connspec.KeyAutapses); err != nil {
		return nil, err
	}

	if ss != nil {
		if ss.IsLiteral() {
			return nil, specerr.Valuef("spatial", synspec.KeySynapseModel,
				"synapse model '%s' cannot be selected in syn_spec when connecting with mask or kernel", ss.Literal)
		}
		if err := SynSchema.Check(ss.Keys()); err != nil {
			return nil, err
		}
		if w, ok := ss.Get(synspec.KeyWeight); ok {
			proj.Weights = w
		}
		if d, ok := ss.Get(synspec.KeyDelay); ok {
			proj.Delays = d
		}
	}

	if err := orient(proj, cs); err != nil {
		return nil, err
	}
	return proj, nil
}

// orient maps the rule onto connection_type and number_of_connections.
func orient(proj *Projection, cs *connspec.ConnSpec) error {
	useOnSource, hasUseOnSource, err := cs.Switch(connspec.KeyUseOnSource)
	if err != nil {
		return err
	}

	switch cs.Rule {
	case connspec.FixedIndegree:
		if hasUseOnSource {
			return specerr.Valuef("spatial", connspec.KeyUseOnSource, "'use_on_source' can only be set when using pairwise_bernoulli, not '%s'", cs.Rule)
		}
		n, err := cs.Indegree()
		if err != nil {
			return err
		}
		proj.ConnectionType = Convergent
		proj.NumberOfConnections = &n

	case connspec.FixedOutdegree:
		if hasUseOnSource {
			return specerr.Valuef("spatial", connspec.KeyUseOnSource, "'use_on_source' can only be set when using pairwise_bernoulli, not '%s'", cs.Rule)
		}
		n, err := cs.Outdegree()
		if err != nil {
			return err
		}
		proj.ConnectionType = Divergent
		proj.NumberOfConnections = &n

	case connspec.PairwiseBernoulli:
		if useOnSource {
			proj.ConnectionType = Convergent
		} else {
			proj.ConnectionType = Divergent
		}

	case connspec.AllToAll, connspec.OneToOne, connspec.FixedTotalNumber:
		return specerr.Domainf("spatial", connspec.KeyRule,
			"when using kernel or mask, the only possible connection rules are 'pairwise_bernoulli', 'fixed_indegree', or 'fixed_outdegree', got '%s'", cs.Rule)

	default:
		return specerr.Domainf("spatial", connspec.KeyRule, "unsupported rule '%s'", cs.Rule)
	}
	return nil
}

func optionalSwitch(cs *connspec.ConnSpec, key string) (*bool, error) {
	v, present, err := cs.Switch(key)
	if err != nil || !present {
		return nil, err
	}
	return &v, nil
}

// Native resolves the projection, including embedded mask and kernel
// objects, into the engine-native map form.
func (p *Projection) Native() (map[string]any, error) {
	out := map[string]any{
		"connection_type": p.ConnectionType.String(),
	}
	if !ctyconv.IsAbsent(p.Mask) {
		m, err := ctyconv.ToNative(p.Mask)
		if err != nil {
			return nil, fmt.Errorf("resolving mask: %w", err)
		}
		out["mask"] = m
	}
	if !ctyconv.IsAbsent(p.Kernel) {
		k, err := ctyconv.ToNative(p.Kernel)
		if err != nil {
			return nil, fmt.Errorf("resolving kernel: %w", err)
		}
		out["kernel"] = k
	}
	if p.AllowMultapses != nil {
		out["allow_multapses"] = *p.AllowMultapses
	}
	if p.AllowAutapses != nil {
		out["allow_autapses"] = *p.AllowAutapses
	}
	if p.NumberOfConnections != nil {
		out["number_of_connections"] = *p.NumberOfConnections
	}
	for key, param := range map[string]synspec.Param{"weights": p.Weights, "delays": p.Delays} {
		if param == nil {
			continue
		}
		v, err := param.Native()
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}
