package synspec

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/ctyconv"
	"github.com/vk/wiregrid/internal/specerr"
)

// toArray converts a list or tuple into a dense numeric array. Ragged or
// non-numeric input fails with a TypeKind error.
func toArray(key string, v cty.Value) (*Array, error) {
	shape, data, ok := dense(v)
	if !ok {
		return nil, specerr.Typef("syn_spec", key, "'%s' cannot be converted to a dense numeric array", key)
	}
	return &Array{Shape: shape, Data: data}, nil
}

func dense(v cty.Value) ([]int, []float64, bool) {
	n := v.LengthInt()
	if n == 0 {
		return []int{0}, []float64{}, true
	}

	var (
		inner []int
		data  []float64
	)
	i := 0
	it := v.ElementIterator()
	for it.Next() {
		_, elem := it.Element()
		ety := elem.Type()
		switch {
		case ety == cty.Number:
			if i > 0 && inner != nil {
				return nil, nil, false
			}
			f, ok := ctyconv.Float(elem)
			if !ok {
				return nil, nil, false
			}
			data = append(data, f)

		case ety.IsListType() || ety.IsTupleType():
			if ctyconv.IsAbsent(elem) {
				return nil, nil, false
			}
			sub, subData, ok := dense(elem)
			if !ok {
				return nil, nil, false
			}
			if i == 0 {
				inner = sub
			} else if inner == nil || !sameShape(inner, sub) {
				return nil, nil, false
			}
			data = append(data, subData...)

		default:
			return nil, nil, false
		}
		i++
	}

	return append([]int{n}, inner...), data, true
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// checkShape validates an array against the rule table and returns the
// form handed to the engine.
func checkShape(key string, arr *Array, cs *connspec.ConnSpec, prelength, postlength int) (*Array, error) {
	switch arr.Rank() {
	case 1:
		return checkRank1(key, arr, cs, prelength)
	case 2:
		return checkRank2(key, arr, cs, prelength, postlength)
	default:
		return nil, specerr.Domainf("syn_spec", key, "'%s' has %d dimensions; parameter arrays have one or two dimensions", key, arr.Rank())
	}
}

func checkRank1(key string, arr *Array, cs *connspec.ConnSpec, prelength int) (*Array, error) {
	switch cs.Rule {
	case connspec.OneToOne:
		if arr.Shape[0] != prelength {
			return nil, specerr.Domainf("syn_spec", key,
				"'%s' has to be an array of dimension %d, a scalar or a dictionary, got %s", key, prelength, arr.ShapeString())
		}
		return arr, nil
	case connspec.AllToAll, connspec.FixedIndegree, connspec.FixedOutdegree,
		connspec.FixedTotalNumber, connspec.PairwiseBernoulli:
		return nil, specerr.Domainf("syn_spec", key,
			"'%s' has the wrong type: one-dimensional parameter arrays can only be used in conjunction with rule 'one_to_one', not '%s'", key, cs.Rule)
	default:
		return nil, specerr.Domainf("syn_spec", key, "unsupported rule '%s'", cs.Rule)
	}
}

func checkRank2(key string, arr *Array, cs *connspec.ConnSpec, prelength, postlength int) (*Array, error) {
	var (
		rows, cols int
		axes       string
	)
	switch cs.Rule {
	case connspec.AllToAll:
		rows, cols, axes = postlength, prelength, "n_target x n_sources"
	case connspec.FixedIndegree:
		indegree, err := cs.Indegree()
		if err != nil {
			return nil, err
		}
		rows, cols, axes = postlength, indegree, "n_target x indegree"
	case connspec.FixedOutdegree:
		outdegree, err := cs.Outdegree()
		if err != nil {
			return nil, err
		}
		rows, cols, axes = prelength, outdegree, "n_sources x outdegree"
	case connspec.OneToOne, connspec.FixedTotalNumber, connspec.PairwiseBernoulli:
		return nil, specerr.Domainf("syn_spec", key,
			"'%s' has the wrong type: two-dimensional parameter arrays can only be used in conjunction with rules 'all_to_all', 'fixed_indegree' or 'fixed_outdegree', not '%s'", key, cs.Rule)
	default:
		return nil, specerr.Domainf("syn_spec", key, "unsupported rule '%s'", cs.Rule)
	}

	if arr.Shape[0] != rows || arr.Shape[1] != cols {
		return nil, specerr.Domainf("syn_spec", key,
			"'%s' has to be an array of dimension %dx%d (%s), a scalar or a dictionary, got %s", key, rows, cols, axes, arr.ShapeString())
	}
	return arr.Flatten(), nil
}
