package memengine

import (
	"fmt"

	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/ctyconv"
)

// pairs expands a direct-path rule into (source, target) pairs.
func (e *Engine) pairs(pre, post []uint64, cs *connspec.ConnSpec) ([][2]uint64, error) {
	autapses := flag(cs, connspec.KeyAutapses)
	multapses := flag(cs, connspec.KeyMultapses)

	switch cs.Rule {
	case connspec.AllToAll:
		out := make([][2]uint64, 0, len(pre)*len(post))
		for _, t := range post {
			for _, s := range pre {
				if s == t && !autapses {
					continue
				}
				out = append(out, [2]uint64{s, t})
			}
		}
		return out, nil

	case connspec.OneToOne:
		if len(pre) != len(post) {
			return nil, fmt.Errorf("one_to_one requires populations of equal size, got %d and %d", len(pre), len(post))
		}
		out := make([][2]uint64, 0, len(pre))
		for i := range pre {
			if pre[i] == post[i] && !autapses {
				continue
			}
			out = append(out, [2]uint64{pre[i], post[i]})
		}
		return out, nil

	case connspec.FixedIndegree:
		n, err := cs.Indegree()
		if err != nil {
			return nil, err
		}
		return e.fixedDegree(post, pre, n, autapses, multapses, false)

	case connspec.FixedOutdegree:
		n, err := cs.Outdegree()
		if err != nil {
			return nil, err
		}
		return e.fixedDegree(pre, post, n, autapses, multapses, true)

	case connspec.FixedTotalNumber:
		n, err := cs.N()
		if err != nil {
			return nil, err
		}
		return e.fixedTotal(pre, post, n, autapses, multapses)

	case connspec.PairwiseBernoulli:
		v, _ := cs.Get(connspec.KeyP)
		p, ok := ctyconv.Float(v)
		if !ok {
			return nil, fmt.Errorf("%w: non-numeric 'p'", ErrUnsupported)
		}
		return e.bernoulli(pre, post, p, autapses), nil

	default:
		return nil, fmt.Errorf("%w: rule '%s'", ErrUnsupported, cs.Rule)
	}
}

func flag(cs *connspec.ConnSpec, key string) bool {
	v, present, _ := cs.Switch(key)
	return !present || v
}

// fixedDegree draws n partners from pool for every element of fixed.
// outgoing selects whether fixed holds sources or targets.
func (e *Engine) fixedDegree(fixed, pool []uint64, n int, autapses, multapses, outgoing bool) ([][2]uint64, error) {
	out := make([][2]uint64, 0, len(fixed)*n)
	for _, f := range fixed {
		candidates := make([]uint64, 0, len(pool))
		for _, p := range pool {
			if p == f && !autapses {
				continue
			}
			candidates = append(candidates, p)
		}
		if n > 0 && len(candidates) == 0 {
			return nil, fmt.Errorf("no eligible partners for element %d", f)
		}
		if !multapses && n > len(candidates) {
			return nil, fmt.Errorf("degree %d exceeds the %d eligible partners of element %d without multapses", n, len(candidates), f)
		}

		var picks []uint64
		if multapses {
			for range n {
				picks = append(picks, candidates[e.rng.IntN(len(candidates))])
			}
		} else {
			for _, i := range e.rng.Perm(len(candidates))[:n] {
				picks = append(picks, candidates[i])
			}
		}
		for _, p := range picks {
			if outgoing {
				out = append(out, [2]uint64{f, p})
			} else {
				out = append(out, [2]uint64{p, f})
			}
		}
	}
	return out, nil
}

func (e *Engine) fixedTotal(pre, post []uint64, n int, autapses, multapses bool) ([][2]uint64, error) {
	var candidates [][2]uint64
	for _, t := range post {
		for _, s := range pre {
			if s == t && !autapses {
				continue
			}
			candidates = append(candidates, [2]uint64{s, t})
		}
	}
	if n > 0 && len(candidates) == 0 {
		return nil, fmt.Errorf("no eligible pairs for %d connections", n)
	}
	if !multapses && n > len(candidates) {
		return nil, fmt.Errorf("N=%d exceeds the %d eligible pairs without multapses", n, len(candidates))
	}

	out := make([][2]uint64, 0, n)
	if multapses {
		for range n {
			out = append(out, candidates[e.rng.IntN(len(candidates))])
		}
		return out, nil
	}
	for _, i := range e.rng.Perm(len(candidates))[:n] {
		out = append(out, candidates[i])
	}
	return out, nil
}

func (e *Engine) bernoulli(pre, post []uint64, p float64, autapses bool) [][2]uint64 {
	var out [][2]uint64
	for _, t := range post {
		for _, s := range pre {
			if s == t && !autapses {
				continue
			}
			if e.rng.Float64() < p {
				out = append(out, [2]uint64{s, t})
			}
		}
	}
	return out
}
