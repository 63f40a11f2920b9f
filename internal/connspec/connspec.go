// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines ConnSpec, the canonical connection-spec record, and the
// normalizer that produces it from raw user input.
//
// Why keep the raw key map?
//
// On the direct path the engine receives the conn_spec verbatim, including
// keys this module never interprets. On the spatial path the same keys must
// be checked against an allow-list. Both needs are served by keeping every
// key exactly as given and exposing typed accessors for the keys the
// compiler does understand.
package connspec

import (
	"strconv"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wiregrid/internal/ctyconv"
	"github.com/vk/wiregrid/internal/specerr"
)

// Keys understood by the compiler.
const (
	KeyRule        = "rule"
	KeyIndegree    = "indegree"
	KeyOutdegree   = "outdegree"
	KeyN           = "N"
	KeyP           = "p"
	KeyMask        = "mask"
	KeyUseOnSource = "use_on_source"
	KeyAutapses    = "autapses"
	KeyMultapses   = "multapses"
	KeySymmetric   = "symmetric"
)

// switchKeys must hold booleans when present.
var switchKeys = []string{KeyAutapses, KeyMultapses, KeySymmetric, KeyUseOnSource}

// Defaults carries the configured fallback used when no conn_spec is given.
type Defaults struct {
	Rule Rule
}

// ConnSpec returns the default conn_spec as a record.
func (d Defaults) ConnSpec() *ConnSpec {
	r := d.Rule
	if !r.Valid() {
		r = AllToAll
	}
	return &ConnSpec{
		Rule:   r,
		params: map[string]cty.Value{KeyRule: cty.StringVal(r.String())},
	}
}

// ConnSpec is a normalized connection specification. Rule is always set.
type ConnSpec struct {
	Rule   Rule
	params map[string]cty.Value
}

// New builds a ConnSpec from a rule and extra parameters.
func New(rule Rule, params map[string]cty.Value) *ConnSpec {
	p := make(map[string]cty.Value, len(params)+1)
	for k, v := range params {
		p[k] = v
	}
	p[KeyRule] = cty.StringVal(rule.String())
	return &ConnSpec{Rule: rule, params: p}
}

// Normalize turns raw conn_spec input into a ConnSpec:
//   - null selects the configured default
//   - a string is the rule name
//   - an object or map is taken as-is; its contents are checked later
//
// Any other type fails with a TypeKind error.
func Normalize(raw cty.Value, defaults Defaults) (*ConnSpec, error) {
	if ctyconv.IsAbsent(raw) {
		return defaults.ConnSpec(), nil
	}
	if !raw.IsWhollyKnown() {
		return nil, specerr.Typef("conn_spec", "", "conn_spec must be fully known before it can be compiled")
	}

	ty := raw.Type()
	switch {
	case ty == cty.String:
		rule, err := ParseRule(raw.AsString())
		if err != nil {
			return nil, err
		}
		return New(rule, nil), nil

	case ty.IsObjectType() || ty.IsMapType():
		params := ctyconv.Attributes(raw)
		rv, ok := params[KeyRule]
		if !ok || ctyconv.IsAbsent(rv) {
			return nil, specerr.Valuef("conn_spec", KeyRule, "conn_spec must name a '%s'", KeyRule)
		}
		if rv.Type() != cty.String {
			return nil, specerr.Typef("conn_spec", KeyRule, "'%s' must be a string, got %s", KeyRule, rv.Type().FriendlyName())
		}
		rule, err := ParseRule(rv.AsString())
		if err != nil {
			return nil, err
		}
		return &ConnSpec{Rule: rule, params: params}, nil

	default:
		return nil, specerr.Typef("conn_spec", "", "conn_spec must be a string or an object, got %s", ty.FriendlyName())
	}
}

// Has reports whether key was given.
func (cs *ConnSpec) Has(key string) bool {
	v, ok := cs.params[key]
	return ok && !ctyconv.IsAbsent(v)
}

// Get returns the raw value for key.
func (cs *ConnSpec) Get(key string) (cty.Value, bool) {
	if !cs.Has(key) {
		return cty.NilVal, false
	}
	return cs.params[key], true
}

// Keys returns every given key in lexical order.
func (cs *ConnSpec) Keys() []string {
	keys := make([]string, 0, len(cs.params))
	for _, k := range ctyconv.SortedKeys(cs.params) {
		if cs.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Value returns the spec as an object value, exactly as given.
func (cs *ConnSpec) Value() cty.Value {
	attrs := make(map[string]cty.Value, len(cs.params))
	for _, k := range cs.Keys() {
		attrs[k] = cs.params[k]
	}
	return cty.ObjectVal(attrs)
}

// Native returns the spec as engine-native Go values.
func (cs *ConnSpec) Native() (map[string]any, error) {
	native, err := ctyconv.ToNative(cs.Value())
	if err != nil {
		return nil, err
	}
	m, _ := native.(map[string]any)
	return m, nil
}

// Indegree returns the 'indegree' parameter.
func (cs *ConnSpec) Indegree() (int, error) { return cs.degree(KeyIndegree) }

// Outdegree returns the 'outdegree' parameter.
func (cs *ConnSpec) Outdegree() (int, error) { return cs.degree(KeyOutdegree) }

// N returns the 'N' parameter of fixed_total_number.
func (cs *ConnSpec) N() (int, error) { return cs.degree(KeyN) }

func (cs *ConnSpec) degree(key string) (int, error) {
	v, ok := cs.Get(key)
	if !ok {
		return 0, specerr.Valuef("conn_spec", key, "rule '%s' requires '%s'", cs.Rule, key)
	}
	n, whole := ctyconv.WholeNumber(v)
	if !whole {
		return 0, specerr.Typef("conn_spec", key, "'%s' must be a whole number, got %s", key, friendly(v))
	}
	if n < 0 {
		return 0, specerr.Valuef("conn_spec", key, "'%s' must be non-negative, got %d", key, n)
	}
	return int(n), nil
}

// Switch returns a boolean switch. present is false when the key was not
// given; a non-boolean value fails with a TypeKind error.
func (cs *ConnSpec) Switch(key string) (value, present bool, err error) {
	v, ok := cs.Get(key)
	if !ok {
		return false, false, nil
	}
	if v.Type() != cty.Bool {
		return false, true, specerr.Typef("conn_spec", key, "'%s' must be a boolean, got %s", key, friendly(v))
	}
	return v.True(), true, nil
}

// Check enforces the cross-field rules of a conn_spec: rule-specific
// parameters only with their rule, required parameters present, switches
// boolean.
func (cs *ConnSpec) Check() error {
	exclusive := map[string]Rule{
		KeyIndegree:  FixedIndegree,
		KeyOutdegree: FixedOutdegree,
		KeyN:         FixedTotalNumber,
	}
	for _, key := range ctyconv.SortedKeys(exclusive) {
		owner := exclusive[key]
		if cs.Has(key) && cs.Rule != owner {
			return specerr.Valuef("conn_spec", key, "'%s' can only be used with rule '%s', not '%s'", key, owner, cs.Rule)
		}
	}

	switch cs.Rule {
	case FixedIndegree:
		if _, err := cs.Indegree(); err != nil {
			return err
		}
	case FixedOutdegree:
		if _, err := cs.Outdegree(); err != nil {
			return err
		}
	case FixedTotalNumber:
		if _, err := cs.N(); err != nil {
			return err
		}
	case PairwiseBernoulli:
		p, ok := cs.Get(KeyP)
		if !ok {
			// A masked request without a kernel connects everything inside the mask.
			if cs.Has(KeyMask) {
				break
			}
			return specerr.Valuef("conn_spec", KeyP, "rule '%s' requires '%s'", cs.Rule, KeyP)
		}
		if f, isNum := ctyconv.Float(p); isNum && (f < 0 || f > 1) {
			return specerr.Valuef("conn_spec", KeyP, "'%s' must be a probability in [0, 1], got %g", KeyP, f)
		}
	case AllToAll, OneToOne:
	}

	for _, key := range switchKeys {
		if _, _, err := cs.Switch(key); err != nil {
			return err
		}
	}
	return nil
}

func friendly(v cty.Value) string {
	switch {
	case v.Type().Equals(cty.Number):
		f, _ := ctyconv.Float(v)
		return strconv.FormatFloat(f, 'g', -1, 64)
	case v.Type().Equals(cty.String):
		return strconv.Quote(v.AsString())
	}
	return v.Type().FriendlyName()
}
