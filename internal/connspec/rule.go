// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Rule, the closed set of connectivity patterns.
//
// Why a closed enumeration instead of strings?
//
// Rule names arrive as user strings, but every decision downstream (array
// shapes, spatial orientation, engine dispatch) is a switch over the rule.
// Parsing the name once into a Rule means those switches are exhaustive over
// a known set, and an unknown name is rejected in exactly one place.
package connspec

import (
	"strings"

	"github.com/vk/wiregrid/internal/specerr"
)

// Rule names a connectivity pattern.
type Rule int

const (
	AllToAll Rule = iota + 1
	OneToOne
	FixedIndegree
	FixedOutdegree
	FixedTotalNumber
	PairwiseBernoulli
)

// Rules lists every rule in declaration order.
var Rules = []Rule{AllToAll, OneToOne, FixedIndegree, FixedOutdegree, FixedTotalNumber, PairwiseBernoulli}

var ruleNames = map[Rule]string{
	AllToAll:          "all_to_all",
	OneToOne:          "one_to_one",
	FixedIndegree:     "fixed_indegree",
	FixedOutdegree:    "fixed_outdegree",
	FixedTotalNumber:  "fixed_total_number",
	PairwiseBernoulli: "pairwise_bernoulli",
}

// String returns the wire name of the rule.
func (r Rule) String() string {
	if name, ok := ruleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether r is one of the declared rules.
func (r Rule) Valid() bool {
	_, ok := ruleNames[r]
	return ok
}

// ParseRule maps a wire name to its Rule. Unknown names fail with a
// DomainKind error listing the accepted names.
func ParseRule(name string) (Rule, error) {
	for _, r := range Rules {
		if ruleNames[r] == name {
			return r, nil
		}
	}
	names := make([]string, len(Rules))
	for i, r := range Rules {
		names[i] = "'" + r.String() + "'"
	}
	return 0, specerr.Domainf("conn_spec", KeyRule, "unknown connection rule '%s', expected one of %s", name, strings.Join(names, ", "))
}

// MarshalText implements encoding.TextMarshaler.
func (r Rule) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rule) UnmarshalText(b []byte) error {
	parsed, err := ParseRule(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
