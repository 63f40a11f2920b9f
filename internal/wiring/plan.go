// Package wiring loads wiring files into an ordered Plan.
//
// A wiring file declares populations and then the connect, cg_connect,
// disconnect and query steps to run against them. Blocks execute in file order and files
// in the order fsutil.FindWiringFiles returns them.
package wiring

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/population"
)

// Defaults overrides the configured fallbacks for a whole plan. Zero fields
// are unset.
type Defaults struct {
	Rule         connspec.Rule
	SynapseModel string
}

// Population is a declared population with its assigned identifiers.
type Population struct {
	Name       string
	Model      string
	Collection *population.Collection
	DeclRange  hcl.Range
}

// StepKind tells what a Step does.
type StepKind int

const (
	StepConnect StepKind = iota + 1
	StepDisconnect
	StepQuery
	StepCGConnect
)

func (k StepKind) String() string {
	switch k {
	case StepConnect:
		return "connect"
	case StepDisconnect:
		return "disconnect"
	case StepQuery:
		return "query"
	case StepCGConnect:
		return "cg_connect"
	default:
		return "unknown"
	}
}

// Query is the body of a query block. Source and Target name populations.
type Query struct {
	Name         string
	Source       string
	Target       string
	SynapseModel string
	SynapseLabel *int
}

// Step is one executable block. Pre and Post are set for connect,
// cg_connect and disconnect; Query for query. Generator, ParameterMap and
// SynapseModel belong to cg_connect.
type Step struct {
	Kind             StepKind
	Pre, Post        string
	ConnSpec         cty.Value
	SynSpec          cty.Value
	ReturnConnectome bool
	Generator        cty.Value
	ParameterMap     cty.Value
	SynapseModel     string
	Query            *Query
	DeclRange        hcl.Range
}

// Name is a short human-readable label for the step.
func (s Step) Name() string {
	if s.Kind == StepQuery && s.Query != nil {
		return fmt.Sprintf("query %s", s.Query.Name)
	}
	return fmt.Sprintf("%s %s->%s", s.Kind, s.Pre, s.Post)
}

// Plan is the result of loading one or more wiring files.
type Plan struct {
	Files       []string
	Defaults    Defaults
	Populations []*Population
	Steps       []Step

	byName map[string]*Population
}

func newPlan() *Plan {
	return &Plan{byName: make(map[string]*Population)}
}

// Population looks up a declared population by name.
func (p *Plan) Population(name string) (*Population, bool) {
	pop, ok := p.byName[name]
	return pop, ok
}

// Collection returns the identifiers of a declared population, or nil.
func (p *Plan) Collection(name string) *population.Collection {
	if pop, ok := p.byName[name]; ok {
		return pop.Collection
	}
	return nil
}
