// Package engine defines the boundary between the connection compiler and
// the simulation engine that owns the actual synapses.
//
// The compiler emits exactly one directive per successful request. Engines
// receive directives that have already passed every check, so an engine
// error is never a validation error.
package engine

import (
	"context"

	"github.com/vk/wiregrid/internal/connectome"
	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/population"
	"github.com/vk/wiregrid/internal/spatial"
	"github.com/vk/wiregrid/internal/synspec"
)

// Op names a directive on the wire and in records.
type Op string

const (
	OpConnect        Op = "connect"
	OpConnectLayers  Op = "connect_layers"
	OpCGConnect      Op = "cg_connect"
	OpDisconnect     Op = "disconnect"
	OpGetConnections Op = "get_connections"
)

// Engine executes compiled directives.
type Engine interface {
	Connect(ctx context.Context, d ConnectDirective) error
	ConnectLayers(ctx context.Context, d LayersDirective) error
	CGConnect(ctx context.Context, d CGConnectDirective) error
	Disconnect(ctx context.Context, d DisconnectDirective) error
	GetConnections(ctx context.Context, q Query) ([]connectome.Connection, error)
}

// ConnectDirective is a direct-path request. The conn_spec and syn_spec
// are handed over as given; a nil SynSpec selects the engine default.
type ConnectDirective struct {
	Pre, Post *population.Collection
	ConnSpec  *connspec.ConnSpec
	SynSpec   *synspec.SynSpec
}

// LayersDirective is a spatial-path request.
type LayersDirective struct {
	Pre, Post  *population.Collection
	Projection *spatial.Projection
}

// CGConnectDirective connects through a connection generator that lives
// in the engine. Generator is passed through in engine-native form.
// ParameterMap assigns value-set indices of the generator to "weight" and
// "delay".
type CGConnectDirective struct {
	Pre, Post    *population.Collection
	Generator    any
	ParameterMap map[string]int
	SynapseModel string
}

// DisconnectDirective removes connections matching a rule and a synapse
// selection. Both maps are engine-native and always carry "rule" and
// "synapse_model" respectively when built by the compiler.
type DisconnectDirective struct {
	Pre, Post *population.Collection
	ConnSpec  map[string]any
	SynSpec   map[string]any
}

// Query selects existing connections. Nil Sources or Targets match any
// element; an empty SynapseModel matches any model; a nil SynapseLabel
// matches any label. All given criteria must hold.
type Query struct {
	Sources      []uint64
	Targets      []uint64
	SynapseModel string
	SynapseLabel *int
}
