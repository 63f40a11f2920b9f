package memengine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/vk/wiregrid/internal/connectome"
	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/ctxlog"
	"github.com/vk/wiregrid/internal/engine"
	"github.com/vk/wiregrid/internal/spatial"
	"github.com/vk/wiregrid/internal/synspec"
)

// DefaultSynapseModel is used when a directive selects no model.
const DefaultSynapseModel = "static_synapse"

// KeySynapseLabel is the syn_spec key carrying a user label.
const KeySynapseLabel = "synapse_label"

// unlabeled marks connections created without a label.
const unlabeled = -1

var (
	// ErrUnknownModel is returned for a synapse model that was never registered.
	ErrUnknownModel = errors.New("unknown synapse model")
	// ErrUnsupported is returned for directives this engine cannot realize.
	ErrUnsupported = errors.New("not supported by the in-memory engine")
)

// Record is one accepted directive in engine-native form.
type Record struct {
	Op      engine.Op
	Payload map[string]any
}

type edge struct {
	connectome.Connection
	label int
}

// Engine keeps connections in memory.
type Engine struct {
	mu         sync.RWMutex
	threads    int
	rng        *rand.Rand
	models     map[string]int
	edges      []edge
	ports      map[uint64]int
	directives []Record
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreads sets the number of virtual threads targets are spread over.
func WithThreads(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.threads = n
		}
	}
}

// WithSeed seeds the random stream used by probabilistic rules.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithSynapseModels registers additional synapse models.
func WithSynapseModels(names ...string) Option {
	return func(e *Engine) {
		for _, name := range names {
			e.register(name)
		}
	}
}

// New creates an empty engine. static_synapse always has id 0.
func New(opts ...Option) *Engine {
	e := &Engine{
		threads: 1,
		models:  make(map[string]int),
		ports:   make(map[uint64]int),
	}
	for _, name := range []string{DefaultSynapseModel, "static_synapse_hom_w", "stdp_synapse", "tsodyks_synapse", "ht_synapse"} {
		e.register(name)
	}
	WithSeed(1)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) register(name string) {
	if _, ok := e.models[name]; !ok {
		e.models[name] = len(e.models)
	}
}

// SynapseID returns the id registered for a synapse model.
func (e *Engine) SynapseID(model string) (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.models[model]
	return id, ok
}

// Directives returns a copy of every accepted directive in arrival order.
func (e *Engine) Directives() []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.directives)
}

// Len returns the number of live connections.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.edges)
}

// Connect realizes a direct-path directive.
func (e *Engine) Connect(ctx context.Context, d engine.ConnectDirective) error {
	logger := ctxlog.FromContext(ctx)
	payload, err := d.Payload()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	model := d.SynSpec.Model()
	if model == "" {
		model = DefaultSynapseModel
	}
	synID, ok := e.models[model]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrUnknownModel, model)
	}
	label, err := labelOf(d.SynSpec)
	if err != nil {
		return err
	}

	pairs, err := e.pairs(d.Pre.IDs(), d.Post.IDs(), d.ConnSpec)
	if err != nil {
		return err
	}
	if symmetric, _, _ := d.ConnSpec.Switch(connspec.KeySymmetric); symmetric {
		n := len(pairs)
		for _, p := range pairs[:n] {
			pairs = append(pairs, [2]uint64{p[1], p[0]})
		}
	}

	e.add(pairs, synID, label)
	e.directives = append(e.directives, Record{Op: engine.OpConnect, Payload: payload})
	logger.Debug("In-memory engine connected populations.", "rule", d.ConnSpec.Rule, "model", model, "connections", len(pairs))
	return nil
}

// ConnectLayers realizes a spatial-path directive.
func (e *Engine) ConnectLayers(ctx context.Context, d engine.LayersDirective) error {
	logger := ctxlog.FromContext(ctx)
	payload, err := d.Payload()
	if err != nil {
		return err
	}
	proj := payload["projection"].(map[string]any)

	e.mu.Lock()
	defer e.mu.Unlock()

	prob := 1.0
	if k, ok := proj["kernel"]; ok {
		f, isNum := k.(float64)
		if !isNum {
			return fmt.Errorf("%w: kernel of type %T", ErrUnsupported, k)
		}
		prob = f
	}
	autapses := d.Projection.AllowAutapses == nil || *d.Projection.AllowAutapses
	multapses := d.Projection.AllowMultapses == nil || *d.Projection.AllowMultapses

	pre, post := d.Pre.IDs(), d.Post.IDs()
	var pairs [][2]uint64
	switch {
	case d.Projection.NumberOfConnections == nil:
		pairs = e.bernoulli(pre, post, prob, autapses)
	case d.Projection.ConnectionType == spatial.Convergent:
		pairs, err = e.fixedDegree(post, pre, *d.Projection.NumberOfConnections, autapses, multapses, false)
	default:
		pairs, err = e.fixedDegree(pre, post, *d.Projection.NumberOfConnections, autapses, multapses, true)
	}
	if err != nil {
		return err
	}

	e.add(pairs, e.models[DefaultSynapseModel], unlabeled)
	e.directives = append(e.directives, Record{Op: engine.OpConnectLayers, Payload: payload})
	logger.Debug("In-memory engine connected layers.", "connection_type", d.Projection.ConnectionType, "connections", len(pairs))
	return nil
}

// CGConnect checks the directive and the synapse model, then fails with
// ErrUnsupported. Connection generators are evaluated by external
// libraries this engine does not load.
func (e *Engine) CGConnect(ctx context.Context, d engine.CGConnectDirective) error {
	if _, err := d.Payload(); err != nil {
		return err
	}
	e.mu.RLock()
	_, ok := e.models[d.SynapseModel]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrUnknownModel, d.SynapseModel)
	}
	ctxlog.FromContext(ctx).Debug("In-memory engine cannot evaluate connection generators.", "model", d.SynapseModel)
	return fmt.Errorf("%w: connection generators", ErrUnsupported)
}

// Disconnect removes connections between the two populations.
func (e *Engine) Disconnect(ctx context.Context, d engine.DisconnectDirective) error {
	logger := ctxlog.FromContext(ctx)
	payload, err := d.Payload()
	if err != nil {
		return err
	}

	rule, _ := d.ConnSpec[connspec.KeyRule].(string)
	var model string
	for _, key := range []string{synspec.KeySynapseModel, synspec.KeyModel} {
		if m, ok := d.SynSpec[key].(string); ok && m != "" {
			model = m
			break
		}
	}
	if model == "" {
		model = DefaultSynapseModel
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	synID, ok := e.models[model]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrUnknownModel, model)
	}

	pre, post := d.Pre.IDs(), d.Post.IDs()
	match := make(map[[2]uint64]bool)
	switch rule {
	case connspec.OneToOne.String():
		if len(pre) != len(post) {
			return fmt.Errorf("one_to_one disconnect requires equal sizes, got %d and %d", len(pre), len(post))
		}
		for i := range pre {
			match[[2]uint64{pre[i], post[i]}] = true
		}
	case connspec.AllToAll.String():
		for _, s := range pre {
			for _, t := range post {
				match[[2]uint64{s, t}] = true
			}
		}
	default:
		return fmt.Errorf("%w: disconnect rule '%s'", ErrUnsupported, rule)
	}

	kept := make([]edge, 0, len(e.edges))
	removed := 0
	for _, ed := range e.edges {
		if ed.SynapseID == synID && match[[2]uint64{ed.Source, ed.Target}] {
			removed++
			continue
		}
		kept = append(kept, ed)
	}
	if rule == connspec.OneToOne.String() && removed == 0 && len(pre) > 0 {
		return fmt.Errorf("no '%s' connections exist between the given populations", model)
	}
	e.edges = kept
	e.directives = append(e.directives, Record{Op: engine.OpDisconnect, Payload: payload})
	logger.Debug("In-memory engine disconnected populations.", "rule", rule, "model", model, "removed", removed)
	return nil
}

// GetConnections returns every connection matching all criteria of q, in
// creation order.
func (e *Engine) GetConnections(ctx context.Context, q engine.Query) ([]connectome.Connection, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	synID := -1
	if q.SynapseModel != "" {
		id, ok := e.models[q.SynapseModel]
		if !ok {
			return nil, fmt.Errorf("%w: '%s'", ErrUnknownModel, q.SynapseModel)
		}
		synID = id
	}
	sources, targets := set(q.Sources), set(q.Targets)

	out := []connectome.Connection{}
	for _, ed := range e.edges {
		if sources != nil && !sources[ed.Source] {
			continue
		}
		if targets != nil && !targets[ed.Target] {
			continue
		}
		if synID >= 0 && ed.SynapseID != synID {
			continue
		}
		if q.SynapseLabel != nil && ed.label != *q.SynapseLabel {
			continue
		}
		out = append(out, ed.Connection)
	}
	ctxlog.FromContext(ctx).Debug("In-memory engine answered query.", "matches", len(out))
	return out, nil
}

func (e *Engine) add(pairs [][2]uint64, synID, label int) {
	for _, p := range pairs {
		port := e.ports[p[0]]
		e.ports[p[0]] = port + 1
		e.edges = append(e.edges, edge{
			Connection: connectome.Connection{
				Source:       p[0],
				Target:       p[1],
				TargetThread: int(p[1] % uint64(e.threads)),
				SynapseID:    synID,
				Port:         port,
			},
			label: label,
		})
	}
}

func labelOf(ss *synspec.SynSpec) (int, error) {
	p, ok := ss.Get(KeySynapseLabel)
	if !ok {
		return unlabeled, nil
	}
	v, err := p.Native()
	if err != nil {
		return 0, err
	}
	f, isNum := v.(float64)
	if !isNum || f < 0 || f != float64(int(f)) {
		return 0, fmt.Errorf("'%s' must be a non-negative integer, got %v", KeySynapseLabel, v)
	}
	return int(f), nil
}

func set(ids []uint64) map[uint64]bool {
	if ids == nil {
		return nil
	}
	m := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

var _ engine.Engine = (*Engine)(nil)
