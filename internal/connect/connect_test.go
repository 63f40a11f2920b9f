package connect

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vk/wiregrid/internal/connectome"
	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/engine"
	"github.com/vk/wiregrid/internal/engine/memengine"
	"github.com/vk/wiregrid/internal/observability"
	"github.com/vk/wiregrid/internal/population"
	"github.com/vk/wiregrid/internal/spatial"
	"github.com/vk/wiregrid/internal/specerr"
	"github.com/vk/wiregrid/internal/synspec"
)

// recordingEngine captures directives and answers queries from a canned
// result.
type recordingEngine struct {
	mu          sync.Mutex
	connects    []engine.ConnectDirective
	layers      []engine.LayersDirective
	disconnects []engine.DisconnectDirective
	generators  []engine.CGConnectDirective
	queries     []engine.Query
	result      []connectome.Connection
	err         error
}

func (r *recordingEngine) Connect(_ context.Context, d engine.ConnectDirective) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects = append(r.connects, d)
	return r.err
}

func (r *recordingEngine) ConnectLayers(_ context.Context, d engine.LayersDirective) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = append(r.layers, d)
	return r.err
}

func (r *recordingEngine) CGConnect(_ context.Context, d engine.CGConnectDirective) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators = append(r.generators, d)
	return r.err
}

func (r *recordingEngine) Disconnect(_ context.Context, d engine.DisconnectDirective) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects = append(r.disconnects, d)
	return r.err
}

func (r *recordingEngine) GetConnections(_ context.Context, q engine.Query) ([]connectome.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	return r.result, r.err
}

func (r *recordingEngine) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connects) + len(r.layers) + len(r.disconnects) + len(r.generators)
}

func obj(attrs map[string]cty.Value) cty.Value { return cty.ObjectVal(attrs) }

func pops(t *testing.T, preN, postN int, spatialMeta bool) (*population.Collection, *population.Collection) {
	t.Helper()
	var sp *population.Spatial
	if spatialMeta {
		sp = &population.Spatial{Shape: []int{1, 1}, Extent: []float64{1, 1}}
	}
	pre, err := population.NewRange(1, preN, sp)
	require.NoError(t, err)
	post, err := population.NewRange(uint64(preN)+1, postN, sp)
	require.NoError(t, err)
	return pre, post
}

func matrix(rows, cols int) cty.Value {
	out := make([]cty.Value, rows)
	for r := range out {
		row := make([]cty.Value, cols)
		for c := range row {
			row[c] = cty.NumberIntVal(int64(r*cols + c))
		}
		out[r] = cty.TupleVal(row)
	}
	return cty.TupleVal(out)
}

func TestConnect_DirectPathHandsSpecsOver(t *testing.T) {
	eng := &recordingEngine{}
	c := New(eng, Config{})
	pre, post := pops(t, 20, 10, false)

	_, err := c.Connect(context.Background(), pre, post,
		obj(map[string]cty.Value{"rule": cty.StringVal("fixed_indegree"), "indegree": cty.NumberIntVal(2)}),
		obj(map[string]cty.Value{"weight": matrix(10, 2), "synapse_model": cty.StringVal("stdp_synapse")}),
	)
	require.NoError(t, err)

	require.Len(t, eng.connects, 1)
	d := eng.connects[0]
	assert.Equal(t, connspec.FixedIndegree, d.ConnSpec.Rule)
	assert.Equal(t, "stdp_synapse", d.SynSpec.Model())
	w := d.SynSpec.Params["weight"].(*synspec.Array)
	assert.Len(t, w.Data, 20)
	assert.Equal(t, 0.0, w.Data[0])
	assert.Equal(t, 1.0, w.Data[1], "row 0 comes first")
	assert.Empty(t, eng.layers)
}

func TestConnect_DefaultRule(t *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
		want connspec.Rule
	}{
		{name: "zero config", cfg: Config{}, want: connspec.AllToAll},
		{name: "configured", cfg: Config{DefaultRule: connspec.OneToOne}, want: connspec.OneToOne},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			eng := &recordingEngine{}
			pre, post := pops(t, 3, 3, false)
			_, err := New(eng, tc.cfg).Connect(context.Background(), pre, post, cty.NilVal, cty.NilVal)
			require.NoError(t, err)
			require.Len(t, eng.connects, 1)
			assert.Equal(t, tc.want, eng.connects[0].ConnSpec.Rule)
			assert.Nil(t, eng.connects[0].SynSpec)
		})
	}
}

func TestConnect_SpatialPath(t *testing.T) {
	eng := &recordingEngine{}
	c := New(eng, Config{})
	pre, post := pops(t, 4, 4, true)

	_, err := c.Connect(context.Background(), pre, post,
		obj(map[string]cty.Value{
			"rule":          cty.StringVal("pairwise_bernoulli"),
			"p":             cty.NumberFloatVal(0.2),
			"use_on_source": cty.True,
		}),
		obj(map[string]cty.Value{"weight": cty.NumberFloatVal(2)}),
	)
	require.NoError(t, err)

	require.Len(t, eng.layers, 1)
	assert.Empty(t, eng.connects)
	proj := eng.layers[0].Projection
	assert.Equal(t, spatial.Convergent, proj.ConnectionType)
	assert.NotNil(t, proj.Weights)
}

func TestConnect_ValidationFailsBeforeEngine(t *testing.T) {
	flatPre, flatPost := pops(t, 20, 10, false)
	layerPre, layerPost := pops(t, 20, 10, true)
	mask := obj(map[string]cty.Value{"circular": obj(map[string]cty.Value{"radius": cty.NumberFloatVal(1)})})

	testCases := []struct {
		name     string
		pre      *population.Collection
		post     *population.Collection
		connSpec cty.Value
		synSpec  cty.Value
		wantErr  error
		wantKey  string
		wantMsg  string
	}{
		{name: "nil pre", pre: nil, post: flatPost, wantErr: specerr.ErrType, wantKey: "pre"},
		{name: "nil post", pre: flatPre, post: nil, wantErr: specerr.ErrType, wantKey: "post"},
		{name: "conn_spec of wrong type", pre: flatPre, post: flatPost, connSpec: cty.NumberIntVal(3), wantErr: specerr.ErrType},
		{name: "unknown rule", pre: flatPre, post: flatPost, connSpec: cty.StringVal("random"), wantErr: specerr.ErrDomain},
		{
			name: "shape mismatch cites expected shape", pre: flatPre, post: flatPost,
			connSpec: obj(map[string]cty.Value{"rule": cty.StringVal("fixed_indegree"), "indegree": cty.NumberIntVal(2)}),
			synSpec:  obj(map[string]cty.Value{"weight": matrix(10, 3)}),
			wantErr:  specerr.ErrDomain, wantKey: "weight", wantMsg: "10x2",
		},
		{
			name: "mask without spatial metadata names side", pre: flatPre, post: flatPost,
			connSpec: obj(map[string]cty.Value{"rule": cty.StringVal("all_to_all"), "mask": mask}),
			wantErr:  specerr.ErrType, wantKey: "pre",
		},
		{
			name: "missing spatial metadata reported before degree conflict", pre: flatPre, post: flatPost,
			connSpec: obj(map[string]cty.Value{"rule": cty.StringVal("all_to_all"), "mask": mask, "indegree": cty.NumberIntVal(2)}),
			wantErr:  specerr.ErrType, wantKey: "pre",
		},
		{
			name: "missing spatial metadata on post reported before degree conflict", pre: layerPre, post: flatPost,
			connSpec: obj(map[string]cty.Value{"rule": cty.StringVal("all_to_all"), "mask": mask, "outdegree": cty.NumberIntVal(2)}),
			wantErr:  specerr.ErrType, wantKey: "post",
		},
		{
			name: "use_on_source with fixed_indegree", pre: layerPre, post: layerPost,
			connSpec: obj(map[string]cty.Value{"rule": cty.StringVal("fixed_indegree"), "indegree": cty.NumberIntVal(2), "mask": mask, "use_on_source": cty.True}),
			wantErr:  specerr.ErrValue, wantKey: "use_on_source",
		},
		{
			name: "use_on_source with fixed_outdegree", pre: layerPre, post: layerPost,
			connSpec: obj(map[string]cty.Value{"rule": cty.StringVal("fixed_outdegree"), "outdegree": cty.NumberIntVal(2), "use_on_source": cty.False}),
			wantErr:  specerr.ErrValue, wantKey: "use_on_source",
		},
		{
			name: "disallowed spatial syn_spec key", pre: layerPre, post: layerPost,
			connSpec: obj(map[string]cty.Value{"rule": cty.StringVal("pairwise_bernoulli"), "mask": mask}),
			synSpec:  obj(map[string]cty.Value{"receptor_type": cty.NumberIntVal(1)}),
			wantErr:  specerr.ErrValue, wantKey: "receptor_type",
		},
		{
			name: "all_to_all on spatial path", pre: layerPre, post: layerPost,
			connSpec: obj(map[string]cty.Value{"rule": cty.StringVal("all_to_all"), "mask": mask}),
			wantErr:  specerr.ErrDomain, wantKey: "rule",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			eng := &recordingEngine{}
			_, err := New(eng, Config{}).Connect(context.Background(), tc.pre, tc.post, tc.connSpec, tc.synSpec, WithConnectome())
			require.ErrorIs(t, err, tc.wantErr)
			assert.Zero(t, eng.calls(), "no directive may reach the engine")
			assert.Empty(t, eng.queries)

			var se *specerr.Error
			require.ErrorAs(t, err, &se)
			if tc.wantKey != "" {
				assert.Equal(t, tc.wantKey, se.Key)
			}
			if tc.wantMsg != "" {
				assert.Contains(t, err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestConnect_EngineErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	eng := &recordingEngine{err: boom}
	pre, post := pops(t, 2, 2, false)

	_, err := New(eng, Config{}).Connect(context.Background(), pre, post, cty.StringVal("one_to_one"), cty.NilVal)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, specerr.KindOf(err))
}

func TestConnect_ReturnConnectome(t *testing.T) {
	eng := memengine.New()
	c := New(eng, Config{})
	pre, post := pops(t, 2, 3, false)

	conns, err := c.Connect(context.Background(), pre, post, cty.StringVal("all_to_all"), cty.NilVal, WithConnectome())
	require.NoError(t, err)
	assert.Equal(t, 6, conns.Len())

	conns, err = c.Connect(context.Background(), pre, post, cty.StringVal("all_to_all"), cty.NilVal)
	require.NoError(t, err)
	assert.Nil(t, conns)
}

func TestGetConnections(t *testing.T) {
	eng := &recordingEngine{}
	c := New(eng, Config{})
	pre, post := pops(t, 2, 2, false)

	result, err := c.GetConnections(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result, "an empty engine result is still a connectome")
	assert.Equal(t, 0, result.Len())
	assert.Equal(t, engine.Query{}, eng.queries[0])

	_, err = c.GetConnections(context.Background(),
		FromSource(pre), ToTargetIDs([]int64{3, 4}), WithSynapseModel("stdp_synapse"), WithSynapseLabel(2))
	require.NoError(t, err)
	label := 2
	assert.Equal(t, engine.Query{
		Sources:      []uint64{1, 2},
		Targets:      []uint64{3, 4},
		SynapseModel: "stdp_synapse",
		SynapseLabel: &label,
	}, eng.queries[1])

	_, err = c.GetConnections(context.Background(), ToTarget(post), FromSourceIDs([]int64{1, 2}))
	require.NoError(t, err)

	testCases := []struct {
		name    string
		opt     QueryOption
		wantErr error
		wantKey string
	}{
		{name: "negative label", opt: WithSynapseLabel(-1), wantErr: specerr.ErrValue, wantKey: "synapse_label"},
		{name: "unconvertible source ids", opt: FromSourceIDs([]int64{2, 1}), wantErr: specerr.ErrType, wantKey: "source"},
		{name: "unconvertible target ids", opt: ToTargetIDs([]int64{0}), wantErr: specerr.ErrType, wantKey: "target"},
		{name: "nil source handle", opt: FromSource(nil), wantErr: specerr.ErrType, wantKey: "source"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(eng.queries)
			_, err := c.GetConnections(context.Background(), tc.opt)
			require.ErrorIs(t, err, tc.wantErr)
			var se *specerr.Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.wantKey, se.Key)
			assert.Len(t, eng.queries, before, "invalid queries never reach the engine")
		})
	}
}

func TestDisconnect(t *testing.T) {
	pre, post := pops(t, 2, 2, false)

	testCases := []struct {
		name     string
		cfg      Config
		connSpec cty.Value
		synSpec  cty.Value
		wantConn map[string]any
		wantSyn  map[string]any
		wantErr  error
	}{
		{
			name:     "defaults",
			wantConn: map[string]any{"rule": "one_to_one"},
			wantSyn:  map[string]any{"synapse_model": "static_synapse"},
		},
		{
			name:     "configured default model",
			cfg:      Config{DefaultSynapseModel: "stdp_synapse"},
			wantConn: map[string]any{"rule": "one_to_one"},
			wantSyn:  map[string]any{"synapse_model": "stdp_synapse"},
		},
		{
			name:     "strings are wrapped",
			connSpec: cty.StringVal("all_to_all"),
			synSpec:  cty.StringVal("tsodyks_synapse"),
			wantConn: map[string]any{"rule": "all_to_all"},
			wantSyn:  map[string]any{"synapse_model": "tsodyks_synapse"},
		},
		{
			name:     "objects pass through without shape checks",
			connSpec: obj(map[string]cty.Value{"rule": cty.StringVal("one_to_one")}),
			synSpec:  obj(map[string]cty.Value{"synapse_model": cty.StringVal("static_synapse"), "weight": matrix(5, 5)}),
			wantConn: map[string]any{"rule": "one_to_one"},
			wantSyn: map[string]any{"synapse_model": "static_synapse", "weight": []any{
				[]any{0.0, 1.0, 2.0, 3.0, 4.0},
				[]any{5.0, 6.0, 7.0, 8.0, 9.0},
				[]any{10.0, 11.0, 12.0, 13.0, 14.0},
				[]any{15.0, 16.0, 17.0, 18.0, 19.0},
				[]any{20.0, 21.0, 22.0, 23.0, 24.0},
			}},
		},
		{name: "conn_spec of wrong type", connSpec: cty.True, wantErr: specerr.ErrType},
		{name: "syn_spec of wrong type", synSpec: cty.NumberIntVal(1), wantErr: specerr.ErrType},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			eng := &recordingEngine{}
			err := New(eng, tc.cfg).Disconnect(context.Background(), pre, post, tc.connSpec, tc.synSpec)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Zero(t, eng.calls())
				return
			}
			require.NoError(t, err)
			require.Len(t, eng.disconnects, 1)
			assert.Equal(t, tc.wantConn, eng.disconnects[0].ConnSpec)
			assert.Equal(t, tc.wantSyn, eng.disconnects[0].SynSpec)
		})
	}

	err := New(&recordingEngine{}, Config{}).Disconnect(context.Background(), nil, post, cty.NilVal, cty.NilVal)
	require.ErrorIs(t, err, specerr.ErrType)
}

func TestConnector_MetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewCollector(reg)
	require.NoError(t, err)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	c := New(memengine.New(), Config{}, WithMetrics(metrics), WithTracerProvider(tp))
	pre, post := pops(t, 2, 2, false)
	ctx := context.Background()

	_, err = c.Connect(ctx, pre, post, cty.StringVal("one_to_one"), cty.NilVal)
	require.NoError(t, err)
	_, err = c.Connect(ctx, pre, post, obj(map[string]cty.Value{"rule": cty.StringVal("one_to_one"), "indegree": cty.NumberIntVal(1)}), cty.NilVal)
	require.ErrorIs(t, err, specerr.ErrValue)
	require.NoError(t, c.Disconnect(ctx, pre, post, cty.NilVal, cty.NilVal))
	_, err = c.GetConnections(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Connects.WithLabelValues(PathDirect, "one_to_one", observability.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Connects.WithLabelValues(PathDirect, "one_to_one", observability.OutcomeInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ValidationErrors.WithLabelValues("value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Disconnects.WithLabelValues(observability.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Queries.WithLabelValues(observability.OutcomeOK)))

	ended := recorder.Ended()
	require.Len(t, ended, 4)
	names := make([]string, len(ended))
	for i, s := range ended {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{"connect.Connect", "connect.Connect", "connect.Disconnect", "connect.GetConnections"}, names)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String("path", PathDirect))
}
