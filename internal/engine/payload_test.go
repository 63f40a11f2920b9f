package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/population"
	"github.com/vk/wiregrid/internal/spatial"
	"github.com/vk/wiregrid/internal/synspec"
)

func TestConnectDirective_Payload(t *testing.T) {
	pre, err := population.NewRange(1, 2, nil)
	require.NoError(t, err)
	post, err := population.NewRange(3, 2, nil)
	require.NoError(t, err)

	cs := connspec.New(connspec.OneToOne, map[string]cty.Value{"autapses": cty.False})
	ss, err := synspec.Validate(cty.ObjectVal(map[string]cty.Value{
		"weight": cty.TupleVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)}),
	}), cs, 2, 2)
	require.NoError(t, err)

	payload, err := ConnectDirective{Pre: pre, Post: post, ConnSpec: cs, SynSpec: ss}.Payload()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"pre":       []uint64{1, 2},
		"post":      []uint64{3, 4},
		"conn_spec": map[string]any{"rule": "one_to_one", "autapses": false},
		"syn_spec":  map[string]any{"weight": []float64{1, 2}},
	}, payload)

	payload, err = ConnectDirective{Pre: pre, Post: post, ConnSpec: cs}.Payload()
	require.NoError(t, err)
	assert.NotContains(t, payload, "syn_spec")
}

func TestLayersDirective_Payload(t *testing.T) {
	n := 2
	proj := &spatial.Projection{ConnectionType: spatial.Convergent, NumberOfConnections: &n}
	payload, err := LayersDirective{Projection: proj}.Payload()
	require.NoError(t, err)
	assert.Equal(t, []uint64{}, payload["pre"])
	assert.Equal(t, map[string]any{"connection_type": "convergent", "number_of_connections": 2}, payload["projection"])
}

func TestCGConnectDirective_Payload(t *testing.T) {
	pre, err := population.NewRange(1, 2, nil)
	require.NoError(t, err)
	post, err := population.NewRange(3, 1, nil)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		d       CGConnectDirective
		want    map[string]any
		wantErr string
	}{
		{
			name: "full",
			d: CGConnectDirective{
				Pre: pre, Post: post,
				Generator:    "cg0",
				ParameterMap: map[string]int{"weight": 0, "delay": 1},
				SynapseModel: "stdp_synapse",
			},
			want: map[string]any{
				"pre":           []uint64{1, 2},
				"post":          []uint64{3},
				"cg":            "cg0",
				"parameter_map": map[string]int{"weight": 0, "delay": 1},
				"model":         "stdp_synapse",
			},
		},
		{
			name: "nil parameter map becomes empty",
			d:    CGConnectDirective{Pre: pre, Post: post, Generator: map[string]any{"library": "libcsa"}, SynapseModel: "static_synapse"},
			want: map[string]any{
				"pre":           []uint64{1, 2},
				"post":          []uint64{3},
				"cg":            map[string]any{"library": "libcsa"},
				"parameter_map": map[string]int{},
				"model":         "static_synapse",
			},
		},
		{name: "missing generator", d: CGConnectDirective{Pre: pre, Post: post}, wantErr: "no connection generator"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := tc.d.Payload()
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, payload)
		})
	}
}

func TestQuery_Payload(t *testing.T) {
	payload, err := Query{}.Payload()
	require.NoError(t, err)
	assert.Empty(t, payload)

	label := 0
	payload, err = Query{Sources: []uint64{1}, SynapseModel: "static_synapse", SynapseLabel: &label}.Payload()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"source": []uint64{1}, "synapse_model": "static_synapse", "synapse_label": 0}, payload)
}
