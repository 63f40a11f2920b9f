package connectome

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectome_EmptyIsNeverNil(t *testing.T) {
	var nilConnectome *Connectome
	for _, c := range []*Connectome{New(nil), nilConnectome, {}} {
		assert.Equal(t, 0, c.Len())
		assert.NotNil(t, c.All())
		assert.Empty(t, c.Sources())
	}

	data, err := json.Marshal(New(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestConnectome_Accessors(t *testing.T) {
	in := []Connection{
		{Source: 1, Target: 3, TargetThread: 1, SynapseID: 0, Port: 0},
		{Source: 1, Target: 4, TargetThread: 0, SynapseID: 0, Port: 1},
		{Source: 2, Target: 3, TargetThread: 1, SynapseID: 1, Port: 0},
	}
	c := New(in)
	in[0].Source = 99

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []uint64{1, 1, 2}, c.Sources(), "New copies its input")
	assert.Equal(t, []uint64{3, 4, 3}, c.Targets())

	assert.Equal(t, "1->4 (thread 0, synapse 0, port 1)", c.All()[1].String())

	data, err := json.Marshal(New(in[1:]))
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"source":1,"target":4,"target_thread":0,"synapse_id":0,"port":1},
		{"source":2,"target":3,"target_thread":1,"synapse_id":1,"port":0}
	]`, string(data))
}

func TestConnection_UnmarshalJSON(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		want    Connection
		wantErr string
	}{
		{
			name: "object",
			in:   `{"source":1,"target":3,"target_thread":1,"synapse_id":2,"port":4}`,
			want: Connection{Source: 1, Target: 3, TargetThread: 1, SynapseID: 2, Port: 4},
		},
		{
			name: "tuple",
			in:   `[1, 3, 1, 2, 4]`,
			want: Connection{Source: 1, Target: 3, TargetThread: 1, SynapseID: 2, Port: 4},
		},
		{name: "short tuple", in: `[1, 2]`, wantErr: "has 2 elements, want 5"},
		{name: "fractional element", in: `[1, 2.5, 0, 0, 0]`, wantErr: "element 1"},
		{name: "negative element", in: `[1, 2, -1, 0, 0]`, wantErr: "element 2"},
		{name: "string element", in: `["a", 2, 0, 0, 0]`, wantErr: "connection tuple"},
		{name: "wrong field type", in: `{"source":"one"}`, wantErr: "cannot unmarshal"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got Connection
			err := json.Unmarshal([]byte(tc.in), &got)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
