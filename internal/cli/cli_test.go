package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("flags and positional paths", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{
			"-w", "a.hcl",
			"--log-format", "JSON",
			"--default-rule", "one_to_one",
			"--engine-url", "http://localhost:3000",
			"--engine-timeout", "2s",
			"--threads", "4",
			"--metrics-port", "9100",
			"b.hcl", "dir",
		}, &out)
		require.NoError(t, err)
		assert.False(t, exit)
		assert.Equal(t, []string{"a.hcl", "b.hcl", "dir"}, cfg.WiringPaths)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "one_to_one", cfg.DefaultRule)
		assert.Equal(t, "static_synapse", cfg.DefaultSynapseModel)
		assert.Equal(t, "http://localhost:3000", cfg.EngineURL)
		assert.Equal(t, 2*time.Second, cfg.EngineTimeout)
		assert.Equal(t, 4, cfg.Threads)
		assert.Equal(t, uint64(1), cfg.Seed)
		assert.Equal(t, 9100, cfg.MetricsPort)
		assert.False(t, cfg.Tracing)
	})

	t.Run("no path prints usage", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse(nil, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("help", func(t *testing.T) {
		var out bytes.Buffer
		_, exit, err := Parse([]string{"-h"}, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Contains(t, out.String(), "-engine-url")
	})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown flag", args: []string{"--nope"}, want: "flag provided but not defined"},
		{name: "bad log level", args: []string{"--log-level", "loud", "a.hcl"}, want: "invalid log level"},
		{name: "bad rule", args: []string{"--default-rule", "ring", "a.hcl"}, want: "unknown connection rule 'ring'"},
		{name: "bad threads", args: []string{"--threads", "-1", "a.hcl"}, want: "threads must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, _, err := Parse(tt.args, &out)
			require.Error(t, err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tt.want)
		})
	}
}
