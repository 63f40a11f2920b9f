package sioengine

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/wiregrid/internal/connectome"
	"github.com/vk/wiregrid/internal/connspec"
	"github.com/vk/wiregrid/internal/engine"
	"github.com/vk/wiregrid/internal/population"
)

type emitted struct {
	ID      uint64         `json:"id"`
	Op      string         `json:"op"`
	Payload map[string]any `json:"payload"`
}

// fakeTransport hands emitted directives to a responder, which may answer
// through the registered result handler.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]func(...any)
	sent     []emitted
	respond  func(f *fakeTransport, msg emitted)
	closed   bool
}

func (f *fakeTransport) emit(event string, payload any) {
	raw, _ := json.Marshal(payload)
	var msg emitted
	_ = json.Unmarshal(raw, &msg)

	f.mu.Lock()
	f.sent = append(f.sent, msg)
	respond := f.respond
	f.mu.Unlock()
	if event == EventDirective && respond != nil {
		go respond(f, msg)
	}
}

func (f *fakeTransport) on(event string, fn func(...any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[string]func(...any){}
	}
	f.handlers[event] = fn
}

func (f *fakeTransport) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) reply(data map[string]any) {
	f.mu.Lock()
	h := f.handlers[EventResult]
	f.mu.Unlock()
	h(data)
}

func ok(f *fakeTransport, msg emitted) { f.reply(map[string]any{"id": msg.ID}) }

func TestEngine_ConnectEmitsDirective(t *testing.T) {
	ft := &fakeTransport{respond: ok}
	e := newEngine(ft, time.Second, nil)

	pre, err := population.NewRange(1, 2, nil)
	require.NoError(t, err)
	post, err := population.NewRange(3, 2, nil)
	require.NoError(t, err)

	require.NoError(t, e.Connect(context.Background(), engine.ConnectDirective{Pre: pre, Post: post, ConnSpec: connspec.New(connspec.OneToOne, nil)}))

	require.Len(t, ft.sent, 1)
	msg := ft.sent[0]
	assert.Equal(t, uint64(1), msg.ID)
	assert.Equal(t, "connect", msg.Op)
	assert.Equal(t, map[string]any{"rule": "one_to_one"}, msg.Payload["conn_spec"])
	assert.Equal(t, []any{1.0, 2.0}, msg.Payload["pre"])

	require.NoError(t, e.Close())
	assert.True(t, ft.closed)
}

func TestEngine_CGConnectEmitsDirective(t *testing.T) {
	ft := &fakeTransport{respond: ok}
	e := newEngine(ft, time.Second, nil)

	pre, err := population.NewRange(1, 2, nil)
	require.NoError(t, err)
	post, err := population.NewRange(3, 1, nil)
	require.NoError(t, err)

	require.NoError(t, e.CGConnect(context.Background(), engine.CGConnectDirective{
		Pre: pre, Post: post,
		Generator:    map[string]any{"library": "libcsa", "xml": "cg.xml"},
		ParameterMap: map[string]int{"weight": 0, "delay": 1},
		SynapseModel: "static_synapse",
	}))

	require.Len(t, ft.sent, 1)
	msg := ft.sent[0]
	assert.Equal(t, "cg_connect", msg.Op)
	assert.Equal(t, map[string]any{"library": "libcsa", "xml": "cg.xml"}, msg.Payload["cg"])
	assert.Equal(t, map[string]any{"weight": 0.0, "delay": 1.0}, msg.Payload["parameter_map"])
	assert.Equal(t, "static_synapse", msg.Payload["model"])
	assert.Equal(t, []any{3.0}, msg.Payload["post"])
}

func TestEngine_GetConnectionsDecodesReply(t *testing.T) {
	ft := &fakeTransport{respond: func(f *fakeTransport, msg emitted) {
		f.reply(map[string]any{
			"id": msg.ID,
			"connections": []any{
				map[string]any{"source": 1.0, "target": 3.0, "target_thread": 0.0, "synapse_id": 0.0, "port": 0.0},
				map[string]any{"source": 2.0, "target": 4.0, "target_thread": 1.0, "synapse_id": 0.0, "port": 0.0},
			},
		})
	}}
	e := newEngine(ft, time.Second, nil)

	conns, err := e.GetConnections(context.Background(), engine.Query{SynapseModel: "static_synapse"})
	require.NoError(t, err)
	assert.Equal(t, []connectome.Connection{
		{Source: 1, Target: 3},
		{Source: 2, Target: 4, TargetThread: 1},
	}, conns)
	assert.Equal(t, "get_connections", ft.sent[0].Op)
	assert.Equal(t, map[string]any{"synapse_model": "static_synapse"}, ft.sent[0].Payload)
}

func TestEngine_RemoteErrorAndTimeout(t *testing.T) {
	ft := &fakeTransport{respond: func(f *fakeTransport, msg emitted) {
		f.reply(map[string]any{"id": msg.ID, "error": "unknown synapse model"})
	}}
	e := newEngine(ft, time.Second, nil)
	err := e.Disconnect(context.Background(), engine.DisconnectDirective{ConnSpec: map[string]any{"rule": "one_to_one"}})
	require.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "unknown synapse model")

	silent := newEngine(&fakeTransport{}, 20*time.Millisecond, nil)
	_, err = silent.GetConnections(context.Background(), engine.Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newEngine(&fakeTransport{}, time.Minute, nil).GetConnections(ctx, engine.Query{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEngine_RoutesRepliesById(t *testing.T) {
	var (
		mu      sync.Mutex
		waiting []emitted
	)
	// Hold replies until both requests are in flight, then answer in reverse.
	ft := &fakeTransport{respond: func(f *fakeTransport, msg emitted) {
		mu.Lock()
		waiting = append(waiting, msg)
		if len(waiting) < 2 {
			mu.Unlock()
			return
		}
		batch := waiting
		mu.Unlock()
		for i := len(batch) - 1; i >= 0; i-- {
			f.reply(map[string]any{
				"id":          batch[i].ID,
				"connections": []any{map[string]any{"source": float64(batch[i].ID)}},
			})
		}
	}}
	e := newEngine(ft, time.Second, nil)

	var wg sync.WaitGroup
	results := make([][]connectome.Connection, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conns, err := e.GetConnections(context.Background(), engine.Query{})
			assert.NoError(t, err)
			results[i] = conns
		}()
	}
	wg.Wait()

	require.Len(t, results[0], 1)
	require.Len(t, results[1], 1)
	assert.NotEqual(t, results[0][0].Source, results[1][0].Source, "each caller gets its own reply")
}

func TestEngine_IgnoresStrayReplies(t *testing.T) {
	var logs bytes.Buffer
	ft := &fakeTransport{}
	newEngine(ft, time.Second, slog.New(slog.NewTextHandler(&logs, nil)))
	assert.NotPanics(t, func() {
		ft.reply(map[string]any{"id": 99})
		ft.handlers[EventResult]()
		ft.handlers[EventResult]("not an object")
	})
	assert.Contains(t, logs.String(), "no waiting caller")
	assert.Contains(t, logs.String(), "empty directive result")
	assert.Contains(t, logs.String(), "without an id")
}

func TestEngine_DecodesConnectionReplies(t *testing.T) {
	testCases := []struct {
		name        string
		connections []any
		want        []connectome.Connection
		wantErr     string
	}{
		{
			name:        "tuple form",
			connections: []any{[]any{1.0, 2.0, 0.0, 0.0, 0.0}, []any{1.0, 3.0, 1.0, 0.0, 2.0}},
			want: []connectome.Connection{
				{Source: 1, Target: 2},
				{Source: 1, Target: 3, TargetThread: 1, Port: 2},
			},
		},
		{
			name:        "short tuple",
			connections: []any{[]any{1.0, 2.0}},
			wantErr:     "malformed get_connections result",
		},
		{
			name:        "source is not a number",
			connections: []any{map[string]any{"source": "one"}},
			wantErr:     "malformed get_connections result",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ft := &fakeTransport{respond: func(f *fakeTransport, msg emitted) {
				f.reply(map[string]any{"id": msg.ID, "connections": tc.connections})
			}}
			e := newEngine(ft, time.Minute, nil)

			start := time.Now()
			conns, err := e.GetConnections(context.Background(), engine.Query{})
			assert.Less(t, time.Since(start), 5*time.Second, "a bad reply must not wait for the timeout")
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				assert.NotContains(t, err.Error(), "timed out")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, conns)
		})
	}
}
