// Package sioengine ships compiled directives to a remote simulator over a
// single persistent socket.io connection.
//
// Every directive is emitted as a "directive" event carrying
// {id, op, payload}. The simulator answers each one with a
// "directive_result" event carrying {id, error, connections}; replies are
// routed back to the waiting caller by id, so several directives may be in
// flight at once.
package sioengine

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/wiregrid/internal/connectome"
	"github.com/vk/wiregrid/internal/ctxlog"
	"github.com/vk/wiregrid/internal/engine"
)

// Event names on the wire.
const (
	EventDirective = "directive"
	EventResult    = "directive_result"
)

// ErrRemote wraps an error reported by the simulator.
var ErrRemote = errors.New("remote engine error")

// Config describes the remote simulator endpoint.
type Config struct {
	URL                string
	Namespace          string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// transport is the slice of a socket.io client the engine needs.
type transport interface {
	emit(event string, payload any)
	on(event string, fn func(...any))
	close()
}

type socketTransport struct {
	io *socket.Socket
}

func (t socketTransport) emit(event string, payload any)   { t.io.Emit(event, payload) }
func (t socketTransport) on(event string, fn func(...any)) { t.io.On(types.EventName(event), fn) }
func (t socketTransport) close()                           { t.io.Disconnect() }

type reply struct {
	ID          uint64                  `json:"id"`
	Error       string                  `json:"error,omitempty"`
	Connections []connectome.Connection `json:"connections,omitempty"`

	// err is set when the reply was routed by id but its body did not decode.
	err error
}

// Engine is a remote engine client.
type Engine struct {
	t       transport
	timeout time.Duration
	logger  *slog.Logger
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan reply
}

// Dial connects to the simulator and returns a ready engine.
func Dial(ctx context.Context, cfg Config) (*Engine, error) {
	logger := ctxlog.FromContext(ctx).With("engine", "socketio", "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse engine URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to remote engine", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	logger.Debug("Initiating connection...")
	io.Connect()

	timer := time.NewTimer(cfg.Timeout)
	defer timer.Stop()
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", cfg.Timeout)
	}

	return newEngine(socketTransport{io: io}, cfg.Timeout, logger), nil
}

func newEngine(t transport, timeout time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{t: t, timeout: timeout, logger: logger, pending: make(map[uint64]chan reply)}
	t.on(EventResult, e.onResult)
	return e
}

// Close disconnects from the simulator. Pending calls fail with their
// context or timeout.
func (e *Engine) Close() error {
	e.t.close()
	return nil
}

func (e *Engine) onResult(data ...any) {
	if len(data) == 0 {
		e.logger.Warn("Dropping empty directive result.")
		return
	}
	raw, err := json.Marshal(data[0])
	if err != nil {
		e.logger.Warn("Dropping unencodable directive result.", "error", err)
		return
	}
	var head struct {
		ID *uint64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.ID == nil {
		e.logger.Warn("Dropping directive result without an id.", "result", string(raw))
		return
	}

	r := reply{ID: *head.ID}
	if err := json.Unmarshal(raw, &r); err != nil {
		r = reply{ID: *head.ID, err: err}
	}

	e.mu.Lock()
	ch, ok := e.pending[r.ID]
	delete(e.pending, r.ID)
	e.mu.Unlock()
	if !ok {
		e.logger.Warn("Dropping directive result with no waiting caller.", "id", r.ID)
		return
	}
	ch <- r
}

func (e *Engine) call(ctx context.Context, op engine.Op, payload map[string]any) (reply, error) {
	logger := ctxlog.FromContext(ctx)
	id := e.nextID.Add(1)
	ch := make(chan reply, 1)

	e.mu.Lock()
	e.pending[id] = ch
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
	}()

	logger.Debug("Emitting directive.", "id", id, "op", op)
	e.t.emit(EventDirective, map[string]any{"id": id, "op": string(op), "payload": payload})

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.err != nil {
			return reply{}, fmt.Errorf("malformed %s result %d: %w", op, id, r.err)
		}
		if r.Error != "" {
			return r, fmt.Errorf("%w: %s: %s", ErrRemote, op, r.Error)
		}
		return r, nil
	case <-ctx.Done():
		return reply{}, fmt.Errorf("%s directive %d: %w", op, id, ctx.Err())
	case <-timer.C:
		return reply{}, fmt.Errorf("timed out after %v waiting for %s result %d", e.timeout, op, id)
	}
}

// Connect implements engine.Engine.
func (e *Engine) Connect(ctx context.Context, d engine.ConnectDirective) error {
	payload, err := d.Payload()
	if err != nil {
		return err
	}
	_, err = e.call(ctx, engine.OpConnect, payload)
	return err
}

// ConnectLayers implements engine.Engine.
func (e *Engine) ConnectLayers(ctx context.Context, d engine.LayersDirective) error {
	payload, err := d.Payload()
	if err != nil {
		return err
	}
	_, err = e.call(ctx, engine.OpConnectLayers, payload)
	return err
}

// CGConnect implements engine.Engine.
func (e *Engine) CGConnect(ctx context.Context, d engine.CGConnectDirective) error {
	payload, err := d.Payload()
	if err != nil {
		return err
	}
	_, err = e.call(ctx, engine.OpCGConnect, payload)
	return err
}

// Disconnect implements engine.Engine.
func (e *Engine) Disconnect(ctx context.Context, d engine.DisconnectDirective) error {
	payload, err := d.Payload()
	if err != nil {
		return err
	}
	_, err = e.call(ctx, engine.OpDisconnect, payload)
	return err
}

// GetConnections implements engine.Engine.
func (e *Engine) GetConnections(ctx context.Context, q engine.Query) ([]connectome.Connection, error) {
	payload, err := q.Payload()
	if err != nil {
		return nil, err
	}
	r, err := e.call(ctx, engine.OpGetConnections, payload)
	if err != nil {
		return nil, err
	}
	return r.Connections, nil
}

var _ engine.Engine = (*Engine)(nil)
