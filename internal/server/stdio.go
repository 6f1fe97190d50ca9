package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/host"
	"github.com/roach88/rehook/internal/ir"
)

// NotifyResponse is the method of the notification sent for every
// committed response while a stdio session is open.
const NotifyResponse = "response"

const notifyBuffer = 256

var (
	errMethodNotFound = &jsonrpc2.Error{
		Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	errInvalidParams = &jsonrpc2.Error{
		Code: jsonrpc2.CodeInvalidParams, Message: "invalid params"}
)

// CreateParams are the params of the create method.
type CreateParams struct {
	App    string    `json:"app"`
	Props  ir.Object `json:"props,omitempty"`
	Settle bool      `json:"settle,omitempty"`
}

// CycleParams are the params of the cycle method.
type CycleParams struct {
	Instance string     `json:"instance"`
	Events   []ir.Event `json:"events"`
	Settle   bool       `json:"settle,omitempty"`
}

// InstanceParams name one instance.
type InstanceParams struct {
	Instance string `json:"instance"`
}

// Notification is the params of a response notification.
type Notification struct {
	Instance string           `json:"instance"`
	Response *engine.Response `json:"response"`
}

type method func(context.Context, json.RawMessage) (any, error)

type rpc struct {
	runner *host.Runner
	logger *slog.Logger
}

func (p *rpc) methods() map[string]method {
	return map[string]method{
		"apps":   p.apps,
		"create": p.create,
		"cycle":  p.cycle,
		"state":  p.state,
		"delete": p.delete,
	}
}

func (p *rpc) handler() jsonrpc2.Handler {
	methods := p.methods()
	return jsonrpc2.HandlerWithError(func(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		fn, ok := methods[req.Method]
		if !ok {
			return nil, errMethodNotFound
		}
		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}
		res, err := fn(ctx, params)
		if err != nil {
			p.logger.Debug("rpc failed", "method", req.Method, "error", err)
			return nil, rpcError(err)
		}
		return res, nil
	})
}

func (p *rpc) apps(context.Context, json.RawMessage) (any, error) {
	return map[string][]string{"apps": p.runner.Apps()}, nil
}

func (p *rpc) create(ctx context.Context, raw json.RawMessage) (any, error) {
	var params CreateParams
	if err := unmarshalParams(raw, &params); err != nil {
		return nil, err
	}
	id, resp, err := p.runner.Create(ctx, params.App, params.Props)
	if err != nil {
		return nil, err
	}
	return p.settle(ctx, params.Settle, CycleResult{Instance: id, Response: resp})
}

func (p *rpc) cycle(ctx context.Context, raw json.RawMessage) (any, error) {
	var params CycleParams
	if err := unmarshalParams(raw, &params); err != nil {
		return nil, err
	}
	resp, err := p.runner.Cycle(ctx, params.Instance, params.Events)
	if err != nil {
		return nil, err
	}
	return p.settle(ctx, params.Settle, CycleResult{Instance: params.Instance, Response: resp})
}

func (p *rpc) settle(ctx context.Context, settle bool, res CycleResult) (any, error) {
	if !settle {
		return res, nil
	}
	settled, err := p.runner.Settle(ctx, res.Instance, res.Response)
	if err != nil {
		return nil, err
	}
	res.Settled = settled
	return res, nil
}

func (p *rpc) state(ctx context.Context, raw json.RawMessage) (any, error) {
	var params InstanceParams
	if err := unmarshalParams(raw, &params); err != nil {
		return nil, err
	}
	inst, snap, err := p.runner.State(ctx, params.Instance)
	if err != nil {
		return nil, err
	}
	return StateResult{Instance: inst, State: snap}, nil
}

func (p *rpc) delete(ctx context.Context, raw json.RawMessage) (any, error) {
	var params InstanceParams
	if err := unmarshalParams(raw, &params); err != nil {
		return nil, err
	}
	return nil, p.runner.Delete(ctx, params.Instance)
}

func unmarshalParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errInvalidParams
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

// rpcError carries the HTTP error body in the JSON-RPC error data.
func rpcError(err error) error {
	var jerr *jsonrpc2.Error
	if errors.As(err, &jerr) {
		return jerr
	}
	_, body := classify(err)
	out := &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
	out.SetError(body)
	return out
}

type stdio struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (c stdio) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c stdio) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c stdio) Close() error {
	if err := c.in.Close(); err != nil {
		c.out.Close()
		return err
	}
	return c.out.Close()
}

// ServeStdio serves JSON-RPC 2.0 with Content-Length framing over in and
// out until the peer disconnects or ctx is done. Committed responses are
// sent as NotifyResponse notifications.
func ServeStdio(ctx context.Context, r *host.Runner, in io.ReadCloser, out io.WriteCloser, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := &rpc{runner: r, logger: logger}
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(stdio{in, out}, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.AsyncHandler(p.handler()))

	notes := make(chan Notification, notifyBuffer)
	r.AddSink(host.SinkFunc(func(instance string, resp *engine.Response) {
		if ctx.Err() != nil {
			return
		}
		select {
		case notes <- Notification{Instance: instance, Response: resp}:
		default:
			logger.Warn("notification dropped", "instance", instance, "seq", resp.Seq)
		}
	}))
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-notes:
				if err := conn.Notify(ctx, NotifyResponse, n); err != nil {
					logger.Debug("notify failed", "instance", n.Instance, "error", err)
				}
			}
		}
	}()

	select {
	case <-conn.DisconnectNotify():
		return nil
	case <-ctx.Done():
		return conn.Close()
	}
}
