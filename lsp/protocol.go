package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/corymhall/textlsp/rpc"
	"github.com/corymhall/textlsp/xcontext"
)

type ProgressToken any

// UnmarshalJSON unmarshals msg into the variable pointed to by
// params. In JSONRPC, optional messages may be
// "null", in which case it is a no-op.
func UnmarshalJSON(msg json.RawMessage, v any) error {
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return nil
	}
	return json.Unmarshal(msg, v)
}

// LSP specific error codes.
// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#errorCodes
var (
	// ErrServerNotInitialized is returned for requests sent before initialize.
	ErrServerNotInitialized = rpc.NewError(-32002, "server not initialized")
	// ErrRequestCancelled should be used when a request is cancelled early.
	ErrRequestCancelled = rpc.NewError(-32800, "request cancelled")
	// ErrRequestFailed is used when a syntactically valid request could not be
	// served, e.g. because the workspace could not be read.
	ErrRequestFailed = rpc.NewError(-32803, "request failed")
)

type connSender interface {
	Notify(ctx context.Context, method string, params any) error
	Call(ctx context.Context, method string, params, result any) error
}

type clientDispatcher struct {
	sender connSender
}

// ClientDispatcher returns a Client that sends its messages over conn.
func ClientDispatcher(conn rpc.Conn) Client {
	return &clientDispatcher{
		sender: clientConn{conn},
	}
}

type clientConn struct {
	conn rpc.Conn
}

func (c clientConn) Notify(ctx context.Context, method string, params any) error {
	return c.conn.Notify(ctx, method, params)
}

func (c clientConn) Call(ctx context.Context, method string, params any, result any) error {
	c.conn.Logger().Debug("calling client", slog.String("method", method))
	id, err := c.conn.Call(ctx, method, params, result)
	if ctx.Err() != nil {
		c.conn.Logger().Debug("request cancelled", slog.String("method", method))
		cancelCall(ctx, c, id)
	}
	return err
}

// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#cancelRequest
type CancelParams struct {
	// The request id to cancel.
	ID any `json:"id"`
}

func cancelCall(ctx context.Context, sender connSender, id rpc.ID) {
	ctx = xcontext.Detach(ctx)
	_ = sender.Notify(ctx, "$/cancelRequest", &CancelParams{ID: &id})
}

// ServerHandler returns a handler that dispatches LSP methods to server and
// passes everything else on to handler. A panicking method is answered with
// rpc.ErrInternal and the connection keeps serving.
func ServerHandler(server Server, handler rpc.Handler) rpc.Handler {
	return func(ctx context.Context, reply rpc.Replier, req rpc.Request) (err error) {
		defer func() {
			if r := recover(); r != nil {
				server.Logger().Error("handler panicked",
					slog.String("method", req.Method()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = reply(ctx, nil, fmt.Errorf("%w: %s panicked: %v", rpc.ErrInternal, req.Method(), r))
			}
		}()
		if ctx.Err() != nil {
			ctx := xcontext.Detach(ctx)
			return reply(ctx, nil, ErrRequestCancelled)
		}
		handled, err := serverDispatch(ctx, server, reply, req)
		if handled || err != nil {
			return err
		}
		return handler(ctx, reply, req)
	}
}
