package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pulumi/pulumi/sdk/v3/go/common/util/contract"
)

// Conn is the common interface to jsonrpc servers.
// Conn is bidirectional; it does not have a designated server or client end.
// It manages the jsonrpc2 protocol, connecting responses back to their calls.
type Conn interface {
	// Call invokes the target method and waits for a response.
	// The params will be marshaled to JSON before sending over the wire, and will
	// be handed to the method invoked.
	// The response will be unmarshaled from JSON into the result.
	// The id returned will be unique from this connection, and can be used for
	// logging or tracking.
	Call(ctx context.Context, method string, params, result any) (ID, error)

	// Notify invokes the target method but does not wait for a response.
	// The params will be marshaled to JSON before sending over the wire, and will
	// be handed to the method invoked.
	Notify(ctx context.Context, method string, params any) error

	// Run reads messages until the stream fails or ctx is done. Incoming
	// requests are handed to handler one at a time, in the order they were
	// read; the next request is not delivered until handler returns.
	// A clean end of input returns nil.
	Run(ctx context.Context, handler Handler) error

	// Done is closed once Run has returned.
	Done() <-chan struct{}

	Logger() *slog.Logger
}

type conn struct {
	seq       int64 // must only be accessed using atomic operations
	stream    Stream
	logger    *slog.Logger
	pendingMu sync.Mutex // protects the pending map
	pending   map[ID]chan *Response
	done      chan struct{}
}

// NewConn creates a new connection object around the supplied stream.
func NewConn(s Stream, logger *slog.Logger) Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &conn{
		stream:  s,
		logger:  logger,
		pending: make(map[ID]chan *Response),
		done:    make(chan struct{}),
	}
}

func (c *conn) Logger() *slog.Logger {
	return c.logger
}

func (c *conn) Notify(ctx context.Context, method string, params any) (err error) {
	notify, err := NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("marshaling notify parameters: %w", err)
	}
	_, err = c.write(ctx, notify)
	return err
}

func (c *conn) Call(ctx context.Context, method string, params, result any) (_ ID, err error) {
	// generate a new request identifier
	id := ID{number: atomic.AddInt64(&c.seq, 1)}
	call, err := NewCall(id, method, params)
	if err != nil {
		return id, fmt.Errorf("marshaling call parameters: %w", err)
	}
	// We have to add ourselves to the pending map before we send, otherwise we
	// are racing the response. Also add a buffer to rchan, so that if we get a
	// wire response between the time this call is cancelled and id is deleted
	// from c.pending, the send to rchan will not block.
	rchan := make(chan *Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = rchan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()
	// now we are ready to send
	_, err = c.write(ctx, call)
	if err != nil {
		// sending failed, we will never get a response, so don't leave it pending
		return id, err
	}
	// now wait for the response
	select {
	case response := <-rchan:
		// is it an error response?
		if response.err != nil {
			return id, response.err
		}
		if result == nil || len(response.result) == 0 {
			return id, nil
		}
		if err := json.Unmarshal(response.result, result); err != nil {
			return id, fmt.Errorf("unmarshaling result: %w", err)
		}
		return id, nil
	case <-ctx.Done():
		return id, ctx.Err()
	case <-c.done:
		return id, ErrClosed
	}
}

func (c *conn) replier(req Request) Replier {
	var replied atomic.Bool
	return func(ctx context.Context, result any, err error) error {
		call, ok := req.(*Call)
		if !ok {
			// request was a notify, no need to respond
			return nil
		}
		contract.Assertf(!replied.Swap(true), "reply sent twice for %s %v", call.method, call.id)
		response, err := NewResponse(call.id, result, err)
		if err != nil {
			return err
		}
		_, err = c.write(ctx, response)
		return err
	}
}

func (c *conn) write(ctx context.Context, msg Message) (int64, error) {
	return c.stream.Write(ctx, msg)
}

func (c *conn) Run(ctx context.Context, handler Handler) error {
	defer close(c.done)

	queue := newRequestQueue()
	readErr := make(chan error, 1)
	go func() {
		readErr <- c.read(ctx, queue)
	}()

	for {
		c.deliverQueued(ctx, handler, queue)
		select {
		case <-queue.ready:
		case err := <-readErr:
			// finish whatever was read before the stream ended
			c.deliverQueued(ctx, handler, queue)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// read pulls messages off the stream. Requests are queued for the dispatch
// loop, responses are routed straight to the waiting Call so that a handler
// blocked on a client response can make progress.
func (c *conn) read(ctx context.Context, queue *requestQueue) error {
	for {
		msg, _, err := c.stream.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrParse) {
				c.logger.Warn("dropping malformed message", slog.Any("error", err))
				continue
			}
			return err
		}
		switch msg := msg.(type) {
		case Request:
			queue.push(msg)
		case *Response:
			c.pendingMu.Lock()
			rchan, ok := c.pending[msg.id]
			c.pendingMu.Unlock()
			if ok {
				rchan <- msg
			} else {
				c.logger.Debug("response for unknown call", slog.String("id", msg.id.String()))
			}
		}
	}
}

func (c *conn) deliverQueued(ctx context.Context, handler Handler, queue *requestQueue) {
	for {
		req, ok := queue.pop()
		if !ok {
			return
		}
		if err := handler(ctx, c.replier(req), req); err != nil {
			// delivery failed, not much we can do
			c.logger.Error("handler failed", slog.String("method", req.Method()), slog.Any("error", err))
		}
	}
}

func (c *conn) Done() <-chan struct{} {
	return c.done
}

// requestQueue is an unbounded FIFO between the reader and the dispatch loop.
type requestQueue struct {
	mu    sync.Mutex
	items []Request
	ready chan struct{}
}

func newRequestQueue() *requestQueue {
	return &requestQueue{ready: make(chan struct{}, 1)}
}

func (q *requestQueue) push(req Request) {
	q.mu.Lock()
	q.items = append(q.items, req)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *requestQueue) pop() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	req := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return req, true
}
