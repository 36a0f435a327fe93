package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

// ErrConnClosed is returned by Call when the connection closes before a
// response arrives.
var ErrConnClosed = errors.New("jsonrpc: connection closed")

// RequestHandler serves an inbound request from the peer. A non-nil *Error
// return is sent back as the JSON-RPC error; otherwise result is marshaled
// into the response.
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (any, *Error)

// NotificationHandler receives inbound notifications (no response expected).
type NotificationHandler func(method string, params json.RawMessage)

// Conn is a bidirectional JSON-RPC 2.0 connection over newline-delimited
// JSON. Outbound calls are correlated by a monotonically increasing id.
// Inbound requests are dispatched to the registered RequestHandler, each on
// its own goroutine so a slow handler (e.g. one awaiting a human decision)
// never stalls the read loop. Inbound notifications are dispatched
// synchronously, preserving their arrival order.
type Conn struct {
	out io.Writer
	in  io.Reader

	requestID atomic.Int64
	pending   map[int64]chan *Response
	mu        sync.Mutex
	writeMu   sync.Mutex

	onRequest      RequestHandler
	onNotification NotificationHandler

	logger    *logger.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn creates a connection writing requests to out and reading the
// peer's traffic from in. Call Start to begin reading.
func NewConn(out io.Writer, in io.Reader, log *logger.Logger) *Conn {
	return &Conn{
		out:     out,
		in:      in,
		pending: make(map[int64]chan *Response),
		logger:  log.WithFields(zap.String("component", "jsonrpc-conn")),
		done:    make(chan struct{}),
	}
}

// SetRequestHandler sets the handler for inbound requests. Must be called
// before Start.
func (c *Conn) SetRequestHandler(handler RequestHandler) {
	c.onRequest = handler
}

// SetNotificationHandler sets the handler for inbound notifications. Must be
// called before Start.
func (c *Conn) SetNotificationHandler(handler NotificationHandler) {
	c.onNotification = handler
}

// Start begins reading inbound traffic.
func (c *Conn) Start(ctx context.Context) {
	go c.readLoop(ctx)
}

// Done is closed when the connection shuts down, either by Close or by the
// peer ending the stream.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close stops the connection and fails all pending calls with ErrConnClosed.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.failPending()
	})
}

// Call sends a request and waits for the matching response. A response
// carrying a JSON-RPC error object is returned as that *Error.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.requestID.Add(1)

	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	req := &Request{
		JSONRPC: Version,
		ID:      &id,
		Method:  method,
		Params:  paramsJSON,
	}

	respCh := make(chan *Response, 1)
	c.mu.Lock()
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(req); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		if resp == nil {
			return nil, ErrConnClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnClosed
	}
}

// Notify sends a notification (no response expected).
func (c *Conn) Notify(method string, params any) error {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return err
	}

	return c.send(&Request{
		JSONRPC: Version,
		Method:  method,
		Params:  paramsJSON,
	})
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return data, nil
}

func (c *Conn) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	data = append(data, '\n')

	c.writeMu.Lock()
	_, err = c.out.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	c.logger.Debug("sent message", zap.ByteString("data", data))
	return nil
}

func (c *Conn) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	// Increase buffer size for large messages
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		c.logger.Debug("received message", zap.ByteString("data", line))

		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			c.logger.Warn("dropping malformed message", zap.Error(err))
			continue
		}

		switch {
		case env.Method != "" && env.ID != nil:
			go c.handleRequest(ctx, env.Method, *env.ID, env.Params)
		case env.Method != "":
			if c.onNotification != nil {
				c.onNotification(env.Method, env.Params)
			}
		case env.ID != nil:
			c.handleResponse(&Response{
				JSONRPC: env.JSONRPC,
				ID:      env.ID,
				Result:  env.Result,
				Error:   env.Error,
			})
		default:
			c.logger.Warn("received unknown message format", zap.ByteString("data", line))
		}
	}

	if err := scanner.Err(); err != nil {
		c.logger.Error("read loop error", zap.Error(err))
	}

	// Peer closed the stream: nothing further can ever resolve.
	c.Close()
}

func (c *Conn) handleRequest(ctx context.Context, method string, id int64, params json.RawMessage) {
	handler := c.onRequest

	resp := &Response{JSONRPC: Version, ID: &id}
	if handler == nil {
		resp.Error = NewError(CodeMethodNotFound, fmt.Sprintf("no handler for method %q", method))
	} else {
		result, rpcErr := handler(ctx, method, params)
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			data, err := json.Marshal(result)
			if err != nil {
				resp.Error = NewError(CodeInternalError, fmt.Sprintf("failed to marshal result: %v", err))
			} else {
				resp.Result = data
			}
		}
	}

	if err := c.send(resp); err != nil {
		c.logger.Error("failed to send response",
			zap.String("method", method),
			zap.Int64("id", id),
			zap.Error(err))
	}
}

func (c *Conn) handleResponse(resp *Response) {
	c.mu.Lock()
	ch, ok := c.pending[*resp.ID]
	if ok {
		delete(c.pending, *resp.ID)
	}
	c.mu.Unlock()

	if ok {
		ch <- resp
	} else {
		c.logger.Warn("received response for unknown request", zap.Int64("id", *resp.ID))
	}
}

// failPending wakes every outstanding Call with a closed-connection result.
func (c *Conn) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- nil
	}
}
