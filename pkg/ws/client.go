package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

// ErrRequestTimeout is returned by Request when no response arrives within
// the client's timeout. The request id stays burned: a late response for it
// is silently dropped.
var ErrRequestTimeout = errors.New("ws: request timed out")

// ErrClientClosed is returned for requests in flight when the connection
// closes, and for requests attempted after close.
var ErrClientClosed = errors.New("ws: connection closed")

// NotificationFunc receives server-push notifications for one action.
type NotificationFunc func(msg *Message)

// Client is a correlating WebSocket client for the gateway protocol.
// Request ids are numeric and strictly increasing for the lifetime of the
// client, so a response can never be matched to the wrong call.
type Client struct {
	url    string
	conn   *websocket.Conn
	logger *logger.Logger

	nextID    atomic.Int64
	pending   map[string]chan *Message
	pendingMu sync.Mutex
	writeMu   sync.Mutex

	listeners   map[string][]NotificationFunc
	listenersMu sync.RWMutex

	timeout time.Duration

	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for the gateway at url. The client is not
// connected until Connect is called.
func NewClient(url string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:       url,
		logger:    log.WithFields(zap.String("component", "ws-client")),
		pending:   make(map[string]chan *Message),
		listeners: make(map[string][]NotificationFunc),
		timeout:   timeout,
		closed:    make(chan struct{}),
	}
}

// Connect dials the gateway and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to gateway: %w", err)
	}
	c.conn = conn
	c.logger.Info("connected to gateway", zap.String("url", c.url))
	go c.readLoop()
	return nil
}

// Close tears down the connection and fails every in-flight request.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			err = c.conn.Close()
		}
		c.failPending()
	})
	return err
}

// OnNotification registers fn for notifications with the given action.
// Listeners run on the read loop goroutine and must not block.
func (c *Client) OnNotification(action string, fn NotificationFunc) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners[action] = append(c.listeners[action], fn)
}

// Request sends a request and waits for the correlated response or error
// message. It fails with ErrRequestTimeout after the client timeout and with
// ErrClientClosed if the connection goes away first.
func (c *Client) Request(ctx context.Context, action string, payload interface{}) (*Message, error) {
	select {
	case <-c.closed:
		return nil, ErrClientClosed
	default:
	}

	id := strconv.FormatInt(c.nextID.Add(1), 10)
	msg, err := NewRequest(id, action, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	c.logger.Debug("sent request", zap.String("action", action), zap.String("id", id))

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-respChan:
		if resp == nil {
			return nil, ErrClientClosed
		}
		return resp, nil
	case <-timer.C:
		return nil, ErrRequestTimeout
	case <-c.closed:
		return nil, ErrClientClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestPayload performs Request and unmarshals the response payload into
// result. Error messages become Go errors carrying the gateway's code.
func (c *Client) RequestPayload(ctx context.Context, action string, payload, result interface{}) error {
	resp, err := c.Request(ctx, action, payload)
	if err != nil {
		return err
	}
	if resp.Type == MessageTypeError {
		var ep ErrorPayload
		if json.Unmarshal(resp.Payload, &ep) == nil && ep.Code != "" {
			return fmt.Errorf("gateway error [%s]: %s", ep.Code, ep.Message)
		}
		return fmt.Errorf("gateway error: %s", string(resp.Payload))
	}
	if result != nil && len(resp.Payload) > 0 {
		if err := json.Unmarshal(resp.Payload, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.closed:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Error("read error", zap.Error(err))
				}
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeResponse, MessageTypeError:
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
		} else {
			// Late or duplicate response; the caller already gave up.
			c.logger.Debug("dropping unmatched response", zap.String("id", msg.ID))
		}
	case MessageTypeNotification:
		c.listenersMu.RLock()
		fns := c.listeners[msg.Action]
		c.listenersMu.RUnlock()
		for _, fn := range fns {
			fn(msg)
		}
	default:
		c.logger.Debug("dropping message with unknown type",
			zap.String("type", string(msg.Type)), zap.String("action", msg.Action))
	}
}

// failPending wakes every waiting Request with a closed-connection result.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- nil
	}
}
