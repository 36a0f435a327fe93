package websocket

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/agentdeck/agentdeck/internal/common/errors"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/pkg/ws"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

// Client represents a single WebSocket connection.
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	authenticated atomic.Bool

	logger *logger.Logger
}

// NewClient creates a new WebSocket client. When the hub requires no auth
// token, the client is trusted immediately.
func NewClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	c := &Client{
		ID:     id,
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, 256),
		logger: log.WithFields(zap.String("client_id", id)),
	}
	if !hub.AuthRequired() {
		c.authenticated.Store(true)
	}
	return c
}

// Authenticated reports whether this client may use the gateway and receive
// session event broadcasts.
func (c *Client) Authenticated() bool {
	return c.authenticated.Load()
}

// ReadPump pumps messages from the WebSocket connection to the dispatcher.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var msg ws.Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Error("Failed to parse message", zap.Error(err))
			c.sendError("", "", ws.ErrorCodeBadRequest, "Invalid message format", nil)
			continue
		}

		c.handleMessage(ctx, &msg)
	}
}

// handleMessage processes an incoming message.
func (c *Client) handleMessage(ctx context.Context, msg *ws.Message) {
	c.logger.Debug("Received message",
		zap.String("action", msg.Action),
		zap.String("id", msg.ID))

	// Auth is handled here: it needs access to the client.
	if msg.Action == ws.ActionAuth {
		c.handleAuth(msg)
		return
	}

	// Everything except the health check requires an authenticated client.
	if !c.Authenticated() && msg.Action != ws.ActionHealthCheck {
		c.sendError(msg.ID, msg.Action, ws.ErrorCodeUnauthorized, "authentication required", nil)
		return
	}

	response, err := c.hub.dispatcher.Dispatch(ctx, msg)
	if err != nil {
		c.logger.Error("Handler error",
			zap.String("action", msg.Action),
			zap.Error(err))
		c.sendError(msg.ID, msg.Action, errorCode(err), err.Error(), nil)
		return
	}

	if response != nil {
		c.sendMessage(response)
	}
}

// AuthRequest is the payload for auth.
type AuthRequest struct {
	Token string `json:"token"`
}

// handleAuth validates the gateway token and marks the client trusted.
func (c *Client) handleAuth(msg *ws.Message) {
	var req AuthRequest
	if err := msg.ParsePayload(&req); err != nil {
		c.sendError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "Invalid payload: "+err.Error(), nil)
		return
	}

	if c.hub.AuthRequired() {
		if subtle.ConstantTimeCompare([]byte(req.Token), []byte(c.hub.authToken)) != 1 {
			c.sendError(msg.ID, msg.Action, ws.ErrorCodeUnauthorized, "invalid token", nil)
			return
		}
	}
	c.authenticated.Store(true)

	resp, _ := ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"authenticated": true,
	})
	c.sendMessage(resp)
}

// errorCode maps application errors onto wire error codes.
func errorCode(err error) string {
	switch apperrors.Code(err) {
	case apperrors.ErrCodeNotFound:
		return ws.ErrorCodeNotFound
	case apperrors.ErrCodeBadRequest:
		return ws.ErrorCodeBadRequest
	case apperrors.ErrCodeUnauthorized:
		return ws.ErrorCodeUnauthorized
	case apperrors.ErrCodeConflict:
		return ws.ErrorCodeConflict
	case apperrors.ErrCodeValidationError:
		return ws.ErrorCodeValidation
	default:
		return ws.ErrorCodeInternalError
	}
}

// sendMessage sends a message to the client.
func (c *Client) sendMessage(msg *ws.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full")
	}
}

// sendError sends an error message to the client.
func (c *Client) sendError(id, action, code, message string, details map[string]interface{}) {
	msg, err := ws.NewError(id, action, code, message, details)
	if err != nil {
		c.logger.Error("Failed to create error message", zap.Error(err))
		return
	}
	c.sendMessage(msg)
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Batch additional queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
