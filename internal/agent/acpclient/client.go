// Package acpclient speaks the agent control protocol with one agent
// process: typed outbound calls over the agent's stdin/stdout, and dispatch
// of the agent's callbacks (permission requests, file access, session
// updates) to a Handler.
package acpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/pkg/acp/jsonrpc"
	"github.com/agentdeck/agentdeck/pkg/acp/protocol"
)

// Handler receives the agent's callbacks. RequestPermission and
// WriteTextFile may block for minutes awaiting a human decision; the
// connection keeps reading while they do.
type Handler interface {
	RequestPermission(ctx context.Context, params *protocol.RequestPermissionParams) (*protocol.RequestPermissionResult, error)
	ReadTextFile(ctx context.Context, params *protocol.ReadTextFileParams) (*protocol.ReadTextFileResult, error)
	WriteTextFile(ctx context.Context, params *protocol.WriteTextFileParams) error
	HandleSessionUpdate(notification *protocol.SessionNotification)
}

// Client is the controller side of one agent connection.
type Client struct {
	conn    *jsonrpc.Conn
	handler Handler
	logger  *logger.Logger
}

// New wires a client over the agent's stdio pipes. Call Start to begin
// reading.
func New(stdin io.Writer, stdout io.Reader, handler Handler, log *logger.Logger) *Client {
	c := &Client{
		handler: handler,
		logger:  log.WithFields(zap.String("component", "acp-client")),
	}
	c.conn = jsonrpc.NewConn(stdin, stdout, log)
	c.conn.SetRequestHandler(c.dispatchRequest)
	c.conn.SetNotificationHandler(c.dispatchNotification)
	return c
}

// Start begins processing the agent's traffic.
func (c *Client) Start(ctx context.Context) {
	c.conn.Start(ctx)
}

// Close tears down the connection; in-flight calls fail with
// jsonrpc.ErrConnClosed.
func (c *Client) Close() {
	c.conn.Close()
}

// Initialize performs the protocol handshake.
func (c *Client) Initialize(ctx context.Context, client protocol.Implementation) (*protocol.InitializeResult, error) {
	params := protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolVersion,
		ClientInfo:      client,
	}

	raw, err := c.conn.Call(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("invalid initialize result: %w", err)
	}
	return &result, nil
}

// NewSession creates an agent-side session rooted at cwd and returns the
// agent's session identifier. thinking is forwarded to agents that support
// extended reasoning; nil leaves it at the agent's default.
func (c *Client) NewSession(ctx context.Context, cwd string, thinking *protocol.ThinkingOptions) (string, error) {
	raw, err := c.conn.Call(ctx, protocol.MethodSessionNew, protocol.NewSessionParams{Cwd: cwd, Thinking: thinking})
	if err != nil {
		return "", fmt.Errorf("session/new failed: %w", err)
	}

	var result protocol.NewSessionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("invalid session/new result: %w", err)
	}
	if result.SessionID == "" {
		return "", fmt.Errorf("agent returned empty session id")
	}
	return result.SessionID, nil
}

// Prompt submits one prompt turn and blocks until the turn finishes. Context
// fragments ride along as additional content blocks after the prompt text.
// An omitted stop reason is reported as end_turn.
func (c *Client) Prompt(ctx context.Context, protoSessionID, text string, contextFragments ...string) (*protocol.PromptResult, error) {
	blocks := make([]protocol.ContentBlock, 0, 1+len(contextFragments))
	blocks = append(blocks, protocol.TextBlock(text))
	for _, fragment := range contextFragments {
		blocks = append(blocks, protocol.TextBlock(fragment))
	}

	params := protocol.PromptParams{
		SessionID: protoSessionID,
		Prompt:    blocks,
	}

	raw, err := c.conn.Call(ctx, protocol.MethodSessionPrompt, params)
	if err != nil {
		return nil, err
	}

	var result protocol.PromptResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("invalid session/prompt result: %w", err)
		}
	}
	if result.StopReason == "" {
		result.StopReason = protocol.StopReasonEndTurn
	}
	return &result, nil
}

// SetMode switches the agent's permission mode for the session.
func (c *Client) SetMode(ctx context.Context, protoSessionID, mode string) error {
	_, err := c.conn.Call(ctx, protocol.MethodSessionSetMode, protocol.SetModeParams{
		SessionID: protoSessionID,
		Mode:      mode,
	})
	if err != nil {
		return fmt.Errorf("session/set_mode failed: %w", err)
	}
	return nil
}

// Cancel asks the agent to abort the in-flight prompt. Fire-and-forget.
func (c *Client) Cancel(protoSessionID string) error {
	return c.conn.Notify(protocol.NotificationSessionCancel, protocol.CancelParams{
		SessionID: protoSessionID,
	})
}

func (c *Client) dispatchRequest(ctx context.Context, method string, params json.RawMessage) (any, *jsonrpc.Error) {
	switch method {
	case protocol.MethodRequestPermission:
		var p protocol.RequestPermissionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())
		}
		result, err := c.handler.RequestPermission(ctx, &p)
		if err != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error())
		}
		return result, nil

	case protocol.MethodReadTextFile:
		var p protocol.ReadTextFileParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())
		}
		result, err := c.handler.ReadTextFile(ctx, &p)
		if err != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error())
		}
		return result, nil

	case protocol.MethodWriteTextFile:
		var p protocol.WriteTextFileParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())
		}
		if err := c.handler.WriteTextFile(ctx, &p); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error())
		}
		return protocol.WriteTextFileResult{}, nil

	default:
		return nil, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, fmt.Sprintf("unknown method %q", method))
	}
}

func (c *Client) dispatchNotification(method string, params json.RawMessage) {
	if method != protocol.NotificationSessionUpdate {
		c.logger.Debug("ignoring notification", zap.String("method", method))
		return
	}

	var notification protocol.SessionNotification
	if err := json.Unmarshal(params, &notification); err != nil {
		c.logger.Warn("dropping malformed session update", zap.Error(err))
		return
	}
	c.handler.HandleSessionUpdate(&notification)
}
