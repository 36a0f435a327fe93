package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/pkg/acp/jsonrpc"
	"github.com/agentdeck/agentdeck/pkg/acp/protocol"
)

type controller struct {
	conn *jsonrpc.Conn

	mu     sync.Mutex
	chunks []string

	onPermission func() protocol.RequestPermissionResult
}

// startAgent wires a mock agent to an in-process controller connection.
func startAgent(t *testing.T) *controller {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", OutputPath: "stderr"})
	require.NoError(t, err)

	agentIn, ctrlOut := io.Pipe()
	ctrlIn, agentOut := io.Pipe()

	agent := &mockAgent{}
	agentConn := jsonrpc.NewConn(agentOut, agentIn, log)
	agent.conn = agentConn
	agentConn.SetRequestHandler(agent.handleRequest)
	agentConn.SetNotificationHandler(agent.handleNotification)
	agentConn.Start(context.Background())

	c := &controller{}
	c.conn = jsonrpc.NewConn(ctrlOut, ctrlIn, log)
	c.conn.SetRequestHandler(func(ctx context.Context, method string, params json.RawMessage) (any, *jsonrpc.Error) {
		if method == protocol.MethodRequestPermission && c.onPermission != nil {
			return c.onPermission(), nil
		}
		return nil, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, method)
	})
	c.conn.SetNotificationHandler(func(method string, params json.RawMessage) {
		if method != protocol.NotificationSessionUpdate {
			return
		}
		var n protocol.SessionNotification
		if json.Unmarshal(params, &n) != nil {
			return
		}
		if n.Update.Kind == protocol.UpdateAgentMessageChunk {
			c.mu.Lock()
			c.chunks = append(c.chunks, n.Update.MessageChunk.Content.Text)
			c.mu.Unlock()
		}
	})
	c.conn.Start(context.Background())

	t.Cleanup(func() {
		c.conn.Close()
		agentConn.Close()
	})
	return c
}

func (c *controller) handshake(t *testing.T) string {
	t.Helper()
	raw, err := c.conn.Call(context.Background(), protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolVersion,
	})
	require.NoError(t, err)
	var init protocol.InitializeResult
	require.NoError(t, json.Unmarshal(raw, &init))
	assert.Equal(t, protocol.ProtocolVersion, init.ProtocolVersion)

	raw, err = c.conn.Call(context.Background(), protocol.MethodSessionNew, protocol.NewSessionParams{Cwd: t.TempDir()})
	require.NoError(t, err)
	var session protocol.NewSessionResult
	require.NoError(t, json.Unmarshal(raw, &session))
	require.NotEmpty(t, session.SessionID)
	return session.SessionID
}

func (c *controller) prompt(t *testing.T, sessionID, text string) protocol.PromptResult {
	t.Helper()
	raw, err := c.conn.Call(context.Background(), protocol.MethodSessionPrompt, protocol.PromptParams{
		SessionID: sessionID,
		Prompt:    []protocol.ContentBlock{protocol.TextBlock(text)},
	})
	require.NoError(t, err)
	var result protocol.PromptResult
	require.NoError(t, json.Unmarshal(raw, &result))
	return result
}

func (c *controller) allChunks() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.chunks, "")
}

func TestChatTurn(t *testing.T) {
	c := startAgent(t)
	id := c.handshake(t)

	result := c.prompt(t, id, "hello there")
	assert.Equal(t, protocol.StopReasonEndTurn, result.StopReason)

	require.Eventually(t, func() bool {
		return strings.Contains(c.allChunks(), "hello there")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCancelStopsSlowTurn(t *testing.T) {
	c := startAgent(t)
	id := c.handshake(t)

	resultCh := make(chan protocol.PromptResult, 1)
	go func() {
		resultCh <- c.prompt(t, id, "/slow 30s")
	}()

	require.Eventually(t, func() bool {
		return c.allChunks() != ""
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.conn.Notify(protocol.NotificationSessionCancel, protocol.CancelParams{SessionID: id}))

	select {
	case result := <-resultCh:
		assert.Equal(t, "cancelled", result.StopReason)
	case <-time.After(5 * time.Second):
		t.Fatal("prompt did not stop after cancel")
	}
}

func TestPermissionFlow(t *testing.T) {
	c := startAgent(t)
	c.onPermission = func() protocol.RequestPermissionResult {
		return protocol.RequestPermissionResult{
			Outcome:  protocol.OutcomeSelected,
			OptionID: "allow_once",
		}
	}
	id := c.handshake(t)

	result := c.prompt(t, id, "/permission")
	assert.Equal(t, protocol.StopReasonEndTurn, result.StopReason)
	require.Eventually(t, func() bool {
		return strings.Contains(c.allChunks(), "granted")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPermissionRejected(t *testing.T) {
	c := startAgent(t)
	c.onPermission = func() protocol.RequestPermissionResult {
		return protocol.RequestPermissionResult{
			Outcome:  protocol.OutcomeSelected,
			OptionID: "reject_once",
		}
	}
	id := c.handshake(t)

	result := c.prompt(t, id, "/permission")
	assert.Equal(t, protocol.StopReasonEndTurn, result.StopReason)
	require.Eventually(t, func() bool {
		return strings.Contains(c.allChunks(), "rejected")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPromptTextFlattensBlocks(t *testing.T) {
	text := promptText(protocol.PromptParams{
		Prompt: []protocol.ContentBlock{
			protocol.TextBlock("one "),
			protocol.TextBlock("two"),
		},
	})
	assert.Equal(t, "one two", text)
}
