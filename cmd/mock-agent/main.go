// Package main implements a mock agent binary that speaks the agent protocol
// over stdin/stdout. It generates simulated responses for rapid feature
// testing without a real coding agent installed. Install it into an agent
// directory under one of the catalog binary names to use it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/pkg/acp/jsonrpc"
	"github.com/agentdeck/agentdeck/pkg/acp/protocol"
)

// sessionID is unique per process; each session spawns its own mock agent.
var sessionID = fmt.Sprintf("mock-session-%d", os.Getpid())

func main() {
	sandbox := flag.String("sandbox", "", "sandbox mode (accepted, unused)")
	flag.Parse()

	// Protocol traffic owns stdout; logs go to stderr.
	log, err := logger.New(logger.Config{Level: "info", Format: "text", OutputPath: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mock-agent: %v\n", err)
		os.Exit(1)
	}

	agent := &mockAgent{}
	conn := jsonrpc.NewConn(os.Stdout, os.Stdin, log)
	agent.conn = conn
	conn.SetRequestHandler(agent.handleRequest)
	conn.SetNotificationHandler(agent.handleNotification)
	conn.Start(context.Background())

	if *sandbox != "" {
		fmt.Fprintf(os.Stderr, "mock-agent: sandbox mode %q\n", *sandbox)
	}

	<-conn.Done()
}

// mockAgent holds the per-process session state.
type mockAgent struct {
	conn *jsonrpc.Conn

	mu        sync.Mutex
	cwd       string
	mode      string
	cancelled chan struct{}
}

func (a *mockAgent) handleRequest(ctx context.Context, method string, params json.RawMessage) (any, *jsonrpc.Error) {
	switch method {
	case protocol.MethodInitialize:
		return protocol.InitializeResult{ProtocolVersion: protocol.ProtocolVersion}, nil

	case protocol.MethodSessionNew:
		var p protocol.NewSessionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())
		}
		a.mu.Lock()
		a.cwd = p.Cwd
		a.mu.Unlock()
		return protocol.NewSessionResult{SessionID: sessionID}, nil

	case protocol.MethodSessionPrompt:
		var p protocol.PromptParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())
		}
		return a.runPrompt(ctx, promptText(p)), nil

	case protocol.MethodSessionSetMode:
		var p protocol.SetModeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())
		}
		a.mu.Lock()
		a.mode = p.Mode
		a.mu.Unlock()
		return struct{}{}, nil

	default:
		return nil, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "unsupported method: "+method)
	}
}

func (a *mockAgent) handleNotification(method string, params json.RawMessage) {
	if method != protocol.NotificationSessionCancel {
		return
	}
	a.mu.Lock()
	if a.cancelled != nil {
		select {
		case <-a.cancelled:
		default:
			close(a.cancelled)
		}
	}
	a.mu.Unlock()
}

// beginTurn arms the cancellation channel for a new prompt turn.
func (a *mockAgent) beginTurn() chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = make(chan struct{})
	return a.cancelled
}

// promptText flattens the prompt's content blocks.
func promptText(p protocol.PromptParams) string {
	text := ""
	for _, block := range p.Prompt {
		text += block.Text
	}
	return text
}

// update sends a session/update notification.
func (a *mockAgent) update(u protocol.SessionUpdate) {
	_ = a.conn.Notify(protocol.NotificationSessionUpdate, protocol.SessionNotification{
		SessionID: sessionID,
		Update:    u,
	})
}

func (a *mockAgent) chunk(text string) {
	a.update(protocol.SessionUpdate{
		Kind:         protocol.UpdateAgentMessageChunk,
		MessageChunk: &protocol.MessageChunk{Content: protocol.TextBlock(text)},
	})
}

func (a *mockAgent) thought(text string) {
	a.update(protocol.SessionUpdate{
		Kind:         protocol.UpdateAgentThoughtChunk,
		ThoughtChunk: &protocol.MessageChunk{Content: protocol.TextBlock(text)},
	})
}
