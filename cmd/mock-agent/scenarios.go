package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/pkg/acp/protocol"
)

const stepDelay = 50 * time.Millisecond

// runPrompt drives one simulated prompt turn. Each scenario checks for
// cancellation between steps and reports stopReason "cancelled" when asked
// to stop.
func (a *mockAgent) runPrompt(ctx context.Context, prompt string) protocol.PromptResult {
	turn := a.beginTurn()
	prompt = strings.TrimSpace(prompt)

	switch {
	case strings.EqualFold(prompt, "/thinking"):
		return a.emitThinking(turn)
	case strings.HasPrefix(prompt, "/read "):
		return a.emitRead(ctx, turn, strings.TrimSpace(strings.TrimPrefix(prompt, "/read ")))
	case strings.HasPrefix(prompt, "/edit "):
		return a.emitEdit(ctx, turn, strings.TrimSpace(strings.TrimPrefix(prompt, "/edit ")))
	case strings.EqualFold(prompt, "/permission"):
		return a.emitPermission(ctx, turn)
	case strings.EqualFold(prompt, "/plan"):
		return a.emitPlan(turn)
	case strings.HasPrefix(prompt, "/slow"):
		return a.emitSlow(turn, prompt)
	default:
		return a.emitChat(turn, prompt)
	}
}

// step sleeps one beat and reports whether the turn was cancelled meanwhile.
func (a *mockAgent) step(turn chan struct{}) bool {
	select {
	case <-turn:
		return false
	case <-time.After(stepDelay):
		return true
	}
}

func cancelled() protocol.PromptResult {
	return protocol.PromptResult{StopReason: "cancelled"}
}

func done() protocol.PromptResult {
	return protocol.PromptResult{StopReason: protocol.StopReasonEndTurn}
}

// emitChat streams a few message chunks echoing the prompt.
func (a *mockAgent) emitChat(turn chan struct{}, prompt string) protocol.PromptResult {
	chunks := []string{
		"I'll help you with that. ",
		"Let me look into it. ",
		fmt.Sprintf("Completed the analysis of your request: %q.", prompt),
	}
	for _, text := range chunks {
		if !a.step(turn) {
			return cancelled()
		}
		a.chunk(text)
	}
	return done()
}

// emitThinking streams thought chunks followed by a summary.
func (a *mockAgent) emitThinking(turn chan struct{}) protocol.PromptResult {
	thoughts := []string{
		"Let me analyze this problem step by step...",
		"The key insight is that both flows need to be handled.",
		"After careful analysis, a channel-based pattern fits best.",
	}
	for _, thought := range thoughts {
		if !a.step(turn) {
			return cancelled()
		}
		a.thought(thought)
	}
	if !a.step(turn) {
		return cancelled()
	}
	a.chunk("After careful reasoning, the approach is sound.")
	return done()
}

// emitRead reads a workspace file through the controller and reports its size.
func (a *mockAgent) emitRead(ctx context.Context, turn chan struct{}, path string) protocol.PromptResult {
	if !a.step(turn) {
		return cancelled()
	}

	a.update(protocol.SessionUpdate{
		Kind: protocol.UpdateToolCall,
		ToolCall: &protocol.ToolCallUpdate{
			ToolCallID: "tc-read-1",
			Title:      "Read " + filepath.Base(path),
			Kind:       "read",
			Status:     protocol.ToolStatusInProgress,
		},
	})

	var result protocol.ReadTextFileResult
	err := a.call(ctx, protocol.MethodReadTextFile, protocol.ReadTextFileParams{
		SessionID: sessionID,
		Path:      path,
	}, &result)
	if err != nil {
		a.toolResult("tc-read-1", protocol.ToolStatusFailed, err.Error())
		return done()
	}

	a.toolResult("tc-read-1", protocol.ToolStatusCompleted,
		fmt.Sprintf("Read %d bytes from %s", len(result.Content), path))
	a.chunk(fmt.Sprintf("The file %s has %d bytes.", path, len(result.Content)))
	return done()
}

// emitEdit proposes a file write through the controller. The write goes
// through the diff approval flow on the controller side.
func (a *mockAgent) emitEdit(ctx context.Context, turn chan struct{}, path string) protocol.PromptResult {
	if !a.step(turn) {
		return cancelled()
	}

	content := "// updated by mock-agent\n"

	a.update(protocol.SessionUpdate{
		Kind: protocol.UpdateToolCall,
		ToolCall: &protocol.ToolCallUpdate{
			ToolCallID: "tc-edit-1",
			Title:      "Edit " + filepath.Base(path),
			Kind:       "edit",
			Status:     protocol.ToolStatusInProgress,
			Content: []protocol.ToolCallContent{{
				Type:    "diff",
				Path:    path,
				NewText: content,
			}},
		},
	})

	err := a.call(ctx, protocol.MethodWriteTextFile, protocol.WriteTextFileParams{
		SessionID: sessionID,
		Path:      path,
		Content:   content,
	}, nil)
	if err != nil {
		a.toolResult("tc-edit-1", protocol.ToolStatusFailed, "Write rejected: "+err.Error())
		a.chunk("The proposed edit was not applied.")
		return done()
	}

	a.toolResult("tc-edit-1", protocol.ToolStatusCompleted, "File updated")
	a.chunk("Applied the edit to " + path + ".")
	return done()
}

// emitPermission asks for human approval before pretending to run a command.
func (a *mockAgent) emitPermission(ctx context.Context, turn chan struct{}) protocol.PromptResult {
	if !a.step(turn) {
		return cancelled()
	}

	var result protocol.RequestPermissionResult
	err := a.call(ctx, protocol.MethodRequestPermission, protocol.RequestPermissionParams{
		SessionID: sessionID,
		ToolCall: protocol.ToolCallRef{
			ToolCallID: "tc-exec-1",
			Title:      "Run go test ./...",
			Kind:       "execute",
		},
		Options: []protocol.PermissionOption{
			{OptionID: "allow_once", Name: "Allow", Kind: "allow_once"},
			{OptionID: "reject_once", Name: "Reject", Kind: "reject_once"},
		},
	}, &result)

	switch {
	case err != nil || result.Outcome == protocol.OutcomeCancelled:
		a.chunk("Permission was not granted; skipping the command.")
	case result.OptionID == "allow_once":
		a.chunk("Permission granted. Tests passed.")
	default:
		a.chunk("Permission rejected; skipping the command.")
	}
	return done()
}

// emitPlan publishes a plan and walks it to completion.
func (a *mockAgent) emitPlan(turn chan struct{}) protocol.PromptResult {
	entries := []protocol.PlanEntry{
		{Content: "Inspect the failing test", Status: "in_progress", Priority: "high"},
		{Content: "Fix the off-by-one", Status: "pending", Priority: "high"},
		{Content: "Run the suite", Status: "pending", Priority: "medium"},
	}

	if !a.step(turn) {
		return cancelled()
	}
	a.update(protocol.SessionUpdate{
		Kind: protocol.UpdatePlan,
		Plan: &protocol.PlanUpdate{Entries: entries},
	})

	for i := range entries {
		if !a.step(turn) {
			return cancelled()
		}
		entries[i].Status = "completed"
		if i+1 < len(entries) {
			entries[i+1].Status = "in_progress"
		}
		a.update(protocol.SessionUpdate{
			Kind: protocol.UpdatePlan,
			Plan: &protocol.PlanUpdate{Entries: entries},
		})
	}

	a.chunk("Plan completed.")
	return done()
}

// emitSlow streams chunks for a configurable duration, for cancel testing.
// Accepts "/slow" (5s default) or "/slow <duration>".
func (a *mockAgent) emitSlow(turn chan struct{}, prompt string) protocol.PromptResult {
	total := 5 * time.Second
	parts := strings.Fields(prompt)
	if len(parts) >= 2 {
		if d, err := time.ParseDuration(parts[1]); err == nil && d > 0 {
			total = d
		}
	}

	deadline := time.Now().Add(total)
	for time.Now().Before(deadline) {
		if !a.step(turn) {
			return cancelled()
		}
		a.chunk("still working... ")
	}
	a.chunk("Slow response complete.")
	return done()
}

// toolResult emits a tool_call_update with inline output.
func (a *mockAgent) toolResult(toolCallID, status, output string) {
	content := protocol.TextBlock(output)
	a.update(protocol.SessionUpdate{
		Kind: protocol.UpdateToolCallUpdate,
		ToolCallUpdate: &protocol.ToolCallUpdate{
			ToolCallID: toolCallID,
			Status:     status,
			Content: []protocol.ToolCallContent{{
				Type:    "content",
				Content: &content,
			}},
		},
	})
}

// call performs an agent -> controller callback and decodes the result.
func (a *mockAgent) call(ctx context.Context, method string, params, result interface{}) error {
	raw, err := a.conn.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if result != nil && len(raw) > 0 {
		return json.Unmarshal(raw, result)
	}
	return nil
}
