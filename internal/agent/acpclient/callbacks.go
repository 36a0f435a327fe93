package acpclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	"github.com/agentdeck/agentdeck/pkg/acp/protocol"
)

const eventSource = "acp-client"

// Callbacks implements Handler for one session: it turns agent callbacks
// into bus events for attached UIs and gates the dangerous ones (permission
// requests, file writes) on a human decision.
type Callbacks struct {
	sessionID string
	eventBus  bus.EventBus
	decisions *Decisions
	logger    *logger.Logger
}

// NewCallbacks builds the callback surface for a session. sessionID is the
// controller's session id, not the agent's.
func NewCallbacks(sessionID string, eventBus bus.EventBus, decisions *Decisions, log *logger.Logger) *Callbacks {
	return &Callbacks{
		sessionID: sessionID,
		eventBus:  eventBus,
		decisions: decisions,
		logger:    log.WithSessionID(sessionID),
	}
}

// RequestPermission broadcasts the request to attached UIs and blocks until
// a human picks an option. No decision within the timeout means cancelled:
// the agent must never act on an unanswered request.
func (c *Callbacks) RequestPermission(ctx context.Context, params *protocol.RequestPermissionParams) (*protocol.RequestPermissionResult, error) {
	requestID := uuid.New().String()

	options := make([]events.PermissionOption, 0, len(params.Options))
	for _, opt := range params.Options {
		options = append(options, events.PermissionOption{
			OptionID: opt.OptionID,
			Name:     opt.Name,
			Kind:     opt.Kind,
		})
	}

	c.publish(events.SessionPermissionRequest, events.PermissionRequestPayload{
		SessionID:  c.sessionID,
		RequestID:  requestID,
		ToolCallID: params.ToolCall.ToolCallID,
		Title:      params.ToolCall.Title,
		Kind:       params.ToolCall.Kind,
		Options:    options,
	})

	c.logger.Info("awaiting permission decision",
		zap.String("request_id", requestID),
		zap.String("tool_call_id", params.ToolCall.ToolCallID))

	decision := c.decisions.AwaitPermission(requestID)
	if decision.Cancelled {
		c.logger.Info("permission request cancelled", zap.String("request_id", requestID))
		return &protocol.RequestPermissionResult{Outcome: protocol.OutcomeCancelled}, nil
	}
	return &protocol.RequestPermissionResult{
		Outcome:  protocol.OutcomeSelected,
		OptionID: decision.OptionID,
	}, nil
}

// ReadTextFile serves the agent's read directly from disk. Line and Limit
// select a 1-based line window when present.
func (c *Callbacks) ReadTextFile(ctx context.Context, params *protocol.ReadTextFileParams) (*protocol.ReadTextFileResult, error) {
	data, err := os.ReadFile(params.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", params.Path, err)
	}

	content := string(data)
	if params.Line != nil || params.Limit != nil {
		content = sliceLines(content, params.Line, params.Limit)
	}
	return &protocol.ReadTextFileResult{Content: content}, nil
}

// WriteTextFile proposes the change as a diff to attached UIs and only
// touches disk after a human accepts. A missing file diffs against empty
// content. Rejection and timeout both surface to the agent as an error.
func (c *Callbacks) WriteTextFile(ctx context.Context, params *protocol.WriteTextFileParams) error {
	oldText := ""
	if data, err := os.ReadFile(params.Path); err == nil {
		oldText = string(data)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", params.Path, err)
	}

	proposalID := uuid.New().String()
	c.publish(events.SessionDiffProposal, events.DiffProposalPayload{
		SessionID:  c.sessionID,
		ProposalID: proposalID,
		Path:       params.Path,
		OldText:    oldText,
		NewText:    params.Content,
	})

	c.logger.Info("awaiting diff decision",
		zap.String("proposal_id", proposalID),
		zap.String("path", params.Path))

	if !c.decisions.AwaitDiff(proposalID) {
		c.logger.Info("diff proposal rejected", zap.String("proposal_id", proposalID))
		return fmt.Errorf("write to %s rejected", params.Path)
	}

	if err := os.MkdirAll(filepath.Dir(params.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(params.Path, []byte(params.Content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", params.Path, err)
	}

	c.logger.Info("wrote approved file change", zap.String("path", params.Path))
	return nil
}

// HandleSessionUpdate fans a streamed update out as bus events.
func (c *Callbacks) HandleSessionUpdate(notification *protocol.SessionNotification) {
	update := notification.Update
	switch update.Kind {
	case protocol.UpdateAgentMessageChunk:
		c.publish(events.SessionMessageChunk, events.MessageChunkPayload{
			SessionID: c.sessionID,
			Role:      events.RoleAssistant,
			Text:      update.MessageChunk.Content.Text,
		})

	case protocol.UpdateAgentThoughtChunk:
		c.publish(events.SessionMessageChunk, events.MessageChunkPayload{
			SessionID: c.sessionID,
			Role:      events.RoleThought,
			Text:      update.ThoughtChunk.Content.Text,
		})

	case protocol.UpdateToolCall:
		call := update.ToolCall
		c.publish(events.SessionToolCall, events.ToolCallPayload{
			SessionID:  c.sessionID,
			ToolCallID: call.ToolCallID,
			Title:      call.Title,
			Kind:       call.Kind,
			Status:     call.Status,
		})
		c.publishDiffs(call)

	case protocol.UpdateToolCallUpdate:
		call := update.ToolCallUpdate
		c.publish(events.SessionToolResult, events.ToolResultPayload{
			SessionID:  c.sessionID,
			ToolCallID: call.ToolCallID,
			Status:     call.Status,
			Output:     inlineOutput(call.Content),
		})
		c.publishDiffs(call)

	case protocol.UpdatePlan:
		entries := make([]events.PlanEntry, 0, len(update.Plan.Entries))
		for _, e := range update.Plan.Entries {
			entries = append(entries, events.PlanEntry{
				Content:  e.Content,
				Status:   e.Status,
				Priority: e.Priority,
			})
		}
		c.publish(events.SessionPlan, events.PlanPayload{
			SessionID: c.sessionID,
			Entries:   entries,
		})

	default:
		c.logger.Debug("ignoring session update with unknown kind",
			zap.String("kind", update.Kind))
	}
}

// publishDiffs emits a diff event for each file change inside a tool call.
func (c *Callbacks) publishDiffs(call *protocol.ToolCallUpdate) {
	for _, content := range call.Content {
		if content.Type != "diff" {
			continue
		}
		c.publish(events.SessionDiff, events.DiffPayload{
			SessionID:  c.sessionID,
			ToolCallID: call.ToolCallID,
			Path:       content.Path,
			OldText:    content.OldText,
			NewText:    content.NewText,
		})
	}
}

func (c *Callbacks) publish(subject string, payload interface{}) {
	event := bus.NewEvent(subject, eventSource, payload)
	if err := c.eventBus.Publish(context.Background(), subject, event); err != nil {
		c.logger.Error("failed to publish event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// inlineOutput concatenates the textual content of a tool call update.
func inlineOutput(contents []protocol.ToolCallContent) string {
	var parts []string
	for _, content := range contents {
		if content.Type == "content" && content.Content != nil && content.Content.Text != "" {
			parts = append(parts, content.Content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// sliceLines returns the requested 1-based line window of content.
func sliceLines(content string, line, limit *int) string {
	lines := strings.Split(content, "\n")

	start := 0
	if line != nil && *line > 1 {
		start = *line - 1
	}
	if start >= len(lines) {
		return ""
	}

	end := len(lines)
	if limit != nil && *limit > 0 && start+*limit < end {
		end = start + *limit
	}
	return strings.Join(lines[start:end], "\n")
}
