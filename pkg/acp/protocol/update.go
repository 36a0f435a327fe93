package protocol

import (
	"encoding/json"
	"fmt"
)

// Session update kinds carried by session/update notifications.
const (
	UpdateAgentMessageChunk = "agent_message_chunk"
	UpdateAgentThoughtChunk = "agent_thought_chunk"
	UpdateToolCall          = "tool_call"
	UpdateToolCallUpdate    = "tool_call_update"
	UpdatePlan              = "plan"
)

// SessionNotification is the params payload of a session/update notification.
type SessionNotification struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// SessionUpdate is a tagged union over the update kinds. Exactly one of the
// payload pointers is set, matching Kind. Unknown kinds unmarshal with all
// payloads nil so callers can log and skip them.
type SessionUpdate struct {
	Kind string

	MessageChunk   *MessageChunk
	ThoughtChunk   *MessageChunk
	ToolCall       *ToolCallUpdate
	ToolCallUpdate *ToolCallUpdate
	Plan           *PlanUpdate
}

// MessageChunk is a streamed fragment of agent output.
type MessageChunk struct {
	Content ContentBlock `json:"content"`
}

// ToolCallUpdate reports a tool invocation starting or changing state. The
// same shape serves both tool_call and tool_call_update; the update form may
// leave any field but ToolCallID empty.
type ToolCallUpdate struct {
	ToolCallID string            `json:"toolCallId"`
	Title      string            `json:"title,omitempty"`
	Kind       string            `json:"kind,omitempty"` // read, edit, execute, search, ...
	Status     string            `json:"status,omitempty"`
	Content    []ToolCallContent `json:"content,omitempty"`
	RawInput   json.RawMessage   `json:"rawInput,omitempty"`
}

// Tool call statuses.
const (
	ToolStatusPending    = "pending"
	ToolStatusInProgress = "in_progress"
	ToolStatusCompleted  = "completed"
	ToolStatusFailed     = "failed"
)

// ToolCallContent is a piece of tool output: either inline content or a file
// diff. Agents disagree on the diff field spelling (oldText vs old_text), so
// UnmarshalJSON accepts both; everything downstream sees only the camelCase
// form.
type ToolCallContent struct {
	Type    string        `json:"type"` // content, diff
	Content *ContentBlock `json:"content,omitempty"`
	Path    string        `json:"path,omitempty"`
	OldText string        `json:"oldText,omitempty"`
	NewText string        `json:"newText,omitempty"`
}

// UnmarshalJSON normalizes snake_case diff fields at the protocol boundary.
func (t *ToolCallContent) UnmarshalJSON(data []byte) error {
	type alias struct {
		Type         string        `json:"type"`
		Content      *ContentBlock `json:"content"`
		Path         string        `json:"path"`
		OldText      string        `json:"oldText"`
		NewText      string        `json:"newText"`
		OldTextSnake string        `json:"old_text"`
		NewTextSnake string        `json:"new_text"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	t.Type = a.Type
	t.Content = a.Content
	t.Path = a.Path
	t.OldText = a.OldText
	if t.OldText == "" {
		t.OldText = a.OldTextSnake
	}
	t.NewText = a.NewText
	if t.NewText == "" {
		t.NewText = a.NewTextSnake
	}
	return nil
}

// PlanUpdate is the agent's current task plan.
type PlanUpdate struct {
	Entries []PlanEntry `json:"entries"`
}

// PlanEntry is one step of a plan.
type PlanEntry struct {
	Content  string `json:"content"`
	Status   string `json:"status,omitempty"`   // pending, in_progress, completed
	Priority string `json:"priority,omitempty"` // high, medium, low
}

// UnmarshalJSON reads the flat wire form, keyed by the sessionUpdate
// discriminator, into the union.
func (u *SessionUpdate) UnmarshalJSON(data []byte) error {
	var disc struct {
		Kind string `json:"sessionUpdate"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return err
	}
	u.Kind = disc.Kind

	switch disc.Kind {
	case UpdateAgentMessageChunk:
		var chunk MessageChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return err
		}
		u.MessageChunk = &chunk
	case UpdateAgentThoughtChunk:
		var chunk MessageChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return err
		}
		u.ThoughtChunk = &chunk
	case UpdateToolCall:
		var call ToolCallUpdate
		if err := json.Unmarshal(data, &call); err != nil {
			return err
		}
		u.ToolCall = &call
	case UpdateToolCallUpdate:
		var call ToolCallUpdate
		if err := json.Unmarshal(data, &call); err != nil {
			return err
		}
		u.ToolCallUpdate = &call
	case UpdatePlan:
		var plan PlanUpdate
		if err := json.Unmarshal(data, &plan); err != nil {
			return err
		}
		u.Plan = &plan
	}
	return nil
}

// MarshalJSON writes the flat wire form back out, as used by the mock agent.
func (u SessionUpdate) MarshalJSON() ([]byte, error) {
	switch u.Kind {
	case UpdateAgentMessageChunk, UpdateAgentThoughtChunk:
		chunk := u.MessageChunk
		if u.Kind == UpdateAgentThoughtChunk {
			chunk = u.ThoughtChunk
		}
		if chunk == nil {
			return nil, fmt.Errorf("session update %s missing chunk payload", u.Kind)
		}
		return json.Marshal(struct {
			Kind string `json:"sessionUpdate"`
			MessageChunk
		}{u.Kind, *chunk})
	case UpdateToolCall, UpdateToolCallUpdate:
		call := u.ToolCall
		if u.Kind == UpdateToolCallUpdate {
			call = u.ToolCallUpdate
		}
		if call == nil {
			return nil, fmt.Errorf("session update %s missing tool call payload", u.Kind)
		}
		return json.Marshal(struct {
			Kind string `json:"sessionUpdate"`
			ToolCallUpdate
		}{u.Kind, *call})
	case UpdatePlan:
		if u.Plan == nil {
			return nil, fmt.Errorf("session update plan missing payload")
		}
		return json.Marshal(struct {
			Kind string `json:"sessionUpdate"`
			PlanUpdate
		}{u.Kind, *u.Plan})
	default:
		return json.Marshal(struct {
			Kind string `json:"sessionUpdate"`
		}{u.Kind})
	}
}
