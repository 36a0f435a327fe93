// Package events defines the event subjects and payloads flowing over the
// Agentdeck event bus. Subjects are NATS-style dotted names; the gateway
// forwards bus events to attached UIs with the subject as the action, so the
// names here are also the wire-level notification actions.
package events

// Session event subjects.
const (
	SessionStatus            = "session.status"
	SessionMessageChunk      = "session.message_chunk"
	SessionToolCall          = "session.tool_call"
	SessionToolResult        = "session.tool_result"
	SessionDiff              = "session.diff"
	SessionPlan              = "session.plan"
	SessionPermissionRequest = "session.permission_request"
	SessionDiffProposal      = "session.diff_proposal"
	SessionPromptComplete    = "session.prompt_complete"
	SessionError             = "session.error"

	// SessionAll matches every session event.
	SessionAll = "session.>"
)

// StatusPayload announces a session state transition.
type StatusPayload struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
}

// Chunk roles distinguish visible output from reasoning.
const (
	RoleAssistant = "assistant"
	RoleThought   = "thought"
)

// MessageChunkPayload is a streamed fragment of agent output.
type MessageChunkPayload struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Text      string `json:"text"`
}

// ToolCallPayload announces a tool invocation starting.
type ToolCallPayload struct {
	SessionID  string `json:"sessionId"`
	ToolCallID string `json:"toolCallId"`
	Title      string `json:"title,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Status     string `json:"status,omitempty"`
}

// ToolResultPayload reports a tool invocation's progress or completion.
type ToolResultPayload struct {
	SessionID  string `json:"sessionId"`
	ToolCallID string `json:"toolCallId"`
	Status     string `json:"status,omitempty"`
	Output     string `json:"output,omitempty"`
}

// DiffPayload carries a file change reported inside a tool call.
type DiffPayload struct {
	SessionID  string `json:"sessionId"`
	ToolCallID string `json:"toolCallId,omitempty"`
	Path       string `json:"path"`
	OldText    string `json:"oldText"`
	NewText    string `json:"newText"`
}

// PlanEntry is one step of an agent's plan.
type PlanEntry struct {
	Content  string `json:"content"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// PlanPayload carries the agent's current task plan.
type PlanPayload struct {
	SessionID string      `json:"sessionId"`
	Entries   []PlanEntry `json:"entries"`
}

// PermissionOption is one choice a human can pick for a permission request.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
}

// PermissionRequestPayload asks attached UIs for a human decision on a tool
// invocation. RequestID is the handle UIs pass back when responding.
type PermissionRequestPayload struct {
	SessionID  string             `json:"sessionId"`
	RequestID  string             `json:"requestId"`
	ToolCallID string             `json:"toolCallId,omitempty"`
	Title      string             `json:"title,omitempty"`
	Kind       string             `json:"kind,omitempty"`
	Options    []PermissionOption `json:"options"`
}

// DiffProposalPayload asks attached UIs to approve or reject a file write.
// ProposalID is the handle UIs pass back when responding.
type DiffProposalPayload struct {
	SessionID  string `json:"sessionId"`
	ProposalID string `json:"proposalId"`
	Path       string `json:"path"`
	OldText    string `json:"oldText"`
	NewText    string `json:"newText"`
}

// PromptCompletePayload reports the end of a prompt turn.
type PromptCompletePayload struct {
	SessionID  string `json:"sessionId"`
	StopReason string `json:"stopReason"`
}

// ErrorPayload reports a session-scoped failure.
type ErrorPayload struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
}
