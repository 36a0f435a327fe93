// Package protocol defines the typed messages of the agent control protocol:
// the calls the controller makes into an agent process and the callbacks the
// agent is allowed to make back into the controller.
package protocol

// Method names for controller -> agent calls.
const (
	MethodInitialize     = "initialize"
	MethodSessionNew     = "session/new"
	MethodSessionPrompt  = "session/prompt"
	MethodSessionSetMode = "session/set_mode"

	// NotificationSessionCancel is fire-and-forget: agents may not tolerate
	// concurrent cancels, so callers must debounce.
	NotificationSessionCancel = "session/cancel"
)

// Method names for agent -> controller callbacks.
const (
	MethodRequestPermission = "session/request_permission"
	MethodReadTextFile      = "fs/read_text_file"
	MethodWriteTextFile     = "fs/write_text_file"

	NotificationSessionUpdate = "session/update"
)

// ProtocolVersion is the protocol revision this controller speaks.
const ProtocolVersion = 1

// Implementation identifies one side of the connection.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is the handshake request sent after spawn.
type InitializeParams struct {
	ProtocolVersion int            `json:"protocolVersion"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResult is the agent's handshake response.
type InitializeResult struct {
	ProtocolVersion int             `json:"protocolVersion"`
	AgentInfo       *Implementation `json:"agentInfo,omitempty"`
}

// ThinkingOptions requests extended reasoning from agents that support it.
type ThinkingOptions struct {
	Enabled      bool `json:"enabled"`
	BudgetTokens int  `json:"budgetTokens,omitempty"`
}

// NewSessionParams creates an agent-side session rooted at Cwd.
type NewSessionParams struct {
	Cwd      string           `json:"cwd"`
	Thinking *ThinkingOptions `json:"thinking,omitempty"`
}

// NewSessionResult carries the agent's own session identifier, used for all
// subsequent session-scoped calls.
type NewSessionResult struct {
	SessionID string `json:"sessionId"`
}

// ContentBlock is a single piece of prompt or response content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextBlock builds a plain-text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// PromptParams submits one prompt turn to the agent.
type PromptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// PromptResult is returned when the prompt turn finishes.
type PromptResult struct {
	StopReason string `json:"stopReason,omitempty"`
}

// StopReasonEndTurn is assumed when the agent omits a stop reason.
const StopReasonEndTurn = "end_turn"

// SetModeParams switches the agent's permission mode for a session.
type SetModeParams struct {
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
}

// CancelParams asks the agent to abort the in-flight prompt turn.
type CancelParams struct {
	SessionID string `json:"sessionId"`
}

// PermissionOption is one choice offered by a permission request.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"` // allow_once, allow_always, reject_once, reject_always
}

// ToolCallRef describes the tool invocation a permission request is about.
type ToolCallRef struct {
	ToolCallID string `json:"toolCallId"`
	Title      string `json:"title,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// RequestPermissionParams is the agent's request for human approval of a
// tool invocation.
type RequestPermissionParams struct {
	SessionID string             `json:"sessionId"`
	ToolCall  ToolCallRef        `json:"toolCall"`
	Options   []PermissionOption `json:"options"`
}

// Permission outcomes.
const (
	OutcomeSelected  = "selected"
	OutcomeCancelled = "cancelled"
)

// RequestPermissionResult resolves a permission request with either a chosen
// option or a cancellation.
type RequestPermissionResult struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

// ReadTextFileParams is the agent's request to read a workspace file.
type ReadTextFileParams struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Line      *int   `json:"line,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
}

// ReadTextFileResult carries the requested file content.
type ReadTextFileResult struct {
	Content string `json:"content"`
}

// WriteTextFileParams is the agent's request to replace a workspace file's
// content. The write only happens after human approval of the diff.
type WriteTextFileParams struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

// WriteTextFileResult is empty; success is conveyed by the lack of an error.
type WriteTextFileResult struct{}
