package ws

// Action constants for WebSocket messages
const (
	// Health
	ActionHealthCheck = "health.check"

	// Authentication
	ActionAuth = "auth"

	// Session actions (client -> server)
	ActionSessionSpawn              = "session.spawn"
	ActionSessionPrompt             = "session.prompt"
	ActionSessionCancel             = "session.cancel"
	ActionSessionTerminate          = "session.terminate"
	ActionSessionList               = "session.list"
	ActionSessionSetPermissionMode  = "session.set_permission_mode"
	ActionSessionRespondPermission  = "session.respond_permission"
	ActionSessionRespondDiff        = "session.respond_diff"

	// Agent catalog actions
	ActionAgentList  = "agent.list"
	ActionAgentCheck = "agent.check"

	// Notification actions (server -> client). These double as event bus
	// subjects so a session event forwards to attached UIs unchanged.
	ActionSessionStatus            = "session.status"
	ActionSessionMessageChunk      = "session.message_chunk"
	ActionSessionToolCall          = "session.tool_call"
	ActionSessionToolResult        = "session.tool_result"
	ActionSessionDiff              = "session.diff"
	ActionSessionPlan              = "session.plan"
	ActionSessionPermissionRequest = "session.permission_request"
	ActionSessionDiffProposal      = "session.diff_proposal"
	ActionSessionPromptComplete    = "session.prompt_complete"
	ActionSessionError             = "session.error"
)

// Error codes
const (
	ErrorCodeBadRequest    = "BAD_REQUEST"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeInternalError = "INTERNAL_ERROR"
	ErrorCodeUnauthorized  = "UNAUTHORIZED"
	ErrorCodeConflict      = "CONFLICT"
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
)
