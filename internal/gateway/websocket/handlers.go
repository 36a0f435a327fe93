package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/agent/locate"
	apperrors "github.com/agentdeck/agentdeck/internal/common/errors"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/session"
	"github.com/agentdeck/agentdeck/pkg/ws"
)

// SessionHandlers exposes the session control plane over the gateway.
type SessionHandlers struct {
	manager *session.Manager
	locator *locate.Locator
	logger  *logger.Logger
}

// RegisterSessionHandlers wires every session and agent action onto the
// dispatcher.
func RegisterSessionHandlers(d *ws.Dispatcher, manager *session.Manager, locator *locate.Locator, log *logger.Logger) *SessionHandlers {
	h := &SessionHandlers{
		manager: manager,
		locator: locator,
		logger:  log.WithFields(zap.String("component", "ws-session-handlers")),
	}

	d.RegisterFunc(ws.ActionSessionSpawn, h.handleSpawn)
	d.RegisterFunc(ws.ActionSessionPrompt, h.handlePrompt)
	d.RegisterFunc(ws.ActionSessionCancel, h.handleCancel)
	d.RegisterFunc(ws.ActionSessionTerminate, h.handleTerminate)
	d.RegisterFunc(ws.ActionSessionList, h.handleList)
	d.RegisterFunc(ws.ActionSessionSetPermissionMode, h.handleSetPermissionMode)
	d.RegisterFunc(ws.ActionSessionRespondPermission, h.handleRespondPermission)
	d.RegisterFunc(ws.ActionSessionRespondDiff, h.handleRespondDiff)
	d.RegisterFunc(ws.ActionAgentList, h.handleAgentList)
	d.RegisterFunc(ws.ActionAgentCheck, h.handleAgentCheck)

	return h
}

func (h *SessionHandlers) handleSpawn(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req session.SpawnRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, apperrors.BadRequest("invalid payload: " + err.Error())
	}

	info, err := h.manager.Spawn(ctx, req)
	if err != nil {
		return nil, err
	}
	return ws.NewResponse(msg.ID, msg.Action, info)
}

// PromptRequest is the payload for session.prompt. Context carries optional
// fragments (file excerpts, selections) attached to the prompt text.
type PromptRequest struct {
	SessionID string   `json:"sessionId"`
	Text      string   `json:"text"`
	Context   []string `json:"context,omitempty"`
}

func (h *SessionHandlers) handlePrompt(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req PromptRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, apperrors.BadRequest("invalid payload: " + err.Error())
	}

	if err := h.manager.Prompt(ctx, req.SessionID, req.Text, req.Context...); err != nil {
		return nil, err
	}
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"accepted":  true,
		"sessionId": req.SessionID,
	})
}

// SessionRequest addresses a single session.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *SessionHandlers) handleCancel(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req SessionRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, apperrors.BadRequest("invalid payload: " + err.Error())
	}

	if err := h.manager.Cancel(req.SessionID); err != nil {
		return nil, err
	}
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"success":   true,
		"sessionId": req.SessionID,
	})
}

func (h *SessionHandlers) handleTerminate(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req SessionRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, apperrors.BadRequest("invalid payload: " + err.Error())
	}

	if err := h.manager.Terminate(req.SessionID); err != nil {
		return nil, err
	}
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"success":   true,
		"sessionId": req.SessionID,
	})
}

func (h *SessionHandlers) handleList(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"sessions": h.manager.List(),
	})
}

// SetPermissionModeRequest is the payload for session.set_permission_mode.
type SetPermissionModeRequest struct {
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
}

func (h *SessionHandlers) handleSetPermissionMode(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req SetPermissionModeRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, apperrors.BadRequest("invalid payload: " + err.Error())
	}

	if err := h.manager.SetPermissionMode(ctx, req.SessionID, req.Mode); err != nil {
		return nil, err
	}
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"success":   true,
		"sessionId": req.SessionID,
		"mode":      req.Mode,
	})
}

// RespondPermissionRequest is the payload for session.respond_permission.
type RespondPermissionRequest struct {
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	OptionID  string `json:"optionId,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

func (h *SessionHandlers) handleRespondPermission(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req RespondPermissionRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, apperrors.BadRequest("invalid payload: " + err.Error())
	}

	if err := h.manager.RespondPermission(req.SessionID, req.RequestID, req.OptionID, req.Cancelled); err != nil {
		return nil, err
	}
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"success":   true,
		"requestId": req.RequestID,
	})
}

// RespondDiffRequest is the payload for session.respond_diff.
type RespondDiffRequest struct {
	SessionID  string `json:"sessionId"`
	ProposalID string `json:"proposalId"`
	Accept     bool   `json:"accept"`
}

func (h *SessionHandlers) handleRespondDiff(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req RespondDiffRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, apperrors.BadRequest("invalid payload: " + err.Error())
	}

	if err := h.manager.RespondDiff(req.SessionID, req.ProposalID, req.Accept); err != nil {
		return nil, err
	}
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"success":    true,
		"proposalId": req.ProposalID,
	})
}

func (h *SessionHandlers) handleAgentList(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"agents": h.locator.List(),
	})
}

// AgentCheckRequest is the payload for agent.check.
type AgentCheckRequest struct {
	AgentType string `json:"agentType"`
}

func (h *SessionHandlers) handleAgentCheck(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req AgentCheckRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, apperrors.BadRequest("invalid payload: " + err.Error())
	}

	status, err := h.locator.Check(req.AgentType)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error())
	}
	return ws.NewResponse(msg.ID, msg.Action, status)
}
