package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/agent/acpclient"
	"github.com/agentdeck/agentdeck/internal/agent/locate"
	"github.com/agentdeck/agentdeck/internal/agent/proc"
	"github.com/agentdeck/agentdeck/internal/common/config"
	"github.com/agentdeck/agentdeck/internal/common/constants"
	apperrors "github.com/agentdeck/agentdeck/internal/common/errors"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	"github.com/agentdeck/agentdeck/pkg/acp/jsonrpc"
	"github.com/agentdeck/agentdeck/pkg/acp/protocol"
)

const eventSource = "session-manager"

// clientInfo identifies this controller in the protocol handshake.
var clientInfo = protocol.Implementation{Name: "agentdeck", Version: "1.0.0"}

// Manager owns the session lifecycle: spawning agent processes, the
// protocol handshake, prompt turns, cancellation, and teardown. All session
// events flow through the event bus.
type Manager struct {
	registry *Registry
	eventBus bus.EventBus
	locator  *locate.Locator
	launcher proc.Launcher
	cfg      config.AgentsConfig
	logger   *logger.Logger
}

// NewManager wires a manager.
func NewManager(reg *Registry, eventBus bus.EventBus, locator *locate.Locator, launcher proc.Launcher, cfg config.AgentsConfig, log *logger.Logger) *Manager {
	return &Manager{
		registry: reg,
		eventBus: eventBus,
		locator:  locator,
		launcher: launcher,
		cfg:      cfg,
		logger:   log.WithFields(zap.String("component", "session-manager")),
	}
}

// SpawnRequest describes a session to create.
type SpawnRequest struct {
	AgentType   string                    `json:"agentType"`
	WorkDir     string                    `json:"workDir"`
	SandboxMode string                    `json:"sandboxMode,omitempty"`
	Thinking    *protocol.ThinkingOptions `json:"thinking,omitempty"`
}

// Spawn locates the agent binary, starts the process, and performs the
// protocol handshake. The returned session is ready for prompts.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (*Info, error) {
	agentType, err := locate.TypeByID(req.AgentType)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error())
	}
	if req.WorkDir == "" {
		return nil, apperrors.ValidationError("workDir", "must not be empty")
	}

	binPath, err := m.locator.Locate(agentType.ID)
	if err != nil {
		var notFound *locate.NotFoundError
		if errors.As(err, &notFound) {
			return nil, &apperrors.AppError{
				Code:    apperrors.ErrCodeNotFound,
				Message: notFound.Error(),
			}
		}
		return nil, apperrors.Wrap(err, "failed to locate agent binary")
	}

	sandboxMode := req.SandboxMode
	if sandboxMode == "" {
		sandboxMode = m.cfg.DefaultSandboxMode
	}
	if !agentType.SupportsSandbox {
		sandboxMode = ""
	}

	handle, err := m.launcher.Start(ctx, proc.LaunchSpec{
		Path:        binPath,
		WorkDir:     req.WorkDir,
		SandboxMode: sandboxMode,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to start agent process")
	}

	s := &Session{
		ID:        uuid.New().String(),
		AgentType: agentType.ID,
		WorkDir:   req.WorkDir,
		CreatedAt: time.Now().UTC(),
		state:     StateInitializing,
		handle:    handle,
		decisions: acpclient.NewDecisions(),
	}
	callbacks := acpclient.NewCallbacks(s.ID, m.eventBus, s.decisions, m.logger)
	s.client = acpclient.New(handle.Stdin(), handle.Stdout(), callbacks, m.logger)
	s.client.Start(context.Background())

	m.registry.Add(s)
	m.publishStatus(s, "")

	go m.observeExit(s)

	if err := m.handshake(ctx, s, req.Thinking); err != nil {
		// A closed connection means the process already died; the exit
		// observer owns the terminal status event, so raising a separate
		// handshake failure would double-report.
		if !errors.Is(err, jsonrpc.ErrConnClosed) {
			m.failSession(s, err)
		}
		return nil, err
	}

	if s.setState(StateReady, "") {
		m.publishStatus(s, "")
	}
	m.logger.Info("session ready",
		zap.String("session_id", s.ID),
		zap.String("agent_type", s.AgentType),
		zap.String("work_dir", s.WorkDir))

	info := s.Snapshot()
	return &info, nil
}

// handshake runs initialize and session/new against the fresh process.
func (m *Manager) handshake(ctx context.Context, s *Session, thinking *protocol.ThinkingOptions) error {
	hctx, cancel := context.WithTimeout(ctx, constants.HandshakeTimeout)
	defer cancel()

	if _, err := s.client.Initialize(hctx, clientInfo); err != nil {
		return m.classifySpawnError(s, err)
	}

	protoID, err := s.client.NewSession(hctx, s.WorkDir, thinking)
	if err != nil {
		return m.classifySpawnError(s, err)
	}
	s.setProtoID(protoID)
	return nil
}

// authFailure scans the error text and the agent's recent stderr for signs
// the agent refused to work because it is not logged in. Spawn and prompt
// failures go through the same scan.
func (m *Manager) authFailure(s *Session, err error) (string, bool) {
	lines := append([]string{err.Error()}, s.handle.RecentStderr()...)
	return classifyAuthFailure(s.AgentType, lines)
}

// classifySpawnError tells an authentication failure apart from a generic
// handshake failure.
func (m *Manager) classifySpawnError(s *Session, err error) error {
	if msg, ok := m.authFailure(s, err); ok {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeUnauthorized,
			Message: msg,
			Err:     err,
		}
	}
	return apperrors.Wrap(err, fmt.Sprintf("agent %s failed to start", s.AgentType))
}

// failSession tears down a session whose handshake failed.
func (m *Manager) failSession(s *Session, cause error) {
	if s.setState(StateError, cause.Error()) {
		m.publishStatus(s, cause.Error())
	}
	m.publishError(s.ID, apperrors.Code(cause), cause.Error())
	s.decisions.Close()
	s.client.Close()
	s.handle.Kill()
}

// observeExit waits for the process to end and finalizes the session. It
// fires on every exit path, including kills we requested ourselves.
func (m *Manager) observeExit(s *Session) {
	status := <-s.handle.Done()

	// Pending decisions can never be answered now.
	s.decisions.Close()
	s.client.Close()

	if s.State() == StateTerminated || s.State() == StateError {
		return
	}

	reason := fmt.Sprintf("agent process exited with code %d", status.Code)
	if msg, ok := classifyAuthFailure(s.AgentType, s.handle.RecentStderr()); ok {
		reason = msg
	}

	m.logger.Warn("agent process exited unexpectedly",
		zap.String("session_id", s.ID),
		zap.Int("exit_code", status.Code))

	// An unexpected exit is reported as a status transition carrying the
	// reason, not as a separate error event. The session stays in the
	// registry so listings can show its final state; only an explicit
	// terminate removes it.
	if s.setState(StateTerminated, reason) {
		m.publishStatus(s, reason)
	}
}

// Prompt submits one prompt turn: free text plus optional context fragments
// appended as further content blocks. The turn runs asynchronously;
// completion is announced on the bus as session.prompt_complete.
func (m *Manager) Prompt(ctx context.Context, sessionID, text string, contextFragments ...string) error {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if text == "" {
		return apperrors.ValidationError("text", "must not be empty")
	}

	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.state = StatePrompting
		s.stateReason = ""
	case StatePrompting:
		s.mu.Unlock()
		return apperrors.Conflict("session is already prompting")
	default:
		state := s.state
		s.mu.Unlock()
		return apperrors.Conflict("session is " + state + ", not ready")
	}
	s.mu.Unlock()

	m.publishStatus(s, "")

	go m.runPrompt(s, text, contextFragments)
	return nil
}

// runPrompt drives one prompt turn to completion.
func (m *Manager) runPrompt(s *Session, text string, contextFragments []string) {
	result, err := s.client.Prompt(context.Background(), s.protoID(), text, contextFragments...)

	s.cancelling.Store(false)

	if err != nil {
		// Termination already produced its own events.
		if s.State() != StateTerminated {
			code, msg := apperrors.ErrCodeInternalError, err.Error()
			if authMsg, ok := m.authFailure(s, err); ok {
				code, msg = apperrors.ErrCodeUnauthorized, authMsg
			}
			m.publishError(s.ID, code, msg)
			if s.setState(StateReady, "") {
				m.publishStatus(s, "")
			}
		}
		return
	}

	m.publish(events.SessionPromptComplete, events.PromptCompletePayload{
		SessionID:  s.ID,
		StopReason: result.StopReason,
	})
	if s.setState(StateReady, "") {
		m.publishStatus(s, "")
	}
}

// Cancel asks the agent to abort the in-flight prompt turn. Repeated
// cancels for the same turn are dropped.
func (m *Manager) Cancel(sessionID string) error {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if s.State() != StatePrompting {
		return apperrors.Conflict("session has no prompt in flight")
	}
	if !s.cancelling.CompareAndSwap(false, true) {
		// A cancel is already on the wire for this turn.
		return nil
	}

	m.logger.Info("cancelling prompt", zap.String("session_id", sessionID))
	return s.client.Cancel(s.protoID())
}

// Terminate kills the process and removes the session. A second terminate
// for the same id reports not-found; it never panics or double-kills.
func (m *Manager) Terminate(sessionID string) error {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return err
	}

	if !s.setState(StateTerminated, "terminated by user") {
		m.registry.Remove(sessionID)
		return nil
	}

	m.logger.Info("terminating session", zap.String("session_id", sessionID))

	s.decisions.Close()
	s.client.Close()
	s.handle.Kill()

	m.publishStatus(s, "terminated by user")
	m.registry.Remove(sessionID)
	return nil
}

// List returns snapshots of all sessions, newest first.
func (m *Manager) List() []Info {
	return m.registry.List()
}

// Get returns a snapshot of one session.
func (m *Manager) Get(sessionID string) (*Info, error) {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	info := s.Snapshot()
	return &info, nil
}

// SetPermissionMode switches the agent's permission mode for a session.
func (m *Manager) SetPermissionMode(ctx context.Context, sessionID, mode string) error {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if s.State() == StateTerminated || s.State() == StateError {
		return apperrors.Conflict("session is " + s.State())
	}
	if mode == "" {
		return apperrors.ValidationError("mode", "must not be empty")
	}

	mctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if err := s.client.SetMode(mctx, s.protoID(), mode); err != nil {
		return apperrors.Wrap(err, "failed to set permission mode")
	}
	s.setPermissionMode(mode)
	return nil
}

// RespondPermission delivers a human decision for a pending permission
// request. Unknown or already-resolved requests are an error.
func (m *Manager) RespondPermission(sessionID, requestID, optionID string, cancelled bool) error {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if !cancelled && optionID == "" {
		return apperrors.ValidationError("optionId", "must not be empty unless cancelled")
	}

	resolved := s.decisions.ResolvePermission(requestID, acpclient.PermissionDecision{
		OptionID:  optionID,
		Cancelled: cancelled,
	})
	if !resolved {
		return apperrors.NotFound("permission request", requestID)
	}
	return nil
}

// RespondDiff delivers a human decision for a pending diff proposal.
func (m *Manager) RespondDiff(sessionID, proposalID string, accept bool) error {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if !s.decisions.ResolveDiff(proposalID, accept) {
		return apperrors.NotFound("diff proposal", proposalID)
	}
	return nil
}

// Shutdown terminates every live session. Used on controller exit.
func (m *Manager) Shutdown() {
	for _, info := range m.registry.List() {
		if info.State != StateTerminated {
			_ = m.Terminate(info.ID)
		}
	}
}

func (m *Manager) publishStatus(s *Session, reason string) {
	info := s.Snapshot()
	m.publish(events.SessionStatus, events.StatusPayload{
		SessionID: info.ID,
		State:     info.State,
		Reason:    reason,
	})
}

func (m *Manager) publishError(sessionID, code, message string) {
	m.publish(events.SessionError, events.ErrorPayload{
		SessionID: sessionID,
		Code:      code,
		Message:   message,
	})
}

func (m *Manager) publish(subject string, payload interface{}) {
	event := bus.NewEvent(subject, eventSource, payload)
	if err := m.eventBus.Publish(context.Background(), subject, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
