// Package session tracks running agent sessions: their lifecycle state
// machine, the processes and protocol connections behind them, and the
// human decisions they are blocked on.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentdeck/agentdeck/internal/agent/acpclient"
	"github.com/agentdeck/agentdeck/internal/agent/proc"
)

// Session states.
const (
	// StateInitializing covers spawn through the protocol handshake.
	StateInitializing = "initializing"
	// StateReady means the session accepts prompts.
	StateReady = "ready"
	// StatePrompting means a prompt turn is in flight.
	StatePrompting = "prompting"
	// StateError means the session failed and accepts no further work.
	StateError = "error"
	// StateTerminated is absorbing: no transition leaves it.
	StateTerminated = "terminated"
)

// Session is one live agent session.
type Session struct {
	ID        string
	AgentType string
	WorkDir   string
	CreatedAt time.Time

	mu             sync.Mutex
	state          string
	stateReason    string
	protoSessionID string
	permissionMode string

	handle    proc.Handle
	client    *acpclient.Client
	decisions *acpclient.Decisions

	// cancelling debounces session/cancel: agents may not tolerate a second
	// cancel while one is outstanding.
	cancelling atomic.Bool
}

// Info is an immutable snapshot of a session for listings and responses.
type Info struct {
	ID             string    `json:"id"`
	AgentType      string    `json:"agentType"`
	WorkDir        string    `json:"workDir"`
	State          string    `json:"state"`
	StateReason    string    `json:"stateReason,omitempty"`
	PermissionMode string    `json:"permissionMode,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// State returns the current state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState transitions the session. Terminated is absorbing; any attempt to
// leave it is refused. Returns whether the transition happened.
func (s *Session) setState(state, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return false
	}
	s.state = state
	s.stateReason = reason
	return true
}

func (s *Session) protoID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protoSessionID
}

func (s *Session) setProtoID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protoSessionID = id
}

func (s *Session) setPermissionMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissionMode = mode
}

// Snapshot returns the session's current Info.
func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:             s.ID,
		AgentType:      s.AgentType,
		WorkDir:        s.WorkDir,
		State:          s.state,
		StateReason:    s.stateReason,
		PermissionMode: s.permissionMode,
		CreatedAt:      s.CreatedAt,
	}
}
