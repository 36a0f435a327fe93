package acpclient

import (
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/internal/common/constants"
)

// PermissionDecision is a human's answer to a permission request.
type PermissionDecision struct {
	OptionID  string
	Cancelled bool
}

// Decisions tracks the human decisions an agent is waiting on: permission
// requests and diff proposals. Each entry resolves exactly once; resolution
// removes the entry under the lock, so a duplicate response or a racing
// timeout finds nothing to resolve.
type Decisions struct {
	mu          sync.Mutex
	permissions map[string]chan PermissionDecision
	diffs       map[string]chan bool
	timeout     time.Duration
	closed      chan struct{}
	closeOnce   sync.Once
}

// NewDecisions creates an empty decision store with the default timeout.
func NewDecisions() *Decisions {
	return NewDecisionsWithTimeout(constants.DecisionTimeout)
}

// NewDecisionsWithTimeout creates a decision store with an explicit timeout.
func NewDecisionsWithTimeout(timeout time.Duration) *Decisions {
	return &Decisions{
		permissions: make(map[string]chan PermissionDecision),
		diffs:       make(map[string]chan bool),
		timeout:     timeout,
		closed:      make(chan struct{}),
	}
}

// AwaitPermission registers a pending permission request and blocks until a
// human resolves it, the timeout fires, or the store closes. Timeout and
// close both come back as a cancelled decision.
func (d *Decisions) AwaitPermission(requestID string) PermissionDecision {
	ch := make(chan PermissionDecision, 1)
	d.mu.Lock()
	d.permissions[requestID] = ch
	d.mu.Unlock()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case decision := <-ch:
		return decision
	case <-timer.C:
	case <-d.closed:
	}

	// Remove our entry; if a resolver already took it, its decision wins.
	if !d.removePermission(requestID) {
		return <-ch
	}
	return PermissionDecision{Cancelled: true}
}

// ResolvePermission delivers a decision. Returns false when the request is
// unknown, already resolved, or timed out.
func (d *Decisions) ResolvePermission(requestID string, decision PermissionDecision) bool {
	d.mu.Lock()
	ch, ok := d.permissions[requestID]
	if ok {
		delete(d.permissions, requestID)
	}
	d.mu.Unlock()

	if !ok {
		return false
	}
	ch <- decision
	return true
}

// AwaitDiff registers a pending diff proposal and blocks until a human
// accepts or rejects it. Timeout and close both reject.
func (d *Decisions) AwaitDiff(proposalID string) bool {
	ch := make(chan bool, 1)
	d.mu.Lock()
	d.diffs[proposalID] = ch
	d.mu.Unlock()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case accepted := <-ch:
		return accepted
	case <-timer.C:
	case <-d.closed:
	}

	if !d.removeDiff(proposalID) {
		return <-ch
	}
	return false
}

// ResolveDiff delivers a diff decision. Returns false when the proposal is
// unknown, already resolved, or timed out.
func (d *Decisions) ResolveDiff(proposalID string, accepted bool) bool {
	d.mu.Lock()
	ch, ok := d.diffs[proposalID]
	if ok {
		delete(d.diffs, proposalID)
	}
	d.mu.Unlock()

	if !ok {
		return false
	}
	ch <- accepted
	return true
}

// Close rejects every pending decision and all future waits. Called when
// the session terminates or its process exits.
func (d *Decisions) Close() {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
}

// PendingCounts reports how many decisions are outstanding.
func (d *Decisions) PendingCounts() (permissions, diffs int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.permissions), len(d.diffs)
}

func (d *Decisions) removePermission(requestID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.permissions[requestID]; !ok {
		return false
	}
	delete(d.permissions, requestID)
	return true
}

func (d *Decisions) removeDiff(proposalID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.diffs[proposalID]; !ok {
		return false
	}
	delete(d.diffs, proposalID)
	return true
}
