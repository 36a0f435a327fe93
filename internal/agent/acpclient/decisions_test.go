package acpclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionsResolvePermission(t *testing.T) {
	d := NewDecisions()

	var wg sync.WaitGroup
	wg.Add(1)
	var decision PermissionDecision
	go func() {
		defer wg.Done()
		decision = d.AwaitPermission("req-1")
	}()

	// Wait until the request is registered before resolving.
	require.Eventually(t, func() bool {
		perms, _ := d.PendingCounts()
		return perms == 1
	}, time.Second, 5*time.Millisecond)

	assert.True(t, d.ResolvePermission("req-1", PermissionDecision{OptionID: "allow_once"}))
	wg.Wait()

	assert.False(t, decision.Cancelled)
	assert.Equal(t, "allow_once", decision.OptionID)

	perms, diffs := d.PendingCounts()
	assert.Zero(t, perms)
	assert.Zero(t, diffs)
}

func TestDecisionsResolveOnlyOnce(t *testing.T) {
	d := NewDecisions()

	done := make(chan PermissionDecision, 1)
	go func() {
		done <- d.AwaitPermission("req-1")
	}()

	require.Eventually(t, func() bool {
		perms, _ := d.PendingCounts()
		return perms == 1
	}, time.Second, 5*time.Millisecond)

	assert.True(t, d.ResolvePermission("req-1", PermissionDecision{OptionID: "allow_once"}))
	assert.False(t, d.ResolvePermission("req-1", PermissionDecision{OptionID: "reject_once"}))

	decision := <-done
	assert.Equal(t, "allow_once", decision.OptionID)
}

func TestDecisionsUnknownRequest(t *testing.T) {
	d := NewDecisions()
	assert.False(t, d.ResolvePermission("nope", PermissionDecision{}))
	assert.False(t, d.ResolveDiff("nope", true))
}

func TestDecisionsPermissionTimeout(t *testing.T) {
	d := NewDecisionsWithTimeout(20 * time.Millisecond)

	decision := d.AwaitPermission("req-1")
	assert.True(t, decision.Cancelled)

	// The timed-out entry must be gone; a late response finds nothing.
	assert.False(t, d.ResolvePermission("req-1", PermissionDecision{OptionID: "allow_once"}))
	perms, _ := d.PendingCounts()
	assert.Zero(t, perms)
}

func TestDecisionsDiffAcceptAndReject(t *testing.T) {
	d := NewDecisions()

	accepted := make(chan bool, 1)
	go func() {
		accepted <- d.AwaitDiff("prop-1")
	}()
	require.Eventually(t, func() bool {
		_, diffs := d.PendingCounts()
		return diffs == 1
	}, time.Second, 5*time.Millisecond)

	assert.True(t, d.ResolveDiff("prop-1", true))
	assert.True(t, <-accepted)

	go func() {
		accepted <- d.AwaitDiff("prop-2")
	}()
	require.Eventually(t, func() bool {
		_, diffs := d.PendingCounts()
		return diffs == 1
	}, time.Second, 5*time.Millisecond)

	assert.True(t, d.ResolveDiff("prop-2", false))
	assert.False(t, <-accepted)
}

func TestDecisionsDiffTimeoutRejects(t *testing.T) {
	d := NewDecisionsWithTimeout(20 * time.Millisecond)
	assert.False(t, d.AwaitDiff("prop-1"))
}

func TestDecisionsCloseRejectsAllPending(t *testing.T) {
	d := NewDecisions()

	results := make(chan PermissionDecision, 2)
	diffResults := make(chan bool, 1)
	go func() { results <- d.AwaitPermission("req-1") }()
	go func() { results <- d.AwaitPermission("req-2") }()
	go func() { diffResults <- d.AwaitDiff("prop-1") }()

	require.Eventually(t, func() bool {
		perms, diffs := d.PendingCounts()
		return perms == 2 && diffs == 1
	}, time.Second, 5*time.Millisecond)

	d.Close()

	for i := 0; i < 2; i++ {
		decision := <-results
		assert.True(t, decision.Cancelled)
	}
	assert.False(t, <-diffResults)

	// Waits after close reject immediately.
	assert.True(t, d.AwaitPermission("req-3").Cancelled)
}
