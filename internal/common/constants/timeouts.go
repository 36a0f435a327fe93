// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for various operations.
const (
	// DecisionTimeout is the maximum time a permission request or file-write
	// diff proposal waits for a human decision before auto-rejecting.
	DecisionTimeout = 5 * time.Minute

	// HandshakeTimeout is the maximum time to wait for an agent's
	// initialize and session/new calls during spawn.
	HandshakeTimeout = 30 * time.Second

	// RequestTimeout is the maximum time a correlated call over the
	// external WebSocket transport waits for its response.
	RequestTimeout = 30 * time.Second
)
