package session

import "strings"

// authFailureMarkers are matched case-insensitively against an agent's
// stderr to tell a login problem apart from a generic crash.
var authFailureMarkers = []string{
	"invalid api key",
	"authentication required",
	"auth required",
	"authrequired",
	"please run /login",
	"not logged in",
	"401 unauthorized",
}

// classifyAuthFailure inspects stderr lines for a sign the agent refused to
// start because it is not authenticated. When one matches, it returns a
// message with agent-specific remediation.
func classifyAuthFailure(agentID string, lines []string) (string, bool) {
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, marker := range authFailureMarkers {
			if strings.Contains(lower, marker) {
				return agentID + " is not authenticated: " + line + ". " + remediationFor(agentID), true
			}
		}
	}
	return "", false
}

func remediationFor(agentID string) string {
	switch agentID {
	case "claude-code":
		return "Run the agent binary with /login in a terminal to authenticate, then spawn the session again."
	case "opencode":
		return "Run 'opencode auth login' in a terminal to authenticate, then spawn the session again."
	default:
		return "Authenticate the agent in a terminal, then spawn the session again."
	}
}
