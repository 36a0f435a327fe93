package locate

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/config"
	"github.com/agentdeck/agentdeck/internal/common/logger"
)

// Locator finds agent binaries in the candidate install directories.
type Locator struct {
	dirs   []string
	logger *logger.Logger
}

// NewLocator builds a locator from configuration. Unset directories fall
// back to the defaults: the bundled dir next to the executable, the user
// profile dir, and the development tree, checked in that order.
func NewLocator(cfg config.AgentsConfig, log *logger.Logger) *Locator {
	dirs := make([]string, 0, 3)

	bundled := cfg.BundledDir
	if bundled == "" {
		if exe, err := os.Executable(); err == nil {
			bundled = filepath.Join(filepath.Dir(exe), "agents")
		}
	}
	if bundled != "" {
		dirs = append(dirs, bundled)
	}

	user := cfg.UserDir
	if user == "" {
		if home, err := os.UserHomeDir(); err == nil {
			user = filepath.Join(home, ".agentdeck", "agents")
		}
	}
	if user != "" {
		dirs = append(dirs, user)
	}

	dev := cfg.DevDir
	if dev == "" {
		dev = filepath.Join("build", "agents")
	}
	dirs = append(dirs, dev)

	return &Locator{
		dirs:   dirs,
		logger: log.WithFields(zap.String("component", "agent-locator")),
	}
}

// NewLocatorWithDirs builds a locator over an explicit directory list.
func NewLocatorWithDirs(dirs []string, log *logger.Logger) *Locator {
	return &Locator{
		dirs:   dirs,
		logger: log.WithFields(zap.String("component", "agent-locator")),
	}
}

// NotFoundError reports a failed lookup, listing every path that was tried
// so an operator can see at a glance where to install the binary.
type NotFoundError struct {
	AgentID string
	Tried   []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agent %q not found; tried: %s", e.AgentID, strings.Join(e.Tried, ", "))
}

// Locate returns the path of the agent's executable. The current binary
// name is checked across every candidate directory before the search
// restarts under a legacy name, so a stale legacy install can never shadow
// a current one.
func (l *Locator) Locate(agentID string) (string, error) {
	agentType, err := TypeByID(agentID)
	if err != nil {
		return "", err
	}

	names := append([]string{agentType.Binary}, agentType.LegacyBinaries...)

	var tried []string
	for _, name := range names {
		for _, dir := range l.dirs {
			candidate := filepath.Join(dir, binaryName(name))
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				l.logger.Debug("located agent binary",
					zap.String("agent", agentID),
					zap.String("path", candidate))
				return candidate, nil
			}
			tried = append(tried, candidate)
		}
	}

	return "", &NotFoundError{AgentID: agentID, Tried: tried}
}

// Available reports whether the agent's binary is installed.
func (l *Locator) Available(agentID string) bool {
	_, err := l.Locate(agentID)
	return err == nil
}

// Status describes the install state of one agent type.
type Status struct {
	AgentType
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
}

// Check resolves the install state of a single agent type.
func (l *Locator) Check(agentID string) (Status, error) {
	agentType, err := TypeByID(agentID)
	if err != nil {
		return Status{}, err
	}

	status := Status{AgentType: agentType}
	if path, err := l.Locate(agentID); err == nil {
		status.Available = true
		status.Path = path
	}
	return status, nil
}

// List resolves the install state of every catalog entry.
func (l *Locator) List() []Status {
	catalog := Catalog()
	statuses := make([]Status, 0, len(catalog))
	for _, agentType := range catalog {
		status, _ := l.Check(agentType.ID)
		statuses = append(statuses, status)
	}
	return statuses
}

// binaryName appends the platform executable suffix.
func binaryName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
