// Package locate resolves installed agent binaries on disk. Agents are
// shipped as standalone executables under well-known directories; the
// locator walks those directories in priority order and reports exactly
// where it looked when nothing is found.
package locate

import "fmt"

// AgentType describes one supported agent binary.
type AgentType struct {
	// ID is the stable identifier used by spawn requests.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Description is shown alongside the name in agent listings.
	Description string `json:"description,omitempty"`

	// Binary is the executable base name, without platform suffix.
	Binary string `json:"binary"`

	// LegacyBinaries are older base names still checked for installs that
	// predate a rename.
	LegacyBinaries []string `json:"-"`

	// SupportsSandbox reports whether the binary accepts a --sandbox flag.
	SupportsSandbox bool `json:"supportsSandbox"`
}

// Catalog returns the supported agent types, in display order.
func Catalog() []AgentType {
	return []AgentType{
		{
			ID:          "claude-code",
			Name:        "Claude Code",
			Description: "Anthropic's coding agent",
			Binary:      "claude-code",
			// Older installers shipped the binary as plain "claude".
			LegacyBinaries:  []string{"claude"},
			SupportsSandbox: true,
		},
		{
			ID:              "opencode",
			Name:            "OpenCode",
			Description:     "Open-source coding agent",
			Binary:          "opencode",
			SupportsSandbox: false,
		},
	}
}

// TypeByID returns the catalog entry for id.
func TypeByID(id string) (AgentType, error) {
	for _, t := range Catalog() {
		if t.ID == id {
			return t, nil
		}
	}
	return AgentType{}, fmt.Errorf("unknown agent type %q", id)
}
