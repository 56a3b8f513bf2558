package agent

import (
	"fmt"
	"os"
	"strings"

	"github.com/dusseau-dev/mission-control/pkg/guardrail"
)

// Role file locations under the agents directory
const (
	PersonaFile = "SOUL.md"
	ManualFile  = "AGENTS.md"
)

// maxRoleBytes bounds how much of a role file is read into the prompt
const maxRoleBytes = 64 << 10

// RoleSource says where a piece of role text came from
type RoleSource int

const (
	// RoleLoaded means the text was read from disk
	RoleLoaded RoleSource = iota
	// RoleFellBack means loading failed and a built-in default is in use
	RoleFellBack
)

// RoleText is role configuration text tagged with its origin
type RoleText struct {
	Text   string
	Source RoleSource
	Reason string // why loading fell back, empty when loaded
}

// Loaded reports whether the text came from disk
func (r RoleText) Loaded() bool {
	return r.Source == RoleLoaded
}

func (r RoleText) String() string {
	if r.Loaded() {
		return "loaded"
	}
	return "fell back: " + r.Reason
}

// loadRoleText reads path through containment. Any failure yields fallback
// tagged with the reason.
func loadRoleText(guard *guardrail.Guard, actor, path, fallback string) RoleText {
	fellBack := func(reason string) RoleText {
		return RoleText{Text: fallback, Source: RoleFellBack, Reason: reason}
	}

	if err := guard.CheckPath(actor, path); err != nil {
		return fellBack(err.Error())
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fellBack("file not found")
		}
		return fellBack(err.Error())
	}
	if info.IsDir() {
		return fellBack("path is a directory")
	}
	if info.Size() > maxRoleBytes {
		return fellBack(fmt.Sprintf("file exceeds %d bytes", maxRoleBytes))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fellBack(err.Error())
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fellBack("file is empty")
	}
	if guard.ContainsSecret(text) {
		guard.Security(actor, "secret_in_role_file", path)
		return fellBack("file contains a secret")
	}
	return RoleText{Text: text, Source: RoleLoaded}
}

func defaultPersona(m Member) string {
	return fmt.Sprintf("You are %s, the %s of the squad. Be concise, practical, and collaborative.",
		displayName(m.Name), m.Title)
}

// defaultManual is empty: a missing manual adds nothing to the prompt
const defaultManual = ""

func displayName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
