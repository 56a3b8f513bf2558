package agent

import (
	"fmt"
	"time"

	"github.com/dusseau-dev/mission-control/pkg/coordination"
)

// Broadcast is the recipient value that addresses the whole squad
const Broadcast = coordination.Broadcast

// Member is one seat on the roster
type Member struct {
	Name    string
	Title   string
	Stagger time.Duration // offset from each scheduler tick
}

// Roster is the fixed squad, in wake order
var Roster = []Member{
	{Name: "jarvis", Title: "Squad Lead", Stagger: 0},
	{Name: "shuri", Title: "Product Analyst", Stagger: 20 * time.Second},
	{Name: "fury", Title: "Customer Researcher", Stagger: 40 * time.Second},
	{Name: "vision", Title: "SEO Analyst", Stagger: 60 * time.Second},
	{Name: "loki", Title: "Content Writer", Stagger: 80 * time.Second},
	{Name: "quill", Title: "Social Media Manager", Stagger: 100 * time.Second},
	{Name: "wanda", Title: "Designer", Stagger: 120 * time.Second},
	{Name: "pepper", Title: "Email Marketing", Stagger: 140 * time.Second},
	{Name: "friday", Title: "Developer", Stagger: 160 * time.Second},
	{Name: "wong", Title: "Documentation", Stagger: 180 * time.Second},
}

// LookupMember returns the roster seat for name
func LookupMember(name string) (Member, bool) {
	for _, m := range Roster {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// IsRosterMember reports whether name is on the roster
func IsRosterMember(name string) bool {
	_, ok := LookupMember(name)
	return ok
}

// RosterNames returns every roster name in wake order
func RosterNames() []string {
	names := make([]string, len(Roster))
	for i, m := range Roster {
		names[i] = m.Name
	}
	return names
}

// StaggerOffsets maps each roster name to its wake offset
func StaggerOffsets() map[string]time.Duration {
	out := make(map[string]time.Duration, len(Roster))
	for _, m := range Roster {
		out[m.Name] = m.Stagger
	}
	return out
}

// SessionKey derives the stable key the coordination store correlates an
// agent's activity by.
func SessionKey(name string) string {
	return fmt.Sprintf("agent:%s:main", name)
}
