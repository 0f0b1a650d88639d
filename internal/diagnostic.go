package internal

import (
	"slices"
	"time"
)

type Severity uint8

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is a user-facing problem attached to a node. It never aborts a
// render.
type Diagnostic struct {
	Severity Severity
	Phase    Phase
	Effect   string // set when raised by an async effect
	Message  string
	Time     time.Time
}

func (n *Node) addDiagnostic(d Diagnostic) {
	n.diagnostics = append(n.diagnostics, d)
}

// a phase re-run replaces the diagnostics of its previous run
func (n *Node) clearPhaseDiagnostics(phase Phase) {
	n.diagnostics = slices.DeleteFunc(n.diagnostics, func(d Diagnostic) bool {
		return d.Phase == phase && d.Effect == ""
	})
}

func (n *Node) clearEffectDiagnostics(effect string) {
	n.diagnostics = slices.DeleteFunc(n.diagnostics, func(d Diagnostic) bool {
		return d.Effect == effect
	})
}
