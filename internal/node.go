package internal

import (
	"maps"

	"github.com/google/uuid"
)

// PhaseLogic is the capability every node type implements: it is invoked once
// per runnable phase. Returning an error aborts the render; problems with the
// user's description belong in diagnostics instead.
type PhaseLogic interface {
	RunPhase(ctx *PhaseContext) error
}

// PhaseFunc adapts a single function to PhaseLogic.
type PhaseFunc func(ctx *PhaseContext) error

func (f PhaseFunc) RunPhase(ctx *PhaseContext) error { return f(ctx) }

// PhaseMap dispatches on the phase identifier. Phases without an entry
// complete without doing anything.
type PhaseMap map[Phase]PhaseFunc

func (m PhaseMap) RunPhase(ctx *PhaseContext) error {
	if fn, ok := m[ctx.Phase()]; ok && fn != nil {
		return fn(ctx)
	}
	return nil
}

type Node struct {
	id    uuid.UUID
	kind  string
	name  string
	props map[string]any
	logic PhaseLogic

	parent   *Node
	children []*Node
	depth    int

	// set once the node joins a driver's tree
	driver *Driver
	table  *PhaseTable

	effects     map[string]*Effect
	outstanding int
	diagnostics []Diagnostic
}

func NewNode(kind, name string, logic PhaseLogic) *Node {
	return &Node{
		id:      uuid.New(),
		kind:    kind,
		name:    name,
		props:   make(map[string]any),
		logic:   logic,
		effects: make(map[string]*Effect),
	}
}

func (n *Node) ID() uuid.UUID { return n.id }

func (n *Node) Kind() string { return n.kind }

func (n *Node) Name() string { return n.name }

// DisplayName is the label used in events, logs and errors, e.g. "resistor(R1)".
func (n *Node) DisplayName() string {
	if n == nil {
		return ""
	}
	if n.name == "" {
		return n.kind
	}
	return n.kind + "(" + n.name + ")"
}

func (n *Node) Logic() PhaseLogic { return n.logic }

func (n *Node) Driver() *Driver { return n.driver }

func (n *Node) Get(key string) (any, bool) {
	v, ok := n.props[key]
	return v, ok
}

func (n *Node) Set(key string, value any) {
	n.props[key] = value
}

func (n *Node) Delete(key string) {
	delete(n.props, key)
}

// Props returns a copy of the node's values.
func (n *Node) Props() map[string]any {
	return maps.Clone(n.props)
}

// Status returns the status of phase p. Nodes that have not joined a driver
// report every phase as pending.
func (n *Node) Status(p Phase) Status {
	if n.driver == nil {
		return StatusPending
	}
	return n.table.Status(n.driver.registry.MustIndex(p))
}

func (n *Node) Timing(p Phase) Timing {
	if n.driver == nil {
		return Timing{}
	}
	return n.table.Timing(n.driver.registry.MustIndex(p))
}

// Complete reports whether every phase of the node is complete.
func (n *Node) Complete() bool {
	return n.table != nil && n.table.complete()
}

// HasIncompleteEffects is true while an effect registered on the node has not
// resolved.
func (n *Node) HasIncompleteEffects() bool {
	return n.outstanding > 0
}

func (n *Node) Effect(name string) *Effect {
	return n.effects[name]
}

func (n *Node) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(n.diagnostics))
	copy(out, n.diagnostics)
	return out
}
