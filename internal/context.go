package internal

import (
	"fmt"

	"github.com/rs/zerolog"
)

// PhaseContext is handed to phase logic for the duration of one phase run.
type PhaseContext struct {
	driver *Driver
	node   *Node
	phase  Phase
	index  int
	sweep  int

	retry bool
}

func (c *PhaseContext) Node() *Node { return c.node }

func (c *PhaseContext) Phase() Phase { return c.phase }

// Sweep is the number of the sweep running the phase; forced runs report the
// last sweep.
func (c *PhaseContext) Sweep() int { return c.sweep }

func (c *PhaseContext) Driver() *Driver { return c.driver }

func (c *PhaseContext) Registry() *Registry { return c.driver.registry }

func (c *PhaseContext) Logger() zerolog.Logger {
	return c.driver.logger.With().
		Str("node", c.node.DisplayName()).
		Str("phase", string(c.phase)).
		Logger()
}

// AddChild attaches child to the running node. The child's phases run later
// in the same sweep.
func (c *PhaseContext) AddChild(child *Node) *Node {
	return c.node.AddChild(child)
}

// MarkDirty invalidates phase (and every later phase) of target. Invalidating
// a phase of the running node at or before the running phase is rejected.
func (c *PhaseContext) MarkDirty(target *Node, phase Phase) error {
	return c.driver.markDirty(target, phase)
}

// Retry re-dirties the running phase once it completes, so that it runs
// again in the next sweep. Use it to wait for another node's output.
func (c *PhaseContext) Retry() {
	c.retry = true
}

// After queues fn to run once the phase has completed.
func (c *PhaseContext) After(fn func() error) {
	c.driver.after.Enqueue(fn)
}

type effectOptions struct {
	rerun       bool
	invalidates Phase
}

type EffectOption func(*effectOptions)

// RerunOnResolve re-dirties the registering phase when the effect resolves,
// so the phase runs again to consume the result.
func RerunOnResolve() EffectOption {
	return func(o *effectOptions) { o.rerun = true }
}

// InvalidateOnResolve marks phase dirty on the owning node when the effect
// resolves.
func InvalidateOnResolve(phase Phase) EffectOption {
	return func(o *effectOptions) { o.invalidates = phase }
}

// RegisterEffect starts fn in the background and returns without waiting.
func (c *PhaseContext) RegisterEffect(name string, fn EffectFunc, opts ...EffectOption) (*Effect, error) {
	return c.driver.registerEffect(c.node, c.phase, c.sweep, name, fn, opts...)
}

// Effect returns the effect registered under name on the running node.
func (c *PhaseContext) Effect(name string) *Effect {
	return c.node.effects[name]
}

// TakeEffect returns a resolved effect and forgets it, so that the next run
// of the phase registers a fresh one.
func (c *PhaseContext) TakeEffect(name string) (*Effect, bool) {
	return c.driver.effects.Forget(c.node, name)
}

func (c *PhaseContext) AddDiagnostic(severity Severity, format string, args ...any) {
	c.node.addDiagnostic(Diagnostic{
		Severity: severity,
		Phase:    c.phase,
		Message:  fmt.Sprintf(format, args...),
		Time:     c.driver.now(),
	})
}

func (c *PhaseContext) Warnf(format string, args ...any) {
	c.AddDiagnostic(SeverityWarning, format, args...)
}

func (c *PhaseContext) Errorf(format string, args ...any) {
	c.AddDiagnostic(SeverityError, format, args...)
}
