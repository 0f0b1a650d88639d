package internal

// Tracker remembers which (node, phase) is executing so that calls made from
// phase logic can be attributed and checked.
type Tracker struct {
	current *PhaseContext
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) RunWithPhase(ctx *PhaseContext, fn func() error) error {
	prev := t.current
	t.current = ctx
	defer func() { t.current = prev }()

	return capture(fn)
}

// Current returns the running phase, or nil outside phase logic.
func (t *Tracker) Current() *PhaseContext {
	return t.current
}

func (t *Tracker) Running() bool {
	return t.current != nil
}
