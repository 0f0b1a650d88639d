package internal

// ActionQueue holds work that phase logic asks for while it runs but that can
// only happen once the phase is complete (re-dirtying itself, notifying
// other nodes).
type ActionQueue struct {
	actions []func() error
}

func NewActionQueue() *ActionQueue {
	return &ActionQueue{
		actions: make([]func() error, 0),
	}
}

func (q *ActionQueue) Enqueue(fn func() error) {
	q.actions = append(q.actions, fn)
}

func (q *ActionQueue) Len() int { return len(q.actions) }

// Run executes the queued actions in order and clears the queue. Actions
// queued while running are executed in the same call.
func (q *ActionQueue) Run() error {
	for i := 0; i < len(q.actions); i++ {
		if err := q.actions[i](); err != nil {
			q.Clear()
			return err
		}
	}
	q.Clear()
	return nil
}

func (q *ActionQueue) Clear() {
	clear(q.actions)
	q.actions = q.actions[:0]
}
