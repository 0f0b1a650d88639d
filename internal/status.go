package internal

// Status is the state of one (node, phase) pair.
type Status uint8

const (
	StatusPending  Status = iota // never ran
	StatusDirty                  // ran, then invalidated
	StatusRunning                // phase logic is executing
	StatusComplete               // output is current
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDirty:
		return "dirty"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	}
	return "unknown"
}

// runnable reports whether the status asks for the phase to run.
func (s Status) runnable() bool {
	return s == StatusPending || s == StatusDirty
}
