package internal

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnregisteredPhase = errors.New("unregistered phase")
	ErrDuplicatePhase    = errors.New("duplicate phase")
	ErrInvariant         = errors.New("scheduler invariant violated")
	ErrConcurrentRender  = errors.New("render is driven by another goroutine")
	ErrStalled           = errors.New("render did not converge")
	ErrEffectOutstanding = errors.New("effect is still outstanding")
	ErrDetachedNode      = errors.New("node is not attached to a driver")
)

// ConfigError reports a defect in phase logic or scheduler usage. It aborts
// the current render.
type ConfigError struct {
	Node  string
	Phase Phase
	Err   error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Node != "" && e.Phase != "":
		return fmt.Sprintf("%s [%s]: %v", e.Node, e.Phase, e.Err)
	case e.Node != "":
		return fmt.Sprintf("%s: %v", e.Node, e.Err)
	case e.Phase != "":
		return fmt.Sprintf("[%s]: %v", e.Phase, e.Err)
	}
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(node *Node, phase Phase, sentinel error, format string, args ...any) error {
	return &ConfigError{
		Node:  node.DisplayName(),
		Phase: phase,
		Err:   errors.Wrapf(sentinel, format, args...),
	}
}

// StallError is returned by RenderUntilSettled when the tree keeps changing
// without reaching a fixed point.
type StallError struct {
	Sweeps int
	Reason string

	// the (node, phase) pairs that ran in the last sweep
	Running []string
}

func (e *StallError) Error() string {
	msg := fmt.Sprintf("%v after %d sweeps: %s", ErrStalled, e.Sweeps, e.Reason)
	if len(e.Running) > 0 {
		msg += " (" + strings.Join(e.Running, ", ") + ")"
	}
	return msg
}

func (e *StallError) Unwrap() error { return ErrStalled }
