package internal

import (
	"strings"

	"github.com/pkg/errors"
)

// Phase identifies one stage of computation applied to every node.
type Phase string

// Registry is the totally ordered, immutable list of phases shared by every
// node of a render.
type Registry struct {
	phases []Phase
	index  map[Phase]int
}

func NewRegistry(phases ...Phase) (*Registry, error) {
	r := &Registry{
		phases: make([]Phase, 0, len(phases)),
		index:  make(map[Phase]int, len(phases)),
	}

	for _, p := range phases {
		if strings.TrimSpace(string(p)) == "" {
			return nil, &ConfigError{Err: errors.Wrap(ErrUnregisteredPhase, "empty phase identifier")}
		}
		if _, ok := r.index[p]; ok {
			return nil, &ConfigError{Phase: p, Err: errors.Wrapf(ErrDuplicatePhase, "phase %q registered twice", p)}
		}

		r.index[p] = len(r.phases)
		r.phases = append(r.phases, p)
	}

	if len(r.phases) == 0 {
		return nil, &ConfigError{Err: errors.Wrap(ErrUnregisteredPhase, "registry needs at least one phase")}
	}

	return r, nil
}

func (r *Registry) Len() int { return len(r.phases) }

// Phases returns the phases in execution order.
func (r *Registry) Phases() []Phase {
	out := make([]Phase, len(r.phases))
	copy(out, r.phases)
	return out
}

func (r *Registry) At(i int) Phase { return r.phases[i] }

func (r *Registry) Index(p Phase) (int, bool) {
	i, ok := r.index[p]
	return i, ok
}

// Lookup is Index with a configuration error for unknown phases.
func (r *Registry) Lookup(p Phase) (int, error) {
	i, ok := r.index[p]
	if !ok {
		return 0, &ConfigError{Phase: p, Err: errors.Wrapf(ErrUnregisteredPhase, "phase %q", p)}
	}
	return i, nil
}

// Before reports whether a runs before b. Unknown phases are a programming
// error and panic with a *ConfigError.
func (r *Registry) Before(a, b Phase) bool {
	return r.MustIndex(a) < r.MustIndex(b)
}

// MustIndex is Lookup for callers that hold a known phase.
func (r *Registry) MustIndex(p Phase) int {
	i, err := r.Lookup(p)
	if err != nil {
		panic(err)
	}
	return i
}
