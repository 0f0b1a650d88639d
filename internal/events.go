package internal

import (
	"time"

	"github.com/rs/zerolog"
)

// EventKind classifies lifecycle events.
type EventKind uint8

const (
	EventAny              EventKind = iota // subscription wildcard, never emitted
	EventPhaseStart                        // a phase begins on a node
	EventPhaseEnd                          // the matching end, with duration and error
	EventSubtreePhase                      // first start of a phase anywhere under the rendered root, once per sweep
	EventSweepStart                        // a sweep with work begins
	EventSweepEnd                          // that sweep is done
	EventEffectRegistered                  // a phase registered a background effect
	EventEffectResolved                    // an effect resolved, successfully or not
	EventSettled                           // the tree reached its fixed point
	EventStalled                           // convergence was abandoned
)

func (k EventKind) String() string {
	switch k {
	case EventAny:
		return "any"
	case EventPhaseStart:
		return "phase:start"
	case EventPhaseEnd:
		return "phase:end"
	case EventSubtreePhase:
		return "subtree:phase"
	case EventSweepStart:
		return "sweep:start"
	case EventSweepEnd:
		return "sweep:end"
	case EventEffectRegistered:
		return "effect:registered"
	case EventEffectResolved:
		return "effect:resolved"
	case EventSettled:
		return "settled"
	case EventStalled:
		return "stalled"
	}
	return "unknown"
}

// Event carries data about one lifecycle event.
type Event struct {
	Kind   EventKind
	Phase  Phase
	Node   *Node
	Sweep  int
	Time   time.Time
	Effect string

	Duration    time.Duration // PhaseEnd, EffectResolved
	Transitions int           // SweepEnd
	Err         error         // PhaseEnd, EffectResolved, Stalled
}

func (e Event) NodeName() string {
	return e.Node.DisplayName()
}

// Listener receives events synchronously, on the driving goroutine.
type Listener func(Event)

type subscription struct {
	id   int
	kind EventKind
	fn   Listener
}

// EventBus is a per-driver listener table. Listeners run in registration
// order; a panicking listener is logged and skipped.
type EventBus struct {
	nextID int
	subs   []subscription

	logger zerolog.Logger
}

func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// On subscribes fn to kind (EventAny for everything) and returns the
// unsubscribe function.
func (b *EventBus) On(kind EventKind, fn Listener) func() {
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, fn: fn})

	return func() {
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

func (b *EventBus) Len() int { return len(b.subs) }

func (b *EventBus) Emit(e Event) {
	// listeners may (un)subscribe while we iterate
	subs := b.subs
	for _, s := range subs {
		if s.kind != EventAny && s.kind != e.Kind {
			continue
		}
		b.deliver(s, e)
	}
}

func (b *EventBus) deliver(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event", e.Kind.String()).
				Str("node", e.NodeName()).
				Str("phase", string(e.Phase)).
				Interface("panic", r).
				Msg("event listener panicked")
		}
	}()

	s.fn(e)
}
