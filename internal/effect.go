package internal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// EffectFunc is a background operation. It runs on its own goroutine and must
// not touch node state; whatever it returns is handed back to the driving
// goroutine once the effect resolves.
type EffectFunc func(ctx context.Context) (any, error)

// WithTimeout bounds fn. When the deadline passes first the effect resolves
// with the context error and the late result is dropped.
func WithTimeout(d time.Duration, fn EffectFunc) EffectFunc {
	return func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type outcome struct {
			value any
			err   error
		}
		done := make(chan outcome, 1)

		go func() {
			var o outcome
			o.err = capture(func() error {
				var err error
				o.value, err = fn(ctx)
				return err
			})
			done <- o
		}()

		select {
		case o := <-done:
			return o.value, o.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Effect is the handle of one registered background operation, identified by
// its owning node and name.
type Effect struct {
	node        *Node
	name        string
	phase       Phase
	invalidates Phase
	sweep       int

	registered time.Time
	resolvedAt time.Time

	resolved bool
	result   any
	err      error
}

func (e *Effect) Name() string { return e.name }

func (e *Effect) Node() *Node { return e.node }

// Phase is the phase that registered the effect.
func (e *Effect) Phase() Phase { return e.phase }

func (e *Effect) Resolved() bool { return e.resolved }

// Result is only meaningful once the effect has resolved.
func (e *Effect) Result() (any, error) { return e.result, e.err }

func (e *Effect) Err() error { return e.err }

func (e *Effect) Duration() time.Duration {
	if !e.resolved {
		return 0
	}
	return e.resolvedAt.Sub(e.registered)
}

type resolution struct {
	effect *Effect
	result any
	err    error
}

// EffectTracker runs effects in the background and applies their resolution
// on the driving goroutine, at sweep boundaries. Registration and resolution
// times come from now, read on the driving goroutine only.
type EffectTracker struct {
	ctx   context.Context
	group errgroup.Group
	now   func() time.Time

	results     chan resolution
	outstanding int
}

func NewEffectTracker(ctx context.Context, buffer int, now func() time.Time) *EffectTracker {
	if ctx == nil {
		ctx = context.Background()
	}
	if now == nil {
		now = time.Now
	}
	if buffer < 1 {
		buffer = 1
	}

	return &EffectTracker{
		ctx:     ctx,
		now:     now,
		results: make(chan resolution, buffer),
	}
}

// Register starts fn and returns immediately. Registering a name that is
// still outstanding on the node is a configuration error; a resolved effect
// with the same name is replaced.
func (t *EffectTracker) Register(node *Node, name string, phase, invalidates Phase, sweep int, fn EffectFunc) (*Effect, error) {
	if prev, ok := node.effects[name]; ok && !prev.resolved {
		return nil, configErrorf(node, phase, ErrEffectOutstanding, "effect %q", name)
	}
	node.clearEffectDiagnostics(name)

	e := &Effect{
		node:        node,
		name:        name,
		phase:       phase,
		invalidates: invalidates,
		sweep:       sweep,
		registered:  t.now(),
	}

	node.effects[name] = e
	node.outstanding++
	t.outstanding++

	ctx := t.ctx
	t.group.Go(func() error {
		var result any
		err := capture(func() error {
			var err error
			result, err = fn(ctx)
			return err
		})

		t.results <- resolution{effect: e, result: result, err: err}
		return nil
	})

	return e, nil
}

// Forget drops a resolved effect from its node so the name can be registered
// again from scratch.
func (t *EffectTracker) Forget(node *Node, name string) (*Effect, bool) {
	e, ok := node.effects[name]
	if !ok || !e.resolved {
		return nil, false
	}
	delete(node.effects, name)
	return e, true
}

func (t *EffectTracker) resolve(r resolution) *Effect {
	e := r.effect
	if e.resolved {
		return nil
	}

	e.resolved = true
	e.result = r.result
	e.err = r.err
	e.resolvedAt = t.now()

	e.node.outstanding--
	t.outstanding--

	// a failed effect is still resolved: convergence must not wait on it
	if r.err != nil {
		e.node.addDiagnostic(Diagnostic{
			Severity: SeverityError,
			Phase:    e.phase,
			Effect:   e.name,
			Message:  fmt.Sprintf("effect %s failed: %v", e.name, r.err),
			Time:     e.resolvedAt,
		})
	}

	return e
}

// Drain applies every resolution that is already available, without blocking.
func (t *EffectTracker) Drain(apply func(*Effect)) int {
	n := 0
	for {
		select {
		case r := <-t.results:
			if e := t.resolve(r); e != nil {
				apply(e)
				n++
			}
		default:
			return n
		}
	}
}

// Await blocks until one effect resolves (or ctx is done), then drains
// whatever else is ready.
func (t *EffectTracker) Await(ctx context.Context, apply func(*Effect)) (int, error) {
	if t.outstanding == 0 {
		return 0, nil
	}

	select {
	case r := <-t.results:
		n := 0
		if e := t.resolve(r); e != nil {
			apply(e)
			n++
		}
		return n + t.Drain(apply), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (t *EffectTracker) Outstanding() int { return t.outstanding }

// Wait blocks until every background goroutine has exited. Resolutions must
// have been drained first or the goroutines cannot deliver them.
func (t *EffectTracker) Wait() error {
	return t.group.Wait()
}
