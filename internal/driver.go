package internal

import (
	"context"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Options struct {
	Logger zerolog.Logger

	// hard cap on sweeps that make progress in one RenderUntilSettled call
	MaxSweeps int

	// consecutive identical sweeps, with no effect outstanding, before
	// RenderUntilSettled reports a stall
	StallSweeps int

	// bounds a whole RenderUntilSettled call when positive
	SettleTimeout time.Duration

	// capacity of the effect resolution channel
	EffectBuffer int

	// context handed to every background effect
	EffectContext context.Context

	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Logger:        zerolog.Nop(),
		MaxSweeps:     10000,
		StallSweeps:   3,
		EffectBuffer:  64,
		EffectContext: context.Background(),
		Now:           time.Now,
	}
}

type Option func(*Options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func WithMaxSweeps(n int) Option {
	return func(o *Options) { o.MaxSweeps = n }
}

func WithStallSweeps(n int) Option {
	return func(o *Options) { o.StallSweeps = n }
}

func WithSettleTimeout(d time.Duration) Option {
	return func(o *Options) { o.SettleTimeout = d }
}

func WithEffectBuffer(n int) Option {
	return func(o *Options) { o.EffectBuffer = n }
}

func WithEffectContext(ctx context.Context) Option {
	return func(o *Options) { o.EffectContext = ctx }
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// Driver renders one tree: it decides which phase of which node runs next,
// tracks background effects and detects the fixed point.
type Driver struct {
	registry *Registry
	root     *Node
	opts     Options
	logger   zerolog.Logger

	heap      *WorkHeap
	tracker   *Tracker
	scheduler *Scheduler
	effects   *EffectTracker
	bus       *EventBus
	after     *ActionQueue
	report    *Report

	// per sweep bookkeeping; the value records whether the run retried
	ran         map[runKey]bool
	subtreeSeen []bool
}

func NewDriver(registry *Registry, root *Node, opts ...Option) (*Driver, error) {
	if registry == nil {
		return nil, &ConfigError{Err: errors.Wrap(ErrUnregisteredPhase, "nil registry")}
	}
	if root == nil {
		return nil, &ConfigError{Err: errors.Wrap(ErrInvariant, "nil root node")}
	}

	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	d := &Driver{
		registry:  registry,
		root:      root,
		opts:      o,
		logger:    o.Logger,
		heap:      NewHeap(),
		tracker:   NewTracker(),
		scheduler: NewScheduler(),
		effects:   NewEffectTracker(o.EffectContext, o.EffectBuffer, o.Now),
		bus:       NewEventBus(o.Logger),
		after:     NewActionQueue(),
		report:    NewReport(registry),
	}
	d.bus.On(EventAny, d.report.Listener())

	if err := capture(func() error { d.adopt(root); return nil }); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Driver) Registry() *Registry { return d.registry }

func (d *Driver) Root() *Node { return d.root }

func (d *Driver) Report() *Report { return d.report }

func (d *Driver) Logger() zerolog.Logger { return d.logger }

// Sweeps is the number of sweeps that found work so far.
func (d *Driver) Sweeps() int { return d.scheduler.Time() }

func (d *Driver) now() time.Time { return d.opts.Now() }

// On subscribes to lifecycle events of this driver.
func (d *Driver) On(kind EventKind, fn Listener) func() {
	return d.bus.On(kind, fn)
}

// adopt attaches a subtree to the driver, queueing its nodes when a sweep is
// running.
func (d *Driver) adopt(n *Node) {
	n.Walk(func(node *Node) bool {
		if node.driver != nil && node.driver != d {
			panic(&ConfigError{Node: node.DisplayName(), Err: errors.Wrap(ErrInvariant, "node belongs to another driver")})
		}
		if node.driver == nil {
			node.driver = d
			node.table = newPhaseTable(d.registry.Len())
		}
		if d.scheduler.Sweeping() {
			if _, ok := node.table.next(); ok {
				d.heap.Insert(node)
			}
		}
		return true
	})
}

// Render runs one sweep and returns the number of phases it ran.
func (d *Driver) Render() (int, error) {
	if err := d.scheduler.Acquire(); err != nil {
		return 0, err
	}
	defer d.scheduler.Release()

	stats, err := d.sweep()
	return stats.transitions, err
}

type sweepStats struct {
	transitions int
	retried     int
	ran         map[runKey]bool
}

func (d *Driver) sweep() (sweepStats, error) {
	var stats sweepStats

	d.effects.Drain(d.applyResolution)

	for node := range d.root.All() {
		if _, ok := node.table.next(); ok {
			d.heap.Insert(node)
		}
	}
	if d.heap.Len() == 0 {
		return stats, nil
	}

	sweep := d.scheduler.Tick()
	d.ran = make(map[runKey]bool)
	d.subtreeSeen = make([]bool, d.registry.Len())

	d.scheduler.sweeping = true
	defer func() { d.scheduler.sweeping = false }()

	d.bus.Emit(Event{Kind: EventSweepStart, Node: d.root, Sweep: sweep, Time: d.now()})

	err := d.heap.Drain(func(node *Node) error {
		for {
			i, ok := node.table.next()
			if !ok {
				return nil
			}

			// each (node, phase) runs at most once per sweep
			key := runKey{node, d.registry.At(i)}
			if _, done := d.ran[key]; done {
				return nil
			}

			retried, err := d.runPhase(node, i, sweep, true)
			d.ran[key] = retried
			if err != nil {
				return err
			}

			stats.transitions++
			if retried {
				stats.retried++
			}
		}
	})
	stats.ran = d.ran

	d.bus.Emit(Event{Kind: EventSweepEnd, Node: d.root, Sweep: sweep, Time: d.now(), Transitions: stats.transitions, Err: err})

	d.logger.Debug().
		Int("sweep", sweep).
		Int("transitions", stats.transitions).
		Int("retried", stats.retried).
		Int("effects", d.effects.Outstanding()).
		Msg("sweep done")

	return stats, err
}

func (d *Driver) runPhase(node *Node, i int, sweep int, structural bool) (bool, error) {
	phase := d.registry.At(i)

	if !node.table.beginRun(i, d.now()) {
		return false, configErrorf(node, phase, ErrInvariant, "phase %q is not runnable (status %s)", phase, node.table.Status(i))
	}

	d.bus.Emit(Event{Kind: EventPhaseStart, Phase: phase, Node: node, Sweep: sweep, Time: node.table.timing[i].Started})
	if structural && !d.subtreeSeen[i] {
		d.subtreeSeen[i] = true
		d.bus.Emit(Event{Kind: EventSubtreePhase, Phase: phase, Node: d.root, Sweep: sweep, Time: d.now()})
	}

	node.clearPhaseDiagnostics(phase)

	ctx := &PhaseContext{driver: d, node: node, phase: phase, index: i, sweep: sweep}
	err := d.tracker.RunWithPhase(ctx, func() error {
		if node.logic == nil {
			return nil
		}
		return node.logic.RunPhase(ctx)
	})

	end := d.now()
	if err != nil {
		node.table.abortRun(i, end)
		d.after.Clear()

		err = asConfigError(node, phase, err)
		d.bus.Emit(Event{Kind: EventPhaseEnd, Phase: phase, Node: node, Sweep: sweep, Time: end, Duration: node.table.timing[i].Duration, Err: err})
		d.logger.Error().Err(err).Str("node", node.DisplayName()).Str("phase", string(phase)).Msg("phase failed")
		return false, err
	}

	node.table.completeRun(i, end)
	if ctx.retry {
		node.table.markDirty(i)
	}

	d.bus.Emit(Event{Kind: EventPhaseEnd, Phase: phase, Node: node, Sweep: sweep, Time: end, Duration: node.table.timing[i].Duration})

	if err := d.after.Run(); err != nil {
		return ctx.retry, asConfigError(node, phase, err)
	}

	return ctx.retry, nil
}

func asConfigError(node *Node, phase Phase, err error) error {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}
	return &ConfigError{Node: node.DisplayName(), Phase: phase, Err: err}
}

// RenderUntilSettled sweeps until no phase is runnable and no effect is
// outstanding. Between sweeps it yields to background effects, blocking on
// them when a sweep made no progress of its own.
func (d *Driver) RenderUntilSettled(ctx context.Context) error {
	if err := d.scheduler.Acquire(); err != nil {
		return err
	}
	defer d.scheduler.Release()

	if d.opts.SettleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.SettleTimeout)
		defer cancel()
	}

	var (
		prev   map[runKey]bool
		stalls int
		sweeps int
	)

	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "render until settled")
		}

		stats, err := d.sweep()
		if err != nil {
			return err
		}

		if stats.transitions == 0 {
			if d.effects.Outstanding() == 0 {
				d.bus.Emit(Event{Kind: EventSettled, Node: d.root, Sweep: d.scheduler.Time(), Time: d.now()})
				d.logger.Debug().Int("sweeps", d.scheduler.Time()).Msg("render settled")
				return nil
			}
			if err := d.await(ctx); err != nil {
				return err
			}
			continue
		}

		sweeps++
		if d.opts.MaxSweeps > 0 && sweeps > d.opts.MaxSweeps {
			return d.stalled(stats, fmt.Sprintf("exceeded %d sweeps", d.opts.MaxSweeps))
		}

		switch {
		case d.effects.Outstanding() > 0:
			stalls = 0
			if stats.retried == stats.transitions {
				// only waiting phases ran: block on the effects instead of spinning
				if err := d.await(ctx); err != nil {
					return err
				}
			}
		case maps.Equal(prev, stats.ran):
			stalls++
			if d.opts.StallSweeps > 0 && stalls >= d.opts.StallSweeps {
				return d.stalled(stats, fmt.Sprintf("the same phases re-ran for %d sweeps", stalls+1))
			}
		default:
			stalls = 0
		}
		prev = stats.ran

		runtime.Gosched()
	}
}

func (d *Driver) await(ctx context.Context) error {
	if _, err := d.effects.Await(ctx, d.applyResolution); err != nil {
		return errors.Wrapf(err, "waiting on %d effects", d.effects.Outstanding())
	}
	return nil
}

func (d *Driver) stalled(stats sweepStats, reason string) error {
	running := make([]string, 0, len(stats.ran))
	for key := range stats.ran {
		running = append(running, fmt.Sprintf("%s [%s]", key.node.DisplayName(), key.phase))
	}
	slices.Sort(running)

	err := &StallError{Sweeps: d.scheduler.Time(), Reason: reason, Running: running}
	d.bus.Emit(Event{Kind: EventStalled, Node: d.root, Sweep: d.scheduler.Time(), Time: d.now(), Err: err})
	d.logger.Error().Err(err).Msg("render stalled")
	return err
}

// RunRenderPhase forces one phase of one node outside the normal sweep.
// Earlier phases must be complete; later phases are left dirty.
func (d *Driver) RunRenderPhase(node *Node, phase Phase) error {
	if err := d.scheduler.Acquire(); err != nil {
		return err
	}
	defer d.scheduler.Release()

	if node.driver != d {
		return configErrorf(node, phase, ErrDetachedNode, "run %q", phase)
	}
	i, err := d.registry.Lookup(phase)
	if err != nil {
		return err
	}
	if !node.table.earlierComplete(i) {
		return configErrorf(node, phase, ErrInvariant, "phase %q run out of order", phase)
	}

	if node.table.Status(i) == StatusComplete {
		node.table.markDirty(i)
	}

	_, err = d.runPhase(node, i, d.scheduler.Time(), false)
	return err
}

// MarkDirty invalidates phase and every later phase of node.
func (d *Driver) MarkDirty(node *Node, phase Phase) error {
	if err := d.scheduler.CheckWriter(); err != nil {
		return err
	}
	return d.markDirty(node, phase)
}

func (d *Driver) markDirty(node *Node, phase Phase) error {
	if node.driver != d {
		return configErrorf(node, phase, ErrDetachedNode, "mark %q dirty", phase)
	}
	i, err := d.registry.Lookup(phase)
	if err != nil {
		return err
	}
	if k, running := node.table.runningFrom(i); running {
		return configErrorf(node, phase, ErrInvariant, "cannot mark %q dirty while %q is running", phase, d.registry.At(k))
	}

	node.table.markDirty(i)
	if d.scheduler.Sweeping() {
		d.heap.Insert(node)
	}
	return nil
}

// RegisterEffect registers a background effect on node from outside phase
// logic.
func (d *Driver) RegisterEffect(node *Node, name string, fn EffectFunc, opts ...EffectOption) (*Effect, error) {
	if err := d.scheduler.CheckWriter(); err != nil {
		return nil, err
	}
	return d.registerEffect(node, "", d.scheduler.Time(), name, fn, opts...)
}

func (d *Driver) registerEffect(node *Node, phase Phase, sweep int, name string, fn EffectFunc, opts ...EffectOption) (*Effect, error) {
	if node.driver != d {
		return nil, configErrorf(node, phase, ErrDetachedNode, "register effect %q", name)
	}

	var o effectOptions
	for _, opt := range opts {
		opt(&o)
	}

	invalidates := o.invalidates
	if o.rerun {
		invalidates = phase
	}
	if invalidates != "" {
		if _, err := d.registry.Lookup(invalidates); err != nil {
			return nil, err
		}
	}

	e, err := d.effects.Register(node, name, phase, invalidates, sweep, fn)
	if err != nil {
		return nil, err
	}

	d.bus.Emit(Event{Kind: EventEffectRegistered, Phase: phase, Node: node, Sweep: sweep, Time: e.registered, Effect: name})
	return e, nil
}

func (d *Driver) applyResolution(e *Effect) {
	d.bus.Emit(Event{
		Kind:     EventEffectResolved,
		Phase:    e.phase,
		Node:     e.node,
		Sweep:    d.scheduler.Time(),
		Time:     e.resolvedAt,
		Effect:   e.name,
		Duration: e.Duration(),
		Err:      e.err,
	})

	if e.err != nil {
		d.logger.Warn().Err(e.err).Str("node", e.node.DisplayName()).Str("effect", e.name).Msg("effect failed")
	}

	if e.invalidates != "" {
		if err := d.markDirty(e.node, e.invalidates); err != nil {
			d.logger.Error().Err(err).Str("effect", e.name).Msg("effect invalidation rejected")
		}
	}
}

// HasIncompleteAnywhere is true while any effect of the tree is outstanding.
func (d *Driver) HasIncompleteAnywhere() bool {
	return d.effects.Outstanding() > 0
}

// HasIncomplete is true while an effect of the subtree rooted at node is
// outstanding.
func (d *Driver) HasIncomplete(node *Node) bool {
	for n := range node.All() {
		if n.outstanding > 0 {
			return true
		}
	}
	return false
}

// Settled reports whether every phase of every node is complete and no
// effect is outstanding.
func (d *Driver) Settled() bool {
	if d.effects.Outstanding() > 0 {
		return false
	}
	for n := range d.root.All() {
		if !n.table.complete() {
			return false
		}
	}
	return true
}

// Wait blocks until every background effect has resolved and its goroutine
// has exited, applying the resolutions.
func (d *Driver) Wait(ctx context.Context) error {
	if err := d.scheduler.Acquire(); err != nil {
		return err
	}
	defer d.scheduler.Release()

	for d.effects.Outstanding() > 0 {
		if err := d.await(ctx); err != nil {
			return err
		}
	}
	return d.effects.Wait()
}
