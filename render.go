// Package render is an incremental, phase-ordered scheduler for trees of
// nodes. Every node runs the same ordered list of phases; the driver runs
// whatever is runnable, sweep after sweep, until no phase is dirty and no
// background effect is outstanding.
package render

import (
	"context"
	"time"

	"github.com/AnatoleLucet/render/internal"
	"github.com/AnatoleLucet/render/internal/config"
	"github.com/AnatoleLucet/render/internal/metrics"
	"github.com/rs/zerolog"
)

func as[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}

	t, _ := v.(T)
	return t
}

type (
	Phase    = internal.Phase
	Registry = internal.Registry

	Node         = internal.Node
	PhaseLogic   = internal.PhaseLogic
	PhaseFunc    = internal.PhaseFunc
	PhaseMap     = internal.PhaseMap
	PhaseContext = internal.PhaseContext

	Status = internal.Status
	Timing = internal.Timing

	Driver = internal.Driver
	Option = internal.Option

	Effect       = internal.Effect
	EffectFunc   = internal.EffectFunc
	EffectOption = internal.EffectOption

	Event     = internal.Event
	EventKind = internal.EventKind
	Listener  = internal.Listener

	Diagnostic = internal.Diagnostic
	Severity   = internal.Severity

	Report    = internal.Report
	ReportRow = internal.ReportRow

	ConfigError = internal.ConfigError
	StallError  = internal.StallError

	Config = config.Config
)

const (
	StatusPending  = internal.StatusPending
	StatusDirty    = internal.StatusDirty
	StatusRunning  = internal.StatusRunning
	StatusComplete = internal.StatusComplete
)

const (
	EventAny              = internal.EventAny
	EventPhaseStart       = internal.EventPhaseStart
	EventPhaseEnd         = internal.EventPhaseEnd
	EventSubtreePhase     = internal.EventSubtreePhase
	EventSweepStart       = internal.EventSweepStart
	EventSweepEnd         = internal.EventSweepEnd
	EventEffectRegistered = internal.EventEffectRegistered
	EventEffectResolved   = internal.EventEffectResolved
	EventSettled          = internal.EventSettled
	EventStalled          = internal.EventStalled
)

const (
	SeverityWarning = internal.SeverityWarning
	SeverityError   = internal.SeverityError
)

var (
	ErrUnregisteredPhase = internal.ErrUnregisteredPhase
	ErrDuplicatePhase    = internal.ErrDuplicatePhase
	ErrInvariant         = internal.ErrInvariant
	ErrConcurrentRender  = internal.ErrConcurrentRender
	ErrStalled           = internal.ErrStalled
	ErrEffectOutstanding = internal.ErrEffectOutstanding
	ErrDetachedNode      = internal.ErrDetachedNode
)

// NewRegistry creates the ordered phase list shared by every node of a render.
func NewRegistry(phases ...Phase) (*Registry, error) {
	return internal.NewRegistry(phases...)
}

// NewNode creates a detached node. It joins a driver when it becomes that
// driver's root or is added under one of its nodes.
func NewNode(kind, name string, logic PhaseLogic) *Node {
	return internal.NewNode(kind, name, logic)
}

// New creates a driver rendering the tree under root.
func New(registry *Registry, root *Node, opts ...Option) (*Driver, error) {
	return internal.NewDriver(registry, root, opts...)
}

// Prop reads a node value as T. Missing values and values of another type
// return the zero value and false.
func Prop[T any](n *Node, key string) (T, bool) {
	v, ok := n.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Result returns the result of a resolved effect as T.
func Result[T any](e *Effect) (T, error) {
	v, err := e.Result()
	return as[T](v), err
}

// WithTimeout bounds a background effect.
func WithTimeout(d time.Duration, fn EffectFunc) EffectFunc {
	return internal.WithTimeout(d, fn)
}

// RerunOnResolve re-dirties the registering phase once the effect resolves.
func RerunOnResolve() EffectOption { return internal.RerunOnResolve() }

// InvalidateOnResolve marks phase dirty on the owning node once the effect
// resolves.
func InvalidateOnResolve(phase Phase) EffectOption { return internal.InvalidateOnResolve(phase) }

func WithLogger(logger zerolog.Logger) Option { return internal.WithLogger(logger) }

func WithMaxSweeps(n int) Option { return internal.WithMaxSweeps(n) }

func WithStallSweeps(n int) Option { return internal.WithStallSweeps(n) }

func WithSettleTimeout(d time.Duration) Option { return internal.WithSettleTimeout(d) }

func WithEffectBuffer(n int) Option { return internal.WithEffectBuffer(n) }

// WithEffectContext sets the context handed to background effects.
func WithEffectContext(ctx context.Context) Option { return internal.WithEffectContext(ctx) }

func WithClock(now func() time.Time) Option { return internal.WithClock(now) }

// WithConfig applies the driver settings of cfg.
func WithConfig(cfg Config) Option {
	return func(o *internal.Options) {
		o.MaxSweeps = cfg.MaxSweeps
		o.StallSweeps = cfg.StallSweeps
		o.SettleTimeout = cfg.SettleTimeout
		o.EffectBuffer = cfg.EffectBuffer
	}
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a TOML configuration file over the defaults and validates
// it.
func LoadConfig(path string) (Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// InstrumentMetrics feeds d's lifecycle events into the prometheus collectors.
// Call the returned function to stop.
func InstrumentMetrics(d *Driver) func() {
	return metrics.Attach(d)
}
