package engine

import (
	"errors"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/world"
)

var errClosedMidDrain = errors.New("engine closed during drain")

// Engine owns the world, the trigger registry and the deferred queues.
//
// Thread-safety model: none. Exactly one goroutine drives an engine; units
// run on that goroutine, one at a time, and never concurrently with a batch
// application.
//
// INVARIANTS:
//   - At most one drain is in progress; top-level calls made during it append
//     to it and return nil.
//   - A unit's storage is absent from the world while it runs.
//   - Reactors for one mutation run in registration order.
type Engine struct {
	world    *world.World
	reg      *Registry
	q        *queueSet
	life     *lifecycle
	clock    *Clock
	refires  *RefireDetector
	quota    *QuotaEnforcer
	inFlight mapset.Set[ir.Entity]
	deferred map[ir.Entity][]invocation // Nested runs of an in-flight id; only direct run calls fill it

	active  *Commands // Batch of the running unit, nil between runs
	drainID string
	fatal   []error
	closed  bool

	logger   *slog.Logger
	tracer   trace.Tracer
	recorder Recorder
	drainIDs DrainIDGenerator
	maxSteps int
	policy   Policy
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxSteps sets the maximum number of unit runs per drain.
//
// Default: 1000 steps (DefaultMaxSteps). Zero disables the quota.
func WithMaxSteps(maxSteps int) Option {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithMaxRefires sets how often one reactor may fire on the same trigger key
// within a drain. Default: 256 (DefaultMaxRefires). Zero disables the check.
func WithMaxRefires(limit int) Option {
	return func(e *Engine) {
		e.refires = NewRefireDetector(limit)
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer used for drain and unit spans. Default: a no-op
// tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithRecorder sets where run and drain records go. Default: discarded.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithDrainIDs sets the drain id generator. Default: UUIDv7Generator.
func WithDrainIDs(g DrainIDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.drainIDs = g
		}
	}
}

// WithClock sets the logical clock that stamps runs.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithErrorPolicy sets the policy for units that do not choose their own.
// Default: PolicyLog.
func WithErrorPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithWorld runs the engine over an existing world.
func WithWorld(w *world.World) Option {
	return func(e *Engine) {
		if w != nil {
			e.world = w
		}
	}
}

// New creates an engine over an empty world.
func New(opts ...Option) *Engine {
	e := &Engine{
		world:    world.New(),
		reg:      NewRegistry(),
		life:     newLifecycle(),
		clock:    NewClock(),
		refires:  NewRefireDetector(DefaultMaxRefires),
		quota:    NewQuotaEnforcer(DefaultMaxSteps),
		inFlight: mapset.NewThreadUnsafeSet[ir.Entity](),
		deferred: make(map[ir.Entity][]invocation),
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("ripple"),
		recorder: nopRecorder{},
		drainIDs: UUIDv7Generator{},
		maxSteps: DefaultMaxSteps,
		policy:   PolicyLog,
	}
	e.q = newQueueSet(e)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// check rejects calls on an engine that was never built with New or has been
// closed.
func (e *Engine) check() error {
	if e == nil || e.world == nil || e.q == nil {
		return &ConfigError{Code: ErrCodeNotInitialized, Message: "engine not initialized; use engine.New"}
	}
	if e.closed {
		return &ConfigError{Code: ErrCodeClosed, Message: "engine is closed"}
	}
	return nil
}

// Close tears the engine down. Queued work is discarded and later calls fail
// with ENGINE_CLOSED. Closing from inside a unit aborts the current drain
// after that unit returns.
func (e *Engine) Close() error {
	if err := e.check(); err != nil {
		return err
	}
	e.closed = true
	if !e.q.resolving {
		e.discard()
	}
	e.logger.Debug("engine closed")
	return nil
}

// World returns the engine's world. Writes made through it directly bypass
// the queues; fired mutations are picked up by the next drain.
func (e *Engine) World() *world.World {
	return e.world
}

// Registry returns the trigger registry for inspection.
func (e *Engine) Registry() *Registry {
	return e.reg
}

// Resolving reports whether a drain is in progress.
func (e *Engine) Resolving() bool {
	return e.q.resolving
}

// Stats is a snapshot of the engine's bookkeeping.
type Stats struct {
	Reactors        int
	Triggers        int
	Entities        int
	BatchOps        int
	Units           int
	Events          int
	Reactions       int
	PendingDestroys int
	Resolving       bool
}

// Stats returns a snapshot of registry and queue sizes.
func (e *Engine) Stats() Stats {
	return Stats{
		Reactors:        e.reg.Len(),
		Triggers:        e.reg.TriggerCount(),
		Entities:        e.world.Len(),
		BatchOps:        e.q.batch.Len(),
		Units:           e.q.units.len(),
		Events:          e.q.eventLen(),
		Reactions:       e.q.reactionLen(),
		PendingDestroys: e.life.len(),
		Resolving:       e.q.resolving,
	}
}
