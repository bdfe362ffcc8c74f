package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/ripple/internal/ir"
)

// hasWork reports whether a drain would do anything.
func (e *Engine) hasWork() bool {
	return !e.q.empty() || e.world.FeedLen() > 0 || e.life.len() > 0 || e.reg.emptied.Cardinality() > 0
}

// drain resolves every queue to quiescence. It is the only place a top-level
// call turns queued work into unit runs; calls made while a drain is in
// progress append to that drain instead.
//
// Order of work:
//  1. Apply the top-level batch.
//  2. Run queued units until none remain.
//  3. Deliver the front event, then go back to 2.
//  4. Resolve the front reaction, then go back to 2.
func (e *Engine) drain(ctx context.Context) error {
	if e.q.resolving || !e.hasWork() {
		return nil
	}

	e.q.resolving = true
	e.drainID = e.drainIDs.Generate()
	e.quota = NewQuotaEnforcer(e.maxSteps)
	e.refires.Reset()
	e.fatal = nil
	start := e.clock.Current()

	ctx, span := e.tracer.Start(ctx, "ripple.drain",
		trace.WithAttributes(attribute.String("ripple.drain.id", e.drainID)),
	)
	defer func() {
		e.q.resolving = false
		e.drainID = ""
		span.End()
	}()

	e.logger.Debug("drain started", "drain_id", e.drainID)

	runErr := e.loop(ctx)
	if runErr != nil {
		e.discard()
		e.logger.Error("drain aborted",
			"drain_id", e.drainID,
			"steps", e.quota.Current(),
			"error", runErr,
		)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	span.SetAttributes(attribute.Int("ripple.drain.steps", e.quota.Current()))

	err := errors.Join(append([]error{runErr}, e.fatal...)...)
	e.fatal = nil

	rec := ir.DrainRecord{ID: e.drainID, Seq: start, Steps: e.quota.Current()}
	if err != nil {
		rec.Error = err.Error()
	}
	if recErr := e.recorder.RecordDrain(ctx, rec); recErr != nil {
		e.logger.Warn("record drain failed", "drain_id", e.drainID, "error", recErr)
	}

	e.logger.Debug("drain finished", "drain_id", e.drainID, "steps", e.quota.Current())
	return err
}

func (e *Engine) loop(ctx context.Context) error {
	e.collectGarbage()
	for {
		if err := ctx.Err(); err != nil {
			return canceledErr(e.drainID, err)
		}
		if e.closed {
			return canceledErr(e.drainID, errClosedMidDrain)
		}

		if e.q.batch.Len() > 0 || e.world.FeedLen() > 0 {
			e.apply(e.q.batch)
			e.collectGarbage()
			continue
		}
		if inv, ok := e.q.units.pop(); ok {
			if err := e.run(ctx, inv); err != nil {
				return err
			}
			continue
		}
		if inv, ok := e.q.popEvent(); ok {
			if err := e.run(ctx, inv); err != nil {
				return err
			}
			continue
		}
		if r, ok := e.q.popReaction(); ok {
			if err := e.resolve(r); err != nil {
				return err
			}
			continue
		}
		if e.life.len() > 0 || e.reg.emptied.Cardinality() > 0 {
			e.collectGarbage()
			if !e.q.empty() {
				continue
			}
		}
		return nil
	}
}

// resolve matches a reaction and queues one run per firing reactor, in
// registration order.
func (e *Engine) resolve(r reaction) error {
	m := r.mutation
	if r.pinned != nil {
		for _, id := range r.pinned {
			e.q.units.push(invocation{
				unit:    id,
				tier:    ir.TierReaction,
				data:    m.Payload,
				trigger: &m,
				pinned:  true,
			})
		}
		return nil
	}

	if m.Kind.EntityScoped() && !e.world.Alive(m.Entity) {
		e.logger.Debug("reaction target gone, dropping",
			"trigger", describe(m),
			"drain_id", e.drainID,
		)
		return nil
	}

	for _, id := range e.reg.Match(m) {
		if n, over := e.refires.Fire(id, m); over {
			return NewRefireError(e.drainID, id, describe(m), n, e.refires.Limit())
		}
		e.q.units.push(invocation{
			unit:    id,
			tier:    ir.TierReaction,
			data:    m.Payload,
			trigger: &m,
		})
	}
	return nil
}

// discard drops all queued work after an aborted drain, releasing the
// reactors held by pinned reactions.
func (e *Engine) discard() {
	release := func(invs []invocation) {
		for _, inv := range invs {
			if inv.pinned {
				e.reg.release(inv.unit)
			}
		}
	}
	release(e.q.units.take())
	release(e.q.events.take())
	release(e.q.pendingEvents.take())
	for _, r := range append(e.q.reactions.take(), e.q.pendingReactions.take()...) {
		for _, id := range r.pinned {
			e.reg.release(id)
		}
	}
	for id, invs := range e.deferred {
		release(invs)
		delete(e.deferred, id)
	}
	e.q.batch.take()
	e.inFlight.Clear()
}
