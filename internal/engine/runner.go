package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/world"
)

// run executes one invocation.
//
// The unit's storage is taken out of the world for the duration of the call,
// so at most one instance of an id is in flight. Work queued before the run is
// set aside and restored behind whatever the run produced, which is what makes
// execution order telescoping (depth-first). The only error returned is a
// runtime error that aborts the drain; callable errors go to the unit's
// policy.
func (e *Engine) run(ctx context.Context, inv invocation) error {
	e.collectGarbage()

	if inv.tier == ir.TierReaction && !inv.pinned && inv.trigger != nil && !e.reg.listens(inv.unit, *inv.trigger) {
		name, _ := e.world.UnitName(inv.unit)
		e.logger.Debug("trigger no longer held, dropping reaction",
			"unit", inv.unit.String(),
			"trigger", describe(*inv.trigger),
			"drain_id", e.drainID,
		)
		e.record(ctx, inv, name, ir.OutcomeSkipped, nil)
		return nil
	}

	stored, ok := e.world.TakeUnit(inv.unit)
	if !ok {
		// Nested runs of an in-flight id wait for it to finish. The drain
		// loop never re-enters run, so only a direct nested call lands here.
		if e.inFlight.Contains(inv.unit) {
			e.deferred[inv.unit] = append(e.deferred[inv.unit], inv)
			return nil
		}
		if inv.pinned {
			e.reg.release(inv.unit)
		}
		e.logger.Debug("unit absent, skipping",
			"unit", inv.unit.String(),
			"tier", inv.tier,
			"drain_id", e.drainID,
		)
		e.record(ctx, inv, "", ir.OutcomeSkipped, nil)
		return nil
	}
	u := stored.(*unit)

	if err := e.quota.Check(e.drainID); err != nil {
		e.world.PutUnit(inv.unit, u)
		if inv.pinned {
			e.reg.release(inv.unit)
		}
		return NewQuotaError(e.drainID, err.(*StepsExceededError))
	}

	e.inFlight.Add(inv.unit)
	units := e.q.units.take()
	aside := e.q.batch.take()

	cmds := newCommands(e)
	err := e.invoke(ctx, u, inv, cmds)

	e.apply(cmds)
	e.collectGarbage()
	if !e.world.PutUnit(inv.unit, u) {
		e.logger.Debug("unit entity gone, dropping unit",
			"unit", inv.unit.String(),
			"name", u.name,
			"drain_id", e.drainID,
		)
	}
	e.inFlight.Remove(inv.unit)
	if again := e.deferred[inv.unit]; len(again) > 0 {
		delete(e.deferred, inv.unit)
		e.q.units.prependAll(again)
	}

	e.q.units.appendAll(units)
	e.q.batch.restore(aside)

	e.handleResult(ctx, u, inv, err)
	return nil
}

// invoke calls the unit with its payload attached. The deferred hook is the
// unit's cleanup: it clears the payload, releases a despawn hold and restores
// the outer batch on every exit path.
func (e *Engine) invoke(ctx context.Context, u *unit, inv invocation, cmds *Commands) error {
	ctx, span := e.tracer.Start(ctx, "ripple.unit",
		trace.WithAttributes(
			attribute.Int64("ripple.unit.id", int64(inv.unit)),
			attribute.String("ripple.unit.name", u.name),
			attribute.String("ripple.unit.tier", string(inv.tier)),
		),
	)
	if inv.trigger != nil {
		span.SetAttributes(attribute.String("ripple.trigger", describe(*inv.trigger)))
	}

	if inv.data != nil || inv.trigger != nil {
		e.world.AttachPayload(inv.unit, world.Payload{Data: inv.data, Trigger: inv.trigger})
	}
	outer := e.active
	e.active = cmds
	defer func() {
		e.active = outer
		e.world.ClearPayload(inv.unit)
		if inv.pinned {
			e.reg.release(inv.unit)
		}
		span.End()
	}()

	err := u.fn(&Context{
		ctx:  ctx,
		eng:  e,
		unit: inv.unit,
		name: u.name,
		tier: inv.tier,
		cmds: cmds,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// apply runs a batch against the world and moves the mutations it fired onto
// the reaction queue.
func (e *Engine) apply(cmds *Commands) {
	for _, op := range cmds.take() {
		op(e)
	}
	for _, m := range e.world.DrainFeed() {
		e.q.reactions.push(reaction{mutation: m})
	}
}

func (e *Engine) handleResult(ctx context.Context, u *unit, inv invocation, err error) {
	if err == nil {
		e.record(ctx, inv, u.name, ir.OutcomeOK, nil)
		return
	}
	ue := &UnitError{Unit: inv.unit, Name: u.name, Tier: inv.tier, Err: err}
	e.record(ctx, inv, u.name, ir.OutcomeError, ue)

	switch u.policy {
	case PolicyIgnore:
	case PolicyFatal:
		e.logger.Error("unit failed",
			"unit", inv.unit.String(),
			"name", u.name,
			"tier", inv.tier,
			"drain_id", e.drainID,
			"error", err,
		)
		e.fatal = append(e.fatal, ue)
	default:
		e.logger.Warn("unit failed",
			"unit", inv.unit.String(),
			"name", u.name,
			"tier", inv.tier,
			"drain_id", e.drainID,
			"error", err,
		)
	}
}

func (e *Engine) record(ctx context.Context, inv invocation, name string, outcome ir.Outcome, err error) {
	seq := e.clock.Next()
	id, idErr := ir.RunID(e.drainID, seq, inv.unit)
	if idErr != nil {
		e.logger.Warn("run id failed", "error", idErr)
	}
	rec := ir.RunRecord{
		ID:      id,
		DrainID: e.drainID,
		Seq:     seq,
		Unit:    inv.unit,
		Name:    name,
		Tier:    inv.tier,
		Outcome: outcome,
	}
	if inv.trigger != nil {
		rec.TriggerKind = inv.trigger.Kind.String()
		rec.TriggerName = inv.trigger.Name
		rec.TriggerTarget = inv.trigger.Entity
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if recErr := e.recorder.RecordRun(ctx, rec); recErr != nil {
		e.logger.Warn("record run failed",
			"unit", inv.unit.String(),
			"drain_id", e.drainID,
			"error", fmt.Errorf("recorder: %w", recErr),
		)
	}
}
