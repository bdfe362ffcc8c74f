package world

import "github.com/roach88/ripple/internal/ir"

// PutUnit stores u in e's unit slot. It fails when e is dead, so a unit whose
// entity was despawned mid-run is dropped rather than resurrected.
func (w *World) PutUnit(e ir.Entity, u Unit) bool {
	if !w.Alive(e) {
		return false
	}
	w.units[e] = u
	return true
}

// TakeUnit removes and returns e's unit. While a unit is taken its slot reads
// as absent, which is how an in-flight unit is detected.
func (w *World) TakeUnit(e ir.Entity) (Unit, bool) {
	u, ok := w.units[e]
	if ok {
		delete(w.units, e)
	}
	return u, ok
}

// HasUnit reports whether e's unit slot is occupied.
func (w *World) HasUnit(e ir.Entity) bool {
	_, ok := w.units[e]
	return ok
}

// UnitName returns the name of the unit stored on e.
func (w *World) UnitName(e ir.Entity) (string, bool) {
	u, ok := w.units[e]
	if !ok {
		return "", false
	}
	return u.UnitName(), true
}

// Payload is the transient state attached to a unit for one run.
type Payload struct {
	Data    ir.Value  // One-shot; nil when nothing was delivered
	Trigger *Mutation // Provenance; nil for direct invocations
}

// AttachPayload attaches p to e for the duration of one run.
func (w *World) AttachPayload(e ir.Entity, p Payload) {
	w.payloads[e] = &p
}

// TakePayload returns the delivered data once. Later calls in the same run
// report false.
func (w *World) TakePayload(e ir.Entity) (ir.Value, bool) {
	p, ok := w.payloads[e]
	if !ok || p.Data == nil {
		return nil, false
	}
	data := p.Data
	p.Data = nil
	return data, true
}

// Trigger returns the mutation that caused the current run of e.
func (w *World) Trigger(e ir.Entity) (Mutation, bool) {
	p, ok := w.payloads[e]
	if !ok || p.Trigger == nil {
		return Mutation{}, false
	}
	return *p.Trigger, true
}

// ClearPayload drops anything attached to e.
func (w *World) ClearPayload(e ir.Entity) {
	delete(w.payloads, e)
}

// HasPayload reports whether anything is attached to e.
func (w *World) HasPayload(e ir.Entity) bool {
	_, ok := w.payloads[e]
	return ok
}
