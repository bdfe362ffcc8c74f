package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/ripple/internal/ir"
	"github.com/roach88/ripple/internal/world"
)

// Context is handed to a running unit.
type Context struct {
	ctx  context.Context
	eng  *Engine
	unit ir.Entity
	name string
	tier ir.Tier
	cmds *Commands
}

// Context returns the drain's context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Unit returns the id of the running unit.
func (c *Context) Unit() ir.Entity {
	return c.unit
}

// Name returns the running unit's name.
func (c *Context) Name() string {
	return c.name
}

// Tier returns the queue this run was dispatched from.
func (c *Context) Tier() ir.Tier {
	return c.tier
}

// World returns read access to the world.
func (c *Context) World() world.View {
	return c.eng.world
}

// Commands returns this run's mutation batch.
func (c *Context) Commands() *Commands {
	return c.cmds
}

// Event takes the data delivered for this run. It reports false when nothing
// was delivered or the data was already taken.
func (c *Context) Event() (ir.Value, bool) {
	return c.eng.world.TakePayload(c.unit)
}

// Trigger returns the mutation that caused this run, if it is a reaction.
func (c *Context) Trigger() (world.Mutation, bool) {
	return c.eng.world.Trigger(c.unit)
}

// Engine returns the engine. Top-level calls made through it while the unit
// runs are recorded into this run's batch instead of starting a new drain.
func (c *Context) Engine() *Engine {
	return c.eng
}

// Logger returns the engine logger annotated with this unit.
func (c *Context) Logger() *slog.Logger {
	return c.eng.logger.With("unit", c.unit.String(), "unit_name", c.name)
}
