package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ripple/internal/ir"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *MemoryRecorder) {
	t.Helper()
	rec := &MemoryRecorder{}
	base := []Option{
		WithRecorder(rec),
		WithDrainIDs(NewSequenceGenerator("")),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	e := New(append(base, opts...)...)
	t.Cleanup(func() { _ = e.Close() })
	return e, rec
}

// logUnit returns a callable that appends name to log.
func logUnit(log *[]string, name string) Callable {
	return func(*Context) error {
		*log = append(*log, name)
		return nil
	}
}

func TestEngine_UnitTelescoping(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var order []int
	ids := make([]ir.Entity, 4)
	children := map[int][]int{
		0: {1, 2, 3},
		2: {1, 1},
		3: {2, 2},
	}
	for i := range ids {
		label := i
		id, err := e.SpawnUnit("u", func(c *Context) error {
			order = append(order, label)
			for _, child := range children[label] {
				c.Commands().Schedule(ids[child])
			}
			return nil
		})
		require.NoError(t, err)
		ids[i] = id
	}

	require.NoError(t, e.Schedule(ctx, ids[0]))
	assert.Equal(t, []int{0, 1, 2, 1, 1, 3, 2, 1, 1, 2, 1, 1}, order)
}

func TestEngine_SelfSchedulingDepth(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	const depth = 50

	runs := 0
	var self ir.Entity
	self, err := e.SpawnUnit("recurse", func(c *Context) error {
		runs++
		assert.False(t, e.World().HasUnit(self), "storage is taken while running")
		_, ok := c.Event()
		assert.False(t, ok, "no data was delivered")
		if runs <= depth {
			c.Commands().Schedule(c.Unit())
		}
		return nil
	})
	require.NoError(t, err)

	assert.True(t, e.World().HasUnit(self))
	require.NoError(t, e.Schedule(ctx, self))
	assert.Equal(t, depth+1, runs)
	assert.True(t, e.World().HasUnit(self))
}

func TestEngine_SelfSendDeliveredAfterRun(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var seen []ir.Value
	id, err := e.SpawnUnit("echo", func(c *Context) error {
		v, ok := c.Event()
		if !ok {
			seen = append(seen, ir.Null{})
			c.Commands().Send(c.Unit(), ir.Int(7))
			return nil
		}
		seen = append(seen, v)
		_, again := c.Event()
		assert.False(t, again, "payload is one-shot")
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.Schedule(ctx, id))
	assert.Equal(t, []ir.Value{ir.Null{}, ir.Int(7)}, seen)
	assert.False(t, e.World().HasPayload(id))
}

func TestEngine_EventsTelescope(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var log []string
	var v ir.Entity
	v, err := e.SpawnUnit("V", func(c *Context) error {
		data, _ := c.Event()
		log = append(log, "V:"+ir.Format(data))
		return nil
	})
	require.NoError(t, err)
	w, err := e.SpawnUnit("W", logUnit(&log, "W"))
	require.NoError(t, err)
	u, err := e.SpawnUnit("U", func(c *Context) error {
		data, _ := c.Event()
		log = append(log, "U:"+ir.Format(data))
		if ir.Equal(data, ir.String("a")) {
			c.Commands().Send(v, ir.String("c"))
			c.Commands().Schedule(w)
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.Do(ctx, func(c *Commands) {
		c.Send(u, ir.String("a"))
		c.Send(u, ir.String("b"))
	}))
	assert.Equal(t, []string{`U:"a"`, "W", `V:"c"`, `U:"b"`}, log)
}

func TestEngine_ReactorsFireInRegistrationOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var log []string
	_, err := e.OnPersistent("first", []Trigger{ResourceMutated("x")}, logUnit(&log, "first"))
	require.NoError(t, err)
	_, err = e.OnPersistent("second", []Trigger{ResourceMutated("x")}, logUnit(&log, "second"))
	require.NoError(t, err)

	require.NoError(t, e.SetResource(ctx, "x", ir.Int(1)))
	assert.Equal(t, []string{"first", "second"}, log)
}

func TestEngine_ReactionsTelescope(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var log []string
	_, err := e.OnPersistent("A", []Trigger{ResourceMutated("x")}, func(c *Context) error {
		log = append(log, "A")
		c.Commands().SetResource("z", ir.Int(1))
		return nil
	})
	require.NoError(t, err)
	_, err = e.OnPersistent("B", []Trigger{ResourceMutated("y")}, logUnit(&log, "B"))
	require.NoError(t, err)
	_, err = e.OnPersistent("C", []Trigger{ResourceMutated("z")}, logUnit(&log, "C"))
	require.NoError(t, err)

	require.NoError(t, e.Do(ctx, func(c *Commands) {
		c.SetResource("x", ir.Int(1))
		c.SetResource("y", ir.Int(1))
	}))
	assert.Equal(t, []string{"A", "C", "B"}, log)
}

func TestEngine_SiblingReactorsRunBeforeChildReactions(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var log []string
	_, err := e.OnPersistent("R1", []Trigger{ResourceMutated("x")}, func(c *Context) error {
		log = append(log, "R1")
		c.Commands().SetResource("a", ir.Int(1))
		return nil
	})
	require.NoError(t, err)
	_, err = e.OnPersistent("R2", []Trigger{ResourceMutated("x")}, func(c *Context) error {
		log = append(log, "R2")
		c.Commands().SetResource("b", ir.Int(1))
		return nil
	})
	require.NoError(t, err)
	_, err = e.OnPersistent("onA", []Trigger{ResourceMutated("a")}, logUnit(&log, "onA"))
	require.NoError(t, err)
	_, err = e.OnPersistent("onB", []Trigger{ResourceMutated("b")}, logUnit(&log, "onB"))
	require.NoError(t, err)

	require.NoError(t, e.SetResource(ctx, "x", ir.Int(1)))
	assert.Equal(t, []string{"R1", "R2", "onA", "onB"}, log)
}

func TestEngine_ReactionPayloadAndProvenance(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	ent, err := e.Spawn()
	require.NoError(t, err)

	var gotData ir.Value
	var gotKind ir.Kind
	var gotEntity ir.Entity
	_, err = e.OnPersistent("watch", []Trigger{Inserted("hp")}, func(c *Context) error {
		gotData, _ = c.Event()
		m, ok := c.Trigger()
		require.True(t, ok)
		gotKind = m.Kind
		gotEntity = m.Entity
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.Insert(ctx, ent, "hp", ir.Int(30)))
	assert.Equal(t, ir.Int(30), gotData)
	assert.Equal(t, ir.KindInserted, gotKind)
	assert.Equal(t, ent, gotEntity)
}

func TestEngine_RevokeBeforeFiring(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	runs := 0
	reg, err := e.OnRevokable("r", []Trigger{ResourceMutated("x")}, func(*Context) error {
		runs++
		return nil
	})
	require.NoError(t, err)

	assert.True(t, e.Revoke(reg.Token))
	assert.False(t, e.Revoke(reg.Token), "second revoke is a no-op")
	require.NoError(t, e.SetResource(ctx, "x", ir.Int(1)))

	assert.Zero(t, runs)
	assert.False(t, e.Registry().Has(reg.Unit))
	assert.False(t, e.World().HasUnit(reg.Unit))
}

func TestEngine_RevokeFromInsideRun(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	runs := 0
	var token RevokeToken
	reg, err := e.OnRevokable("r", []Trigger{ResourceMutated("x")}, func(c *Context) error {
		runs++
		assert.True(t, c.Engine().Revoke(token))
		return nil
	})
	require.NoError(t, err)
	token = reg.Token

	require.NoError(t, e.Do(ctx, func(c *Commands) {
		c.SetResource("x", ir.Int(1))
		c.SetResource("x", ir.Int(2))
	}))
	assert.Equal(t, 1, runs)
	assert.False(t, e.World().Alive(reg.Unit))
}

func TestEngine_OnceRunsOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	runs := 0
	reg, err := e.Once("once", []Trigger{BroadcastEvent("go")}, func(*Context) error {
		runs++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.Broadcast(ctx, "go", ir.Null{}))
	require.NoError(t, e.Broadcast(ctx, "go", ir.Null{}))
	assert.Equal(t, 1, runs)
	assert.False(t, e.Registry().Has(reg.Unit))
}

func TestEngine_CleanupReactorLifecycle(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	reg, err := e.Register("R1", []Trigger{ResourceMutated("X")}, Cleanup, func(*Context) error { return nil })
	require.NoError(t, err)

	require.NoError(t, e.SetResource(ctx, "X", ir.Int(1)))
	assert.Equal(t, []string{"R1"}, rec.Names())

	require.NoError(t, e.RemoveTriggers(reg.Unit, ResourceMutated("X")))
	assert.False(t, e.Registry().Has(reg.Unit))

	require.NoError(t, e.SetResource(ctx, "X", ir.Int(2)))
	assert.Equal(t, []string{"R1"}, rec.Names(), "no further runs")
	assert.False(t, e.World().HasUnit(reg.Unit))
	assert.False(t, e.World().Alive(reg.Unit))
}

func TestEngine_RemovedTriggerDropsQueuedReaction(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var log []string
	var target ir.Entity
	_, err := e.OnPersistent("R0", []Trigger{ResourceMutated("y")}, func(c *Context) error {
		log = append(log, "R0")
		return c.Engine().RemoveTriggers(target, ResourceMutated("x"))
	})
	require.NoError(t, err)
	target, err = e.OnPersistent("R1", []Trigger{ResourceMutated("x"), ResourceMutated("z")}, logUnit(&log, "R1"))
	require.NoError(t, err)

	require.NoError(t, e.Do(ctx, func(c *Commands) {
		c.SetResource("y", ir.Int(1))
		c.SetResource("x", ir.Int(1))
	}))
	assert.Equal(t, []string{"R0"}, log)
	assert.Equal(t, []Trigger{ResourceMutated("z")}, e.Registry().Triggers(target))
}

func TestEngine_RemovedTriggerDropsSiblingReaction(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	var log []string
	var sibling ir.Entity
	_, err := e.OnPersistent("R0", []Trigger{ResourceMutated("x")}, func(c *Context) error {
		log = append(log, "R0")
		return c.Engine().RemoveTriggers(sibling, ResourceMutated("x"))
	})
	require.NoError(t, err)
	sibling, err = e.OnPersistent("R1", []Trigger{ResourceMutated("x"), ResourceMutated("z")}, logUnit(&log, "R1"))
	require.NoError(t, err)

	require.NoError(t, e.SetResource(ctx, "x", ir.Int(1)))
	assert.Equal(t, []string{"R0"}, log)

	require.Len(t, rec.Runs, 2)
	assert.Equal(t, "R1", rec.Runs[1].Name)
	assert.Equal(t, ir.OutcomeSkipped, rec.Runs[1].Outcome)

	require.NoError(t, e.SetResource(ctx, "z", ir.Int(1)))
	assert.Equal(t, []string{"R0", "R1"}, log)
}

func TestEngine_AddTriggersNeverRuns(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	runs := 0
	id, err := e.OnPersistent("p", nil, func(*Context) error {
		runs++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.AddTriggers(id, ResourceMutated("x")))
	assert.Zero(t, runs)
	assert.Equal(t, ErrCodeDuplicateTrigger, CodeOf(e.AddTriggers(id, ResourceMutated("x"))))

	require.NoError(t, e.SetResource(ctx, "x", ir.Int(1)))
	assert.Equal(t, 1, runs)
}

func TestEngine_DespawnFiresRemovalsAndDespawn(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	ent, err := e.Spawn()
	require.NoError(t, err)
	components := []string{"a", "b", "c"}
	require.NoError(t, e.Do(ctx, func(c *Commands) {
		for i, name := range components {
			c.Insert(ent, name, ir.Int(int64(i)))
		}
	}))

	removed := map[string]ir.Value{}
	var reactors []ir.Entity
	for _, name := range components {
		reg, err := e.Register("removed-"+name, []Trigger{EntityRemoved(ent, name)}, Cleanup, func(c *Context) error {
			m, _ := c.Trigger()
			v, _ := c.Event()
			removed[m.Name] = v
			return nil
		})
		require.NoError(t, err)
		reactors = append(reactors, reg.Unit)
	}
	despawns := 0
	reg, err := e.Register("gone", []Trigger{Despawned(ent)}, Cleanup, func(*Context) error {
		despawns++
		return nil
	})
	require.NoError(t, err)
	reactors = append(reactors, reg.Unit)
	mutations := 0
	_, err = e.OnPersistent("mutated", []Trigger{EntityMutated(ent, "a")}, func(*Context) error {
		mutations++
		return nil
	})
	require.NoError(t, err)

	rec.Reset()
	require.NoError(t, e.Do(ctx, func(c *Commands) {
		c.Mutate(ent, "a", ir.Int(100))
		c.Despawn(ent)
	}))

	assert.Zero(t, mutations, "reaction queued before the despawn is dropped")
	assert.Equal(t, 1, despawns)
	assert.Equal(t, map[string]ir.Value{"a": ir.Int(100), "b": ir.Int(1), "c": ir.Int(2)}, removed)
	assert.Equal(t, []string{"gone", "removed-a", "removed-b", "removed-c"}, rec.Names())
	assert.False(t, e.World().Alive(ent))
	for _, id := range reactors {
		assert.False(t, e.Registry().Has(id), "reactor %s destroyed", id)
		assert.False(t, e.World().HasUnit(id))
	}
}

func TestEngine_DespawnReactorEntity(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	reg, err := e.Register("r", []Trigger{ResourceMutated("x")}, Persistent, func(*Context) error { return nil })
	require.NoError(t, err)

	require.NoError(t, e.Despawn(ctx, reg.Unit))
	assert.False(t, e.Registry().Has(reg.Unit))
	assert.Zero(t, e.Registry().TriggerCount())
}

func TestEngine_StaleTargetAtRegistration(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	ent, err := e.Spawn()
	require.NoError(t, err)
	require.NoError(t, e.Despawn(ctx, ent))

	reg, err := e.Register("late", []Trigger{Despawned(ent)}, Cleanup, func(*Context) error { return nil })
	require.NoError(t, err)
	assert.False(t, e.Registry().Has(reg.Unit))

	require.NoError(t, e.Flush(ctx))
	assert.False(t, e.World().Alive(reg.Unit))
	assert.Empty(t, rec.Names())
}

func TestEngine_ReentrantCallsJoinDrain(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var log []string
	_, err := e.OnPersistent("writer", []Trigger{BroadcastEvent("go")}, func(c *Context) error {
		assert.True(t, c.Engine().Resolving())
		require.NoError(t, c.Engine().SetResource(c.Context(), "x", ir.Int(5)))
		_, ok := c.World().Resource("x")
		assert.False(t, ok, "writes apply after the unit returns")
		log = append(log, "writer")
		return nil
	})
	require.NoError(t, err)
	_, err = e.OnPersistent("reader", []Trigger{ResourceMutated("x")}, func(c *Context) error {
		v, _ := c.World().Resource("x")
		log = append(log, "reader:"+ir.Format(v))
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.Broadcast(ctx, "go", ir.Null{}))
	assert.Equal(t, []string{"writer", "reader:5"}, log)
	assert.False(t, e.Resolving())
}

func TestEngine_InFlightInvocationDeferred(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var log []string
	b, err := e.SpawnUnit("B", logUnit(&log, "B"))
	require.NoError(t, err)
	runs := 0
	var a ir.Entity
	a, err = e.SpawnUnit("A", func(c *Context) error {
		runs++
		log = append(log, "A")
		if runs == 1 {
			require.NoError(t, e.run(c.Context(), invocation{unit: a, tier: ir.TierUnit}))
			assert.Equal(t, []string{"A"}, log, "in-flight unit is not re-entered")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.Do(ctx, func(c *Commands) {
		c.Schedule(a)
		c.Schedule(b)
	}))
	assert.Equal(t, []string{"A", "A", "B"}, log)
}

func TestEngine_AbsentUnitSkipped(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Schedule(ctx, 999))
	require.Len(t, rec.Runs, 1)
	assert.Equal(t, ir.OutcomeSkipped, rec.Runs[0].Outcome)
}

func TestEngine_QuotaAbortsDrain(t *testing.T) {
	e, _ := newTestEngine(t, WithMaxSteps(10))
	ctx := context.Background()

	runs := 0
	id, err := e.SpawnUnit("forever", func(c *Context) error {
		runs++
		c.Commands().Schedule(c.Unit())
		c.Commands().Schedule(c.Unit())
		return nil
	})
	require.NoError(t, err)

	err = e.Schedule(ctx, id)
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.True(t, IsStepsExceededError(err))
	assert.Equal(t, 10, runs)

	stats := e.Stats()
	assert.Zero(t, stats.Units, "remaining work is discarded")
	assert.False(t, stats.Resolving)
	assert.True(t, e.World().HasUnit(id), "the unit that hit the quota is put back")

	// The engine is usable again.
	runs = 0
	other, err := e.SpawnUnit("once", func(*Context) error { runs++; return nil })
	require.NoError(t, err)
	require.NoError(t, e.Schedule(ctx, other))
	assert.Equal(t, 1, runs)
}

func TestEngine_RefireLimit(t *testing.T) {
	e, _ := newTestEngine(t, WithMaxRefires(5), WithMaxSteps(0))
	ctx := context.Background()

	runs := 0
	id, err := e.OnPersistent("loop", []Trigger{ResourceMutated("n")}, func(c *Context) error {
		runs++
		c.Commands().UpdateResource("n", func(v ir.Value) ir.Value {
			n, _ := ir.AsInt(v)
			return ir.Int(n + 1)
		})
		return nil
	})
	require.NoError(t, err)

	err = e.SetResource(ctx, "n", ir.Int(0))
	require.Error(t, err)
	assert.True(t, IsRefireError(err))
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, id, re.Reactor)
	assert.Equal(t, 5, runs)
}

func TestEngine_GuardedRecursionTerminates(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.OnPersistent("countdown", []Trigger{ResourceMutated("n")}, func(c *Context) error {
		v, _ := c.World().Resource("n")
		if n, _ := ir.AsInt(v); n > 0 {
			c.Commands().SetResource("n", ir.Int(n-1))
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.SetResource(ctx, "n", ir.Int(100)))
	v, _ := e.World().Resource("n")
	assert.Equal(t, ir.Int(0), v)
}

func TestEngine_ErrorPolicies(t *testing.T) {
	boom := errors.New("boom")

	t.Run("log continues siblings", func(t *testing.T) {
		e, rec := newTestEngine(t)
		_, err := e.OnPersistent("bad", []Trigger{ResourceMutated("x")}, func(*Context) error { return boom })
		require.NoError(t, err)
		_, err = e.OnPersistent("good", []Trigger{ResourceMutated("x")}, func(*Context) error { return nil })
		require.NoError(t, err)

		require.NoError(t, e.SetResource(context.Background(), "x", ir.Int(1)))
		require.Len(t, rec.Runs, 2)
		assert.Equal(t, ir.OutcomeError, rec.Runs[0].Outcome)
		assert.Contains(t, rec.Runs[0].Error, "boom")
		assert.Equal(t, ir.OutcomeOK, rec.Runs[1].Outcome)
	})

	t.Run("fatal returned after drain", func(t *testing.T) {
		e, rec := newTestEngine(t)
		_, err := e.OnPersistent("bad", []Trigger{ResourceMutated("x")}, func(*Context) error { return boom },
			WithPolicy(PolicyFatal))
		require.NoError(t, err)
		_, err = e.OnPersistent("good", []Trigger{ResourceMutated("x")}, func(*Context) error { return nil })
		require.NoError(t, err)

		err = e.SetResource(context.Background(), "x", ir.Int(1))
		require.Error(t, err)
		assert.True(t, IsUnitError(err))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"bad", "good"}, rec.Names(), "the drain still completes")
	})

	t.Run("engine default policy", func(t *testing.T) {
		e, _ := newTestEngine(t, WithErrorPolicy(PolicyFatal))
		id, err := e.SpawnUnit("bad", func(*Context) error { return boom }, WithPolicy(PolicyIgnore))
		require.NoError(t, err)
		require.NoError(t, e.Schedule(context.Background(), id))

		id, err = e.SpawnUnit("bad2", func(*Context) error { return boom })
		require.NoError(t, err)
		assert.ErrorIs(t, e.Schedule(context.Background(), id), boom)
	})
}

func TestEngine_CanceledContext(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	runs := 0
	id, err := e.SpawnUnit("u", func(c *Context) error {
		runs++
		cancel()
		c.Commands().Schedule(c.Unit())
		return nil
	})
	require.NoError(t, err)

	err = e.Schedule(ctx, id)
	assert.Equal(t, ErrCodeCanceled, CodeOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, runs)
}

func TestEngine_ClosedAndUninitialized(t *testing.T) {
	e := New(WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, e.Close())

	assert.Equal(t, ErrCodeClosed, CodeOf(e.SetResource(context.Background(), "x", ir.Int(1))))
	_, err := e.SpawnUnit("u", func(*Context) error { return nil })
	assert.Equal(t, ErrCodeClosed, CodeOf(err))
	assert.Equal(t, ErrCodeClosed, CodeOf(e.Close()))

	var zero Engine
	assert.Equal(t, ErrCodeNotInitialized, CodeOf(zero.Flush(context.Background())))
	var nilEngine *Engine
	_, err = nilEngine.Spawn()
	assert.Equal(t, ErrCodeNotInitialized, CodeOf(err))
}

func TestEngine_EmptyBatchIsIdempotent(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	ent, err := e.Spawn()
	require.NoError(t, err)
	_, err = e.Register("r", []Trigger{EntityInserted(ent, "a"), ResourceMutated("x")}, Cleanup, func(*Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, e.Insert(ctx, ent, "a", ir.Int(1)))

	before := e.Stats()
	drains := len(rec.Drains)
	require.NoError(t, e.Do(ctx, func(*Commands) {}))
	require.NoError(t, e.Flush(ctx))

	assert.Equal(t, before, e.Stats())
	assert.Equal(t, drains, len(rec.Drains), "no drain starts without work")
}

func TestEngine_RecordsRunsAndDrains(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	_, err := e.OnPersistent("r", []Trigger{ResourceMutated("x")}, func(*Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, e.SetResource(ctx, "x", ir.Int(1)))

	require.Len(t, rec.Drains, 1)
	assert.Equal(t, "drain-1", rec.Drains[0].ID)
	assert.Equal(t, 1, rec.Drains[0].Steps)

	require.Len(t, rec.Runs, 1)
	run := rec.Runs[0]
	assert.Equal(t, "drain-1", run.DrainID)
	assert.Equal(t, ir.TierReaction, run.Tier)
	assert.Equal(t, "resource_mutated", run.TriggerKind)
	assert.Equal(t, "x", run.TriggerName)
	assert.Equal(t, ir.MustRunID("drain-1", run.Seq, run.Unit), run.ID)
}
