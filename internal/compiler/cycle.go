package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ripple/internal/ir"
)

// CycleWarning represents a potential cycle between reactors.
//
// Cycles are warnings, not errors, because they may be intentional:
// countdowns guarded by a `when` clause and self-scheduling units terminate
// on their own. The engine's refire limit and step quota catch the ones
// that don't.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on a reactor set.
//
// The algorithm:
//  1. Build a reactor → reactor graph: an edge a → b exists when one of a's
//     actions writes something b triggers on, or a runs or sends to b
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a potential cycle
//
// Guarded reactors are reported at level "info", since the guard is what
// usually ends the recursion. Output order follows declaration order.
func AnalyzeCycles(specs []ir.ReactorSpec) []CycleWarning {
	if len(specs) == 0 {
		return []CycleWarning{}
	}

	graph := buildDependencyGraph(specs)
	sccs := tarjanSCC(graph)

	guarded := make(map[string]bool, len(specs))
	for _, spec := range specs {
		guarded[spec.ID] = spec.When != nil
	}

	var warnings []CycleWarning
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph, guarded))
		}
	}
	slices.SortStableFunc(warnings, func(a, b CycleWarning) int {
		return graph.pos[a.Path[0]] - graph.pos[b.Path[0]]
	})
	return warnings
}

// dependencyGraph maps reactor id → reactors it could cause to run. Nodes
// keeps declaration order so traversal is deterministic.
type dependencyGraph struct {
	nodes []string
	pos   map[string]int
	edges map[string][]string
}

// signal is what an action emits and a trigger listens for. Targets are
// ignored: labels resolve at bind time, so any two same-kind signals with the
// same name may meet.
type signal struct {
	kind string
	name string
}

// buildDependencyGraph constructs the reactor dependency graph.
//
// For each reactor:
//   - Collect the signals its actions emit
//   - Find all reactors whose triggers listen for one of those signals
//   - Add edges: this reactor → listening reactors, plus direct run/send edges
func buildDependencyGraph(specs []ir.ReactorSpec) dependencyGraph {
	g := dependencyGraph{
		pos:   make(map[string]int, len(specs)),
		edges: make(map[string][]string, len(specs)),
	}
	listeners := make(map[signal][]string)
	for i, spec := range specs {
		if _, dup := g.pos[spec.ID]; dup {
			continue
		}
		g.nodes = append(g.nodes, spec.ID)
		g.pos[spec.ID] = i
		for _, t := range spec.Triggers {
			s := signal{kind: t.Kind, name: t.Name}
			if !slices.Contains(listeners[s], spec.ID) {
				listeners[s] = append(listeners[s], spec.ID)
			}
		}
	}

	for _, spec := range specs {
		var out []string
		link := func(id string) {
			if _, ok := g.pos[id]; ok && !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
		for _, a := range spec.Actions {
			for _, s := range emits(a) {
				for _, id := range listeners[s] {
					link(id)
				}
			}
			switch a.Op {
			case ir.OpRun, ir.OpSend:
				if a.Unit == ir.RefSelf {
					link(spec.ID)
				} else {
					link(a.Unit)
				}
			}
		}
		g.edges[spec.ID] = append(g.edges[spec.ID], out...)
	}
	return g
}

// emits returns the signals an action fires when applied.
func emits(a ir.ActionSpec) []signal {
	switch a.Op {
	case ir.OpSetResource, ir.OpAddResource, ir.OpTouchResource:
		return []signal{{kind: ir.KindResourceMutated.String(), name: a.Name}}
	case ir.OpInsert:
		return []signal{{kind: ir.KindInserted.String(), name: a.Name}}
	case ir.OpMutate, ir.OpAddComponent:
		return []signal{{kind: ir.KindMutated.String(), name: a.Name}}
	case ir.OpRemove:
		return []signal{{kind: ir.KindRemoved.String(), name: a.Name}}
	case ir.OpBroadcast:
		return []signal{{kind: ir.KindBroadcast.String(), name: a.Name}}
	case ir.OpSendEntityEvent:
		return []signal{{kind: ir.KindEntityEvent.String(), name: a.Name}}
	case ir.OpDespawn:
		return []signal{{kind: ir.KindDespawned.String()}}
	case ir.OpSpawn:
		obj, _ := a.Value.(ir.Object)
		out := make([]signal, 0, len(obj))
		for _, name := range obj.SortedKeys() {
			out = append(out, signal{kind: ir.KindInserted.String(), name: name})
		}
		return out
	}
	return nil
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, g dependencyGraph) bool {
	return slices.Contains(g.edges[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of reactor ids in
// declaration order. Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(g dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.SortFunc(scc, func(a, b string) int { return g.pos[a] - g.pos[b] })
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// For self-loops, the path is [id, id]. For multi-node cycles, the path is a
// traversal starting at the earliest-declared member.
func cycleSCCToWarning(scc []string, g dependencyGraph, guarded map[string]bool) CycleWarning {
	level := "info"
	for _, id := range scc {
		if !guarded[id] {
			level = "warning"
			break
		}
	}

	if len(scc) == 1 {
		id := scc[0]
		return CycleWarning{
			Path:    []string{id, id},
			Message: fmt.Sprintf("Self-triggering reactor detected: %s → %s", id, id),
			Level:   level,
		}
	}

	path := reconstructCyclePath(scc, g)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential cycle detected: %s", strings.Join(path, " → ")),
		Level:   level,
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Start at the first node in the SCC, follow edges to other SCC members, and
// stop on returning to the start node.
func reconstructCyclePath(scc []string, g dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
