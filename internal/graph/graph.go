package graph

import (
	"container/heap"
	"sort"
	"strings"

	"github.com/example/transformkernel/internal/kernelerrors"
)

// Graph is an immutable, validated view over a Spec: canonical node indices,
// sorted adjacency lists, and a deterministic topological order.
//
// Tie-breaking between nodes at equal topological depth is resolved by
// canonical index (insertion order), per spec.md §4.4.2's "implementer's
// choice" — callers must not depend on a particular tie-break beyond it being
// stable for a given Spec.
type Graph struct {
	spec Spec

	nodesByName map[string]int // name -> canonical index
	outgoing    [][]int        // canonical index -> sorted successor indices
	incoming    [][]int        // canonical index -> sorted predecessor indices
}

// New validates spec and builds a Graph.
//
// Validation rejects (spec.md §3, §4.4.2):
//   - empty node names, the reserved name "__input", or duplicate names
//   - edges referencing undeclared nodes (ErrUnknownNode)
//   - directed cycles, including self-loops (ErrCycleDetected)
//
// Duplicate edges are permitted (redundant, not invalid).
func New(spec Spec) (*Graph, error) {
	nodesByName := make(map[string]int, len(spec.Nodes))
	for i, n := range spec.Nodes {
		if strings.TrimSpace(n.Name) == "" {
			return nil, kernelerrors.New(kernelerrors.ErrUnknownNode, "node at index %d has empty name", i)
		}
		if n.Name == ReservedInputName {
			return nil, kernelerrors.New(kernelerrors.ErrUnknownNode, "node name %q is reserved", ReservedInputName)
		}
		if _, exists := nodesByName[n.Name]; exists {
			return nil, kernelerrors.New(kernelerrors.ErrUnknownNode, "duplicate node name %q", n.Name)
		}
		nodesByName[n.Name] = i
	}

	outgoing := make([][]int, len(spec.Nodes))
	incoming := make([][]int, len(spec.Nodes))
	seen := make(map[[2]int]bool)

	for _, e := range spec.Edges {
		from, ok := nodesByName[e.From]
		if !ok {
			return nil, kernelerrors.New(kernelerrors.ErrUnknownNode, "edge references unknown node (from): %q", e.From)
		}
		to, ok := nodesByName[e.To]
		if !ok {
			return nil, kernelerrors.New(kernelerrors.ErrUnknownNode, "edge references unknown node (to): %q", e.To)
		}
		key := [2]int{from, to}
		if seen[key] {
			continue // duplicate edges are semantically redundant, not invalid
		}
		seen[key] = true
		outgoing[from] = append(outgoing[from], to)
		incoming[to] = append(incoming[to], from)
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
		sort.Ints(incoming[i])
	}

	g := &Graph{spec: spec, nodesByName: nodesByName, outgoing: outgoing, incoming: incoming}

	order := g.topoOrderIndices()
	if len(order) != len(spec.Nodes) {
		cycle := g.findCycleDeterministic()
		return nil, kernelerrors.New(kernelerrors.ErrCycleDetected, "%s", cyclePathString(cycle))
	}

	return g, nil
}

// Nodes returns the graph's nodes in declaration order.
func (g *Graph) Nodes() []Node { return g.spec.Nodes }

// Sinks returns the declared sink node names.
func (g *Graph) Sinks() []string { return g.spec.Sinks }

// TopologicalOrder returns node names in a deterministic topological order.
func (g *Graph) TopologicalOrder() []string {
	order := g.topoOrderIndices()
	names := make([]string, len(order))
	for i, idx := range order {
		names[i] = g.spec.Nodes[idx].Name
	}
	return names
}

// Predecessors returns the declared predecessor names of node, sorted by
// canonical index, i.e. by their position in the Spec's node list — the
// deterministic-but-representation-specific order documented in spec.md §9
// Open Question 1.
func (g *Graph) Predecessors(name string) []string {
	idx, ok := g.nodesByName[name]
	if !ok {
		return nil
	}
	preds := g.incoming[idx]
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = g.spec.Nodes[p].Name
	}
	return out
}

// TransformID returns the transform id declared for node name.
func (g *Graph) TransformID(name string) (string, bool) {
	idx, ok := g.nodesByName[name]
	if !ok {
		return "", false
	}
	return g.spec.Nodes[idx].TransformID, true
}

func (g *Graph) topoOrderIndices() []int {
	indeg := make([]int, len(g.spec.Nodes))
	for to, preds := range g.incoming {
		indeg[to] = len(preds)
	}

	ready := &intMinHeap{}
	heap.Init(ready)
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

func (g *Graph) findCycleDeterministic() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	n := len(g.spec.Nodes)
	color := make([]int, n)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] {
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				cycle = append(cycle, v)
				cur := u
				for cur != -1 && cur != v {
					cycle = append(cycle, cur)
					cur = parent[cur]
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := 0; i < n; i++ {
		if color[i] == white && dfs(i) {
			break
		}
	}

	if len(cycle) == 0 {
		return nil
	}
	rev := make([]string, len(cycle))
	for i, idx := range cycle {
		rev[len(cycle)-1-i] = g.spec.Nodes[idx].Name
	}
	return rev
}

func cyclePathString(cycle []string) string {
	if len(cycle) == 0 {
		return "cycle detected"
	}
	return "cycle detected: " + strings.Join(cycle, " -> ")
}

type intMinHeap []int

func (h intMinHeap) Len() int            { return len(h) }
func (h intMinHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)         { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
