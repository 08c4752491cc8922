// Package graph implements the DAG model of spec.md §3 (GraphSpec) and §4.4.2
// (scheduling): node/edge validation, cycle rejection, and a deterministic
// topological order.
//
// The construction and validation discipline — canonical indices, sorted
// adjacency lists, Kahn's-algorithm-with-a-min-heap for a reproducible
// ordering, DFS-based cycle witness extraction — is carried over from the
// teacher repo's internal/dag/taskgraph.go and validate.go, generalized from
// core.Task nodes to the kernel's {name, transform_id} nodes.
package graph

// Node is one entry of a GraphSpec (spec.md §3): a named invocation of a
// registered transform.
type Node struct {
	Name        string
	TransformID string
}

// Edge represents a dependency: To can only fire after From has produced
// output (spec.md §3).
type Edge struct {
	From string
	To   string
}

// Spec is the transient, per-execution graph definition submitted by a caller.
type Spec struct {
	Nodes []Node
	Edges []Edge
	Sinks []string
}

// ReservedInputName is the pseudo-node name used to address the root input
// state for nodes with no predecessors (spec.md §4.4.3 step 1).
const ReservedInputName = "__input"
