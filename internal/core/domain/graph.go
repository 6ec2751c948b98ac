// Package domain contains the core build model: nodes, rules, targets and the dependency graph.
package domain

import (
	"iter"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Graph is the arena that owns every node of one build pass.
// Nodes reference each other only through NodeID handles.
type Graph struct {
	nodes          []*Node
	byOutput       map[Path]NodeID
	root           NodeID
	executionOrder []NodeID
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		byOutput: make(map[Path]NodeID),
		root:     NoNode,
	}
}

// AddNode moves n into the arena and returns its handle.
// Two nodes may not share an output path.
func (g *Graph) AddNode(n *Node) (NodeID, error) {
	if !n.Output.IsZero() {
		if _, exists := g.byOutput[n.Output]; exists {
			return NoNode, zerr.With(zerr.Wrap(ErrDuplicateOutput, "failed to add node"), "output", n.Output.String())
		}
	}
	id := NodeID(len(g.nodes))
	n.ID = id
	if len(n.Outputs) == 0 && !n.Output.IsZero() {
		n.Outputs = []Path{n.Output}
	}
	g.nodes = append(g.nodes, n)
	for _, out := range n.Outputs {
		if _, exists := g.byOutput[out]; !exists {
			g.byOutput[out] = id
		}
	}
	g.executionOrder = nil
	return id, nil
}

// Node returns the node behind a handle. It panics on a handle that does not
// belong to this graph.
func (g *Graph) Node(id NodeID) *Node {
	return g.nodes[id]
}

// Lookup finds the node that produces path.
func (g *Graph) Lookup(path Path) (NodeID, bool) {
	id, ok := g.byOutput[path]
	return id, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes iterates over all nodes in insertion order.
func (g *Graph) Nodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, n := range g.nodes {
			if !yield(n) {
				return
			}
		}
	}
}

// SetRoot records the synthetic node that aggregates every target.
func (g *Graph) SetRoot(id NodeID) {
	g.root = id
}

// Root returns the aggregate node, or NoNode.
func (g *Graph) Root() NodeID {
	return g.root
}

// AddDependency makes node wait for dep and registers node as a subscriber of dep.
// Adding an existing edge is a no-op. If dep is already dirty the pending
// counter of node is incremented.
func (g *Graph) AddDependency(node, dep NodeID) {
	n, d := g.nodes[node], g.nodes[dep]
	if node == dep || slices.Contains(n.dependencies, dep) {
		return
	}
	n.dependencies = append(n.dependencies, dep)
	d.subscribers = append(d.subscribers, node)
	if d.dirty {
		n.pending.Add(1)
	}
	g.executionOrder = nil
}

// AddSubscriber is AddDependency seen from the dependency side.
func (g *Graph) AddSubscriber(dep, subscriber NodeID) {
	g.AddDependency(subscriber, dep)
}

// Validate checks that the graph is acyclic and computes a post-order in
// which every dependency precedes its dependents.
func (g *Graph) Validate() error {
	order := make([]NodeID, 0, len(g.nodes))
	visited := make([]uint8, len(g.nodes)) // 0: unvisited, 1: visiting, 2: visited
	var path []NodeID

	var visit func(u NodeID) error
	visit = func(u NodeID) error {
		visited[u] = 1
		path = append(path, u)

		for _, dep := range g.nodes[u].dependencies {
			switch visited[dep] {
			case 1:
				return g.cycleError(path, dep)
			case 0:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		visited[u] = 2
		path = path[:len(path)-1]
		order = append(order, u)
		return nil
	}

	for id := range g.nodes {
		if visited[id] == 0 {
			if err := visit(NodeID(id)); err != nil {
				return err
			}
		}
	}

	g.executionOrder = order
	return nil
}

func (g *Graph) cycleError(path []NodeID, dep NodeID) error {
	start := slices.Index(path, dep)
	names := make([]string, 0, len(path)-start+1)
	for _, id := range path[start:] {
		names = append(names, g.nodes[id].Name())
	}
	names = append(names, g.nodes[dep].Name())
	return zerr.With(zerr.Wrap(ErrCycleDetected, "invalid dependency graph"), "cycle", strings.Join(names, " -> "))
}

// PostOrder yields handles so that every dependency comes before its
// dependents. Validate must have succeeded since the last mutation.
func (g *Graph) PostOrder() iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		for _, id := range g.executionOrder {
			if !yield(id) {
				return
			}
		}
	}
}

// Prune removes fresh subtrees below id from further traversal.
// Dependencies are pruned first; a node is pruned only when it is fresh and
// every dependency was pruned. Calling Prune again is a no-op.
func (g *Graph) Prune(id NodeID) {
	n := g.nodes[id]
	if n.pruneVisited {
		return
	}
	n.pruneVisited = true

	allPruned := true
	for _, dep := range n.dependencies {
		g.Prune(dep)
		if !g.nodes[dep].pruned {
			allPruned = false
		}
	}

	if allPruned && !n.dirty {
		n.pruned = true
		n.Finish()
	}
}

// Arm resets every pending counter to the number of dirty, unpruned
// dependencies and puts live nodes in the Blocked state. Fresh nodes never
// run, so nothing waits for them.
func (g *Graph) Arm() {
	for _, n := range g.nodes {
		if n.pruned || !n.dirty {
			n.Finish()
			n.pending.Store(0)
			continue
		}
		var pending int32
		for _, dep := range n.dependencies {
			d := g.nodes[dep]
			if d.dirty && !d.pruned {
				pending++
			}
		}
		n.pending.Store(pending)
		n.state.Store(uint32(StateBlocked))
	}
}

// Notice tells id that one of its dependencies finished.
// It returns true for exactly one caller: the one that released the last
// pending dependency. Safe for concurrent use.
func (g *Graph) Notice(id NodeID) bool {
	return g.nodes[id].pending.Add(-1) == 0
}

// SendSubscribersNotice notifies every live subscriber of id and returns the
// ones that became ready.
func (g *Graph) SendSubscribersNotice(id NodeID) []NodeID {
	var ready []NodeID
	for _, sub := range g.nodes[id].subscribers {
		s := g.nodes[sub]
		if s.pruned || !s.dirty {
			continue
		}
		if g.Notice(sub) {
			ready = append(ready, sub)
		}
	}
	return ready
}

// Leaves returns the dirty, unpruned nodes with nothing left to wait for.
func (g *Graph) Leaves() []NodeID {
	var leaves []NodeID
	for _, n := range g.nodes {
		if n.dirty && !n.pruned && n.pending.Load() == 0 {
			leaves = append(leaves, n.ID)
		}
	}
	return leaves
}

// DirtyCount returns the number of nodes that will run work.
func (g *Graph) DirtyCount() int {
	count := 0
	for _, n := range g.nodes {
		if n.dirty && !n.pruned {
			count++
		}
	}
	return count
}
