package domain

import (
	"slices"
	"sync/atomic"
	"time"
)

// NodeID is a stable handle into a Graph's node arena.
type NodeID int

// NoNode is the handle returned when no node exists.
const NoNode NodeID = -1

// NodeState is the scheduling state of a node.
type NodeState uint32

const (
	// StateBlocked means the node still waits for at least one dependency.
	StateBlocked NodeState = iota
	// StateReady means the node sits in the ready-queue.
	StateReady
	// StateRunning means a worker has claimed the node.
	StateRunning
	// StateDone means the node finished, was skipped by an abort, or never needed to run.
	StateDone
)

// String returns the state name.
func (s NodeState) String() string {
	switch s {
	case StateBlocked:
		return "blocked"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Node is one build artifact together with its build metadata.
// Edges are handles into the owning Graph; a node never owns its neighbours.
type Node struct {
	ID        NodeID
	Target    string
	Rule      Rule
	BuildType BuildType

	// Output is the primary artifact. Outputs holds Output plus implicit
	// products such as the dependency-listing file.
	Output  Path
	Outputs []Path
	Inputs  []Path
	DepFile Path

	// Command is synthesized during prepare. RecordedCommand is the command
	// the previous successful build stored in the dependency-listing file.
	Command         string
	RecordedCommand string

	LinkString      string
	IncludeInBinary bool

	// ChangedTime is the modification time of Output; zero means never built.
	ChangedTime time.Time

	dirty        bool
	prepared     bool
	pruned       bool
	pruneVisited bool
	dependencies []NodeID
	subscribers  []NodeID
	pending      atomic.Int32
	state        atomic.Uint32
}

// Input returns the first input, or the zero Path.
func (n *Node) Input() Path {
	if len(n.Inputs) == 0 {
		return Path{}
	}
	return n.Inputs[0]
}

// AddInput appends p unless it is already an input.
func (n *Node) AddInput(p Path) {
	if p.IsZero() || slices.Contains(n.Inputs, p) {
		return
	}
	n.Inputs = append(n.Inputs, p)
}

// MarkDirty sets the dirty flag. Dirtiness never clears within a build pass,
// so MarkDirty(false) on a dirty node has no effect.
func (n *Node) MarkDirty(dirty bool) {
	n.dirty = n.dirty || dirty
}

// IsDirty reports whether the node must run its work this pass.
func (n *Node) IsDirty() bool {
	return n.dirty
}

// MarkPrepared records that prepare has run for this node.
func (n *Node) MarkPrepared() {
	n.prepared = true
}

// IsPrepared reports whether prepare has run for this node.
func (n *Node) IsPrepared() bool {
	return n.prepared
}

// IsPruned reports whether the node was removed from traversal.
func (n *Node) IsPruned() bool {
	return n.pruned
}

// Dependencies returns the handles this node waits for.
func (n *Node) Dependencies() []NodeID {
	return slices.Clone(n.dependencies)
}

// Subscribers returns the handles waiting for this node.
func (n *Node) Subscribers() []NodeID {
	return slices.Clone(n.subscribers)
}

// Pending returns the number of unfinished dependencies.
func (n *Node) Pending() int {
	return int(n.pending.Load())
}

// State returns the scheduling state.
func (n *Node) State() NodeState {
	return NodeState(n.state.Load())
}

// Transition moves the node from one state to another.
// It returns false if the node was not in the expected state.
func (n *Node) Transition(from, to NodeState) bool {
	return n.state.CompareAndSwap(uint32(from), uint32(to))
}

// Finish marks the node Done regardless of its current state.
func (n *Node) Finish() {
	n.state.Store(uint32(StateDone))
}

// Name returns the label used in logs: the output path, or the target name
// for nodes without an output.
func (n *Node) Name() string {
	if !n.Output.IsZero() {
		return n.Output.String()
	}
	return n.Target
}
