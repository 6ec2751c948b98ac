package domain_test

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

func addNode(t *testing.T, g *domain.Graph, output string) domain.NodeID {
	t.Helper()
	id, err := g.AddNode(&domain.Node{Output: domain.NewPath(output), Rule: domain.CompileRule{}})
	require.NoError(t, err)
	return id
}

func TestGraph_AddNode_DuplicateOutput(t *testing.T) {
	g := domain.NewGraph()
	addNode(t, g, "obj/a.o")

	_, err := g.AddNode(&domain.Node{Output: domain.NewPath("obj/./a.o")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateOutput))

	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, "obj/a.o", zErr.Metadata()["output"])
}

func TestGraph_AddDependency_Mutual(t *testing.T) {
	g := domain.NewGraph()
	a := addNode(t, g, "a.o")
	main := addNode(t, g, "main")

	g.AddDependency(main, a)
	g.AddSubscriber(a, main)

	assert.Equal(t, []domain.NodeID{a}, g.Node(main).Dependencies())
	assert.Equal(t, []domain.NodeID{main}, g.Node(a).Subscribers())
	assert.Zero(t, g.Node(main).Pending(), "fresh dependency must not count as pending")
}

func TestGraph_AddDependency_CountsDirty(t *testing.T) {
	g := domain.NewGraph()
	a := addNode(t, g, "a.o")
	b := addNode(t, g, "b.o")
	main := addNode(t, g, "main")

	g.Node(a).MarkDirty(true)
	g.AddDependency(main, a)
	g.AddDependency(main, b)

	assert.Equal(t, 1, g.Node(main).Pending())
}

func TestGraph_Validate_Cycle(t *testing.T) {
	g := domain.NewGraph()
	a := addNode(t, g, "A")
	b := addNode(t, g, "B")
	c := addNode(t, g, "C")
	g.AddDependency(a, b)
	g.AddDependency(b, c)
	g.AddDependency(c, a)

	err := g.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCycleDetected))

	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, "A -> B -> C -> A", zErr.Metadata()["cycle"])
}

func TestGraph_PostOrder(t *testing.T) {
	// main -> {a.o, lib}, lib -> b.o
	g := domain.NewGraph()
	main := addNode(t, g, "main")
	a := addNode(t, g, "a.o")
	lib := addNode(t, g, "libx.a")
	b := addNode(t, g, "b.o")
	g.AddDependency(main, a)
	g.AddDependency(main, lib)
	g.AddDependency(lib, b)

	require.NoError(t, g.Validate())
	order := slices.Collect(g.PostOrder())
	require.Len(t, order, 4)

	pos := func(id domain.NodeID) int { return slices.Index(order, id) }
	assert.Less(t, pos(a), pos(main))
	assert.Less(t, pos(lib), pos(main))
	assert.Less(t, pos(b), pos(lib))
}

func TestGraph_Prune(t *testing.T) {
	// root -> {left, right}; left -> l1; right -> r1 (dirty)
	g := domain.NewGraph()
	root := addNode(t, g, "root")
	left := addNode(t, g, "left")
	l1 := addNode(t, g, "l1")
	right := addNode(t, g, "right")
	r1 := addNode(t, g, "r1")
	g.AddDependency(root, left)
	g.AddDependency(root, right)
	g.AddDependency(left, l1)
	g.AddDependency(right, r1)

	g.Node(r1).MarkDirty(true)
	g.Node(right).MarkDirty(true)
	g.Node(root).MarkDirty(true)

	g.Prune(root)

	assert.True(t, g.Node(left).IsPruned())
	assert.True(t, g.Node(l1).IsPruned())
	assert.False(t, g.Node(right).IsPruned())
	assert.False(t, g.Node(r1).IsPruned())
	assert.False(t, g.Node(root).IsPruned())

	// Idempotent.
	g.Prune(root)
	g.Prune(left)
	assert.True(t, g.Node(left).IsPruned())
	assert.False(t, g.Node(root).IsPruned())
	assert.Equal(t, 3, g.DirtyCount())
}

func TestGraph_Prune_FreshTree(t *testing.T) {
	g := domain.NewGraph()
	root := addNode(t, g, "root")
	a := addNode(t, g, "a")
	g.AddDependency(root, a)

	g.Prune(root)

	assert.True(t, g.Node(root).IsPruned())
	assert.True(t, g.Node(a).IsPruned())
	assert.Equal(t, domain.StateDone, g.Node(root).State())
	assert.Zero(t, g.DirtyCount())
}

func TestGraph_MarkDirty_Monotonic(t *testing.T) {
	n := &domain.Node{}
	n.MarkDirty(true)
	n.MarkDirty(false)
	assert.True(t, n.IsDirty())
}

func TestGraph_Arm_AndNotice(t *testing.T) {
	g := domain.NewGraph()
	main := addNode(t, g, "main")
	deps := make([]domain.NodeID, 0, 16)
	for i := range 16 {
		id := addNode(t, g, string(rune('a'+i))+".o")
		g.Node(id).MarkDirty(true)
		g.AddDependency(main, id)
		deps = append(deps, id)
	}
	fresh := addNode(t, g, "fresh.o")
	g.AddDependency(main, fresh)
	g.Node(main).MarkDirty(true)

	g.Arm()
	assert.Equal(t, 16, g.Node(main).Pending())
	assert.ElementsMatch(t, deps, g.Leaves())
	assert.Equal(t, domain.StateDone, g.Node(fresh).State())

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ready []domain.NodeID
	)
	for _, dep := range deps {
		wg.Go(func() {
			r := g.SendSubscribersNotice(dep)
			mu.Lock()
			ready = append(ready, r...)
			mu.Unlock()
		})
	}
	wg.Wait()

	assert.Equal(t, []domain.NodeID{main}, ready, "exactly one notifier releases the subscriber")
	assert.Zero(t, g.Node(main).Pending())
}

func TestNode_Transition(t *testing.T) {
	n := &domain.Node{}
	assert.Equal(t, domain.StateBlocked, n.State())
	assert.True(t, n.Transition(domain.StateBlocked, domain.StateReady))
	assert.False(t, n.Transition(domain.StateBlocked, domain.StateReady), "a node is enqueued at most once")
	n.Finish()
	assert.Equal(t, "done", n.State().String())
}
