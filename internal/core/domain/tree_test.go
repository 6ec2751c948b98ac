package domain_test

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestPrintTree(t *testing.T) {
	g := domain.NewGraph()
	add := func(n *domain.Node) domain.NodeID {
		id, err := g.AddNode(n)
		require.NoError(t, err)
		return id
	}

	root := add(&domain.Node{Target: "root", Rule: domain.LinkRule{Root: true}, BuildType: domain.BuildExecutable})
	app := add(&domain.Node{
		Target: "app", Rule: domain.LinkRule{}, BuildType: domain.BuildExecutable,
		Output: domain.NewPath("build/app"),
	})
	core := add(&domain.Node{
		Target: "core", Rule: domain.LinkRule{}, BuildType: domain.BuildStaticLibrary,
		Output: domain.NewPath("build/libcore.a"),
	})
	mainObj := add(&domain.Node{
		Target: "app", Rule: domain.CompileRule{}, BuildType: domain.BuildObject,
		Output: domain.NewPath("build/obj/app/main.o"),
		Inputs: domain.Paths("src/main.cpp", "include/core.h"),
	})
	coreObj := add(&domain.Node{
		Target: "core", Rule: domain.CompileRule{}, BuildType: domain.BuildObject,
		Output: domain.NewPath("build/obj/core/core.o"),
		Inputs: domain.Paths("src/core.cpp"),
	})
	test := add(&domain.Node{
		Target: "core_test", Rule: domain.LinkRule{}, BuildType: domain.BuildTest,
		Output: domain.NewPath("build/core_test"),
	})

	g.AddDependency(root, app)
	g.AddDependency(root, test)
	g.AddDependency(app, mainObj)
	g.AddDependency(app, core)
	g.AddDependency(core, coreObj)
	g.AddDependency(test, core)

	for _, id := range []domain.NodeID{root, app, mainObj} {
		g.Node(id).MarkDirty(true)
	}
	g.Prune(root)

	var buf bytes.Buffer
	require.NoError(t, domain.PrintTree(&buf, g, root))

	gold := goldie.New(t)
	gold.Assert(t, "tree", buf.Bytes())
}

func TestPrintTree_NoRoot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, domain.PrintTree(&buf, domain.NewGraph(), domain.NoNode))
	require.Zero(t, buf.Len())
}
