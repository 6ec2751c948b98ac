// Package planner turns a loaded project into a prepared dependency graph.
package planner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/rules"
	"go.trai.ch/kiln/internal/engine/session"
	"go.trai.ch/zerr"
)

// Plan is a prepared graph together with the order its rules were prepared in.
type Plan struct {
	Project *domain.Project
	Graph   *domain.Graph
	// Order lists every node so that dependencies precede their dependents.
	Order []domain.NodeID
	// Targets maps each target name to its top-level nodes: the link node for
	// linked targets, every node for object and copy targets.
	Targets map[string][]domain.NodeID
}

// Planner builds plans.
type Planner struct {
	fs     ports.FileAccess
	rules  *rules.Engine
	store  ports.FingerprintStore
	logger ports.Logger
}

// New creates a planner.
func New(fs ports.FileAccess, engine *rules.Engine, store ports.FingerprintStore, logger ports.Logger) *Planner {
	return &Planner{fs: fs, rules: engine, store: store, logger: logger}
}

// BuildGraph creates one node per artifact of every target, wires the edges,
// and runs prescan over every node followed by prepare in post-order. Fresh
// subtrees are pruned and pending counters armed before it returns.
func (p *Planner) BuildGraph(ctx context.Context, sess *session.Session, project *domain.Project) (*Plan, error) {
	if project == nil || len(project.Targets) == 0 {
		return nil, domain.ErrNoTargets
	}

	if err := p.store.Load(project.Root); err != nil {
		return nil, err
	}

	b := &graphBuilder{
		p:       p,
		sess:    sess,
		project: project,
		g:       domain.NewGraph(),
		links:   make(map[string]domain.NodeID),
		targets: make(map[string][]domain.NodeID),
	}
	if err := b.build(ctx); err != nil {
		return nil, err
	}

	g := b.g
	for n := range g.Nodes() {
		if err := p.rules.Prescan(g, n.ID); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	order := slices.Collect(g.PostOrder())
	for _, id := range order {
		if err := p.rules.Prepare(g, id); err != nil {
			return nil, err
		}
	}

	g.Prune(g.Root())
	g.Arm()

	return &Plan{Project: project, Graph: g, Order: order, Targets: b.targets}, nil
}

type graphBuilder struct {
	p       *Planner
	sess    *session.Session
	project *domain.Project
	g       *domain.Graph
	links   map[string]domain.NodeID
	targets map[string][]domain.NodeID
}

func (b *graphBuilder) build(ctx context.Context) error {
	for _, t := range b.project.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.Name == domain.RootTargetName {
			return zerr.With(zerr.Wrap(domain.ErrConfiguration, "target name is reserved"), "target", t.Name)
		}
		if err := b.addTarget(t); err != nil {
			return zerr.With(err, "target", t.Name)
		}
	}

	for _, t := range b.project.Targets {
		if err := b.linkTarget(t); err != nil {
			return err
		}
	}

	root, err := b.g.AddNode(&domain.Node{
		Target:    domain.RootTargetName,
		Rule:      domain.LinkRule{Root: true},
		BuildType: domain.BuildExecutable,
	})
	if err != nil {
		return err
	}
	for _, t := range b.project.Targets {
		for _, id := range b.targets[t.Name] {
			b.g.AddDependency(root, id)
		}
	}
	b.g.SetRoot(root)
	b.targets[domain.RootTargetName] = []domain.NodeID{root}
	return nil
}

func (b *graphBuilder) addTarget(t domain.Target) error {
	sources, err := b.sources(t)
	if err != nil {
		return err
	}

	if t.BuildType == domain.BuildCopy {
		for _, src := range sources {
			out := filepath.Join(b.dir(t), filepath.Base(src))
			id, err := b.add(&domain.Node{
				Target:    t.Name,
				Rule:      domain.CopyRule{},
				BuildType: domain.BuildCopy,
				Output:    domain.NewPath(out),
				Inputs:    domain.Paths(src),
			})
			if err != nil {
				return err
			}
			b.targets[t.Name] = append(b.targets[t.Name], id)
		}
		return nil
	}

	var objects []domain.NodeID
	for _, src := range sources {
		compiler, ok := b.compilerFor(src)
		if !ok {
			b.p.logger.Debug(fmt.Sprintf("%s: skipping %s, not a C or C++ source", t.Name, src))
			continue
		}
		id, err := b.add(b.compileNode(t, src, compiler))
		if err != nil {
			return err
		}
		objects = append(objects, id)
	}
	if len(objects) == 0 {
		b.p.logger.Warn(fmt.Sprintf("target %s has no sources", t.Name))
	}

	if t.BuildType == domain.BuildObject {
		b.targets[t.Name] = objects
		return nil
	}

	link, err := b.add(&domain.Node{
		Target: t.Name,
		Rule: domain.LinkRule{
			Driver:   b.project.Toolchain.CXX,
			Archiver: b.project.Toolchain.AR,
			Libs:     t.Libs,
			Flags:    t.LinkFlags,
			Verbose:  b.sess != nil && b.sess.Verbose(),
		},
		BuildType: t.BuildType,
		Output:    domain.NewPath(filepath.Join(b.dir(t), ArtifactName(t))),
	})
	if err != nil {
		return err
	}
	for _, obj := range objects {
		b.g.AddDependency(link, obj)
	}
	b.links[t.Name] = link
	b.targets[t.Name] = []domain.NodeID{link}
	return nil
}

func (b *graphBuilder) linkTarget(t domain.Target) error {
	if len(t.Link) == 0 {
		return nil
	}
	node, ok := b.links[t.Name]
	if !ok {
		return zerr.With(zerr.Wrap(domain.ErrConfiguration, "only linked targets may link other targets"), "target", t.Name)
	}
	for _, ref := range t.Link {
		dep, ok := b.links[ref]
		if !ok {
			return zerr.With(zerr.With(zerr.Wrap(errors.Join(domain.ErrConfiguration, domain.ErrUnknownTarget),
				"invalid link reference"), "target", t.Name), "link", ref)
		}
		if bt := b.g.Node(dep).BuildType; !bt.IsLibrary() {
			return zerr.With(zerr.With(zerr.Wrap(domain.ErrConfiguration, "cannot link against a "+bt.String()),
				"target", t.Name), "link", ref)
		}
		b.g.AddDependency(node, dep)
	}
	return nil
}

func (b *graphBuilder) sources(t domain.Target) ([]string, error) {
	var out []string
	for _, pattern := range t.Sources {
		matches, err := b.p.fs.Glob(b.path(pattern))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrConfiguration, err), "invalid source pattern"), "pattern", pattern)
		}
		for _, m := range matches {
			if !slices.Contains(out, m) {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (b *graphBuilder) compileNode(t domain.Target, src, compiler string) *domain.Node {
	rel, err := filepath.Rel(b.project.Root, src)
	if err != nil || b.project.Root == "" {
		rel = src
	}
	base := filepath.Join(b.objDir(t), t.Name, domain.RemoveDoubleDots(domain.StripExtension(rel)))
	obj, dep := base+".o", base+".d"

	return &domain.Node{
		Target:    t.Name,
		Rule:      domain.CompileRule{Compiler: compiler, Flags: b.compileFlags(t, src)},
		BuildType: domain.BuildObject,
		Output:    domain.NewPath(obj),
		Outputs:   domain.Paths(obj, dep),
		Inputs:    domain.Paths(src),
		DepFile:   domain.NewPath(dep),
	}
}

func (b *graphBuilder) compileFlags(t domain.Target, src string) []string {
	flags := slices.Clone(t.Flags)
	if isC(src) {
		flags = append(flags, t.CFlags...)
	} else {
		flags = append(flags, t.CppFlags...)
	}
	for _, inc := range t.Includes {
		flags = append(flags, rules.Quote("-I"+b.path(inc)))
	}
	for _, inc := range t.SysIncludes {
		flags = append(flags, "-isystem", rules.Quote(b.path(inc)))
	}
	for _, def := range t.Defines {
		flags = append(flags, rules.Quote("-D"+def))
	}
	if t.BuildType == domain.BuildSharedLibrary {
		flags = append(flags, "-fPIC")
	}
	return flags
}

func (b *graphBuilder) compilerFor(src string) (string, bool) {
	switch filepath.Ext(src) {
	case ".c":
		return b.project.Toolchain.CC, true
	case ".cc", ".cpp", ".cxx", ".c++", ".C":
		return b.project.Toolchain.CXX, true
	default:
		return "", false
	}
}

func (b *graphBuilder) add(n *domain.Node) (domain.NodeID, error) {
	id, err := b.g.AddNode(n)
	if err != nil {
		return domain.NoNode, errors.Join(domain.ErrConfiguration, err)
	}
	return id, nil
}

func (b *graphBuilder) dir(t domain.Target) string {
	return b.path(t.Dir)
}

func (b *graphBuilder) objDir(t domain.Target) string {
	if t.ObjDir == "" {
		return filepath.Join(b.dir(t), "obj")
	}
	return b.path(t.ObjDir)
}

func (b *graphBuilder) path(p string) string {
	if filepath.IsAbs(p) || b.project.Root == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(b.project.Root, p)
}

// ArtifactName returns the file name a linked target produces.
func ArtifactName(t domain.Target) string {
	name := t.Output
	if name == "" {
		name = t.Name
	}
	switch t.BuildType {
	case domain.BuildStaticLibrary:
		return "lib" + strings.TrimPrefix(name, "lib") + ".a"
	case domain.BuildSharedLibrary:
		return "lib" + strings.TrimPrefix(name, "lib") + ".so"
	default:
		return name
	}
}

func isC(src string) bool {
	return filepath.Ext(src) == ".c"
}
