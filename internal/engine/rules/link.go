package rules

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
)

func (e *Engine) prepareLink(g *domain.Graph, n *domain.Node, r domain.LinkRule) bool {
	n.Command = LinkCommand(g, n, r)

	switch n.BuildType {
	case domain.BuildSharedLibrary:
		n.LinkString = SharedLinkString(n.Output)
		n.IncludeInBinary = true
	case domain.BuildStaticLibrary:
		n.LinkString = Quote(n.Output.String())
		n.IncludeInBinary = true
	default:
		n.LinkString = ""
		n.IncludeInBinary = false
	}

	if r.Root || n.Command == "" {
		return false
	}
	return e.fingerprintChanged(n.Output, n.Command)
}

// LinkCommand renders the link or archive command. Root nodes and nodes
// without an output have no command.
func LinkCommand(g *domain.Graph, n *domain.Node, r domain.LinkRule) string {
	if r.Root || n.Output.IsZero() {
		return ""
	}

	deps := n.Dependencies()

	if n.BuildType == domain.BuildStaticLibrary {
		args := []string{r.Archiver, "-rs"}
		if r.Verbose {
			args = append(args, "-v")
		}
		args = append(args, Quote(n.Output.String()))
		for _, id := range deps {
			dep := g.Node(id)
			if dep.BuildType == domain.BuildObject && dep.IncludeInBinary && dep.LinkString != "" {
				args = append(args, dep.LinkString)
			}
		}
		return join(args)
	}

	args := []string{r.Driver}
	if n.BuildType == domain.BuildSharedLibrary {
		args = append(args, "-shared")
	}
	args = append(args, "-o", Quote(n.Output.String()), "-Wl,--start-group")
	for _, id := range deps {
		dep := g.Node(id)
		if dep.IncludeInBinary && dep.LinkString != "" {
			args = append(args, dep.LinkString)
		}
	}
	args = append(args, r.Libs...)
	args = append(args, "-Wl,--end-group")
	args = append(args, r.Flags...)
	args = append(args, RpathFlags(g, n)...)
	return join(args)
}

// SharedLinkString returns "-L<dir> -l<name>" for a shared library output.
func SharedLinkString(out domain.Path) string {
	name := strings.TrimSuffix(out.Base(), filepath.Ext(out.Base()))
	name = strings.TrimPrefix(name, "lib")
	return "-L" + Quote(out.Dir()) + " -l" + name
}

// RpathFlags returns one $ORIGIN-relative rpath flag per distinct directory
// holding a shared library that n links directly.
func RpathFlags(g *domain.Graph, n *domain.Node) []string {
	var dirs []string
	for _, id := range n.Dependencies() {
		dep := g.Node(id)
		if dep.BuildType != domain.BuildSharedLibrary || dep.Output.IsZero() {
			continue
		}
		rel, err := filepath.Rel(n.Output.Dir(), dep.Output.Dir())
		if err != nil {
			rel = dep.Output.Dir()
		}
		if !slices.Contains(dirs, rel) {
			dirs = append(dirs, rel)
		}
	}

	flags := make([]string, 0, len(dirs))
	for _, rel := range dirs {
		origin := "$ORIGIN"
		if rel != "." {
			origin += "/" + filepath.ToSlash(rel)
		}
		flags = append(flags, "-Wl,-rpath,'"+origin+"'")
	}
	return flags
}

func (e *Engine) workLink(ctx context.Context, n *domain.Node, r domain.LinkRule) (Result, error) {
	if r.Root || n.Output.IsZero() || n.Command == "" {
		return Result{}, nil
	}

	res := Result{Description: n.Command}
	if n.BuildType == domain.BuildStaticLibrary {
		// ar appends to an existing archive, so stale members would survive.
		if err := e.fs.RemoveFile(n.Output.String()); err != nil {
			return res, commandFailed(n, "failed to remove old archive", err, 0, "")
		}
	}

	code, out, err := e.fs.RunCommand(ctx, "", n.Command)
	res.Output = out
	if err != nil || code != 0 {
		return res, commandFailed(n, "linking failed", err, code, out)
	}
	if err := e.recordFingerprint(n.Output, n.Command); err != nil {
		return res, commandFailed(n, "linking failed", err, 0, "")
	}
	return res, nil
}
