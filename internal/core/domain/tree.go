package domain

import (
	"fmt"
	"io"
	"strings"
)

// PrintTree renders the dependency tree below root with each node's rule,
// build type and dirty state. Nodes reachable along several paths are
// expanded once and marked with (*) afterwards. Inputs are listed as "<" leaves.
func PrintTree(w io.Writer, g *Graph, root NodeID) error {
	if root == NoNode || int(root) >= g.Len() {
		return nil
	}
	p := &treePrinter{w: w, g: g, seen: make(map[NodeID]bool)}
	p.line("", g.Node(root), false)
	p.children("", g.Node(root))
	return p.err
}

type treePrinter struct {
	w    io.Writer
	g    *Graph
	seen map[NodeID]bool
	err  error
}

func (p *treePrinter) children(prefix string, n *Node) {
	if p.seen[n.ID] {
		return
	}
	p.seen[n.ID] = true

	deps := n.dependencies
	var inputs []Path
	for _, in := range n.Inputs {
		if _, isNode := p.g.Lookup(in); !isNode {
			inputs = append(inputs, in)
		}
	}

	total := len(deps) + len(inputs)
	i := 0
	for _, in := range inputs {
		i++
		p.printf("%s%s< %s\n", prefix, branch(i == total), in)
	}
	for _, dep := range deps {
		i++
		last := i == total
		child := p.g.Node(dep)
		p.line(prefix+branch(last), child, p.seen[dep] && len(child.dependencies)+len(child.Inputs) > 0)
		p.children(prefix+indent(last), child)
	}
}

func (p *treePrinter) line(prefix string, n *Node, repeated bool) {
	state := "fresh"
	if n.IsDirty() {
		state = "dirty"
	}
	kind := "none"
	if n.Rule != nil {
		kind = n.Rule.Kind()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s [%s %s] %s", prefix, n.Name(), kind, n.BuildType, state)
	if n.IsPruned() {
		b.WriteString(" pruned")
	}
	if repeated {
		b.WriteString(" (*)")
	}
	p.printf("%s\n", b.String())
}

func (p *treePrinter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func branch(last bool) string {
	if last {
		return "└── "
	}
	return "├── "
}

func indent(last bool) string {
	if last {
		return "    "
	}
	return "│   "
}
