package planner

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/rules"
)

// WriteNinja writes a build.ninja equivalent of the plan. Each node becomes
// one build edge; its inputs are explicit and its dependencies implicit.
func WriteNinja(w io.Writer, plan *Plan) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# Generated by kiln. Do not edit.")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "rule run")
	fmt.Fprintln(bw, "  command = $cmd")
	fmt.Fprintln(bw, "  description = $desc")

	g := plan.Graph
	var defaults []string
	for _, id := range plan.Order {
		n := g.Node(id)
		if n.Output.IsZero() {
			for _, dep := range n.Dependencies() {
				if out := g.Node(dep).Output; !out.IsZero() {
					defaults = append(defaults, ninjaPath(out.String()))
				}
			}
			continue
		}

		// ninja consumes the depfile itself, so it is not declared as an output.
		var outs []string
		for _, out := range n.Outputs {
			if out != n.DepFile {
				outs = append(outs, ninjaPath(out.String()))
			}
		}
		var ins []string
		for _, in := range n.Inputs {
			if _, isNode := g.Lookup(in); !isNode {
				ins = append(ins, ninjaPath(in.String()))
			}
		}
		var implicit []string
		for _, dep := range n.Dependencies() {
			if out := g.Node(dep).Output; !out.IsZero() {
				implicit = append(implicit, ninjaPath(out.String()))
			}
		}

		fmt.Fprintln(bw)
		fmt.Fprintf(bw, "build %s: run", strings.Join(outs, " "))
		if len(ins) > 0 {
			fmt.Fprintf(bw, " %s", strings.Join(ins, " "))
		}
		if len(implicit) > 0 {
			fmt.Fprintf(bw, " | %s", strings.Join(implicit, " "))
		}
		fmt.Fprintln(bw)
		fmt.Fprintf(bw, "  cmd = %s\n", ninjaValue(ninjaCommand(n)))
		fmt.Fprintf(bw, "  desc = %s %s\n", n.Rule.Kind(), ninjaValue(n.Output.String()))
		if !n.DepFile.IsZero() {
			fmt.Fprintf(bw, "  depfile = %s\n", ninjaValue(n.DepFile.String()))
			fmt.Fprintln(bw, "  deps = gcc")
		}
	}

	if len(defaults) > 0 {
		fmt.Fprintln(bw)
		fmt.Fprintf(bw, "build all: phony %s\n", strings.Join(defaults, " "))
		fmt.Fprintln(bw, "default all")
	}
	return bw.Flush()
}

func ninjaCommand(n *domain.Node) string {
	switch n.Rule.(type) {
	case domain.CopyRule:
		return rules.CopyCommand(n)
	default:
		return n.Command
	}
}

// ninjaPath escapes a path for a build line.
func ninjaPath(p string) string {
	r := strings.NewReplacer("$", "$$", " ", "$ ", ":", "$:")
	return r.Replace(p)
}

// ninjaValue escapes a variable value.
func ninjaValue(v string) string {
	return strings.ReplaceAll(v, "$", "$$")
}
