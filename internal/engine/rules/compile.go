package rules

import (
	"context"
	"errors"
	"io/fs"

	"go.trai.ch/kiln/internal/core/domain"
)

func (e *Engine) prescanCompile(g *domain.Graph, n *domain.Node) error {
	if n.DepFile.IsZero() {
		return nil
	}
	lines, err := e.fs.ReadLines(n.DepFile.String())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			e.logger.Debug("ignoring unreadable dependency file " + n.DepFile.String() + ": " + err.Error())
		}
		return nil
	}

	df := domain.ParseDepFile(lines)
	n.RecordedCommand = df.Command
	for _, dep := range df.Deps {
		p := domain.NewPath(dep)
		if id, ok := g.Lookup(p); ok && id != n.ID {
			g.AddDependency(n.ID, id)
			continue
		}
		n.AddInput(p)
	}
	return nil
}

// prepareCompile synthesizes the compile command and reports whether it
// differs from the one recorded by the last successful build.
func (e *Engine) prepareCompile(n *domain.Node, r domain.CompileRule) bool {
	n.Command = CompileCommand(n, r)
	n.LinkString = Quote(n.Output.String())
	n.IncludeInBinary = true
	return n.RecordedCommand != n.Command
}

// CompileCommand renders the compiler invocation for a compile node.
func CompileCommand(n *domain.Node, r domain.CompileRule) string {
	args := []string{
		r.Compiler, "-c", Quote(n.Input().String()),
		"-o", Quote(n.Output.String()),
		"-MMD", "-MF", Quote(n.DepFile.String()),
	}
	args = append(args, r.Flags...)
	return join(args)
}

func (e *Engine) workCompile(ctx context.Context, n *domain.Node) (Result, error) {
	res := Result{Description: n.Command}
	code, out, err := e.fs.RunCommand(ctx, "", n.Command)
	res.Output = out
	if err != nil || code != 0 {
		return res, commandFailed(n, "compilation failed", err, code, out)
	}

	if !n.DepFile.IsZero() {
		if err := e.fs.AppendFile(n.DepFile.String(), []byte("\t"+n.Command+"\n")); err != nil {
			return res, commandFailed(n, "failed to record command", err, 0, "")
		}
	}
	return res, nil
}
