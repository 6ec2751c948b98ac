// Package rules implements the staged operations of the build rules:
// prescan, prepare, work and clean.
package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Result is what a node's work produced.
type Result struct {
	// Description is printed in verbose mode.
	Description string
	// Output is the captured stdout/stderr of the command, if any.
	Output string
}

// Engine runs the rule stages against a graph.
type Engine struct {
	fs     ports.FileAccess
	store  ports.FingerprintStore
	logger ports.Logger
}

// NewEngine creates a rule engine.
func NewEngine(fs ports.FileAccess, store ports.FingerprintStore, logger ports.Logger) *Engine {
	return &Engine{fs: fs, store: store, logger: logger}
}

// Prescan reads what a previous build left behind. Only compile nodes have
// anything to read: the dependency-listing file.
func (e *Engine) Prescan(g *domain.Graph, id domain.NodeID) error {
	n := g.Node(id)
	switch n.Rule.(type) {
	case domain.CompileRule:
		return e.prescanCompile(g, n)
	case domain.LinkRule, domain.CopyRule:
		return nil
	default:
		return unknownRule(n)
	}
}

// Prepare decides whether the node is dirty and synthesizes its command.
// Every dependency must already be prepared.
func (e *Engine) Prepare(g *domain.Graph, id domain.NodeID) error {
	n := g.Node(id)
	if n.IsPrepared() {
		return nil
	}

	if !n.Output.IsZero() {
		n.ChangedTime = e.fs.StatTime(n.Output.String())
	}
	dirty := e.stale(g, n)

	switch r := n.Rule.(type) {
	case domain.CompileRule:
		dirty = e.prepareCompile(n, r) || dirty
	case domain.LinkRule:
		dirty = e.prepareLink(g, n, r) || dirty
	case domain.CopyRule:
		dirty = e.prepareCopy(n) || dirty
	default:
		return unknownRule(n)
	}

	n.MarkDirty(dirty)
	n.MarkPrepared()
	return nil
}

// Work executes the node's build step.
func (e *Engine) Work(ctx context.Context, g *domain.Graph, id domain.NodeID) (Result, error) {
	n := g.Node(id)
	switch r := n.Rule.(type) {
	case domain.CompileRule:
		return e.workCompile(ctx, n)
	case domain.LinkRule:
		return e.workLink(ctx, n, r)
	case domain.CopyRule:
		return e.workCopy(n)
	default:
		return Result{}, unknownRule(n)
	}
}

// Clean removes every output of the node. Failures are collected, not fatal.
func (e *Engine) Clean(g *domain.Graph, id domain.NodeID) error {
	n := g.Node(id)
	var errs error
	for _, out := range n.Outputs {
		if slices.Contains(n.Inputs, out) || e.fs.StatTime(out.String()).IsZero() {
			continue
		}
		e.logger.Info(fmt.Sprintf("removing %s...", out))
		if err := e.fs.RemoveFile(out.String()); err != nil {
			errs = errors.Join(errs, zerr.With(zerr.Wrap(err, "failed to remove output"), "path", out.String()))
		}
	}
	return errs
}

// stale applies the timestamp rules shared by every rule kind.
func (e *Engine) stale(g *domain.Graph, n *domain.Node) bool {
	if n.Output.IsZero() {
		for _, dep := range n.Dependencies() {
			if g.Node(dep).IsDirty() {
				return true
			}
		}
		return false
	}

	for _, out := range n.Outputs {
		if e.fs.StatTime(out.String()).IsZero() {
			return true
		}
	}

	for _, in := range n.Inputs {
		if e.fs.StatTime(in.String()).After(n.ChangedTime) {
			return true
		}
	}

	for _, id := range n.Dependencies() {
		dep := g.Node(id)
		if dep.IsDirty() {
			return true
		}
		if e.depTime(dep).After(n.ChangedTime) {
			return true
		}
	}
	return false
}

func (e *Engine) depTime(dep *domain.Node) time.Time {
	if !dep.ChangedTime.IsZero() || dep.Output.IsZero() {
		return dep.ChangedTime
	}
	return e.fs.StatTime(dep.Output.String())
}

// fingerprintChanged reports whether output was last built with a different
// command. An output without a record is not considered changed.
func (e *Engine) fingerprintChanged(output domain.Path, command string) bool {
	if output.IsZero() || e.store == nil {
		return false
	}
	prev, ok := e.store.Get(output.String())
	return ok && prev != e.store.Fingerprint(command)
}

func (e *Engine) recordFingerprint(output domain.Path, command string) error {
	if output.IsZero() || e.store == nil {
		return nil
	}
	if err := e.store.Put(output.String(), e.store.Fingerprint(command)); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to record fingerprint"), "path", output.String())
	}
	return nil
}

// commandFailed builds the error for a failed step and keeps its output for the report.
func commandFailed(n *domain.Node, msg string, cause error, exitCode int, output string) error {
	var err error
	if cause != nil {
		err = zerr.Wrap(errors.Join(domain.ErrCommandFailed, cause), msg)
	} else {
		err = zerr.Wrap(domain.ErrCommandFailed, msg)
	}
	err = zerr.With(err, "path", n.Name())
	if exitCode != 0 {
		err = zerr.With(err, "exit_code", exitCode)
	}
	if output != "" {
		err = zerr.With(err, "output", output)
	}
	return err
}

func unknownRule(n *domain.Node) error {
	panic(fmt.Sprintf("rules: node %s has unsupported rule %T", n.Name(), n.Rule))
}
