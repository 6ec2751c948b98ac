package app

import (
	"context"
	"errors"
	"fmt"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/planner"
	"go.trai.ch/kiln/internal/engine/session"
	"go.trai.ch/zerr"
)

// Build brings the named targets, or every target, up to date.
func (a *App) Build(ctx context.Context, targetNames []string, opts Options) error {
	project, err := a.load(opts, targetNames)
	if err != nil {
		return err
	}
	sess := a.newSession(project, opts)
	_, err = a.build(ctx, sess, project)
	return err
}

// Rebuild removes every output of the selected targets and builds them again.
func (a *App) Rebuild(ctx context.Context, targetNames []string, opts Options) error {
	project, err := a.load(opts, targetNames)
	if err != nil {
		return err
	}
	if err := a.clean(ctx, a.newSession(project, opts), project); err != nil {
		return err
	}
	_, err = a.build(ctx, a.newSession(project, opts), project)
	return err
}

// Clean removes every output of the selected targets and forgets all
// recorded fingerprints.
func (a *App) Clean(ctx context.Context, targetNames []string, opts Options) error {
	project, err := a.load(opts, targetNames)
	if err != nil {
		return err
	}
	return a.clean(ctx, a.newSession(project, opts), project)
}

func (a *App) clean(ctx context.Context, sess *session.Session, project *domain.Project) error {
	plan, err := a.planner.BuildGraph(ctx, sess, project)
	if err != nil {
		return err
	}
	if err := a.planner.Clean(ctx, plan); err != nil {
		return zerr.Wrap(err, "clean did not remove every output")
	}
	summarize(sess, "cleaned")
	return nil
}

// build plans and runs one build. Graph construction errors are returned
// before any work starts; a failed build prints its summary and returns an
// error wrapping ErrBuildFailed.
func (a *App) build(ctx context.Context, sess *session.Session, project *domain.Project) (*planner.Plan, error) {
	ctx, span := a.startSpan(ctx, "build", ports.WithAttribute("targets", len(project.Targets)))
	defer span.End()

	plan, err := a.planner.BuildGraph(ctx, sess, project)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	g := plan.Graph
	if sess.Debug() {
		if err := domain.PrintTree(sess.Console(), g, g.Root()); err != nil {
			return nil, zerr.Wrap(err, "failed to print dependency tree")
		}
	}
	if err := a.planner.CreateDirectories(plan); err != nil {
		span.RecordError(err)
		return nil, err
	}

	dirty := g.DirtyCount()
	span.SetAttribute("nodes.dirty", dirty)
	a.logger.Debug(fmt.Sprintf("%s of %s out of date", count(dirty, "node", "nodes"), count(g.Len(), "node", "nodes")))

	if err := a.scheduler.RunBuild(ctx, sess, plan); err != nil {
		span.RecordError(err)
		summarize(sess, "failed")
		if !errors.Is(err, domain.ErrBuildFailed) {
			err = errors.Join(domain.ErrBuildFailed, err)
		}
		return plan, err
	}
	summarize(sess, "done")
	return plan, nil
}

func (a *App) startSpan(ctx context.Context, name string, opts ...ports.SpanOption) (context.Context, ports.Span) {
	if a.tracer == nil {
		return ctx, nopSpan{}
	}
	return a.tracer.Start(ctx, name, opts...)
}

type nopSpan struct{}

func (nopSpan) Write(b []byte) (int, error) { return len(b), nil }
func (nopSpan) End()                        {}
func (nopSpan) RecordError(error)           {}
func (nopSpan) SetAttribute(string, any)    {}
