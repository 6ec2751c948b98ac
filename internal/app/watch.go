package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"go.trai.ch/kiln/internal/adapters/fs" //nolint:depguard // state dir name
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/planner"
	"golang.org/x/sync/errgroup"
)

// Watch builds the selected targets, then rebuilds them whenever a file below
// the project root changes, until ctx is cancelled. Changes to build outputs
// are ignored. Each rebuild reloads kiln.yaml and runs in a fresh session.
func (a *App) Watch(ctx context.Context, targetNames []string, opts Options) error {
	project, err := a.load(opts, targetNames)
	if err != nil {
		return err
	}
	plan, err := a.build(ctx, a.newSession(project, opts), project)
	if err := a.report(err); err != nil {
		return err
	}
	ignore := newOutputFilter(project.Root, plan)

	if err := a.watcher.Start(ctx, []string{project.Root}); err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("watching %s", project.Root))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		return a.watcher.Stop()
	})
	eg.Go(func() error {
		defer cancel()
		for batch := range a.watcher.Events() {
			changed := ignore.sources(batch)
			if len(changed) == 0 {
				continue
			}
			a.logger.Info(fmt.Sprintf("%s changed", count(len(changed), "file", "files")))
			for _, path := range changed {
				a.logger.Debug(path)
			}

			project, err := a.load(opts, targetNames)
			if err != nil {
				a.logger.Error(err)
				continue
			}
			plan, err := a.build(ctx, a.newSession(project, opts), project)
			if err := a.report(err); err != nil {
				a.logger.Error(err)
				continue
			}
			ignore = newOutputFilter(project.Root, plan)
		}
		return nil
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// report drops failed-build errors, whose output is already on the console,
// so the watch loop keeps going.
func (a *App) report(err error) error {
	if err == nil || errors.Is(err, domain.ErrBuildFailed) {
		return nil
	}
	return err
}

// outputFilter recognizes paths the build writes itself.
type outputFilter struct {
	state    string
	paths    map[string]bool
	archives map[string]bool
}

func newOutputFilter(root string, plan *planner.Plan) *outputFilter {
	f := &outputFilter{
		state:    filepath.Join(root, fs.StateDir),
		paths:    make(map[string]bool),
		archives: make(map[string]bool),
	}
	if plan == nil {
		return f
	}
	for n := range plan.Graph.Nodes() {
		if n.Output.Ext() == ".a" {
			f.archives[n.Output.Dir()] = true
		}
		for _, out := range n.Outputs {
			f.paths[out.String()] = true
			for dir := out.Dir(); dir != "." && dir != root && !f.paths[dir]; dir = filepath.Dir(dir) {
				f.paths[dir] = true
			}
		}
	}
	return f
}

func (f *outputFilter) sources(batch []string) []string {
	var changed []string
	for _, path := range batch {
		path = filepath.Clean(path)
		if f.paths[path] || path == f.state || strings.HasPrefix(path, f.state+string(filepath.Separator)) {
			continue
		}
		if f.archives[filepath.Dir(path)] && isArchiverTemp(filepath.Base(path)) {
			continue
		}
		changed = append(changed, path)
	}
	return changed
}

// isArchiverTemp matches the stXXXXXX scratch file ar creates next to an
// archive while rewriting it.
func isArchiverTemp(name string) bool {
	rest, ok := strings.CutPrefix(name, "st")
	if !ok || len(rest) != 6 {
		return false
	}
	for _, r := range rest {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
