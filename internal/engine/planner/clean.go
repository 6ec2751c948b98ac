package planner

import (
	"context"
	"errors"
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// CreateDirectories creates the parent directory of every output that is
// about to be built. It runs before scheduling so no worker races on mkdir.
func (p *Planner) CreateDirectories(plan *Plan) error {
	var dirs []string
	for n := range plan.Graph.Nodes() {
		if !n.IsDirty() || n.IsPruned() {
			continue
		}
		for _, out := range n.Outputs {
			if dir := out.Dir(); !slices.Contains(dirs, dir) {
				dirs = append(dirs, dir)
			}
		}
	}
	slices.Sort(dirs)

	for _, dir := range dirs {
		if err := p.fs.MkdirAll(dir); err != nil {
			return zerr.With(zerr.Wrap(errors.Join(domain.ErrIO, err), "failed to create output directory"), "path", dir)
		}
	}
	return nil
}

// Clean removes every output of the plan and forgets all fingerprints.
// Failures are logged and collected; cleaning continues past them.
func (p *Planner) Clean(ctx context.Context, plan *Plan) error {
	var errs error
	for _, id := range slices.Backward(plan.Order) {
		if err := ctx.Err(); err != nil {
			return errors.Join(errs, err)
		}
		if err := p.rules.Clean(plan.Graph, id); err != nil {
			p.logger.Error(err)
			errs = errors.Join(errs, err)
		}
	}

	if p.store != nil {
		if err := p.store.Reset(); err != nil {
			p.logger.Error(err)
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
