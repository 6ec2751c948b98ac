package app

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/planner"
	"go.trai.ch/kiln/internal/ui/output"
	"go.trai.ch/kiln/internal/ui/style"
	"go.trai.ch/zerr"
)

// NinjaFile is the file name Ninja writes next to kiln.yaml by default.
const NinjaFile = "build.ninja"

// TargetInfo describes one declared target for List.
type TargetInfo struct {
	Name    string
	Type    domain.BuildType
	Output  string
	Sources int
}

// Targets returns every declared target with its artifact path and the
// number of source files its patterns currently match.
func (a *App) Targets(opts Options) ([]TargetInfo, error) {
	project, err := a.load(opts, nil)
	if err != nil {
		return nil, err
	}

	infos := make([]TargetInfo, 0, len(project.Targets))
	for _, t := range project.Targets {
		n, err := a.countSources(project.Root, t)
		if err != nil {
			return nil, zerr.With(err, "target", t.Name)
		}
		infos = append(infos, TargetInfo{Name: t.Name, Type: t.BuildType, Output: artifactPath(t), Sources: n})
	}
	return infos, nil
}

// List prints the declared targets as a table.
func (a *App) List(_ context.Context, opts Options) error {
	infos, err := a.Targets(opts)
	if err != nil {
		return err
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(style.Iris)
	cell := lipgloss.NewStyle().PaddingRight(2)
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).BorderBottom(false).BorderLeft(false).BorderRight(false).BorderColumn(false).
		Headers("TARGET", "TYPE", "OUTPUT", "SOURCES").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header.PaddingRight(2)
			}
			return cell
		})
	for _, info := range infos {
		t.Row(info.Name, info.Type.String(), info.Output, strconv.Itoa(info.Sources))
	}

	_, err = fmt.Fprintln(a.out, t.String())
	return err
}

// Tree prints the dependency tree of the named target, or of the whole
// project, with dirty nodes highlighted.
func (a *App) Tree(ctx context.Context, targetName string, opts Options) error {
	var names []string
	if targetName != "" {
		names = []string{targetName}
	}
	project, err := a.load(opts, names)
	if err != nil {
		return err
	}
	plan, err := a.planner.BuildGraph(ctx, a.newSession(project, opts), project)
	if err != nil {
		return err
	}

	roots := []domain.NodeID{plan.Graph.Root()}
	if targetName != "" && targetName != domain.RootTargetName {
		roots = plan.Targets[targetName]
	}

	var buf bytes.Buffer
	for _, root := range roots {
		if err := domain.PrintTree(&buf, plan.Graph, root); err != nil {
			return zerr.Wrap(err, "failed to print dependency tree")
		}
	}
	_, err = a.out.Write([]byte(colorizeTree(output.New(a.out), buf.String())))
	return err
}

// Ninja writes a build.ninja for the selected targets. An empty path writes
// it next to kiln.yaml.
func (a *App) Ninja(ctx context.Context, targetNames []string, path string, opts Options) error {
	project, err := a.load(opts, targetNames)
	if err != nil {
		return err
	}
	plan, err := a.planner.BuildGraph(ctx, a.newSession(project, opts), project)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := planner.WriteNinja(&buf, plan); err != nil {
		return zerr.Wrap(err, "failed to render ninja file")
	}
	if path == "" {
		path = filepath.Join(project.Root, NinjaFile)
	}
	if err := a.fs.WriteFile(path, buf.Bytes()); err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("wrote %s", path))
	return nil
}

func (a *App) countSources(root string, t domain.Target) (int, error) {
	seen := make(map[string]bool)
	for _, pattern := range t.Sources {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(root, pattern)
		}
		matches, err := a.fs.Glob(pattern)
		if err != nil {
			return 0, err
		}
		for _, m := range matches {
			seen[m] = true
		}
	}
	return len(seen), nil
}

// artifactPath is the declared location of a target's artifact, relative to
// the project root.
func artifactPath(t domain.Target) string {
	switch t.BuildType {
	case domain.BuildCopy:
		return t.Dir
	case domain.BuildObject:
		if t.ObjDir != "" {
			return t.ObjDir
		}
		return filepath.Join(t.Dir, "obj")
	default:
		return filepath.Join(t.Dir, planner.ArtifactName(t))
	}
}

func colorizeTree(out *termenv.Output, tree string) string {
	dirty := "] " + output.Paint(out, "dirty", termenv.RGBColor(string(style.Red)))
	fresh := "] " + output.Paint(out, "fresh", termenv.RGBColor(string(style.Green)))
	r := strings.NewReplacer("] dirty", dirty, "] fresh", fresh)
	return r.Replace(tree)
}
