package app

import (
	"context"
	"fmt"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/session"
	"go.trai.ch/zerr"
)

// summaryWidth is the column the test summary pads names to.
const summaryWidth = 50

type testRun struct {
	name   string
	dir    string
	failed bool
}

// Test builds the selected targets and runs every test binary among them in
// its output directory.
func (a *App) Test(ctx context.Context, targetNames []string, opts Options) error {
	project, err := a.load(opts, targetNames)
	if err != nil {
		return err
	}
	sess := a.newSession(project, opts)
	plan, err := a.build(ctx, sess, project)
	if err != nil {
		return err
	}

	var tests []*testRun
	for _, t := range project.Targets {
		if t.BuildType != domain.BuildTest {
			continue
		}
		for _, id := range plan.Targets[t.Name] {
			out := plan.Graph.Node(id).Output
			if out.IsZero() {
				continue
			}
			tests = append(tests, &testRun{name: out.Base(), dir: out.Dir()})
		}
	}

	console := sess.Console()
	console.Printf("\nRunning tests:\n")
	failed := 0
	for _, tr := range tests {
		code, out, err := a.fs.RunCommand(ctx, tr.dir, "./"+tr.name)
		if err != nil || code != 0 {
			tr.failed = true
			failed++
			if err != nil && out == "" {
				out = err.Error()
			}
			console.Printf("\nTest %s failed:\n%s\n", tr.name, strings.TrimRight(out, "\n"))
			continue
		}
		console.Printf("Test %s: succeeded\n", tr.name)
	}

	printTestSummary(console, tests, failed)
	if failed > 0 {
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrTestsFailed, "some tests failed"), "failed", failed), "total", len(tests))
	}
	return nil
}

func printTestSummary(console *session.Console, tests []*testRun, failed int) {
	var b strings.Builder
	b.WriteString("\nTest summary:\n")
	for _, tr := range tests {
		status := "Succeeded"
		if tr.failed {
			status = "Failed"
		}
		fill := ""
		if len(tr.name) < summaryWidth {
			fill = strings.Repeat(".", summaryWidth-len(tr.name))
		}
		fmt.Fprintf(&b, "%s %s %s\n", tr.name, fill, status)
	}
	fmt.Fprintf(&b, "\n%d of %d tests failed\n", failed, len(tests))
	console.Printf("%s", b.String())
}
