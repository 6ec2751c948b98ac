// Package app implements the application layer for kiln.
package app

import (
	"errors"
	"io"
	"os"
	"slices"

	"github.com/dustin/go-humanize"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/planner"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.trai.ch/kiln/internal/engine/session"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	fs           ports.FileAccess
	planner      *planner.Planner
	scheduler    *scheduler.Scheduler
	logger       ports.Logger
	tracer       ports.Tracer
	telemetry    ports.Telemetry
	watcher      ports.Watcher
	out          io.Writer
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	fs ports.FileAccess,
	plan *planner.Planner,
	sched *scheduler.Scheduler,
	log ports.Logger,
	tracer ports.Tracer,
	telemetry ports.Telemetry,
	watcher ports.Watcher,
) *App {
	return &App{
		configLoader: loader,
		fs:           fs,
		planner:      plan,
		scheduler:    sched,
		logger:       log,
		tracer:       tracer,
		telemetry:    telemetry,
		watcher:      watcher,
		out:          os.Stdout,
	}
}

// WithOutput redirects console output, which defaults to stdout.
// This is primarily used for testing.
func (a *App) WithOutput(w io.Writer) *App {
	a.out = w
	return a
}

// Close flushes the progress recording.
func (a *App) Close() error {
	if a.telemetry == nil {
		return nil
	}
	return a.telemetry.Close()
}

// Options configures one invocation.
type Options struct {
	// ConfigPath is a kiln.yaml file or a directory to search upwards from.
	ConfigPath string
	// Jobs overrides the worker count of kiln.yaml when positive.
	Jobs    int
	Verbose bool
	Debug   bool
	JSON    bool
}

type logConfigurer interface {
	SetVerbose(enable bool)
	SetJSON(enable bool)
}

// load applies the logging options, reads the project and narrows it to the
// named targets.
func (a *App) load(opts Options, names []string) (*domain.Project, error) {
	if l, ok := a.logger.(logConfigurer); ok {
		l.SetJSON(opts.JSON)
		l.SetVerbose(opts.Verbose || opts.Debug)
	}

	path := opts.ConfigPath
	if path == "" {
		path = "."
	}
	project, err := a.configLoader.Load(path)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return selectTargets(project, names)
}

func (a *App) newSession(project *domain.Project, opts Options) *session.Session {
	jobs := project.Jobs
	if opts.Jobs > 0 {
		jobs = opts.Jobs
	}
	return session.New(a.out, a.logger, a.tracer, a.telemetry, session.Options{
		Jobs:    jobs,
		Verbose: opts.Verbose,
		Debug:   opts.Debug,
	})
}

// selectTargets returns a copy of project holding only the named targets and
// every library they link, transitively. No names selects everything.
func selectTargets(project *domain.Project, names []string) (*domain.Project, error) {
	if len(names) == 0 {
		return project, nil
	}

	keep := make(map[string]bool)
	var visit func(name string) error
	visit = func(name string) error {
		if keep[name] {
			return nil
		}
		t, ok := project.Target(name)
		if !ok {
			return zerr.With(zerr.Wrap(domain.ErrUnknownTarget, "no such target"), "target", name)
		}
		keep[name] = true
		for _, dep := range t.Link {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}

	var errs error
	for _, name := range names {
		if name == domain.RootTargetName {
			return project, nil
		}
		errs = errors.Join(errs, visit(name))
	}
	if errs != nil {
		return nil, errs
	}

	narrowed := *project
	narrowed.Targets = slices.DeleteFunc(slices.Clone(project.Targets), func(t domain.Target) bool {
		return !keep[t.Name]
	})
	return &narrowed, nil
}

// summarize prints the closing line of a build, clean or test run.
func summarize(sess *session.Session, verb string) {
	sess.Console().Printf("%s... %s\n", verb, session.FormatElapsed(sess.Elapsed()))
}

// count renders n with thousands separators and the matching noun form.
func count(n int, singular, plural string) string {
	if n == 1 {
		return "1 " + singular
	}
	return humanize.Comma(int64(n)) + " " + plural
}
