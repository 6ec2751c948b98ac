// Package config provides the configuration loader for kiln.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the configuration file kiln looks for.
	FileName = "kiln.yaml"
	// DefaultDir receives artifacts when neither the target nor the defaults name one.
	DefaultDir = "build"
)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

var _ ports.ConfigLoader = (*Loader)(nil)

// NewLoader creates a new Loader.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load reads the project declared at path. A directory is searched upwards
// for kiln.yaml; a file is read as is.
func (l *Loader) Load(path string) (*domain.Project, error) {
	file, err := l.find(path)
	if err != nil {
		return nil, err
	}
	if l.Logger != nil {
		l.Logger.Debug(fmt.Sprintf("using %s", file))
	}
	return Load(file)
}

func (l *Loader) find(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to resolve path"), "path", path)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", zerr.With(zerr.Wrap(errors.Join(domain.ErrConfigNotFound, err), "failed to read config file"), "path", path)
	}
	if !info.IsDir() {
		return abs, nil
	}

	for dir := abs; ; {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", zerr.With(zerr.Wrap(domain.ErrConfigNotFound, "no kiln.yaml in this directory or any parent"), "search_root", abs)
		}
		dir = parent
	}
}

// Load reads the configuration file at path and returns the project it declares.
// Relative paths inside the file stay relative; Project.Root records the
// directory they are relative to.
func Load(path string) (*domain.Project, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read config file"), "path", path)
	}

	var kf Kilnfile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrConfigParseFailed, err), "invalid kiln.yaml"), "path", path)
	}

	project, err := kf.project(filepath.Dir(path))
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "invalid kiln.yaml"), "path", path)
	}
	return project, nil
}

func (kf *Kilnfile) project(root string) (*domain.Project, error) {
	if kf.Version != "" && kf.Version != "1" {
		return nil, zerr.With(zerr.Wrap(domain.ErrConfiguration, "unsupported config version"), "version", kf.Version)
	}
	if kf.Jobs < 0 {
		return nil, zerr.With(zerr.Wrap(domain.ErrConfiguration, "jobs must not be negative"), "jobs", kf.Jobs)
	}
	if len(kf.Targets) == 0 {
		return nil, domain.ErrNoTargets
	}

	tc := domain.DefaultToolchain()
	if kf.Toolchain.CC != "" {
		tc.CC = kf.Toolchain.CC
	}
	if kf.Toolchain.CXX != "" {
		tc.CXX = kf.Toolchain.CXX
	}
	if kf.Toolchain.AR != "" {
		tc.AR = kf.Toolchain.AR
	}

	names := make([]string, 0, len(kf.Targets))
	for name := range kf.Targets {
		names = append(names, name)
	}
	slices.Sort(names)

	p := &domain.Project{Root: root, Jobs: kf.Jobs, Toolchain: tc}
	for _, name := range names {
		t, err := kf.target(name, kf.Targets[name])
		if err != nil {
			return nil, err
		}
		p.Targets = append(p.Targets, t)
	}

	if err := validateLinks(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (kf *Kilnfile) target(name string, dto TargetDTO) (domain.Target, error) {
	if name == "" {
		return domain.Target{}, zerr.Wrap(domain.ErrConfiguration, "target name must not be empty")
	}
	if name == "root" {
		return domain.Target{}, zerr.With(zerr.Wrap(domain.ErrConfiguration, "target name 'root' is reserved"), "target", name)
	}

	def := kf.Defaults
	typ := dto.Type
	if typ == "" {
		typ = def.Type
	}
	bt, err := domain.ParseBuildType(typ)
	if err != nil {
		return domain.Target{}, zerr.With(err, "target", name)
	}

	return domain.Target{
		Name:        name,
		BuildType:   bt,
		Sources:     canonicalizeStrings(dto.Src),
		Dir:         firstNonEmpty(dto.Dir, def.Dir, DefaultDir),
		ObjDir:      firstNonEmpty(dto.ObjDir, def.ObjDir),
		Output:      dto.Output,
		Flags:       merge(def.Flags, dto.Flags),
		CppFlags:    merge(def.CppFlags, dto.CppFlags),
		CFlags:      merge(def.CFlags, dto.CFlags),
		Includes:    merge(def.Includes, dto.Includes),
		SysIncludes: merge(def.SysIncludes, dto.SysIncludes),
		Defines:     merge(def.Defines, dto.Defines),
		Libs:        merge(def.Libs, dto.Libs),
		LinkFlags:   merge(def.LinkFlags, dto.LinkFlags),
		Link:        canonicalizeStrings(dto.Link),
	}, nil
}

// validateLinks checks that every link reference names a library target and
// that references do not form a cycle.
func validateLinks(p *domain.Project) error {
	byName := make(map[string]domain.Target, len(p.Targets))
	for _, t := range p.Targets {
		byName[t.Name] = t
	}

	for _, t := range p.Targets {
		for _, ref := range t.Link {
			dep, ok := byName[ref]
			if !ok {
				return zerr.With(zerr.With(zerr.Wrap(errors.Join(domain.ErrConfiguration, domain.ErrUnknownTarget), "invalid link reference"), "target", t.Name), "link", ref)
			}
			if !dep.BuildType.IsLibrary() {
				return zerr.With(zerr.With(zerr.Wrap(domain.ErrConfiguration, "link reference is not a library"), "target", t.Name), "link", ref)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(p.Targets))
	var stack []string
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			start := slices.Index(stack, name)
			cycle := append(slices.Clone(stack[start:]), name)
			return zerr.With(zerr.Wrap(domain.ErrCycleDetected, "link references form a cycle"), "cycle", strings.Join(cycle, " -> "))
		case visited:
			return nil
		}
		state[name] = visiting
		stack = append(stack, name)
		for _, ref := range byName[name].Link {
			if err := visit(ref); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = visited
		return nil
	}
	for _, t := range p.Targets {
		if err := visit(t.Name); err != nil {
			return err
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// merge returns the defaults followed by the target's own values.
func merge(defaults, own []string) []string {
	if len(defaults)+len(own) == 0 {
		return nil
	}
	out := make([]string, 0, len(defaults)+len(own))
	out = append(out, defaults...)
	return append(out, own...)
}

func canonicalizeStrings(strs []string) []string {
	if len(strs) == 0 {
		return nil
	}

	sorted := slices.Clone(strs)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}
