package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// BuildType is the kind of artifact a node or target produces.
type BuildType uint8

const (
	// BuildObject is a compiled object file.
	BuildObject BuildType = iota
	// BuildExecutable is a linked program.
	BuildExecutable
	// BuildSharedLibrary is a shared object (.so).
	BuildSharedLibrary
	// BuildStaticLibrary is an archive (.a).
	BuildStaticLibrary
	// BuildTest is an executable that `kiln test` runs after building.
	BuildTest
	// BuildCopy is a file copied verbatim into the output directory.
	BuildCopy
)

var buildTypeNames = map[BuildType]string{
	BuildObject:        "object",
	BuildExecutable:    "executable",
	BuildSharedLibrary: "shared",
	BuildStaticLibrary: "static",
	BuildTest:          "test",
	BuildCopy:          "copy",
}

var buildTypeAliases = map[string]BuildType{
	"object":     BuildObject,
	"executable": BuildExecutable,
	"exe":        BuildExecutable,
	"shared":     BuildSharedLibrary,
	"dll":        BuildSharedLibrary,
	"so":         BuildSharedLibrary,
	"static":     BuildStaticLibrary,
	"lib":        BuildStaticLibrary,
	"test":       BuildTest,
	"copy":       BuildCopy,
}

// String returns the canonical configuration name of the build type.
func (t BuildType) String() string {
	if name, ok := buildTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseBuildType resolves a configuration value into a BuildType.
// An empty value means executable.
func ParseBuildType(s string) (BuildType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BuildExecutable, nil
	}
	t, ok := buildTypeAliases[s]
	if !ok {
		return 0, zerr.With(zerr.Wrap(ErrConfiguration, "unknown build type"), "type", s)
	}
	return t, nil
}

// IsLibrary reports whether other targets may link against this type.
func (t BuildType) IsLibrary() bool {
	return t == BuildSharedLibrary || t == BuildStaticLibrary
}

// IsProgram reports whether the type produces something runnable.
func (t BuildType) IsProgram() bool {
	return t == BuildExecutable || t == BuildTest
}
