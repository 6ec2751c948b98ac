package domain

import "go.trai.ch/zerr"

var (
	// ErrConfiguration is returned for malformed target declarations.
	// Configuration errors are fatal and surface before scheduling starts.
	ErrConfiguration = zerr.New("invalid build configuration")

	// ErrUnknownTarget is returned when a target references a target that is not declared.
	ErrUnknownTarget = zerr.New("unknown target")

	// ErrCycleDetected is returned when the dependency graph is not a DAG.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrDuplicateOutput is returned when two nodes claim the same output path.
	ErrDuplicateOutput = zerr.New("output produced by more than one node")

	// ErrCommandFailed is returned when a compile, link, archive or copy step fails.
	ErrCommandFailed = zerr.New("command failed")

	// ErrIO is returned for file system failures outside a command.
	ErrIO = zerr.New("file system operation failed")

	// ErrBuildFailed is returned when at least one node failed and the build was aborted.
	ErrBuildFailed = zerr.New("build failed")

	// ErrNoTargets is returned when the configuration declares no targets.
	ErrNoTargets = zerr.New("no targets declared")

	// ErrTestsFailed is returned when one or more test binaries exit non-zero.
	ErrTestsFailed = zerr.New("tests failed")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = zerr.New("could not find kiln.yaml")

	// ErrConfigParseFailed is returned when the configuration file is not valid YAML.
	ErrConfigParseFailed = zerr.New("failed to parse config file")
)
