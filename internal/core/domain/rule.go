package domain

// Rule is the build behavior attached to a node.
// The set of rules is closed: CompileRule, LinkRule and CopyRule.
// Consumers switch over the concrete type and treat anything else as a bug.
type Rule interface {
	isRule()
	// Kind returns a short lowercase name used in logs and traces.
	Kind() string
}

// CompileRule turns one source file into an object file and a
// dependency-listing file.
type CompileRule struct {
	// Compiler is the driver executable, e.g. "c++" or "cc".
	Compiler string
	// Flags holds every compiler argument after the fixed -c/-o/-MMD part.
	Flags []string
}

// LinkRule aggregates dependency link strings into a binary or library.
type LinkRule struct {
	// Driver is the compiler used as linker driver for executables and shared objects.
	Driver string
	// Archiver is used for static libraries.
	Archiver string
	// Libs are extra libraries appended inside the link group.
	Libs []string
	// Flags are linker flags appended after the group.
	Flags []string
	// Root marks the synthetic grouping node that only aggregates targets.
	Root bool
	// Verbose asks the archiver for per-member output.
	Verbose bool
}

// CopyRule copies the single input to the output.
type CopyRule struct{}

func (CompileRule) isRule() {}
func (LinkRule) isRule()    {}
func (CopyRule) isRule()    {}

// Kind implements Rule.
func (CompileRule) Kind() string { return "compile" }

// Kind implements Rule.
func (LinkRule) Kind() string { return "link" }

// Kind implements Rule.
func (CopyRule) Kind() string { return "copy" }
