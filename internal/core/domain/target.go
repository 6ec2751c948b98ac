package domain

// RootTargetName is the synthetic target that aggregates every declared target.
const RootTargetName = "root"

// Toolchain names the programs used to compile, link and archive.
type Toolchain struct {
	CC  string
	CXX string
	AR  string
}

// DefaultToolchain returns the conventional Unix toolchain.
func DefaultToolchain() Toolchain {
	return Toolchain{CC: "cc", CXX: "c++", AR: "ar"}
}

// Target is a named group of nodes that share an output directory, flags and a build type.
type Target struct {
	Name      string
	BuildType BuildType

	// Sources are glob patterns resolved through FileAccess.
	Sources []string
	// Dir receives linked binaries and copied files.
	Dir string
	// ObjDir receives object and dependency-listing files.
	ObjDir string
	// Output overrides the artifact base name. Defaults to Name.
	Output string

	Flags       []string
	CppFlags    []string
	CFlags      []string
	Includes    []string
	SysIncludes []string
	Defines     []string

	Libs      []string
	LinkFlags []string
	// Link lists library targets this target links against.
	Link []string
}

// Project is a loaded configuration: global settings and every target.
type Project struct {
	// Root is the directory the configuration was loaded from.
	Root      string
	Jobs      int
	Toolchain Toolchain
	Targets   []Target
}

// Target looks up a target by name.
func (p *Project) Target(name string) (Target, bool) {
	for _, t := range p.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}
