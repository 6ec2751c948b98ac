package config

// Kilnfile represents the structure of the kiln.yaml configuration file.
type Kilnfile struct {
	Version   string               `yaml:"version"`
	Jobs      int                  `yaml:"jobs"`
	Toolchain ToolchainDTO         `yaml:"toolchain"`
	Defaults  TargetDTO            `yaml:"defaults"`
	Targets   map[string]TargetDTO `yaml:"targets"`
}

// ToolchainDTO names the compiler drivers and the archiver.
type ToolchainDTO struct {
	CC  string `yaml:"cc"`
	CXX string `yaml:"cxx"`
	AR  string `yaml:"ar"`
}

// TargetDTO represents a target definition. The same shape carries the
// project-wide defaults.
type TargetDTO struct {
	Type        string   `yaml:"type"`
	Src         []string `yaml:"src"`
	Dir         string   `yaml:"dir"`
	ObjDir      string   `yaml:"objdir"`
	Output      string   `yaml:"output"`
	Flags       []string `yaml:"flags"`
	CppFlags    []string `yaml:"cppflags"`
	CFlags      []string `yaml:"cflags"`
	Includes    []string `yaml:"includes"`
	SysIncludes []string `yaml:"sysincludes"`
	Defines     []string `yaml:"defines"`
	Libs        []string `yaml:"libs"`
	LinkFlags   []string `yaml:"linkflags"`
	Link        []string `yaml:"link"`
}
