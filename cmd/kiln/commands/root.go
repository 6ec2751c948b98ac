// Package commands implements the CLI commands for the kiln build tool.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/build"
)

// CLI represents the command line interface for kiln.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Build(ctx context.Context, targetNames []string, opts app.Options) error
	Rebuild(ctx context.Context, targetNames []string, opts app.Options) error
	Clean(ctx context.Context, targetNames []string, opts app.Options) error
	Test(ctx context.Context, targetNames []string, opts app.Options) error
	Watch(ctx context.Context, targetNames []string, opts app.Options) error
	List(ctx context.Context, opts app.Options) error
	Tree(ctx context.Context, targetName string, opts app.Options) error
	Ninja(ctx context.Context, targetNames []string, path string, opts app.Options) error
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	c := &CLI{app: a}

	rootCmd := &cobra.Command{
		Use:           "kiln [targets...]",
		Short:         "An incremental build tool for C and C++",
		Long:          "kiln builds the targets declared in kiln.yaml, rebuilding only what changed.\nWithout a subcommand it builds the named targets, or all of them.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Build(cmd.Context(), args, options(cmd))
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	// -v belongs to --verbose, so --version is declared without a shorthand.
	rootCmd.Flags().Bool("version", false, "Print the application version")

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to kiln.yaml or a directory to search upwards from")
	flags.IntP("jobs", "j", 0, "Number of parallel jobs (default: jobs from kiln.yaml, else CPU count)")
	flags.BoolP("verbose", "v", false, "Print every command as it runs")
	flags.BoolP("debug", "d", false, "Print the dependency tree before building")
	flags.Bool("json", false, "Log in JSON")

	c.rootCmd = rootCmd

	rootCmd.AddCommand(c.newBuildCmd())
	rootCmd.AddCommand(c.newRebuildCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newTestCmd())
	rootCmd.AddCommand(c.newWatchCmd())
	rootCmd.AddCommand(c.newListCmd())
	rootCmd.AddCommand(c.newTreeCmd())
	rootCmd.AddCommand(c.newNinjaCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// options reads the persistent flags.
func options(cmd *cobra.Command) app.Options {
	config, _ := cmd.Flags().GetString("config")
	jobs, _ := cmd.Flags().GetInt("jobs")
	verbose, _ := cmd.Flags().GetBool("verbose")
	debug, _ := cmd.Flags().GetBool("debug")
	json, _ := cmd.Flags().GetBool("json")

	return app.Options{
		ConfigPath: config,
		Jobs:       jobs,
		Verbose:    verbose,
		Debug:      debug,
		JSON:       json,
	}
}
