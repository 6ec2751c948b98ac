package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List declared targets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.List(cmd.Context(), options(cmd))
		},
	}
}

func (c *CLI) newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [target]",
		Short: "Print the dependency tree with dirty and fresh markers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target string
			if len(args) == 1 {
				target = args[0]
			}
			return c.app.Tree(cmd.Context(), target, options(cmd))
		},
	}
}

func (c *CLI) newNinjaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ninja [targets...]",
		Short: "Write a build.ninja describing every build step",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("output")
			return c.app.Ninja(cmd.Context(), args, path, options(cmd))
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write to this path instead of build.ninja next to kiln.yaml")
	return cmd
}
