package main

import (
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// NewRootCmd creates the root studio command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "studio",
		Short:         "Studio assistant memory and Notion export",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")

	root.AddCommand(
		newExportCmd(),
		newMemoryCmd(),
		newAgentCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cmd.Printf("studio %s (commit: %s)\n", version, commit)
				return nil
			},
		},
	)

	return root
}
