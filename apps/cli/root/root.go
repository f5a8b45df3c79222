package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the contracts admin CLI. Subcommands are attached in wire.go.
var rootCmd = &cobra.Command{
	Use:           "contracts",
	Short:         "Property contracts admin CLI",
	Long:          "Administrative utilities for the property contracts service (schema migration, batch replay, inspection).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
