// Package commands wires the conflict engine into a CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esoto/expense-tracker-sub008/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "expense-tracker",
		Short:   "Expense duplicate detection and conflict resolution",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newImportCommand(),
		newListCommand(),
		newResolveCommand(),
		newBulkCommand(),
		newUndoCommand(),
		newIgnoreCommand(),
		newPreviewCommand(),
		newAutoResolveCommand(),
		newReviewCommand(),
	)

	return rootCmd
}
