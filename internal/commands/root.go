package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allancalix/clerk/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clerk",
		Short: "Pull transactions from an upstream source and generate ledger records",
		Long: "The clerk utility pulls data from an upstream source, such as the Plaid APIs, " +
			"and generates ledger records from the transactions.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to clerk.yaml")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newPrintCommand())
	rootCmd.AddCommand(newAccountsCommand())
	rootCmd.AddCommand(newLinkCommand())

	return rootCmd
}
