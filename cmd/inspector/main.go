package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "inspector",
		Short: "inspector reads and maintains a ledgerlog store.",
	}
	flags := rootCmd.PersistentFlags()
	flags.String("dsn", "", "log store DSN (postgres://... or sqlite://path); defaults to the configured one")

	rootCmd.AddCommand(
		newStatsCommand(),
		newPurgeCommand(),
		newErrorsCommand(),
		newTrailCommand(),
		newExportCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
