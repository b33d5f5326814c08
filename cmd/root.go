// Package cmd defines the CLI commands for the rawjobs-crawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rawjobs-crawler",
		Short: "A rate-limited job-posting scraper producing frozen raw archives",
		Long: `rawjobs-crawler collects job postings and company profiles from the
guest search endpoints and writes them as immutable, schema-versioned raw
records. Runs are checkpointed, rate limited, and deduplicate company
fetches within a run.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml; CRAWLER_* env vars override)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
