package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"rawjobs-crawler/internal/archive"
	"rawjobs-crawler/internal/config"
	"rawjobs-crawler/internal/logging"
)

// newExportCmd creates the 'export' subcommand: a lossy CSV view over an
// archive's JSONL files. The JSONL archive stays canonical.
func newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export <run-dir>",
		Short: "Flatten an archive's JSONL files into CSV",
		Long: `Reads jobs.jsonl and companies.jsonl from a finished run directory and
writes flattened CSV files next to them (or under --out). Nested objects
become dotted columns; list-valued fields are dropped with a warning each.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync()

			runDir := args[0]
			outDir := out
			if outDir == "" {
				outDir = runDir
			}

			for _, name := range []string{archive.JobsFile, archive.CompaniesFile} {
				src := filepath.Join(runDir, name)
				dst := filepath.Join(outDir, strings.TrimSuffix(name, ".jsonl")+".csv")
				if err := archive.ExportCSV(src, dst, logger); err != nil {
					return fmt.Errorf("export %s: %w", name, err)
				}
				fmt.Printf("wrote %s\n", dst)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "directory for the CSV files (defaults to the run dir)")

	return cmd
}
