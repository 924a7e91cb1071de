package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove stale bundles from the public directory",
	Long: `Remove bundles that no group currently points to and that are older than
--older-than, together with their index entries. Bundle files without an index
entry and temporary files left by interrupted writes are removed as well.

Examples:
  assetkit sweep                      # Remove bundles unused for a week
  assetkit sweep --older-than 24h     # Use a shorter grace period
  assetkit sweep --dry-run            # Only list what would be removed`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

var (
	sweepFlags     *StandardFlags
	sweepOlderThan time.Duration
	sweepDryRun    bool
)

// sweepReport is the machine readable result of a sweep.
type sweepReport struct {
	DryRun  bool     `json:"dry_run" yaml:"dry_run"`
	Removed []string `json:"removed" yaml:"removed"`
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepFlags = AddStandardFlags(sweepCmd, "output")
	sweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 7*24*time.Hour, "Only remove bundles older than this")
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "List files without removing them")
	AddFlagValidation(sweepCmd, "older-than", ValidateDuration)
}

func runSweep(cmd *cobra.Command, args []string) error {
	if err := sweepFlags.ValidateFlags(); err != nil {
		return err
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	removed, err := a.store.Sweep(commandContext(cmd), sweepOlderThan, sweepDryRun)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	if removed == nil {
		removed = []string{}
	}

	w := cmd.OutOrStdout()
	switch sweepFlags.OutputFormat {
	case "json":
		return outputJSON(w, sweepReport{DryRun: sweepDryRun, Removed: removed})
	case "yaml":
		return outputYAML(w, sweepReport{DryRun: sweepDryRun, Removed: removed})
	}

	if sweepFlags.Quiet {
		return nil
	}
	for _, path := range removed {
		fmt.Fprintln(w, path)
	}
	if sweepDryRun {
		fmt.Fprintf(w, "Would remove %d file(s)\n", len(removed))
	} else {
		fmt.Fprintf(w, "Removed %d file(s)\n", len(removed))
	}

	return nil
}
