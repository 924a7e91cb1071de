package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/conneroisu/assetkit/internal/build"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:     "build [manifest]",
	Aliases: []string{"b"},
	Short:   "Compile the asset groups of a manifest",
	Long: `Compile the CSS and JavaScript groups listed in a manifest and print the
URLs a page should reference, in order.

Groups whose inputs are unchanged are served from the bundle cache without
running any compiler stage.

Examples:
  assetkit build                  # Build assets.yml
  assetkit build pages/home.yml   # Build another manifest
  assetkit build -o json          # Print the result as JSON`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

var buildFlags *StandardFlags

func init() {
	rootCmd.AddCommand(buildCmd)

	buildFlags = AddStandardFlags(buildCmd, "output")
}

func runBuild(cmd *cobra.Command, args []string) error {
	if err := buildFlags.ValidateFlags(); err != nil {
		return err
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	result := a.pipeline(manifestArg(args)).Build(commandContext(cmd))
	if result.Error != nil {
		return fmt.Errorf("build failed: %w", result.Error)
	}

	if buildFlags.Quiet {
		return nil
	}

	return outputBuildResult(cmd.OutOrStdout(), buildFlags, result)
}

func outputBuildResult(w io.Writer, flags *StandardFlags, result build.BuildResult) error {
	switch flags.OutputFormat {
	case "json":
		return outputJSON(w, result)
	case "yaml":
		return outputYAML(w, result)
	default:
		return outputBuildTable(w, result, flags.Verbose)
	}
}

func outputBuildTable(w io.Writer, result build.BuildResult, verbose bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tURL")
	for _, url := range result.CSS {
		fmt.Fprintf(tw, "css\t%s\n", url)
	}
	for _, url := range result.JS {
		fmt.Fprintf(tw, "js\t%s\n", url)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if verbose {
		fmt.Fprintln(w, "\nSources:")
		for _, file := range result.Files {
			fmt.Fprintf(w, "  %s\n", file)
		}
	}

	fmt.Fprintf(w, "\n%d source file(s) built in %s\n",
		len(result.Files), result.Duration.Round(time.Millisecond))

	return nil
}
