package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/conneroisu/assetkit/internal/cache"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <fingerprint>",
	Short: "Show how a published bundle was produced",
	Long: `Show the index entry of a published bundle: its file and URL, the compiler
chain that produced it and the signature of every input.

Examples:
  assetkit inspect 3f2a9c04d1e8b7a6
  assetkit inspect 3f2a9c04d1e8b7a6 -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var inspectFlags *StandardFlags

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectFlags = AddStandardFlags(inspectCmd, "output")
}

// bundleReport adds the location fields the index omits to a bundle's JSON
// form.
type bundleReport struct {
	*cache.Bundle
	URL  string `json:"url"`
	Path string `json:"path"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	if err := inspectFlags.ValidateFlags(); err != nil {
		return err
	}

	fingerprint := args[0]
	if !cache.IsFingerprint(fingerprint) {
		return fmt.Errorf("invalid fingerprint %q", fingerprint)
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	bundle, ok := a.store.Get(fingerprint)
	if !ok {
		return fmt.Errorf("no published bundle with fingerprint %s", fingerprint)
	}

	w := cmd.OutOrStdout()
	switch inspectFlags.OutputFormat {
	case "json":
		return outputJSON(w, bundleReport{Bundle: bundle, URL: bundle.URL, Path: bundle.Path})
	case "yaml":
		return outputYAML(w, bundle)
	default:
		return outputBundleTable(w, bundle)
	}
}

func outputBundleTable(w io.Writer, bundle *cache.Bundle) error {
	err := outputFields(w, []field{
		{"fingerprint", bundle.Fingerprint},
		{"kind", bundle.Kind},
		{"chain", bundle.Chain},
		{"url", bundle.URL},
		{"path", bundle.Path},
		{"size", strconv.FormatInt(bundle.Size, 10)},
		{"compiled_at", bundle.CompiledAt.Format(time.RFC3339)},
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tKIND\tSIZE\tHASH")
	for _, input := range bundle.Inputs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", input.Identity, input.Kind, input.Size, input.Hash)
	}

	return tw.Flush()
}
