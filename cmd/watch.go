package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/conneroisu/assetkit/internal/build"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch [manifest]",
	Aliases: []string{"w"},
	Short:   "Rebuild a manifest whenever its sources change",
	Long: `Build a manifest, then watch the configured paths and rebuild whenever a
stylesheet, script or manifest changes. Changes arriving while a build runs are
coalesced into a single follow-up build.

Examples:
  assetkit watch                  # Watch and rebuild assets.yml
  assetkit watch -v               # Also list the sources of each build`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var watchFlags *StandardFlags

func init() {
	rootCmd.AddCommand(watchCmd)

	watchFlags = AddStandardFlags(watchCmd, "output")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := watchFlags.ValidateFlags(); err != nil {
		return err
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	pipeline := a.pipeline(manifestArg(args))
	if !watchFlags.Quiet {
		pipeline.AddCallback(reportBuild(cmd.OutOrStdout(), watchFlags))
	}

	return watchAndBuild(ctx, a, pipeline, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
}

// watchAndBuild starts the pipeline worker and the file watcher, queues an
// initial build and runs fn until it returns.
func watchAndBuild(ctx context.Context, a *app, pipeline *build.Pipeline, fn func(context.Context) error) error {
	fw, err := a.newWatcher(pipeline)
	if err != nil {
		return err
	}
	defer func() { _ = fw.Stop() }()

	pipeline.Start(ctx)
	defer pipeline.Stop()

	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	pipeline.Trigger("startup")

	return fn(ctx)
}

// reportBuild prints each completed build to w.
func reportBuild(w io.Writer, flags *StandardFlags) build.BuildCallback {
	return func(result build.BuildResult) {
		if result.Error != nil {
			fmt.Fprintf(w, "Build failed (%s): %v\n", result.Reason, result.Error)
			return
		}
		fmt.Fprintf(w, "Build succeeded (%s)\n", result.Reason)
		_ = outputBuildResult(w, flags, result)
	}
}
