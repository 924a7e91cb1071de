package cmd

import (
	"fmt"

	"github.com/conneroisu/assetkit/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve [manifest]",
	Aliases: []string{"s"},
	Short:   "Serve bundles and push rebuilds to the browser",
	Long: `Watch and rebuild a manifest like "assetkit watch", serve the public
directory under the public URL and notify connected browsers over a websocket
after every build.

Endpoints:
  <public_url>/       Compiled bundles
  /_assetkit/ws       Build notifications
  /metrics            Prometheus metrics
  /health             Health and build statistics

Examples:
  assetkit serve                  # Serve on the configured host and port
  assetkit serve --port 3000      # Serve on another port`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

var serveFlags *StandardFlags

func init() {
	rootCmd.AddCommand(serveCmd)

	serveFlags = AddStandardFlags(serveCmd, "server")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	// Flags only override the configuration when given explicitly.
	if cmd.Flags().Changed("port") {
		a.cfg.Server.Port = serveFlags.Port
	}
	if cmd.Flags().Changed("host") {
		a.cfg.Server.Host = serveFlags.Host
	}
	serveFlags.Port = a.cfg.Server.Port
	serveFlags.Host = a.cfg.Server.Host
	if err := serveFlags.ValidateFlags(); err != nil {
		return err
	}

	pipeline := a.pipeline(manifestArg(args))
	srv := server.New(server.Options{
		Host:      a.cfg.Server.Host,
		Port:      a.cfg.Server.Port,
		PublicDir: a.cfg.Assets.PublicDir,
		PublicURL: a.cfg.Assets.PublicURL,
		Gatherer:  a.registry,
		Builds:    pipeline,
		Logger:    a.logger,
	})
	pipeline.AddCallback(srv.NotifyBuild)

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", a.cfg.Assets.PublicURL, srv.Addr())

	return watchAndBuild(commandContext(cmd), a, pipeline, srv.Start)
}
