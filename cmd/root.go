// Package cmd provides the assetkit command-line interface.
//
// Configuration System:
//
//	Settings are resolved from several sources, highest priority first:
//	1. Command-line flags (--log-level, --port, etc.)
//	2. Individual environment variables (ASSETKIT_ASSETS_PUBLIC_DIR, etc.)
//	3. The configuration file (--config, ASSETKIT_CONFIG_FILE or .assetkit.yml)
//	4. Built-in defaults
//
// Environment Variables:
//
//	ASSETKIT_CONFIG_FILE: Path to a custom configuration file
//	ASSETKIT_FINGERPRINT_MODE: content or mtime
//	ASSETKIT_COMPILERS_CSS: Comma separated CSS stage names
//	And every other key following the ASSETKIT_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/assetkit/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetkit",
	Short: "Collect, compile and fingerprint page assets",
	Long: `Assetkit collects the CSS and JavaScript a page needs, compiles each
group through a configurable chain of stages and publishes the result under a
content fingerprint, so unchanged inputs are never compiled twice.

Quick Start:
  assetkit build                  Build the groups listed in assets.yml
  assetkit watch                  Rebuild whenever a source changes
  assetkit serve                  Serve bundles with live reload
  assetkit inspect <fingerprint>  Show how a bundle was produced
  assetkit sweep                  Remove stale bundles

Command Aliases (for faster typing):
  build (b), watch (w), serve (s)`,
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .assetkit.yml, can also use ASSETKIT_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig selects the configuration file and enables ASSETKIT_ environment
// overrides.
//
// Configuration file priority (highest to lowest):
//  1. --config flag
//  2. ASSETKIT_CONFIG_FILE environment variable
//  3. .assetkit.yml in the current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("ASSETKIT_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".assetkit")
	}

	config.BindEnv(viper.GetViper())

	// A missing file falls back to defaults; a broken one is reported.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Ignoring config file:", err)
	}
}

// commandContext returns the command's context, or a background context when
// the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
