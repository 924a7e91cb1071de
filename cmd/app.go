package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/conneroisu/assetkit/internal/assets"
	"github.com/conneroisu/assetkit/internal/build"
	"github.com/conneroisu/assetkit/internal/cache"
	"github.com/conneroisu/assetkit/internal/compiler"
	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/watcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// defaultManifest is read when a command is given no manifest argument.
const defaultManifest = "assets.yml"

// app holds the components shared by every command that touches the cache.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	registry *prometheus.Registry
	store    *cache.Store
	chains   map[assets.Kind]*compiler.Chain
}

// newApp wires the logger, metrics registry, bundle store and compiler chains
// described by cfg. Logs are written to logOutput.
func newApp(cfg *config.Config, logOutput io.Writer) (*app, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: logOutput,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mode, err := cache.ParseMode(cfg.Fingerprint.Mode)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewStore(cache.Options{
		PublicDir:         cfg.Assets.PublicDir,
		PublicURL:         cfg.Assets.PublicURL,
		IndexDir:          cfg.IndexDir(),
		Mode:              mode,
		FingerprintLength: cfg.Fingerprint.Length,
		Logger:            logger,
		Metrics:           cache.NewMetrics(registry),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle store: %w", err)
	}

	chains, err := buildChains(cfg.Compilers)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    store,
		chains:   chains,
	}, nil
}

func buildChains(cfg config.CompilersConfig) (map[assets.Kind]*compiler.Chain, error) {
	names := map[assets.Kind][]string{
		assets.KindCSS: cfg.CSS,
		assets.KindJS:  cfg.JS,
	}

	chains := make(map[assets.Kind]*compiler.Chain, len(names))
	for kind, stages := range names {
		chain, err := compiler.Build(kind, stages, compiler.Options{Annotate: cfg.Annotate})
		if err != nil {
			return nil, err
		}
		chains[kind] = chain
	}

	return chains, nil
}

// loadApp loads the configuration and wires an app for cmd.
func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return newApp(cfg, cmd.ErrOrStderr())
}

func (a *app) pipeline(manifest string) *build.Pipeline {
	return build.NewPipeline(build.Options{
		ManifestPath: manifest,
		SourceRoot:   a.cfg.Assets.SourceRoot,
		Store:        a.store,
		Chains:       a.chains,
		Logger:       a.logger,
	})
}

// newWatcher watches the configured paths and triggers a pipeline build for
// every debounced batch of asset or manifest changes. Writes to the public
// directory are ignored.
func (a *app) newWatcher(pipeline *build.Pipeline) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(a.cfg.Watch.Debounce, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fw.AddFilter(watcher.AnyFilter(watcher.AssetFilter, watcher.ManifestFilter))
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoVendorFilter)
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.ExcludeDirFilter(a.cfg.Assets.PublicDir))

	for _, path := range a.cfg.WatchPaths() {
		if err := fw.AddRecursive(path); err != nil {
			_ = fw.Stop()
			return nil, fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		a.logger.Debug(ctx, "Sources changed", "count", len(events))
		pipeline.Trigger(fmt.Sprintf("%d file(s) changed", len(events)))
		return nil
	})

	return fw, nil
}

func manifestArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return defaultManifest
}
