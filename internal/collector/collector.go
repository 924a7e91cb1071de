// Package collector gathers the CSS and JS sources a page contributes and
// turns each group into fingerprinted bundle URLs.
//
// A Collector lives for one page render:
//
//	c, err := collector.New(collector.Options{SourceRoot: "web", Store: store})
//	if err != nil {
//		return err
//	}
//	if err := c.AddCss("css/base.css", "css/page.css"); err != nil {
//		return err
//	}
//	c.AddCssContent("body{margin:0}")
//	urls, err := c.Css(ctx)
//
// Compiled bundles are shared across collectors through a cache.Store.
package collector

import (
	"context"
	"encoding/base64"

	"github.com/conneroisu/assetkit/internal/assets"
	"github.com/conneroisu/assetkit/internal/cache"
	"github.com/conneroisu/assetkit/internal/compiler"
	asseterrors "github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/logging"
)

// Options configures a Collector.
type Options struct {
	// SourceRoot resolves relative file paths. Defaults to the working
	// directory.
	SourceRoot string
	// Store holds compiled bundles. Required.
	Store *cache.Store
	// Chains maps each kind to its compiler chain. Missing kinds use a
	// chain that only concatenates.
	Chains map[assets.Kind]*compiler.Chain
	Logger logging.Logger
}

// Collector is the per-page surface over the registry, the compiler chains
// and the bundle store. It is not safe for concurrent use.
type Collector struct {
	registry *assets.Registry
	store    *cache.Store
	chains   map[assets.Kind]*compiler.Chain
	logger   logging.Logger
	// urls remembers the bundle URL of every fingerprint this collector has
	// resolved.
	urls map[string]string
}

// New creates a Collector.
func New(opts Options) (*Collector, error) {
	if opts.Store == nil {
		return nil, asseterrors.NewConfigError("COLLECTOR_STORE", "a bundle store is required")
	}

	registry, err := assets.NewRegistry(opts.SourceRoot)
	if err != nil {
		return nil, err
	}

	chains := make(map[assets.Kind]*compiler.Chain, len(assets.Kinds))
	for _, kind := range assets.Kinds {
		chain := opts.Chains[kind]
		if chain == nil {
			chain = compiler.NewChain(kind, compiler.DefaultConcatenator(kind))
		}
		if chain.Kind() != kind {
			return nil, asseterrors.NewConfigError("COLLECTOR_CHAIN",
				"chain for "+kind.String()+" compiles "+chain.Kind().String())
		}
		chains[kind] = chain
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Collector{
		registry: registry,
		store:    opts.Store,
		chains:   chains,
		logger:   logger.WithComponent("collector"),
		urls:     make(map[string]string),
	}, nil
}

// AddCss appends stylesheet files to the CSS group. Re-adding a path that is
// already in the group is a no-op. Absolute URLs are added as no-compile
// sources.
func (c *Collector) AddCss(paths ...string) error {
	return c.addFiles(assets.KindCSS, paths)
}

// AddJs appends script files to the JS group.
func (c *Collector) AddJs(paths ...string) error {
	return c.addFiles(assets.KindJS, paths)
}

// AddCssContent appends inline CSS. Identical text added twice is compiled
// twice.
func (c *Collector) AddCssContent(text string) {
	c.registry.AddInline(assets.KindCSS, text)
}

// AddJsContent appends inline JS.
func (c *Collector) AddJsContent(text string) {
	c.registry.AddInline(assets.KindJS, text)
}

// AddCssURL appends a stylesheet that is emitted unchanged, e.g. from a CDN.
func (c *Collector) AddCssURL(url string) error {
	return c.registry.AddURL(assets.KindCSS, url)
}

// AddJsURL appends a script that is emitted unchanged.
func (c *Collector) AddJsURL(url string) error {
	return c.registry.AddURL(assets.KindJS, url)
}

func (c *Collector) addFiles(kind assets.Kind, paths []string) error {
	for _, p := range paths {
		if err := c.registry.AddFile(kind, p); err != nil {
			return err
		}
	}

	return nil
}

// Css returns the URLs of the CSS group in insertion order.
func (c *Collector) Css(ctx context.Context) ([]string, error) {
	return c.collect(ctx, assets.KindCSS)
}

// Js returns the URLs of the JS group in insertion order.
func (c *Collector) Js(ctx context.Context) ([]string, error) {
	return c.collect(ctx, assets.KindJS)
}

// Sources returns the ordered sources of a group.
func (c *Collector) Sources(kind assets.Kind) []assets.Source {
	return c.registry.Sources(kind)
}

// Files returns the paths of every file source in both groups.
func (c *Collector) Files() []string {
	var files []string
	for _, kind := range assets.Kinds {
		for _, src := range c.registry.Sources(kind) {
			if f, ok := src.(assets.FileSource); ok {
				files = append(files, f.Path)
			}
		}
	}

	return files
}

// Chain returns the compiler chain used for kind.
func (c *Collector) Chain(kind assets.Kind) *compiler.Chain {
	return c.chains[kind]
}

func (c *Collector) collect(ctx context.Context, kind assets.Kind) ([]string, error) {
	sources := c.registry.Sources(kind)
	if len(sources) == 0 {
		return nil, nil
	}

	urls := make([]string, 0, len(sources))
	for _, run := range splitRuns(sources) {
		if !run[0].Compilable() {
			urls = append(urls, run[0].Identity())
			continue
		}

		url, err := c.bundle(ctx, kind, run)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}

	c.logger.Debug(ctx, "Collected asset group",
		"kind", kind.String(), "sources", len(sources), "urls", len(urls))

	return urls, nil
}

func (c *Collector) bundle(ctx context.Context, kind assets.Kind, run []assets.Source) (string, error) {
	chain := c.chains[kind]

	key, err := c.store.Key(ctx, chain, run)
	if err != nil {
		return "", err
	}

	if url, ok := c.urls[key.Fingerprint]; ok {
		return url, nil
	}

	b, err := c.store.GetOrCompile(ctx, key, func(ctx context.Context) ([]byte, []string, error) {
		return chain.CompileWithDigests(ctx, run)
	})
	if err != nil {
		return "", err
	}

	if !b.Persisted {
		c.logger.Warn(ctx, b.WriteErr, "Inlining bundle as data URL",
			"kind", kind.String(), "fingerprint", key.Fingerprint)
		return dataURL(kind, b.Content), nil
	}

	c.urls[key.Fingerprint] = b.URL

	return b.URL, nil
}

// splitRuns breaks sources into maximal runs of compilable sources. Each
// no-compile source forms a run of its own.
func splitRuns(sources []assets.Source) [][]assets.Source {
	var runs [][]assets.Source
	var current []assets.Source

	for _, src := range sources {
		if src.Compilable() {
			current = append(current, src)
			continue
		}
		if len(current) > 0 {
			runs = append(runs, current)
			current = nil
		}
		runs = append(runs, []assets.Source{src})
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}

	return runs
}

func dataURL(kind assets.Kind, content []byte) string {
	return "data:" + kind.MediaType() + ";base64," + base64.StdEncoding.EncodeToString(content)
}
