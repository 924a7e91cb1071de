// Package build runs manifest builds: each build loads the manifest, feeds it
// to a fresh collector and resolves the bundle URLs of both groups.
package build

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conneroisu/assetkit/internal/assets"
	"github.com/conneroisu/assetkit/internal/cache"
	"github.com/conneroisu/assetkit/internal/collector"
	"github.com/conneroisu/assetkit/internal/compiler"
	"github.com/conneroisu/assetkit/internal/logging"
)

// Options configures a Pipeline.
type Options struct {
	// ManifestPath is the YAML manifest listing the page sources.
	ManifestPath string
	SourceRoot   string
	Store        *cache.Store
	Chains       map[assets.Kind]*compiler.Chain
	Logger       logging.Logger
}

// Pipeline builds the manifest on request. Requests made while a build is
// running coalesce into one follow-up build.
type Pipeline struct {
	opts      Options
	logger    logging.Logger
	metrics   *BuildMetrics
	callbacks []BuildCallback
	mutex     sync.RWMutex
	queue     chan BuildTask
	workerWg  sync.WaitGroup
	cancel    context.CancelFunc
}

// BuildTask is a queued build request.
type BuildTask struct {
	Reason    string
	Timestamp time.Time
}

// BuildResult is the outcome of one build.
type BuildResult struct {
	CSS      []string      `json:"css" yaml:"css"`
	JS       []string      `json:"js" yaml:"js"`
	Files    []string      `json:"files,omitempty" yaml:"files,omitempty"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Error    error         `json:"-" yaml:"-"`
}

// BuildCallback is called when a queued build completes
type BuildCallback func(result BuildResult)

// NewPipeline creates a pipeline.
func NewPipeline(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Pipeline{
		opts:      opts,
		logger:    logger.WithComponent("build"),
		metrics:   NewBuildMetrics(),
		callbacks: make([]BuildCallback, 0),
		queue:     make(chan BuildTask, 1),
	}
}

// Build runs one build synchronously.
func (p *Pipeline) Build(ctx context.Context) BuildResult {
	return p.run(ctx, BuildTask{Reason: "manual", Timestamp: time.Now()})
}

func (p *Pipeline) run(ctx context.Context, task BuildTask) BuildResult {
	start := time.Now()
	result := BuildResult{Reason: task.Reason}

	result.CSS, result.JS, result.Files, result.Error = p.collect(ctx)
	result.Duration = time.Since(start)
	p.metrics.RecordBuild(result)

	if result.Error != nil {
		p.logger.Error(ctx, result.Error, "Build failed", "reason", task.Reason)
	} else {
		p.logger.Info(ctx, "Build succeeded",
			"reason", task.Reason,
			"css", len(result.CSS),
			"js", len(result.JS),
			"duration_ms", result.Duration.Milliseconds())
	}

	return result
}

func (p *Pipeline) collect(ctx context.Context) (css, js, files []string, err error) {
	manifest, err := collector.LoadManifest(p.opts.ManifestPath)
	if err != nil {
		return nil, nil, nil, err
	}

	c, err := collector.New(collector.Options{
		SourceRoot: p.opts.SourceRoot,
		Store:      p.opts.Store,
		Chains:     p.opts.Chains,
		Logger:     p.logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	if err := manifest.Apply(c); err != nil {
		return nil, nil, nil, fmt.Errorf("applying manifest %s: %w", p.opts.ManifestPath, err)
	}
	files = c.Files()

	if css, err = c.Css(ctx); err != nil {
		return nil, nil, files, err
	}
	if js, err = c.Js(ctx); err != nil {
		return nil, nil, files, err
	}

	return css, js, files, nil
}

// Start starts the build worker
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.workerWg.Add(1)
	go p.worker(ctx)
}

// Stop stops the worker and waits for a running build to finish.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}

	p.workerWg.Wait()
}

// Trigger queues a build. It never blocks: a request made while another is
// already queued is merged into it.
func (p *Pipeline) Trigger(reason string) {
	task := BuildTask{Reason: reason, Timestamp: time.Now()}

	select {
	case p.queue <- task:
	default:
		// Already queued
	}
}

// AddCallback adds a callback to be called when queued builds complete
func (p *Pipeline) AddCallback(callback BuildCallback) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.callbacks = append(p.callbacks, callback)
}

// GetMetrics returns the current build counters
func (p *Pipeline) GetMetrics() BuildStats {
	return p.metrics.Snapshot()
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.workerWg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.queue:
			result := p.run(ctx, task)

			p.mutex.RLock()
			callbacks := p.callbacks
			p.mutex.RUnlock()

			for _, callback := range callbacks {
				callback(result)
			}
		}
	}
}
