package collector

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/conneroisu/assetkit/internal/assets"
	"github.com/conneroisu/assetkit/internal/cache"
	"github.com/conneroisu/assetkit/internal/compiler"
	asseterrors "github.com/conneroisu/assetkit/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root   string
	public string
	store  *cache.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		root:   filepath.Join(base, "src"),
		public: filepath.Join(base, "public"),
	}
	require.NoError(t, os.MkdirAll(f.root, 0o755))

	store, err := cache.NewStore(cache.Options{PublicDir: f.public, PublicURL: "/assets"})
	require.NoError(t, err)
	f.store = store

	return f
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(f.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (f *fixture) collector(t *testing.T, chains map[assets.Kind]*compiler.Chain) *Collector {
	t.Helper()
	c, err := New(Options{SourceRoot: f.root, Store: f.store, Chains: chains})
	require.NoError(t, err)
	return c
}

func (f *fixture) read(t *testing.T, url string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(url, "/assets/"), "unexpected bundle URL %q", url)
	data, err := os.ReadFile(filepath.Join(f.public, path.Base(url)))
	require.NoError(t, err)
	return string(data)
}

func countingStage(name string, calls *int32) compiler.Stage {
	return compiler.NewStageFunc(name, "1", func(in []byte) ([]byte, error) {
		atomic.AddInt32(calls, 1)
		return in, nil
	})
}

func countingCSSChain(calls *int32) map[assets.Kind]*compiler.Chain {
	return map[assets.Kind]*compiler.Chain{
		assets.KindCSS: compiler.NewChain(assets.KindCSS,
			compiler.DefaultConcatenator(assets.KindCSS), countingStage("count", calls)),
	}
}

func TestCollector_ConcatenatesInOrder(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.css", ".a{color:red}")
	f.write(t, "b.css", ".b{color:blue}")
	c := f.collector(t, nil)

	require.NoError(t, c.AddCss("a.css"))
	require.NoError(t, c.AddCss("b.css"))

	urls, err := c.Css(context.Background())
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, ".a{color:red}.b{color:blue}", f.read(t, urls[0]))
	assert.Regexp(t, `^/assets/[0-9a-f]{16}\.css$`, urls[0])
}

func TestCollector_OrderFollowsAddCalls(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.css", ".a{}")
	f.write(t, "b.css", ".b{}")
	c := f.collector(t, nil)

	require.NoError(t, c.AddCss("b.css", "a.css"))

	urls, err := c.Css(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ".b{}.a{}", f.read(t, urls[0]))
}

func TestCollector_FileDedupInlineNot(t *testing.T) {
	f := newFixture(t)
	abs := f.write(t, "a.css", ".a{}")
	c := f.collector(t, nil)

	require.NoError(t, c.AddCss("a.css"))
	require.NoError(t, c.AddCss("./a.css", abs))
	c.AddCssContent("body{margin:0}")
	c.AddCssContent("body{margin:0}")

	urls, err := c.Css(context.Background())
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, ".a{}body{margin:0}body{margin:0}", f.read(t, urls[0]))
	assert.Equal(t, []string{abs}, c.Files())
}

func TestCollector_JsSeparator(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.js", "var a = 1")
	f.write(t, "b.js", "var b = 2")
	c := f.collector(t, nil)

	require.NoError(t, c.AddJs("a.js", "b.js"))

	urls, err := c.Js(context.Background())
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.True(t, strings.HasSuffix(urls[0], ".js"))
	assert.Equal(t, "var a = 1\nvar b = 2", f.read(t, urls[0]))
}

func TestCollector_SecondCallSkipsStages(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.css", ".a{}")
	var calls int32
	c := f.collector(t, countingCSSChain(&calls))
	require.NoError(t, c.AddCss("a.css"))
	ctx := context.Background()

	first, err := c.Css(ctx)
	require.NoError(t, err)
	second, err := c.Css(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Another collector over the same store reuses the bundle.
	other := f.collector(t, countingCSSChain(&calls))
	require.NoError(t, other.AddCss("a.css"))
	third, err := other.Css(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCollector_ByteChangeRecompilesOnce(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "a.css", ".a{color:red}")
	var calls int32
	c := f.collector(t, countingCSSChain(&calls))
	require.NoError(t, c.AddCss("a.css"))
	ctx := context.Background()

	before, err := c.Css(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte(".a{color:rex}"), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(p, later, later))

	after, err := c.Css(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, ".a{color:rex}", f.read(t, after[0]))

	again, err := c.Css(ctx)
	require.NoError(t, err)
	assert.Equal(t, after, again)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCollector_MiddleStageFailure(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.css", ".a{}")

	var firstCalls, lastCalls int32
	var broken atomic.Bool
	broken.Store(true)
	failing := compiler.NewStageFunc("fail", "1", func(in []byte) ([]byte, error) {
		if broken.Load() {
			return nil, errors.New("syntax error")
		}
		return in, nil
	})
	chains := map[assets.Kind]*compiler.Chain{
		assets.KindCSS: compiler.NewChain(assets.KindCSS, compiler.DefaultConcatenator(assets.KindCSS),
			countingStage("first", &firstCalls), failing, countingStage("last", &lastCalls)),
	}
	c := f.collector(t, chains)
	require.NoError(t, c.AddCss("a.css"))
	ctx := context.Background()

	_, err := c.Css(ctx)
	compileErr, ok := asseterrors.AsCompileError(err)
	require.True(t, ok, "expected a CompileError, got %v", err)
	assert.Equal(t, "fail", compileErr.Stage)
	assert.Contains(t, compileErr.Source, "a.css")
	assert.Equal(t, int32(0), lastCalls)

	entries, err := os.ReadDir(filepath.Join(f.public, ".index"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.IsDir(), "no index entry expected, found %s", e.Name())
	}

	broken.Store(false)
	urls, err := c.Css(ctx)
	require.NoError(t, err)
	assert.Equal(t, ".a{}", f.read(t, urls[0]))
	assert.Equal(t, int32(2), firstCalls)
	assert.Equal(t, int32(1), lastCalls)
}

func TestCollector_URLSourcesSplitRuns(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.css", ".a{}")
	c := f.collector(t, nil)

	require.NoError(t, c.AddCss("a.css"))
	require.NoError(t, c.AddCssURL("https://cdn.example.com/reset.css"))
	c.AddCssContent(".c{}")
	require.NoError(t, c.AddCss("//cdn.example.com/late.css"))

	urls, err := c.Css(context.Background())
	require.NoError(t, err)
	require.Len(t, urls, 4)
	assert.Equal(t, ".a{}", f.read(t, urls[0]))
	assert.Equal(t, "https://cdn.example.com/reset.css", urls[1])
	assert.Equal(t, ".c{}", f.read(t, urls[2]))
	assert.Equal(t, "//cdn.example.com/late.css", urls[3])
}

func TestCollector_WriteFailureFallsBackToDataURL(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.css", ".a{color:red}")
	var calls int32
	c := f.collector(t, countingCSSChain(&calls))
	require.NoError(t, c.AddCss("a.css"))

	require.NoError(t, os.RemoveAll(f.public))
	require.NoError(t, os.WriteFile(f.public, nil, 0o644))

	urls, err := c.Css(context.Background())
	require.NoError(t, err)
	require.Len(t, urls, 1)

	const prefix = "data:text/css;base64,"
	require.True(t, strings.HasPrefix(urls[0], prefix), urls[0])
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(urls[0], prefix))
	require.NoError(t, err)
	assert.Equal(t, ".a{color:red}", string(decoded))

	// Nothing was published, so the next access tries again.
	_, err = c.Css(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCollector_MinifyChain(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.css", ".a {\n  color: red;\n}\n")
	chain, err := compiler.Build(assets.KindCSS, []string{"minify"}, compiler.Options{})
	require.NoError(t, err)
	c := f.collector(t, map[assets.Kind]*compiler.Chain{assets.KindCSS: chain})
	require.NoError(t, c.AddCss("a.css"))

	urls, err := c.Css(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ".a{color:red}", f.read(t, urls[0]))
}

func TestCollector_AddErrors(t *testing.T) {
	f := newFixture(t)
	f.write(t, "app.js", "var a")
	c := f.collector(t, nil)

	assert.ErrorIs(t, c.AddCss("missing.css"), asseterrors.ErrSourceNotFound)
	assert.ErrorIs(t, c.AddCss("app.js"), asseterrors.ErrUnsupportedSourceType)
	assert.ErrorIs(t, c.AddJsURL("ftp://example.com/a.js"), asseterrors.ErrUnsupportedSourceType)
	assert.Empty(t, c.Sources(assets.KindCSS))
	assert.Empty(t, c.Sources(assets.KindJS))
}

func TestCollector_EmptyGroup(t *testing.T) {
	c := newFixture(t).collector(t, nil)

	urls, err := c.Css(context.Background())
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestCollector_MissingFileAfterAdd(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "a.css", ".a{}")
	c := f.collector(t, nil)
	require.NoError(t, c.AddCss("a.css"))
	require.NoError(t, os.Remove(p))

	_, err := c.Css(context.Background())
	assert.ErrorIs(t, err, asseterrors.ErrSourceNotFound)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, asseterrors.ErrInvalidConfig)

	f := newFixture(t)
	_, err = New(Options{
		Store: f.store,
		Chains: map[assets.Kind]*compiler.Chain{
			assets.KindCSS: compiler.NewChain(assets.KindJS, compiler.DefaultConcatenator(assets.KindJS)),
		},
	})
	assert.ErrorIs(t, err, asseterrors.ErrInvalidConfig)

	c := f.collector(t, nil)
	assert.Equal(t, assets.KindJS, c.Chain(assets.KindJS).Kind())
}
