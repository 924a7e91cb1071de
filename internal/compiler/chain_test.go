package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conneroisu/assetkit/internal/assets"
	asseterrors "github.com/conneroisu/assetkit/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileSource(t *testing.T, dir, name, content string) assets.Source {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return assets.FileSource{Path: path}
}

func TestChain_ConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()
	sources := []assets.Source{
		fileSource(t, dir, "a.css", ".a{color:red}"),
		fileSource(t, dir, "b.css", ".b{color:blue}"),
	}

	chain := NewChain(assets.KindCSS, DefaultConcatenator(assets.KindCSS), Identity{})
	out, err := chain.Compile(context.Background(), sources)

	require.NoError(t, err)
	assert.Equal(t, ".a{color:red}.b{color:blue}", string(out))
}

func TestChain_CompileWithDigests(t *testing.T) {
	dir := t.TempDir()
	sources := []assets.Source{
		fileSource(t, dir, "a.css", ".a{color:red}"),
		assets.InlineSource{Content: "body{margin:0}", Index: 0},
	}

	chain := NewChain(assets.KindCSS, Concatenator{Annotate: true}, NewMinifier(assets.KindCSS))
	out, digests, err := chain.CompileWithDigests(context.Background(), sources)
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	// Digests cover the raw source bytes, not annotations or stage output.
	red := sha256.Sum256([]byte(".a{color:red}"))
	body := sha256.Sum256([]byte("body{margin:0}"))
	assert.Equal(t, []string{hex.EncodeToString(red[:]), hex.EncodeToString(body[:])}, digests)
}

func TestChain_InlineDuplicatesKept(t *testing.T) {
	sources := []assets.Source{
		assets.InlineSource{Content: "body{margin:0}", Index: 0},
		assets.InlineSource{Content: "body{margin:0}", Index: 1},
	}

	out, err := NewChain(assets.KindCSS, Concatenator{}).Compile(context.Background(), sources)

	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(out), "body{margin:0}"))
}

func TestChain_JSSeparator(t *testing.T) {
	sources := []assets.Source{
		assets.InlineSource{Content: "a() // trailing", Index: 0},
		assets.InlineSource{Content: "b()", Index: 1},
	}

	out, err := NewChain(assets.KindJS, DefaultConcatenator(assets.KindJS)).Compile(context.Background(), sources)

	require.NoError(t, err)
	assert.Equal(t, "a() // trailing\nb()", string(out))
}

func TestChain_StagesRunInSequence(t *testing.T) {
	var calls []string
	upper := NewStageFunc("upper", "1", func(in []byte) ([]byte, error) {
		calls = append(calls, "upper")
		return []byte(strings.ToUpper(string(in))), nil
	})
	wrap := NewStageFunc("wrap", "1", func(in []byte) ([]byte, error) {
		calls = append(calls, "wrap")
		return []byte("(" + string(in) + ")"), nil
	})

	chain := NewChain(assets.KindJS, Concatenator{}, upper, wrap)
	out, err := chain.Compile(context.Background(), []assets.Source{assets.InlineSource{Content: "x"}})

	require.NoError(t, err)
	assert.Equal(t, "(X)", string(out))
	assert.Equal(t, []string{"upper", "wrap"}, calls)
	assert.Equal(t, []string{"upper", "wrap"}, chain.Stages())
}

func TestChain_StageFailureIsCompileError(t *testing.T) {
	var lastRan bool
	failing := NewStageFunc("syntax-check", "1", func([]byte) ([]byte, error) {
		return nil, errors.New("unexpected token")
	})
	last := NewStageFunc("last", "1", func(in []byte) ([]byte, error) {
		lastRan = true
		return in, nil
	})

	chain := NewChain(assets.KindCSS, Concatenator{}, Identity{}, failing, last)
	out, err := chain.Compile(context.Background(), []assets.Source{
		assets.InlineSource{Content: ".a{"},
	})

	require.Error(t, err)
	assert.Nil(t, out)
	assert.False(t, lastRan)

	ce, ok := asseterrors.AsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, "syntax-check", ce.Stage)
	assert.Equal(t, "inline:0", ce.Source)
	assert.EqualError(t, ce.Cause, "unexpected token")
}

func TestChain_MissingFileAtCompileTime(t *testing.T) {
	chain := NewChain(assets.KindCSS, Concatenator{})
	_, err := chain.Compile(context.Background(), []assets.Source{
		assets.FileSource{Path: filepath.Join(t.TempDir(), "gone.css")},
	})

	assert.ErrorIs(t, err, asseterrors.ErrSourceNotFound)
}

func TestChain_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChain(assets.KindCSS, Concatenator{}).Compile(ctx, []assets.Source{
		assets.InlineSource{Content: "a"},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChain_Annotate(t *testing.T) {
	chain := NewChain(assets.KindCSS, Concatenator{Annotate: true})
	out, err := chain.Compile(context.Background(), []assets.Source{
		assets.InlineSource{Content: ".a{}", Index: 0},
	})

	require.NoError(t, err)
	assert.Equal(t, "/* source: inline:0 */\n.a{}", string(out))
	assert.True(t, chain.Annotates())
}

func TestChain_Identity(t *testing.T) {
	base := NewChain(assets.KindCSS, Concatenator{}, Identity{})
	minified := NewChain(assets.KindCSS, Concatenator{}, Identity{}, NewMinifier(assets.KindCSS))
	annotated := NewChain(assets.KindCSS, Concatenator{Annotate: true}, Identity{})
	js := NewChain(assets.KindJS, Concatenator{}, Identity{})
	v2 := NewChain(assets.KindCSS, Concatenator{}, NewStageFunc("identity", "2", nil))

	assert.Equal(t, base.Identity(), NewChain(assets.KindCSS, Concatenator{}, Identity{}).Identity())
	for _, other := range []*Chain{minified, annotated, js, v2} {
		assert.NotEqual(t, base.Identity(), other.Identity())
	}
	assert.True(t, strings.HasPrefix(minified.Identity(), "css|concat:"))
	assert.True(t, strings.HasSuffix(minified.Identity(), "|minify@tdewolff-v2"))
}

func TestBuild(t *testing.T) {
	chain, err := Build(assets.KindJS, []string{"strip-comments", "minify", "banner:(c) Example"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"strip-comments", "minify", "banner"}, chain.Stages())

	_, err = Build(assets.KindCSS, []string{"uglify"}, Options{})
	assert.ErrorContains(t, err, `unknown css stage "uglify"`)

	_, err = Build(assets.KindCSS, []string{"banner"}, Options{})
	assert.Error(t, err)

	assert.NoError(t, ValidateStageName("banner:x"))
	assert.Error(t, ValidateStageName("nope"))
}
