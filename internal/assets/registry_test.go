package assets

import (
	"os"
	"path/filepath"
	"testing"

	asseterrors "github.com/conneroisu/assetkit/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg, err := NewRegistry(dir)
	require.NoError(t, err)
	return reg, dir
}

func TestRegistry_PreservesOrderAcrossCallKinds(t *testing.T) {
	reg, dir := newRegistry(t)
	writeFile(t, dir, "a.css", ".a{}")
	writeFile(t, dir, "b.css", ".b{}")

	require.NoError(t, reg.AddFile(KindCSS, "a.css"))
	reg.AddInline(KindCSS, "body{margin:0}")
	require.NoError(t, reg.AddURL(KindCSS, "https://cdn.example.com/reset.css"))
	require.NoError(t, reg.AddFile(KindCSS, "b.css"))

	sources := reg.Sources(KindCSS)
	require.Len(t, sources, 4)
	assert.Equal(t, FileSource{Path: filepath.Join(dir, "a.css")}, sources[0])
	assert.Equal(t, InlineSource{Content: "body{margin:0}", Index: 0}, sources[1])
	assert.Equal(t, URLSource{URL: "https://cdn.example.com/reset.css"}, sources[2])
	assert.Equal(t, FileSource{Path: filepath.Join(dir, "b.css")}, sources[3])
	assert.Empty(t, reg.Sources(KindJS))
}

func TestRegistry_FileDeduplication(t *testing.T) {
	reg, dir := newRegistry(t)
	writeFile(t, dir, "css/a.css", ".a{}")
	writeFile(t, dir, "b.css", ".b{}")

	require.NoError(t, reg.AddFile(KindCSS, "css/a.css"))
	require.NoError(t, reg.AddFile(KindCSS, "b.css"))
	rev := reg.Revision()

	require.NoError(t, reg.AddFile(KindCSS, "./css/../css/a.css"))
	require.NoError(t, reg.AddFile(KindCSS, filepath.Join(dir, "css", "a.css")))

	sources := reg.Sources(KindCSS)
	require.Len(t, sources, 2)
	assert.Equal(t, filepath.Join(dir, "css", "a.css"), sources[0].Identity())
	assert.Equal(t, rev, reg.Revision(), "duplicate adds must not change the group")
}

func TestRegistry_SameFileInDifferentGroups(t *testing.T) {
	reg, dir := newRegistry(t)
	writeFile(t, dir, "app.js", "x()")

	require.NoError(t, reg.AddFile(KindJS, "app.js"))
	assert.Len(t, reg.Sources(KindJS), 1)
	assert.Empty(t, reg.Sources(KindCSS))
}

func TestRegistry_InlineNeverDeduplicated(t *testing.T) {
	reg, _ := newRegistry(t)

	reg.AddInline(KindCSS, "body{margin:0}")
	reg.AddInline(KindCSS, "body{margin:0}")

	sources := reg.Sources(KindCSS)
	require.Len(t, sources, 2)
	assert.Equal(t, "inline:0", sources[0].Identity())
	assert.Equal(t, "inline:1", sources[1].Identity())
}

func TestRegistry_SourceNotFound(t *testing.T) {
	reg, dir := newRegistry(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.css"), 0o755))

	for _, path := range []string{"missing.css", "dir.css", ""} {
		t.Run(path, func(t *testing.T) {
			err := reg.AddFile(KindCSS, path)
			require.Error(t, err)
			assert.ErrorIs(t, err, asseterrors.ErrSourceNotFound)
		})
	}
	assert.Empty(t, reg.Sources(KindCSS))
}

func TestRegistry_UnsupportedSourceType(t *testing.T) {
	reg, dir := newRegistry(t)
	writeFile(t, dir, "app.js", "x()")
	writeFile(t, dir, "notes.txt", "hi")

	tests := []struct {
		name string
		kind Kind
		path string
	}{
		{"js in css group", KindCSS, "app.js"},
		{"text file", KindJS, "notes.txt"},
		{"ftp url", KindCSS, "ftp://example.com/a.css"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.AddFile(tt.kind, tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, asseterrors.ErrUnsupportedSourceType)
		})
	}
}

func TestRegistry_URLSources(t *testing.T) {
	reg, _ := newRegistry(t)

	require.NoError(t, reg.AddFile(KindJS, "https://cdn.example.com/lib.js"))
	require.NoError(t, reg.AddURL(KindJS, "//cdn.example.com/other.js"))
	require.NoError(t, reg.AddURL(KindJS, "https://cdn.example.com/lib.js"))

	sources := reg.Sources(KindJS)
	require.Len(t, sources, 2)
	for _, src := range sources {
		assert.False(t, src.Compilable())
	}
}

func TestRegistry_SourcesIsACopy(t *testing.T) {
	reg, _ := newRegistry(t)
	reg.AddInline(KindJS, "a()")

	sources := reg.Sources(KindJS)
	sources[0] = InlineSource{Content: "mutated"}

	assert.Equal(t, "a()", reg.Sources(KindJS)[0].(InlineSource).Content)
}

func TestKind(t *testing.T) {
	assert.Equal(t, ".css", KindCSS.Extension())
	assert.Equal(t, "application/javascript", KindJS.MediaType())
	assert.True(t, KindJS.Accepts(".MJS"))
	assert.False(t, KindCSS.Accepts(".scss"))

	k, err := ParseKind("JS")
	require.NoError(t, err)
	assert.Equal(t, KindJS, k)

	_, err = ParseKind("html")
	assert.Error(t, err)
}
