package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
css:
  - a.css
  - url: https://cdn.example.com/reset.css
  - content: "body{margin:0}"
js:
  - file: app.js
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, []ManifestItem{
		{File: "a.css"},
		{URL: "https://cdn.example.com/reset.css"},
		{Content: "body{margin:0}"},
	}, m.CSS)
	assert.Equal(t, []ManifestItem{{File: "app.js"}}, m.JS)
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "two fields", yaml: "css:\n  - file: a.css\n    url: https://x.test/a.css\n"},
		{name: "no fields", yaml: "css:\n  - {}\n"},
		{name: "not yaml", yaml: "css: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestManifest_Apply(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.css", ".a{}")
	f.write(t, "app.js", "var a")
	c := f.collector(t, nil)

	manifestPath := filepath.Join(f.root, "assets.yml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(sampleManifest), 0o644))
	m, err := LoadManifest(manifestPath)
	require.NoError(t, err)
	require.NoError(t, m.Apply(c))

	css, err := c.Css(context.Background())
	require.NoError(t, err)
	require.Len(t, css, 3)
	assert.Equal(t, ".a{}", f.read(t, css[0]))
	assert.Equal(t, "https://cdn.example.com/reset.css", css[1])
	assert.Equal(t, "body{margin:0}", f.read(t, css[2]))

	js, err := c.Js(context.Background())
	require.NoError(t, err)
	require.Len(t, js, 1)
	assert.Equal(t, "var a", f.read(t, js[0]))
}

func TestManifest_ApplyStopsOnError(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, nil)

	m, err := ParseManifest([]byte("css:\n  - missing.css\n"))
	require.NoError(t, err)
	assert.Error(t, m.Apply(c))
}

func TestLoadManifest_Missing(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
