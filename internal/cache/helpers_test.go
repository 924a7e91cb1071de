package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conneroisu/assetkit/internal/assets"
	"github.com/stretchr/testify/require"
)

type testChain struct {
	kind     assets.Kind
	id       string
	annotate bool
}

func (c testChain) Kind() assets.Kind { return c.kind }
func (c testChain) Identity() string  { return c.kind.String() + "|" + c.id }
func (c testChain) Annotates() bool   { return c.annotate }

var cssChain = testChain{kind: assets.KindCSS, id: "identity@1"}

func writeSource(t *testing.T, dir, name, content string) assets.FileSource {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return assets.FileSource{Path: path}
}

func newTestStore(t *testing.T, mode Mode) (*Store, string) {
	t.Helper()
	public := filepath.Join(t.TempDir(), "public")
	store, err := NewStore(Options{
		PublicDir: public,
		PublicURL: "/assets/",
		Mode:      mode,
	})
	require.NoError(t, err)
	return store, public
}
