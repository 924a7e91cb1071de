package assets

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	asseterrors "github.com/conneroisu/assetkit/internal/errors"
)

// Registry records the ordered sources of each asset group.
// It is not safe for concurrent use.
type Registry struct {
	root     string
	groups   map[Kind]*group
	revision uint64
}

type group struct {
	sources []Source
	files   map[string]struct{}
	urls    map[string]struct{}
	inlines int
}

// NewRegistry creates a registry resolving relative file paths against root.
func NewRegistry(root string) (*Registry, error) {
	if root == "" {
		root = "."
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving source root %q: %w", root, err)
	}

	return &Registry{
		root:   absRoot,
		groups: make(map[Kind]*group),
	}, nil
}

// Root returns the absolute source root.
func (r *Registry) Root() string {
	return r.root
}

func (r *Registry) group(kind Kind) *group {
	g, ok := r.groups[kind]
	if !ok {
		g = &group{
			files: make(map[string]struct{}),
			urls:  make(map[string]struct{}),
		}
		r.groups[kind] = g
	}

	return g
}

// AddFile appends a file source. Absolute URLs are delegated to AddURL.
func (r *Registry) AddFile(kind Kind, path string) error {
	if IsURL(path) {
		return r.AddURL(kind, path)
	}

	if strings.TrimSpace(path) == "" {
		return asseterrors.NewSourceNotFound(path, errors.New("empty path"))
	}

	if ext := filepath.Ext(path); !kind.Accepts(ext) {
		return asseterrors.NewUnsupportedSourceType(path,
			fmt.Sprintf("extension %q is not accepted for %s", ext, kind)).
			WithContext("kind", kind.String())
	}

	normalized := r.normalize(path)
	if err := checkReadable(normalized); err != nil {
		return asseterrors.NewSourceNotFound(path, err)
	}

	g := r.group(kind)
	if _, exists := g.files[normalized]; exists {
		return nil
	}

	g.files[normalized] = struct{}{}
	g.sources = append(g.sources, FileSource{Path: normalized})
	r.revision++

	return nil
}

// AddInline appends raw text. Identical content added twice appears twice.
func (r *Registry) AddInline(kind Kind, content string) {
	g := r.group(kind)
	g.sources = append(g.sources, InlineSource{Content: content, Index: g.inlines})
	g.inlines++
	r.revision++
}

// AddURL appends a no-compile source referenced by URL.
func (r *Registry) AddURL(kind Kind, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return asseterrors.NewUnsupportedSourceType(rawURL, "malformed URL")
	}

	switch {
	case u.Scheme == "http" || u.Scheme == "https":
	case u.Scheme == "" && strings.HasPrefix(rawURL, "//") && u.Host != "":
	default:
		return asseterrors.NewUnsupportedSourceType(rawURL,
			fmt.Sprintf("URL scheme %q is not supported", u.Scheme))
	}

	g := r.group(kind)
	if _, exists := g.urls[rawURL]; exists {
		return nil
	}

	g.urls[rawURL] = struct{}{}
	g.sources = append(g.sources, URLSource{URL: rawURL})
	r.revision++

	return nil
}

// Sources returns a copy of the ordered sources of a group.
func (r *Registry) Sources(kind Kind) []Source {
	g, ok := r.groups[kind]
	if !ok {
		return nil
	}

	out := make([]Source, len(g.sources))
	copy(out, g.sources)

	return out
}

// Revision increases on every add that changed a group.
func (r *Registry) Revision() uint64 {
	return r.revision
}

func (r *Registry) normalize(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(r.root, path)
}

func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	return f.Close()
}

// IsURL reports whether s is an absolute or protocol-relative URL rather
// than a filesystem path.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "//") || strings.Contains(s, "://")
}
