package assets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Source is a single contribution to an asset group. Implementations are
// immutable once added to a Registry.
type Source interface {
	// Identity names the source in fingerprints, index entries and errors.
	Identity() string
	// Compilable reports whether the source goes through the compiler chain.
	Compilable() bool
}

// FileSource is a file on disk, referenced by normalized absolute path.
type FileSource struct {
	Path string
}

// Identity implements Source.
func (f FileSource) Identity() string { return f.Path }

// Compilable implements Source.
func (f FileSource) Compilable() bool { return true }

// InlineSource is raw text added directly by the page.
type InlineSource struct {
	Content string
	// Index is the position of this block among the group's inline sources.
	Index int
}

// Identity implements Source.
func (s InlineSource) Identity() string { return fmt.Sprintf("inline:%d", s.Index) }

// Compilable implements Source.
func (s InlineSource) Compilable() bool { return true }

// URLSource is a no-compile source emitted unchanged as its original URL.
type URLSource struct {
	URL string
}

// Identity implements Source.
func (u URLSource) Identity() string { return u.URL }

// Compilable implements Source.
func (u URLSource) Compilable() bool { return false }

// ReadSource returns the raw bytes of a compilable source.
func ReadSource(ctx context.Context, src Source) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch s := src.(type) {
	case FileSource:
		return os.ReadFile(s.Path)
	case InlineSource:
		return []byte(s.Content), nil
	default:
		return nil, fmt.Errorf("source %s is not compilable", src.Identity())
	}
}

// Identities joins the identities of sources for error messages.
func Identities(sources []Source) string {
	ids := make([]string, len(sources))
	for i, src := range sources {
		ids[i] = src.Identity()
	}

	return strings.Join(ids, ", ")
}
