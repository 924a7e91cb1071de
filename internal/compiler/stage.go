// Package compiler turns the ordered sources of an asset group into bundle bytes.
//
// A Chain joins raw source bytes with a Concatenator and threads the result
// through an ordered list of Stages. Stages must be pure: the same input
// always yields the same output, because compiled bundles are cached under a
// fingerprint that only covers the inputs and the chain identity.
package compiler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/conneroisu/assetkit/internal/assets"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

// Stage is one transformation pass over bundle bytes.
type Stage interface {
	Name() string
	// Version changes whenever the stage's output for a given input changes.
	Version() string
	Transform(in []byte) ([]byte, error)
}

// StageFunc adapts a plain function into a Stage.
type StageFunc struct {
	StageName    string
	StageVersion string
	Fn           func(in []byte) ([]byte, error)
}

// NewStageFunc creates a custom pass.
func NewStageFunc(name, version string, fn func(in []byte) ([]byte, error)) *StageFunc {
	return &StageFunc{StageName: name, StageVersion: version, Fn: fn}
}

// Name implements Stage.
func (s *StageFunc) Name() string { return s.StageName }

// Version implements Stage.
func (s *StageFunc) Version() string { return s.StageVersion }

// Transform implements Stage.
func (s *StageFunc) Transform(in []byte) ([]byte, error) { return s.Fn(in) }

// Identity passes bytes through unchanged.
type Identity struct{}

// Name implements Stage.
func (Identity) Name() string { return "identity" }

// Version implements Stage.
func (Identity) Version() string { return "1" }

// Transform implements Stage.
func (Identity) Transform(in []byte) ([]byte, error) { return in, nil }

// Minifier minifies CSS or JS with tdewolff/minify.
type Minifier struct {
	m         *minify.M
	mediaType string
}

// NewMinifier creates a minifier for the media type of kind.
func NewMinifier(kind assets.Kind) *Minifier {
	m := minify.New()
	m.AddFunc(assets.KindCSS.MediaType(), css.Minify)
	m.AddFunc(assets.KindJS.MediaType(), js.Minify)

	return &Minifier{m: m, mediaType: kind.MediaType()}
}

// Name implements Stage.
func (*Minifier) Name() string { return "minify" }

// Version implements Stage.
func (*Minifier) Version() string { return "tdewolff-v2" }

// Transform implements Stage.
func (mn *Minifier) Transform(in []byte) ([]byte, error) {
	return mn.m.Bytes(mn.mediaType, in)
}

// CommentStripper removes /* ... */ block comments outside string literals.
// Comments starting with /*! are preserved, matching the licence-comment
// convention of most minifiers. When LineComments is set (JS), text after //
// is copied verbatim so quotes inside it do not open a string. Regular
// expression literals containing quotes are not recognised.
type CommentStripper struct {
	LineComments bool
}

// Name implements Stage.
func (CommentStripper) Name() string { return "strip-comments" }

// Version implements Stage.
func (CommentStripper) Version() string { return "1" }

// Transform implements Stage.
func (s CommentStripper) Transform(in []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(in))

	var quote byte
	for i := 0; i < len(in); i++ {
		c := in[i]

		if quote != 0 {
			out.WriteByte(c)
			switch c {
			case '\\':
				if i+1 < len(in) {
					i++
					out.WriteByte(in[i])
				}
			case quote:
				quote = 0
			}
			continue
		}

		switch {
		case s.LineComments && c == '/' && i+1 < len(in) && in[i+1] == '/':
			end := bytes.IndexByte(in[i:], '\n')
			if end < 0 {
				end = len(in) - i
			}
			out.Write(in[i : i+end])
			i += end - 1
		case c == '"' || c == '\'' || c == '`':
			quote = c
			out.WriteByte(c)
		case c == '/' && i+1 < len(in) && in[i+1] == '*' && !(i+2 < len(in) && in[i+2] == '!'):
			end := bytes.Index(in[i+2:], []byte("*/"))
			if end < 0 {
				return nil, fmt.Errorf("unterminated comment at offset %d", i)
			}
			i += end + 3
		default:
			out.WriteByte(c)
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated string literal")
	}

	return out.Bytes(), nil
}

// Banner prepends a preserved comment to the bundle.
type Banner struct {
	Text string
}

// Name implements Stage.
func (b Banner) Name() string { return "banner" }

// Version implements Stage. The text is part of the version so that a
// changed banner changes the chain identity.
func (b Banner) Version() string { return "1:" + b.Text }

// Transform implements Stage.
func (b Banner) Transform(in []byte) ([]byte, error) {
	text := strings.ReplaceAll(b.Text, "*/", "* /")
	out := make([]byte, 0, len(in)+len(text)+8)
	out = append(out, "/*! "...)
	out = append(out, text...)
	out = append(out, " */\n"...)
	out = append(out, in...)

	return out, nil
}
