package compiler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/conneroisu/assetkit/internal/assets"
	asseterrors "github.com/conneroisu/assetkit/internal/errors"
)

// Concatenator joins raw source bytes in group order.
type Concatenator struct {
	// Separator is written between consecutive sources.
	Separator string
	// Annotate writes a /* source: <identity> */ line before every source.
	Annotate bool
}

// DefaultConcatenator returns the join policy for a kind. JS sources are
// newline-separated so a trailing line comment cannot swallow the next source.
func DefaultConcatenator(kind assets.Kind) Concatenator {
	if kind == assets.KindJS {
		return Concatenator{Separator: "\n"}
	}

	return Concatenator{}
}

// Join reads every source and concatenates their bytes. It also returns the
// hex sha256 of each source's bytes as read, in source order.
func (c Concatenator) Join(ctx context.Context, sources []assets.Source) ([]byte, []string, error) {
	var buf bytes.Buffer
	digests := make([]string, 0, len(sources))

	for i, src := range sources {
		content, err := assets.ReadSource(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return nil, nil, asseterrors.NewSourceNotFound(src.Identity(), err)
		}
		sum := sha256.Sum256(content)
		digests = append(digests, hex.EncodeToString(sum[:]))

		if i > 0 {
			buf.WriteString(c.Separator)
		}
		if c.Annotate {
			fmt.Fprintf(&buf, "/* source: %s */\n", strings.ReplaceAll(src.Identity(), "*/", "* /"))
		}
		buf.Write(content)
	}

	return buf.Bytes(), digests, nil
}

func (c Concatenator) identity() string {
	sum := sha256.Sum256([]byte(c.Separator))
	id := "concat:" + hex.EncodeToString(sum[:4])
	if c.Annotate {
		id += "+annotate"
	}

	return id
}

// Chain is the ordered compiler pipeline of one asset kind.
type Chain struct {
	kind   assets.Kind
	concat Concatenator
	stages []Stage
}

// NewChain creates a chain. With no stages the chain only concatenates.
func NewChain(kind assets.Kind, concat Concatenator, stages ...Stage) *Chain {
	return &Chain{
		kind:   kind,
		concat: concat,
		stages: append([]Stage(nil), stages...),
	}
}

// Kind returns the asset kind the chain compiles.
func (c *Chain) Kind() assets.Kind {
	return c.kind
}

// Annotates reports whether source identities appear in the output.
func (c *Chain) Annotates() bool {
	return c.concat.Annotate
}

// Stages returns the stage names in order.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}

	return names
}

// Identity describes the chain for fingerprinting, e.g.
// "css|concat:e3b0c442|minify@tdewolff-v2".
func (c *Chain) Identity() string {
	parts := make([]string, 0, len(c.stages)+2)
	parts = append(parts, c.kind.String(), c.concat.identity())
	for _, s := range c.stages {
		parts = append(parts, s.Name()+"@"+s.Version())
	}

	return strings.Join(parts, "|")
}

// Compile concatenates sources and runs every stage in order. A stage
// failure returns a *CompileError and no output.
func (c *Chain) Compile(ctx context.Context, sources []assets.Source) ([]byte, error) {
	out, _, err := c.CompileWithDigests(ctx, sources)
	return out, err
}

// CompileWithDigests is Compile that also returns the digest of every source
// as it was read, so callers can detect a source edited after it was
// fingerprinted.
func (c *Chain) CompileWithDigests(ctx context.Context, sources []assets.Source) ([]byte, []string, error) {
	out, digests, err := c.concat.Join(ctx, sources)
	if err != nil {
		return nil, nil, err
	}

	for _, stage := range c.stages {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		next, err := stage.Transform(out)
		if err != nil {
			return nil, nil, &asseterrors.CompileError{
				Stage:  stage.Name(),
				Source: assets.Identities(sources),
				Cause:  err,
			}
		}
		out = next
	}

	return out, digests, nil
}
