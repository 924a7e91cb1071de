package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conneroisu/assetkit/internal/assets"
)

// Factory builds a stage for a kind. arg is the text after the first ':' in
// the configured stage name, e.g. "banner:(c) Example".
type Factory func(kind assets.Kind, arg string) (Stage, error)

var builtinStages = map[string]Factory{
	"identity": func(assets.Kind, string) (Stage, error) {
		return Identity{}, nil
	},
	"minify": func(kind assets.Kind, _ string) (Stage, error) {
		return NewMinifier(kind), nil
	},
	"strip-comments": func(kind assets.Kind, _ string) (Stage, error) {
		return CommentStripper{LineComments: kind == assets.KindJS}, nil
	},
	"banner": func(_ assets.Kind, arg string) (Stage, error) {
		if arg == "" {
			return nil, fmt.Errorf("banner stage requires text, e.g. banner:(c) Example")
		}
		return Banner{Text: arg}, nil
	},
}

// StageNames lists the built-in stage names.
func StageNames() []string {
	names := make([]string, 0, len(builtinStages))
	for name := range builtinStages {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Options configures chains built from stage names.
type Options struct {
	Annotate bool
	// Extra stages are appended after the named ones.
	Extra []Stage
}

// Build resolves stage names into a chain for kind.
func Build(kind assets.Kind, names []string, opts Options) (*Chain, error) {
	stages := make([]Stage, 0, len(names)+len(opts.Extra))

	for _, raw := range names {
		name, arg, _ := strings.Cut(strings.TrimSpace(raw), ":")
		factory, ok := builtinStages[name]
		if !ok {
			return nil, fmt.Errorf("unknown %s stage %q (available: %s)",
				kind, name, strings.Join(StageNames(), ", "))
		}

		stage, err := factory(kind, arg)
		if err != nil {
			return nil, fmt.Errorf("building %s stage %q: %w", kind, name, err)
		}
		stages = append(stages, stage)
	}
	stages = append(stages, opts.Extra...)

	concat := DefaultConcatenator(kind)
	concat.Annotate = opts.Annotate

	return NewChain(kind, concat, stages...), nil
}

// ValidateStageName reports whether name resolves to a built-in stage.
func ValidateStageName(name string) error {
	base, _, _ := strings.Cut(strings.TrimSpace(name), ":")
	if _, ok := builtinStages[base]; !ok {
		return fmt.Errorf("unknown stage %q", base)
	}

	return nil
}
