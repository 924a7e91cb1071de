package assets

import (
	"fmt"
	"strings"
)

// Kind identifies an asset group.
type Kind int

const (
	KindCSS Kind = iota
	KindJS
)

// Kinds lists every supported kind in output order.
var Kinds = []Kind{KindCSS, KindJS}

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindCSS:
		return "css"
	case KindJS:
		return "js"
	default:
		return "unknown"
	}
}

// Extension is the file extension of compiled bundles of this kind.
func (k Kind) Extension() string {
	return "." + k.String()
}

// MediaType is the media type used by minifiers and data URLs.
func (k Kind) MediaType() string {
	switch k {
	case KindCSS:
		return "text/css"
	case KindJS:
		return "application/javascript"
	default:
		return "application/octet-stream"
	}
}

// Accepts reports whether a source file extension can join a group of this kind.
func (k Kind) Accepts(ext string) bool {
	ext = strings.ToLower(ext)
	switch k {
	case KindCSS:
		return ext == ".css"
	case KindJS:
		return ext == ".js" || ext == ".mjs"
	default:
		return false
	}
}

// ParseKind converts "css" or "js" into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "css":
		return KindCSS, nil
	case "js", "javascript":
		return KindJS, nil
	default:
		return 0, fmt.Errorf("unknown asset kind %q", s)
	}
}
