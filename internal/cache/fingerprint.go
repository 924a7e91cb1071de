// Package cache provides the content-addressed bundle store.
//
// A bundle is stored under a fingerprint derived from the ordered signatures
// of its inputs and the identity of the compiler chain that produced it.
// Invalidation is purely content-driven: a changed input yields a new
// fingerprint and therefore a new bundle; nothing is ever overwritten with
// different bytes and there is no TTL.
//
// Bundles live in a public directory as <fingerprint>.<ext>; metadata lives
// in an index directory as <fingerprint>.json, and groups/<group-key>.json
// points each group at its latest fingerprint. The recorded per-file mtime
// and size let unchanged files skip content hashing.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/assetkit/internal/assets"
)

// Mode selects how file inputs are signed.
type Mode string

const (
	// ModeContent signs files by the sha256 of their bytes.
	ModeContent Mode = "content"
	// ModeMtime signs files by modification time and size without reading them.
	ModeMtime Mode = "mtime"
)

// ParseMode validates a configured signature mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeContent:
		return ModeContent, nil
	case ModeMtime:
		return ModeMtime, nil
	default:
		return "", fmt.Errorf("unknown fingerprint mode %q (content, mtime)", s)
	}
}

const (
	DefaultFingerprintLength = 16
	MinFingerprintLength     = 8
	MaxFingerprintLength     = sha256.Size * 2
)

// Source kinds recorded in InputSignature.Kind.
const (
	InputFile   = "file"
	InputInline = "inline"
)

// InputSignature records how one source contributed to a fingerprint.
type InputSignature struct {
	Identity string    `json:"identity" yaml:"identity"`
	Kind     string    `json:"kind" yaml:"kind"`
	ModTime  time.Time `json:"mod_time,omitempty" yaml:"mod_time,omitempty"`
	Size     int64     `json:"size" yaml:"size"`
	Hash     string    `json:"hash,omitempty" yaml:"hash,omitempty"`
}

// Chain is the part of a compiler chain the cache needs to know about.
type Chain interface {
	Kind() assets.Kind
	Identity() string
	Annotates() bool
}

// Fingerprint hashes ordered input signatures with the chain identity.
//
// In content mode a file contributes its content hash only, so two groups
// with identical ordered content and chain share a fingerprint regardless of
// where the files live. When the chain annotates output with source
// identities those identities are part of the output, and so of the hash.
// In mtime mode a file contributes its path, mtime and size.
func Fingerprint(inputs []InputSignature, chain Chain, length int) string {
	h := sha256.New()

	for _, in := range inputs {
		h.Write([]byte(in.Kind))
		h.Write([]byte{0})
		switch {
		case in.Hash != "":
			if chain.Annotates() {
				h.Write([]byte(in.Identity))
				h.Write([]byte{0})
			}
			h.Write([]byte(in.Hash))
		default:
			h.Write([]byte(in.Identity))
			h.Write([]byte{0})
			h.Write([]byte(strconv.FormatInt(in.ModTime.UnixNano(), 10)))
			h.Write([]byte{0})
			h.Write([]byte(strconv.FormatInt(in.Size, 10)))
		}
		h.Write([]byte{1})
	}
	h.Write([]byte(chain.Identity()))

	return truncate(hex.EncodeToString(h.Sum(nil)), length)
}

// GroupKey identifies a group by its ordered source identities and chain,
// independent of content. It addresses the group's latest-fingerprint pointer.
func GroupKey(inputs []InputSignature, chain Chain) string {
	h := sha256.New()
	for _, in := range inputs {
		h.Write([]byte(in.Kind))
		h.Write([]byte{0})
		h.Write([]byte(in.Identity))
		h.Write([]byte{1})
	}
	h.Write([]byte(chain.Identity()))

	return hex.EncodeToString(h.Sum(nil))[:32]
}

func truncate(s string, length int) string {
	if length < MinFingerprintLength || length > len(s) {
		length = DefaultFingerprintLength
	}

	return s[:length]
}

// IsFingerprint reports whether s can be a fingerprint: lowercase hex within
// the allowed length range. It guards every path built from user input.
func IsFingerprint(s string) bool {
	if len(s) < MinFingerprintLength || len(s) > MaxFingerprintLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
