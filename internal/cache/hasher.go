package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/conneroisu/assetkit/internal/assets"
	asseterrors "github.com/conneroisu/assetkit/internal/errors"
)

// Hasher signs sources, avoiding file reads whenever metadata shows a file
// is unchanged.
//
// Lookup order for a file in content mode:
//  1. the signature recorded in the index for the same path, mtime and size
//  2. the in-memory memo keyed by "path:mtime:size"
//  3. reading and hashing the file
type Hasher struct {
	mode Mode
	memo *HashMemo
}

// NewHasher creates a hasher for mode backed by memo.
func NewHasher(mode Mode, memo *HashMemo) *Hasher {
	if memo == nil {
		memo = NewHashMemo(0)
	}

	return &Hasher{mode: mode, memo: memo}
}

// Mode returns the signature mode.
func (h *Hasher) Mode() Mode {
	return h.mode
}

// Signatures signs every compilable source in order. recorded maps file
// identities to signatures from a previous compilation of the same group.
func (h *Hasher) Signatures(
	ctx context.Context,
	sources []assets.Source,
	recorded map[string]InputSignature,
) ([]InputSignature, error) {
	sigs := make([]InputSignature, 0, len(sources))

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch s := src.(type) {
		case assets.FileSource:
			sig, err := h.fileSignature(s.Path, recorded)
			if err != nil {
				return nil, err
			}
			sigs = append(sigs, sig)
		case assets.InlineSource:
			sigs = append(sigs, InputSignature{
				Identity: s.Identity(),
				Kind:     InputInline,
				Size:     int64(len(s.Content)),
				Hash:     hashBytes([]byte(s.Content)),
			})
		default:
			return nil, fmt.Errorf("source %s cannot be fingerprinted", src.Identity())
		}
	}

	return sigs, nil
}

func (h *Hasher) fileSignature(path string, recorded map[string]InputSignature) (InputSignature, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return InputSignature{}, asseterrors.NewSourceNotFound(path, err)
	}

	sig := InputSignature{
		Identity: path,
		Kind:     InputFile,
		ModTime:  stat.ModTime().UTC(),
		Size:     stat.Size(),
	}

	if h.mode == ModeMtime {
		return sig, nil
	}

	if prev, ok := recorded[path]; ok && prev.Hash != "" &&
		prev.Size == sig.Size && prev.ModTime.Equal(sig.ModTime) {
		sig.Hash = prev.Hash
		return sig, nil
	}

	metadataKey := fmt.Sprintf("%s:%d:%d", path, sig.ModTime.UnixNano(), sig.Size)
	if hash, found := h.memo.Get(metadataKey); found {
		sig.Hash = hash
		return sig, nil
	}

	hash, err := hashFile(path)
	if err != nil {
		return InputSignature{}, asseterrors.NewSourceNotFound(path, err)
	}
	h.memo.Set(metadataKey, hash)
	sig.Hash = hash

	return sig, nil
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
