package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetErrorError(t *testing.T) {
	err := NewSourceNotFound("css/a.css", fs.ErrNotExist)

	msg := err.Error()
	assert.Contains(t, msg, "[ASSET_SOURCE_NOT_FOUND]")
	assert.Contains(t, msg, "css/a.css")
	assert.Contains(t, msg, fs.ErrNotExist.Error())
}

func TestAssetErrorIs(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"source not found", NewSourceNotFound("a.css", nil), ErrSourceNotFound, true},
		{"unsupported", NewUnsupportedSourceType("a.txt", "bad ext"), ErrUnsupportedSourceType, true},
		{"cache write", NewCacheWriteError("x.css", errors.New("disk full")), ErrCacheWrite, true},
		{"type mismatch", NewSourceNotFound("a.css", nil), ErrCacheWrite, false},
		{"source changed", NewSourceChangedError("a.css"), ErrSourceChanged, true},
		{"source changed is not a write", NewSourceChangedError("a.css"), ErrCacheWrite, false},
		{"wrapped", fmt.Errorf("adding: %w", NewSourceNotFound("a.css", nil)), ErrSourceNotFound, true},
		{"plain error", errors.New("boom"), ErrSourceNotFound, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, errors.Is(tc.err, tc.target))
		})
	}
}

func TestAssetErrorIsCode(t *testing.T) {
	err := NewConfigError("CONFIG_BAD_MODE", "bad mode")

	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.True(t, errors.Is(err, &AssetError{Type: ErrorTypeConfig, Code: "CONFIG_BAD_MODE"}))
	assert.False(t, errors.Is(err, &AssetError{Type: ErrorTypeConfig, Code: "OTHER"}))
}

func TestAssetErrorUnwrap(t *testing.T) {
	cause := errors.New("no space left on device")
	err := NewCacheWriteError("/public/abc.css", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsCacheWrite(err))
	assert.False(t, IsSourceNotFound(err))
}

func TestAssetErrorWithContext(t *testing.T) {
	err := NewUnsupportedSourceType("a.txt", "extension not accepted").
		WithContext("kind", "css")

	assert.Equal(t, "css", err.Context["kind"])
	assert.True(t, IsUnsupportedSourceType(err))
}

func TestCompileError(t *testing.T) {
	cause := errors.New("unexpected }")
	err := fmt.Errorf("building css: %w", &CompileError{
		Stage:  "minify",
		Source: "a.css, inline:0",
		Cause:  cause,
	})

	ce, ok := AsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, "minify", ce.Stage)
	assert.Equal(t, "a.css, inline:0", ce.Source)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `compile stage "minify" failed for a.css, inline:0`)

	_, ok = AsCompileError(errors.New("other"))
	assert.False(t, ok)
}
