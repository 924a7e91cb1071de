// Package errors defines the typed errors returned by the asset pipeline.
//
// Add-time failures (SourceNotFound, UnsupportedSourceType) and storage
// failures (CacheWriteError) are *AssetError values distinguished by Type and
// matched with errors.Is against the exported sentinels. Stage failures are
// *CompileError values matched with errors.As.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeSourceNotFound  ErrorType = "source_not_found"
	ErrorTypeUnsupportedType ErrorType = "unsupported_source_type"
	ErrorTypeCacheWrite      ErrorType = "cache_write"
	ErrorTypeSourceChanged   ErrorType = "source_changed"
	ErrorTypeConfig          ErrorType = "config"
)

// Sentinels for errors.Is matching. Any *AssetError of the same Type matches.
var (
	ErrSourceNotFound        = &AssetError{Type: ErrorTypeSourceNotFound, Message: "source not found"}
	ErrUnsupportedSourceType = &AssetError{Type: ErrorTypeUnsupportedType, Message: "unsupported source type"}
	ErrCacheWrite            = &AssetError{Type: ErrorTypeCacheWrite, Message: "cache write failed"}
	ErrSourceChanged         = &AssetError{Type: ErrorTypeSourceChanged, Message: "source changed during compilation"}
	ErrInvalidConfig         = &AssetError{Type: ErrorTypeConfig, Message: "invalid configuration"}
)

// AssetError is a structured error type with context.
type AssetError struct {
	Type    ErrorType
	Code    string
	Message string
	Path    string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *AssetError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *AssetError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison. A target without a Code matches every
// error of its Type.
func (e *AssetError) Is(target error) bool {
	var t *AssetError
	if !errors.As(target, &t) {
		return false
	}

	return e.Type == t.Type && (t.Code == "" || e.Code == t.Code)
}

// WithContext adds context information to the error.
func (e *AssetError) WithContext(key string, value interface{}) *AssetError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// NewSourceNotFound reports a file source that is missing or unreadable.
func NewSourceNotFound(path string, cause error) *AssetError {
	return &AssetError{
		Type:    ErrorTypeSourceNotFound,
		Code:    "ASSET_SOURCE_NOT_FOUND",
		Message: "source file not found or unreadable",
		Path:    path,
		Cause:   cause,
	}
}

// NewUnsupportedSourceType reports a source the group kind cannot accept.
func NewUnsupportedSourceType(path, reason string) *AssetError {
	return &AssetError{
		Type:    ErrorTypeUnsupportedType,
		Code:    "ASSET_UNSUPPORTED_SOURCE",
		Message: reason,
		Path:    path,
	}
}

// NewCacheWriteError reports a bundle or index entry that could not be persisted.
func NewCacheWriteError(path string, cause error) *AssetError {
	return &AssetError{
		Type:    ErrorTypeCacheWrite,
		Code:    "ASSET_CACHE_WRITE",
		Message: "failed to persist cache entry",
		Path:    path,
		Cause:   cause,
	}
}

// NewSourceChangedError reports a source whose bytes at compile time differ
// from the bytes it was fingerprinted with.
func NewSourceChangedError(path string) *AssetError {
	return &AssetError{
		Type:    ErrorTypeSourceChanged,
		Code:    "ASSET_SOURCE_CHANGED",
		Message: "source changed after it was fingerprinted",
		Path:    path,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *AssetError {
	return &AssetError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// CompileError is returned when a compiler stage rejects its input.
// No output is produced for the group when a stage fails.
type CompileError struct {
	Stage  string
	Source string
	Cause  error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("compile stage %q failed: %v", e.Stage, e.Cause)
	}

	return fmt.Sprintf("compile stage %q failed for %s: %v", e.Stage, e.Source, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *CompileError) Unwrap() error {
	return e.Cause
}

// IsSourceNotFound checks if an error reports a missing source.
func IsSourceNotFound(err error) bool {
	return errors.Is(err, ErrSourceNotFound)
}

// IsUnsupportedSourceType checks if an error reports an unsupported source.
func IsUnsupportedSourceType(err error) bool {
	return errors.Is(err, ErrUnsupportedSourceType)
}

// IsCacheWrite checks if an error reports a failed cache write.
func IsCacheWrite(err error) bool {
	return errors.Is(err, ErrCacheWrite)
}

// AsCompileError extracts a *CompileError from err's chain.
func AsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}

	return nil, false
}
