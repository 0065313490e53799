// Package errors defines the structured error type used throughout the
// image loader and predicates for classifying failures.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies error types for targeted handling.
type Kind string

const (
	KindFetch      Kind = "fetch"
	KindDecode     Kind = "decode"
	KindTransform  Kind = "transform"
	KindCacheWrite Kind = "cache_write"
	KindCacheIndex Kind = "cache_index"
	KindCanceled   Kind = "canceled"
)

// LoadError is the structured error type produced by the loader core.
type LoadError struct {
	Kind Kind
	Op   string // operation name
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// New creates a LoadError of the given kind.
func New(kind Kind, op string, err error) *LoadError {
	return &LoadError{Kind: kind, Op: op, Err: err}
}

// Wrap wraps err with kind and op. An error that already carries a kind is
// returned unchanged so the innermost classification wins. Returns nil for
// a nil err.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return New(kind, op, err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Kind == kind
	}
	return false
}

// Sentinel errors for common failure modes.
var (
	ErrEmptyInput        = errors.New("empty input")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrLoaderClosed      = errors.New("loader closed")
)
