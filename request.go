package imageloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
)

// Source identifies the image to load: either a URI resolved through the
// configured Fetcher, or an in-memory byte buffer which skips fetching
// entirely. The cache identity of a byte buffer is its content digest, so
// identical buffers share cache entries.
type Source struct {
	URI  string
	Data []byte
}

// FromURI returns a Source resolved through the Fetcher.
func FromURI(uri string) Source { return Source{URI: uri} }

// FromBytes returns a Source backed by encoded image bytes.
func FromBytes(data []byte) Source { return Source{Data: data} }

// cacheID returns the content-stable identity used in cache keys.
func (s Source) cacheID() string {
	if s.Data != nil {
		sum := sha256.Sum256(s.Data)
		return "data:" + hex.EncodeToString(sum[:])
	}
	return "uri:" + s.URI
}

func (s Source) empty() bool { return s.URI == "" && s.Data == nil }

// Size is a decode target in pixels. A non-positive dimension is
// unconstrained; the zero value means a full-size decode.
type Size struct {
	Width  int
	Height int
}

// Unspecified reports whether no target size was requested.
func (s Size) Unspecified() bool { return s.Width <= 0 && s.Height <= 0 }

// Request describes a single load. Transforms apply in order after decode
// and participate in the cache key through their IDs.
type Request struct {
	Source     Source
	Target     Size
	Transforms []Transform
}

// Fetcher obtains the encoded bytes for a source. It is an injected
// collaborator: network, filesystem, or anything else. Implementations
// must honor ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, source Source) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, source Source) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, source Source) ([]byte, error) {
	return f(ctx, source)
}

// Sink receives the outcome of a load. All methods are invoked on the
// delivery context, never on a fetch or decode worker. A load produces at
// most one terminal call: OnSuccess or OnError, exactly once, and never
// after the handle has been cancelled.
type Sink interface {
	// OnPlaceholder signals that the load went asynchronous and the
	// consumer should show its placeholder.
	OnPlaceholder()
	OnSuccess(img image.Image)
	OnError(err error)
}

// SinkFuncs adapts plain callbacks to the Sink interface. Nil callbacks
// are skipped.
type SinkFuncs struct {
	Placeholder func()
	Success     func(img image.Image)
	Error       func(err error)
}

func (s SinkFuncs) OnPlaceholder() {
	if s.Placeholder != nil {
		s.Placeholder()
	}
}

func (s SinkFuncs) OnSuccess(img image.Image) {
	if s.Success != nil {
		s.Success(img)
	}
}

func (s SinkFuncs) OnError(err error) {
	if s.Error != nil {
		s.Error(err)
	}
}
