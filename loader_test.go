package imageloader_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imageloader "github.com/yuriy-budiyev/image-loader-sub002"
	apperrors "github.com/yuriy-budiyev/image-loader-sub002/errors"
)

// ── Test helpers ──────────────────────────────────────────────────────────

func newJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// fakeFetcher counts calls, optionally blocks on gate, and can report when
// its context is cancelled mid-fetch.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     int
	images    map[string][]byte
	err       error
	gate      chan struct{}
	cancelled chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, src imageloader.Source) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			if f.cancelled != nil {
				close(f.cancelled)
			}
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.images[src.URI]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", src.URI)
	}
	return data, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordSink records every delivery it receives.
type recordSink struct {
	mu           sync.Mutex
	placeholders int
	successes    []image.Image
	errs         []error
}

func (s *recordSink) OnPlaceholder() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeholders++
}

func (s *recordSink) OnSuccess(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes = append(s.successes, img)
}

func (s *recordSink) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordSink) counts() (placeholders, successes, errs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placeholders, len(s.successes), len(s.errs)
}

func (s *recordSink) lastImage() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.successes) == 0 {
		return nil
	}
	return s.successes[len(s.successes)-1]
}

func (s *recordSink) lastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[len(s.errs)-1]
}

func newLoader(t *testing.T, fetcher imageloader.Fetcher) *imageloader.Loader {
	t.Helper()
	l, err := imageloader.New(imageloader.Config{
		Fetcher:         fetcher,
		StorageCacheDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func waitDone(t *testing.T, h *imageloader.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

// ── Scenarios ─────────────────────────────────────────────────────────────

func TestColdLoadFetchesOnceAndPopulatesBothTiers(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{images: map[string][]byte{"a": newJPEG(t, 400, 200)}}
	l, err := imageloader.New(imageloader.Config{Fetcher: fetcher, StorageCacheDir: dir})
	require.NoError(t, err)
	defer l.Close()

	sink := &recordSink{}
	h, err := l.Load(context.Background(), imageloader.Request{
		Source: imageloader.FromURI("a"),
		Target: imageloader.Size{Width: 100, Height: 100},
	}, sink)
	require.NoError(t, err)
	waitDone(t, h)

	placeholders, successes, errs := sink.counts()
	assert.Equal(t, 1, placeholders)
	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, errs)
	assert.Equal(t, 1, fetcher.count())

	img := sink.lastImage()
	require.NotNil(t, img)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "storage tier should hold the fetched bytes")
}

func TestWarmMemoryCacheSkipsFetcher(t *testing.T) {
	fetcher := &fakeFetcher{images: map[string][]byte{"a": newJPEG(t, 100, 100)}}
	l := newLoader(t, fetcher)
	req := imageloader.Request{
		Source: imageloader.FromURI("a"),
		Target: imageloader.Size{Width: 50, Height: 50},
	}

	first := &recordSink{}
	h, err := l.Load(context.Background(), req, first)
	require.NoError(t, err)
	waitDone(t, h)

	second := &recordSink{}
	h, err = l.Load(context.Background(), req, second)
	require.NoError(t, err)
	waitDone(t, h)

	placeholders, successes, _ := second.counts()
	assert.Equal(t, 0, placeholders, "memory hit should not go asynchronous")
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, fetcher.count(), "warm memory cache must not refetch")
}

func TestWarmStorageCacheSkipsFetcher(t *testing.T) {
	fetcher := &fakeFetcher{images: map[string][]byte{"a": newJPEG(t, 100, 100)}}
	l := newLoader(t, fetcher)
	req := imageloader.Request{Source: imageloader.FromURI("a")}

	first := &recordSink{}
	h, err := l.Load(context.Background(), req, first)
	require.NoError(t, err)
	waitDone(t, h)

	l.ClearMemoryCache()

	second := &recordSink{}
	h, err = l.Load(context.Background(), req, second)
	require.NoError(t, err)
	waitDone(t, h)

	_, successes, errs := second.counts()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, errs)
	assert.Equal(t, 1, fetcher.count(), "storage hit must not refetch")
}

func TestStorageCacheSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	jpegData := newJPEG(t, 100, 100)
	req := imageloader.Request{Source: imageloader.FromURI("a")}

	first := &fakeFetcher{images: map[string][]byte{"a": jpegData}}
	l1, err := imageloader.New(imageloader.Config{Fetcher: first, StorageCacheDir: dir})
	require.NoError(t, err)
	sink := &recordSink{}
	h, err := l1.Load(context.Background(), req, sink)
	require.NoError(t, err)
	waitDone(t, h)
	require.NoError(t, l1.Close())

	second := &fakeFetcher{images: map[string][]byte{"a": jpegData}}
	l2, err := imageloader.New(imageloader.Config{Fetcher: second, StorageCacheDir: dir})
	require.NoError(t, err)
	defer l2.Close()

	sink = &recordSink{}
	h, err = l2.Load(context.Background(), req, sink)
	require.NoError(t, err)
	waitDone(t, h)

	_, successes, _ := sink.counts()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, second.count(), "recovered storage index should serve the load")
}

func TestConcurrentIdenticalRequestsCoalesce(t *testing.T) {
	const consumers = 8

	gate := make(chan struct{})
	fetcher := &fakeFetcher{
		images: map[string][]byte{"a": newJPEG(t, 100, 100)},
		gate:   gate,
	}
	l := newLoader(t, fetcher)
	req := imageloader.Request{Source: imageloader.FromURI("a")}

	sinks := make([]*recordSink, consumers)
	handles := make([]*imageloader.Handle, consumers)
	for i := 0; i < consumers; i++ {
		sinks[i] = &recordSink{}
		h, err := l.Load(context.Background(), req, sinks[i])
		require.NoError(t, err)
		handles[i] = h
	}

	close(gate)
	for _, h := range handles {
		waitDone(t, h)
	}

	assert.Equal(t, 1, fetcher.count(), "all consumers must share one fetch")
	for i, sink := range sinks {
		_, successes, errs := sink.counts()
		assert.Equal(t, 1, successes, "consumer %d", i)
		assert.Equal(t, 0, errs, "consumer %d", i)
	}
}

func TestFetchErrorReachesAllConsumersAndIsNotCached(t *testing.T) {
	gate := make(chan struct{})
	fetcher := &fakeFetcher{err: errors.New("boom"), gate: gate}
	l := newLoader(t, fetcher)
	req := imageloader.Request{Source: imageloader.FromURI("a")}

	first, second := &recordSink{}, &recordSink{}
	h1, err := l.Load(context.Background(), req, first)
	require.NoError(t, err)
	h2, err := l.Load(context.Background(), req, second)
	require.NoError(t, err)

	close(gate)
	waitDone(t, h1)
	waitDone(t, h2)

	assert.Equal(t, 1, fetcher.count(), "failing fetch is still coalesced")
	for _, sink := range []*recordSink{first, second} {
		_, successes, errs := sink.counts()
		assert.Equal(t, 0, successes)
		assert.Equal(t, 1, errs)
		assert.True(t, apperrors.IsKind(sink.lastError(), apperrors.KindFetch))
	}

	// No negative caching: a later identical request retries the fetch.
	third := &recordSink{}
	h3, err := l.Load(context.Background(), req, third)
	require.NoError(t, err)
	waitDone(t, h3)
	assert.Equal(t, 2, fetcher.count())
}

func TestFetcherCancellationClassified(t *testing.T) {
	fetcher := &fakeFetcher{err: context.Canceled}
	l := newLoader(t, fetcher)

	sink := &recordSink{}
	h, err := l.Load(context.Background(), imageloader.Request{
		Source: imageloader.FromURI("a"),
	}, sink)
	require.NoError(t, err)
	waitDone(t, h)

	lastErr := sink.lastError()
	require.Error(t, lastErr)
	assert.True(t, apperrors.IsKind(lastErr, apperrors.KindCanceled),
		"a cancellation surfaced by the fetcher is not a fetch failure")
	assert.False(t, apperrors.IsKind(lastErr, apperrors.KindFetch))
}

func TestCancelledConsumerNeverHearsBack(t *testing.T) {
	gate := make(chan struct{})
	fetcher := &fakeFetcher{
		images: map[string][]byte{"a": newJPEG(t, 100, 100)},
		gate:   gate,
	}
	l := newLoader(t, fetcher)
	req := imageloader.Request{Source: imageloader.FromURI("a")}

	cancelled, kept := &recordSink{}, &recordSink{}
	h1, err := l.Load(context.Background(), req, cancelled)
	require.NoError(t, err)
	h2, err := l.Load(context.Background(), req, kept)
	require.NoError(t, err)

	h1.Cancel()
	close(gate)
	waitDone(t, h2)

	_, successes, errs := kept.counts()
	assert.Equal(t, 1, successes, "cancellation must not affect other consumers")
	assert.Equal(t, 0, errs)

	_, successes, errs = cancelled.counts()
	assert.Equal(t, 0, successes, "cancelled sink must never receive a result")
	assert.Equal(t, 0, errs)
}

func TestLastCancellationStopsTheFetch(t *testing.T) {
	gate := make(chan struct{})
	cancelled := make(chan struct{})
	fetcher := &fakeFetcher{gate: gate, cancelled: cancelled}
	l := newLoader(t, fetcher)

	sink := &recordSink{}
	h, err := l.Load(context.Background(), imageloader.Request{
		Source: imageloader.FromURI("a"),
	}, sink)
	require.NoError(t, err)

	// Let the fetch start before withdrawing the only consumer.
	require.Eventually(t, func() bool { return fetcher.count() == 1 },
		5*time.Second, 5*time.Millisecond)
	h.Cancel()

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch context was not cancelled")
	}
}

func TestByteSourceSkipsFetcher(t *testing.T) {
	l := newLoader(t, nil)

	sink := &recordSink{}
	h, err := l.Load(context.Background(), imageloader.Request{
		Source: imageloader.FromBytes(newJPEG(t, 40, 40)),
	}, sink)
	require.NoError(t, err)
	waitDone(t, h)

	_, successes, errs := sink.counts()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, errs)
}

func TestURISourceWithoutFetcherFails(t *testing.T) {
	l := newLoader(t, nil)
	_, err := l.Load(context.Background(), imageloader.Request{
		Source: imageloader.FromURI("a"),
	}, &recordSink{})
	assert.Error(t, err)
}

func TestTransformsApplied(t *testing.T) {
	fetcher := &fakeFetcher{images: map[string][]byte{"a": newJPEG(t, 100, 100)}}
	l := newLoader(t, fetcher)

	sink := &recordSink{}
	h, err := l.Load(context.Background(), imageloader.Request{
		Source:     imageloader.FromURI("a"),
		Transforms: []imageloader.Transform{imageloader.Grayscale{}},
	}, sink)
	require.NoError(t, err)
	waitDone(t, h)

	img := sink.lastImage()
	require.NotNil(t, img)
	_, isGray := img.(*image.Gray)
	assert.True(t, isGray, "grayscale transform should shape the delivered image")
}

func TestTransformErrorPropagates(t *testing.T) {
	fetcher := &fakeFetcher{images: map[string][]byte{"a": newJPEG(t, 10, 10)}}
	l := newLoader(t, fetcher)

	sink := &recordSink{}
	h, err := l.Load(context.Background(), imageloader.Request{
		Source:     imageloader.FromURI("a"),
		Transforms: []imageloader.Transform{imageloader.CenterCrop{Width: 500, Height: 500}},
	}, sink)
	require.NoError(t, err)
	waitDone(t, h)

	_, successes, errs := sink.counts()
	assert.Equal(t, 0, successes)
	assert.Equal(t, 1, errs)
	assert.True(t, apperrors.IsKind(sink.lastError(), apperrors.KindTransform))
}

func TestDecodeErrorPropagates(t *testing.T) {
	fetcher := &fakeFetcher{images: map[string][]byte{"a": []byte("not an image")}}
	l := newLoader(t, fetcher)

	sink := &recordSink{}
	h, err := l.Load(context.Background(), imageloader.Request{
		Source: imageloader.FromURI("a"),
	}, sink)
	require.NoError(t, err)
	waitDone(t, h)

	assert.True(t, apperrors.IsKind(sink.lastError(), apperrors.KindDecode))
}

func TestDifferentTargetSizesAreDistinctEntries(t *testing.T) {
	fetcher := &fakeFetcher{images: map[string][]byte{"a": newJPEG(t, 400, 400)}}
	l := newLoader(t, fetcher)

	small := &recordSink{}
	h, err := l.Load(context.Background(), imageloader.Request{
		Source: imageloader.FromURI("a"),
		Target: imageloader.Size{Width: 100, Height: 100},
	}, small)
	require.NoError(t, err)
	waitDone(t, h)

	large := &recordSink{}
	h, err = l.Load(context.Background(), imageloader.Request{
		Source: imageloader.FromURI("a"),
		Target: imageloader.Size{Width: 200, Height: 200},
	}, large)
	require.NoError(t, err)
	waitDone(t, h)

	assert.Equal(t, 100, small.lastImage().Bounds().Dx())
	assert.Equal(t, 200, large.lastImage().Bounds().Dx())
}

func TestLoadAfterCloseFails(t *testing.T) {
	l, err := imageloader.New(imageloader.Config{StorageCacheDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.Load(context.Background(), imageloader.Request{
		Source: imageloader.FromBytes([]byte{1}),
	}, &recordSink{})
	assert.ErrorIs(t, err, apperrors.ErrLoaderClosed)
}

func TestContextCancellationWithdrawsConsumer(t *testing.T) {
	gate := make(chan struct{})
	fetcher := &fakeFetcher{
		images: map[string][]byte{"a": newJPEG(t, 10, 10)},
		gate:   gate,
	}
	l := newLoader(t, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordSink{}
	h, err := l.Load(ctx, imageloader.Request{Source: imageloader.FromURI("a")}, sink)
	require.NoError(t, err)

	cancel()
	waitDone(t, h)
	close(gate)

	// Settle the delivery queue, then confirm nothing terminal arrived.
	time.Sleep(50 * time.Millisecond)
	_, successes, errs := sink.counts()
	assert.Equal(t, 0, successes)
	assert.Equal(t, 0, errs)
}
