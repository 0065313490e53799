// Package imageloader implements the core of an image loading library:
// a request coordinator in front of a two-tier cache (decoded images in
// memory, encoded bytes on disk) and a target-size-aware decode pipeline.
// Fetching and UI binding are injected collaborators.
package imageloader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/yuriy-budiyev/image-loader-sub002/errors"
	"github.com/yuriy-budiyev/image-loader-sub002/internal/cache"
	"github.com/yuriy-budiyev/image-loader-sub002/internal/image_codec"
)

// Default cache budgets.
const (
	DefaultMemoryCacheMaxBytes  = 64 << 20
	DefaultStorageCacheMaxBytes = 256 << 20
)

// Config configures a Loader. The zero value is usable for byte-buffer
// sources; URI sources additionally need a Fetcher.
type Config struct {
	// Fetcher resolves URI sources to encoded bytes.
	Fetcher Fetcher

	// Logger defaults to a nop logger.
	Logger *zap.Logger

	// MemoryCacheMaxBytes bounds the decoded-image tier; 0 picks the default.
	MemoryCacheMaxBytes int64
	// StorageCacheMaxBytes bounds the on-disk tier; 0 picks the default.
	StorageCacheMaxBytes int64
	// StorageCacheDir defaults to a directory under os.TempDir.
	StorageCacheDir string

	DisableMemoryCache  bool
	DisableStorageCache bool

	// Deliver runs sink callbacks on the consumer's designated context.
	// By default the Loader owns a single delivery goroutine, so callbacks
	// are serialized and never run on a fetch or decode worker.
	Deliver func(fn func())
}

// Loader coordinates image loads: request coalescing, cache tiers, decode
// and delivery. Construct with New and share the instance; there is no
// package-level singleton.
type Loader struct {
	fetcher Fetcher
	mem     cache.ImageCache
	store   cache.ByteCache
	log     *zap.Logger

	group   singleflight.Group
	mu      sync.Mutex
	flights map[cache.Key]*flight
	closed  bool

	deliver   func(fn func())
	deliverCh chan func()
	stopCh    chan struct{}

	ctx        context.Context
	cancel     context.CancelFunc
	loadWG     sync.WaitGroup
	deliveryWG sync.WaitGroup
}

// flight tracks one in-progress fetch+decode and its registered consumers.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New creates a Loader from cfg.
func New(cfg Config) (*Loader, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	memBytes := cfg.MemoryCacheMaxBytes
	if memBytes == 0 {
		memBytes = DefaultMemoryCacheMaxBytes
	}
	storeBytes := cfg.StorageCacheMaxBytes
	if storeBytes == 0 {
		storeBytes = DefaultStorageCacheMaxBytes
	}
	storeDir := cfg.StorageCacheDir
	if storeDir == "" {
		storeDir = filepath.Join(os.TempDir(), "image-loader")
	}

	store, err := cache.NewByteCache(!cfg.DisableStorageCache, storeDir, storeBytes, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		fetcher:   cfg.Fetcher,
		mem:       cache.NewImageCache(!cfg.DisableMemoryCache, memBytes, log),
		store:     store,
		log:       log,
		flights:   make(map[cache.Key]*flight),
		deliverCh: make(chan func(), 128),
		stopCh:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	if cfg.Deliver != nil {
		l.deliver = cfg.Deliver
	} else {
		l.deliver = l.enqueue
		l.deliveryWG.Add(1)
		go l.deliveryLoop()
	}
	return l, nil
}

// Handle tracks one submitted request from the consumer's side.
type Handle struct {
	id string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	canceled bool
	finished bool
	done     chan struct{}
}

// ID returns the handle's unique identifier, usable for log correlation.
func (h *Handle) ID() string { return h.id }

// Done is closed once the load reached a terminal state for this consumer:
// delivered, failed, or cancelled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel withdraws this consumer. After Cancel returns, no new sink
// callback will be started for this handle, even if the underlying fetch
// races to completion. Other consumers sharing the same key are unaffected.
func (h *Handle) Cancel() {
	h.markCanceled()
	h.cancel()
}

func (h *Handle) markCanceled() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled || h.finished {
		return
	}
	h.canceled = true
	close(h.done)
}

// Load submits a request. The sink's callbacks run on the delivery
// context; cancelling ctx withdraws the consumer just like Handle.Cancel.
func (l *Loader) Load(ctx context.Context, req Request, sink Sink) (*Handle, error) {
	if sink == nil {
		return nil, fmt.Errorf("nil sink")
	}
	if req.Source.empty() {
		return nil, fmt.Errorf("empty source")
	}
	if req.Source.Data == nil && l.fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured for URI source %q", req.Source.URI)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := cache.ComputeKey(req.Source.cacheID(),
		req.Target.Width, req.Target.Height, transformIDs(req.Transforms))

	hctx, hcancel := context.WithCancel(ctx)
	h := &Handle{
		id:     uuid.New().String(),
		ctx:    hctx,
		cancel: hcancel,
		done:   make(chan struct{}),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		hcancel()
		return nil, apperrors.ErrLoaderClosed
	}

	// Memory tier first: a hit delivers without touching the flight table.
	if img, ok := l.mem.Get(key); ok {
		l.mu.Unlock()
		l.deliverTerminal(h, func() { sink.OnSuccess(img) })
		return h, nil
	}

	fl := l.flights[key]
	if fl == nil {
		fctx, fcancel := context.WithCancel(l.ctx)
		fl = &flight{ctx: fctx, cancel: fcancel}
		l.flights[key] = fl
	}
	fl.waiters++
	l.loadWG.Add(1)
	l.mu.Unlock()

	l.deliverEvent(h, sink.OnPlaceholder)

	go l.await(h, fl, key, req, sink)
	return h, nil
}

// await waits for the coalesced resolve of this handle's key, then either
// delivers or, if the consumer cancelled first, withdraws quietly.
func (l *Loader) await(h *Handle, fl *flight, key cache.Key, req Request, sink Sink) {
	defer l.loadWG.Done()

	ch := l.group.DoChan(string(key), func() (interface{}, error) {
		return l.resolve(fl.ctx, key, req)
	})

	select {
	case <-h.ctx.Done():
		h.markCanceled()
		l.withdraw(key, fl, true)
	case res := <-ch:
		l.withdraw(key, fl, false)
		if res.Err != nil {
			err := res.Err
			l.deliverTerminal(h, func() { sink.OnError(err) })
			return
		}
		img := res.Val.(image.Image)
		l.deliverTerminal(h, func() { sink.OnSuccess(img) })
	}
}

// withdraw unregisters one consumer from a flight. The last one to leave
// releases the flight context; if it left by cancelling, the coalesced
// operation is also forgotten so a later request starts fresh.
func (l *Loader) withdraw(key cache.Key, fl *flight, canceled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	if l.flights[key] == fl {
		delete(l.flights, key)
		if canceled {
			l.group.Forget(string(key))
		}
	}
	fl.cancel()
}

// resolve runs at most once per key per flight: storage tier, then the
// fetcher, then decode+transform, then cache population. Errors are never
// cached; a cache write failure after a successful decode is logged and
// the result still returned.
func (l *Loader) resolve(ctx context.Context, key cache.Key, req Request) (image.Image, error) {
	if data, ok := l.store.Get(key); ok {
		img, err := l.decodeAndTransform(data, req)
		if err == nil {
			l.mem.Put(key, img, image_codec.EstimateSize(img))
			return img, nil
		}
		// Cached bytes no longer decode: drop them and fall through to a
		// fresh fetch.
		l.store.Remove(key)
		l.log.Warn("Discarding undecodable storage cache entry",
			zap.String("key", string(key)), zap.Error(err))
	}

	data, err := l.fetchSource(ctx, req.Source)
	if err != nil {
		kind := apperrors.KindFetch
		if errors.Is(err, context.Canceled) {
			kind = apperrors.KindCanceled
		}
		return nil, apperrors.Wrap(kind, "fetch", err)
	}

	img, err := l.decodeAndTransform(data, req)
	if err != nil {
		return nil, err
	}

	l.store.Put(key, data)
	l.mem.Put(key, img, image_codec.EstimateSize(img))
	return img, nil
}

func (l *Loader) fetchSource(ctx context.Context, source Source) ([]byte, error) {
	if source.Data != nil {
		return source.Data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.fetcher.Fetch(ctx, source)
}

func (l *Loader) decodeAndTransform(data []byte, req Request) (image.Image, error) {
	img, err := image_codec.Decode(data, req.Target.Width, req.Target.Height)
	if err != nil {
		return nil, err
	}
	return applyTransforms(img, req.Transforms)
}

// deliverEvent schedules a non-terminal callback, skipped once the handle
// is cancelled or finished.
func (l *Loader) deliverEvent(h *Handle, fn func()) {
	l.deliver(func() {
		h.mu.Lock()
		skip := h.canceled || h.finished
		h.mu.Unlock()
		if !skip {
			fn()
		}
	})
}

// deliverTerminal schedules the single terminal callback for a handle,
// releases the handle's request context, and closes its done channel.
func (l *Loader) deliverTerminal(h *Handle, fn func()) {
	l.deliver(func() {
		h.mu.Lock()
		if h.canceled || h.finished {
			h.mu.Unlock()
			return
		}
		h.finished = true
		h.mu.Unlock()

		fn()
		h.cancel()
		close(h.done)
	})
}

func (l *Loader) enqueue(fn func()) {
	select {
	case l.deliverCh <- fn:
	case <-l.stopCh:
	}
}

func (l *Loader) deliveryLoop() {
	defer l.deliveryWG.Done()
	for {
		select {
		case fn := <-l.deliverCh:
			fn()
		case <-l.stopCh:
			// Drain callbacks queued before shutdown.
			for {
				select {
				case fn := <-l.deliverCh:
					fn()
				default:
					return
				}
			}
		}
	}
}

// ClearMemoryCache drops every decoded image from the memory tier.
func (l *Loader) ClearMemoryCache() {
	l.mem.Clear()
}

// ClearStorageCache drops every entry from the storage tier.
func (l *Loader) ClearStorageCache() error {
	return l.store.Clear()
}

// ClearCaches drops both tiers.
func (l *Loader) ClearCaches() error {
	l.mem.Clear()
	return l.store.Clear()
}

// Close cancels in-flight work, waits for it to settle, and runs any
// deliveries already queued. Loads submitted after Close fail with
// ErrLoaderClosed.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.loadWG.Wait()
	close(l.stopCh)
	l.deliveryWG.Wait()
	return nil
}
