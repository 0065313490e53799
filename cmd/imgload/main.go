// Command imgload loads local image files through the loader core and
// writes the decoded results as PNG, demonstrating how a host application
// wires the library: injected fetcher, env configuration, zap logging.
package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	imageloader "github.com/yuriy-budiyev/image-loader-sub002"
	"github.com/yuriy-budiyev/image-loader-sub002/internal/config"
	"github.com/yuriy-budiyev/image-loader-sub002/internal/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, true)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <image file> [more files...]\n", os.Args[0])
		os.Exit(2)
	}

	log.Info("Starting imgload",
		zap.String("cache_dir", cfg.CacheDir),
		zap.Int64("memory_cache_mb", cfg.MemoryCacheMB),
		zap.Int64("storage_cache_mb", cfg.StorageCacheMB),
	)

	loader, err := imageloader.New(imageloader.Config{
		Fetcher:              fileFetcher{},
		Logger:               log,
		MemoryCacheMaxBytes:  cfg.MemoryCacheMB << 20,
		StorageCacheMaxBytes: cfg.StorageCacheMB << 20,
		StorageCacheDir:      cfg.CacheDir,
		DisableMemoryCache:   cfg.DisableMemoryCache,
		DisableStorageCache:  cfg.DisableStorageCache,
	})
	if err != nil {
		log.Fatal("Failed to initialize loader", zap.Error(err))
	}
	defer loader.Close()

	target := imageloader.Size{Width: cfg.TargetWidth, Height: cfg.TargetHeight}

	g, ctx := errgroup.WithContext(context.Background())
	for _, path := range os.Args[1:] {
		path := path
		g.Go(func() error {
			return loadOne(ctx, loader, log, path, target, cfg.OutputDir)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal("Load failed", zap.Error(err))
	}
	log.Info("All images loaded")
}

type loadResult struct {
	img image.Image
	err error
}

func loadOne(ctx context.Context, loader *imageloader.Loader, log *zap.Logger,
	path string, target imageloader.Size, outputDir string) error {

	resCh := make(chan loadResult, 1)
	sink := imageloader.SinkFuncs{
		Success: func(img image.Image) { resCh <- loadResult{img: img} },
		Error:   func(err error) { resCh <- loadResult{err: err} },
	}

	handle, err := loader.Load(ctx, imageloader.Request{
		Source: imageloader.FromURI(path),
		Target: target,
	}, sink)
	if err != nil {
		return err
	}
	log.Debug("Submitted", zap.String("path", path), zap.String("handle", handle.ID()))

	var res loadResult
	select {
	case res = <-resCh:
	case <-ctx.Done():
		handle.Cancel()
		return ctx.Err()
	}
	if res.err != nil {
		return fmt.Errorf("%s: %w", path, res.err)
	}

	outPath := outputPath(outputDir, path)
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := png.Encode(out, res.img); err != nil {
		return err
	}

	b := res.img.Bounds()
	log.Info("Loaded",
		zap.String("path", path),
		zap.String("output", outPath),
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
	)
	return nil
}

func outputPath(outputDir, srcPath string) string {
	base := filepath.Base(srcPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, base+".out.png")
}

// fileFetcher resolves URI sources as local file paths.
type fileFetcher struct{}

func (fileFetcher) Fetch(ctx context.Context, source imageloader.Source) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(source.URI)
}
