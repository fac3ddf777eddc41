// Package assets resolves model paths to loaded assets held in a blob store.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"cadcore/internal/blob/core"
	"cadcore/internal/logging"
	"cadcore/internal/observability"
	"cadcore/internal/scene"
)

// DefaultCacheSize bounds the number of decoded assets kept in memory.
const DefaultCacheSize = 64

// DefaultMaxSize caps the bytes read for a single asset.
const DefaultMaxSize int64 = 256 << 20

// ErrAssetNotFound reports a model path with no backing blob.
type ErrAssetNotFound struct {
	Path string
}

func (e ErrAssetNotFound) Error() string { return "asset " + e.Path + " not found" }

// Stats counts cache effectiveness.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Loads  uint64 `json:"loads"`
	Cached int    `json:"cached"`
}

// Loader implements scene.AssetLoader and scene.AssetPeeker over a blob store.
// Concurrent loads of one path share a single blob read.
type Loader struct {
	store   core.Store
	cache   *lru.Cache[string, scene.Asset]
	group   singleflight.Group
	maxSize int64
	metrics observability.MetricsRecorder
	logger  *slog.Logger

	hits, misses, loads atomic.Uint64
}

// Option configures a Loader.
type Option func(*loaderConfig)

type loaderConfig struct {
	cacheSize int
	maxSize   int64
	metrics   observability.MetricsRecorder
	logger    *slog.Logger
}

// WithCacheSize sets the LRU capacity.
func WithCacheSize(n int) Option { return func(c *loaderConfig) { c.cacheSize = n } }

// WithMaxSize caps the size of a single asset.
func WithMaxSize(n int64) Option { return func(c *loaderConfig) { c.maxSize = n } }

// WithMetrics records every blob load as operation "asset.load".
func WithMetrics(rec observability.MetricsRecorder) Option {
	return func(c *loaderConfig) { c.metrics = rec }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *loaderConfig) { c.logger = l } }

// New returns a Loader reading from store.
func New(store core.Store, opts ...Option) (*Loader, error) {
	cfg := loaderConfig{cacheSize: DefaultCacheSize, maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cacheSize <= 0 {
		cfg.cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, scene.Asset](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("asset cache: %w", err)
	}
	if cfg.metrics == nil {
		cfg.metrics = observability.NoopRecorder{}
	}
	return &Loader{
		store:   store,
		cache:   cache,
		maxSize: cfg.maxSize,
		metrics: cfg.metrics,
		logger:  logging.Or(cfg.logger).With("component", "assets"),
	}, nil
}

// Peek returns a cached asset without touching the blob store.
func (l *Loader) Peek(p string) (scene.Asset, bool) {
	a, ok := l.cache.Get(cleanPath(p))
	if ok {
		l.hits.Add(1)
	}
	return a, ok
}

// Load returns the asset for p, reading and decoding the blob on a miss.
func (l *Loader) Load(ctx context.Context, p string) (scene.Asset, error) {
	key := cleanPath(p)
	if a, ok := l.cache.Get(key); ok {
		l.hits.Add(1)
		return a, nil
	}
	l.misses.Add(1)
	ch := l.group.DoChan(key, func() (any, error) {
		var a scene.Asset
		err := observability.Instrument(context.WithoutCancel(ctx), l.metrics, nil, "asset.load", func(ctx context.Context) error {
			var err error
			a, err = l.fetch(ctx, key)
			return err
		})
		if err != nil {
			return scene.Asset{}, err
		}
		l.cache.Add(key, a)
		return a, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return scene.Asset{}, res.Err
		}
		return res.Val.(scene.Asset), nil
	case <-ctx.Done():
		return scene.Asset{}, ctx.Err()
	}
}

func (l *Loader) fetch(ctx context.Context, key string) (scene.Asset, error) {
	l.loads.Add(1)
	info, rc, err := l.store.Get(ctx, key)
	if core.IsNotFound(err) {
		return scene.Asset{}, ErrAssetNotFound{Path: key}
	}
	if err != nil {
		return scene.Asset{}, fmt.Errorf("read asset %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, l.maxSize+1))
	if err != nil {
		return scene.Asset{}, fmt.Errorf("read asset %s: %w", key, err)
	}
	if int64(len(data)) > l.maxSize {
		return scene.Asset{}, fmt.Errorf("asset %s exceeds %d bytes", key, l.maxSize)
	}
	format, contentType := Detect(key, data)
	if contentType == "" {
		contentType = info.ContentType
	}
	bounds, err := Bounds(format, data)
	if err != nil {
		l.logger.Warn("asset bounds unavailable", "path", key, "error", err)
	}
	root := fmt.Sprintf("%s://%s", l.store.Driver(), key)
	if info.ETag != "" {
		root += "#" + info.ETag
	}
	l.logger.Debug("asset loaded", "path", key, "format", format, "bytes", len(data))
	return scene.Asset{
		Path:        key,
		Root:        root,
		Format:      format,
		ContentType: contentType,
		Size:        int64(len(data)),
		Bounds:      bounds,
	}, nil
}

// Put uploads an asset under p, tagging it with the detected content type.
func (l *Loader) Put(ctx context.Context, p string, data []byte, overwrite bool) (core.Info, error) {
	key := cleanPath(p)
	_, contentType := Detect(key, data)
	info, err := l.store.Put(ctx, key, bytes.NewReader(data), core.PutOptions{ContentType: contentType, Overwrite: overwrite})
	if err != nil {
		return core.Info{}, err
	}
	l.cache.Remove(key)
	return info, nil
}

// URL returns a link the renderer can fetch the raw asset from.
func (l *Loader) URL(ctx context.Context, p string) (string, error) {
	url, err := l.store.PresignURL(ctx, cleanPath(p), core.SignedURLOptions{})
	if errors.Is(err, core.ErrUnsupported) {
		return "", fmt.Errorf("asset urls on %s: %w", l.store.Driver(), err)
	}
	return url, err
}

// Invalidate drops p from the cache.
func (l *Loader) Invalidate(p string) { l.cache.Remove(cleanPath(p)) }

// Stats returns cache counters.
func (l *Loader) Stats() Stats {
	return Stats{Hits: l.hits.Load(), Misses: l.misses.Load(), Loads: l.loads.Load(), Cached: l.cache.Len()}
}

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
}

var (
	_ scene.AssetLoader = (*Loader)(nil)
	_ scene.AssetPeeker = (*Loader)(nil)
)
