// Package assets keeps the trimmed dark/light logos ready for compositing.
//
// The cache is loaded lazily from the blob store, lives for a fixed TTL and is
// dropped explicitly whenever a logo is replaced. Both variants are prepared
// concurrently; each one is bounded by its own timeout and a failure of one
// never affects the other.
package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/UnendingLoop/watermarker/internal/imageproc"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTTL            = 10 * time.Minute
	DefaultPrepareTimeout = 10 * time.Second
)

// Source is the part of the blob store the cache reads from.
type Source interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Assets is one consistent snapshot of both variants; either may be nil.
type Assets struct {
	Dark  *imageproc.TrimmedAsset
	Light *imageproc.TrimmedAsset
}

// Get returns the asset for v; anything other than light means dark.
func (a Assets) Get(v model.Variant) *imageproc.TrimmedAsset {
	if v == model.VariantLight {
		return a.Light
	}
	return a.Dark
}

// Cache keeps the trimmed logos in memory and reloads them after ttl or Invalidate.
type Cache struct {
	src    Source
	logger zlog.Zerolog

	ttl            time.Duration
	prepareTimeout time.Duration
	now            func() time.Time
	prepareFn      func(raw []byte, policy imageproc.TrimPolicy) (*imageproc.TrimmedAsset, error)

	mu       sync.Mutex
	loaded   bool
	loadedAt time.Time
	current  Assets
}

// NewCache returns an empty cache; nothing is read until the first EnsureLoaded.
func NewCache(src Source, logger zlog.Zerolog) *Cache {
	return &Cache{
		src:            src,
		logger:         logger,
		ttl:            DefaultTTL,
		prepareTimeout: DefaultPrepareTimeout,
		now:            time.Now,
		prepareFn:      decodeAndTrim,
	}
}

func decodeAndTrim(raw []byte, policy imageproc.TrimPolicy) (*imageproc.TrimmedAsset, error) {
	bmp, err := imageproc.Decode(raw)
	if err != nil {
		return nil, err
	}
	return imageproc.Trim(bmp, policy)
}

// EnsureLoaded returns the cached logos, reloading them when the cache is empty
// or older than the TTL. A missing or broken variant is reported as nil, not as an
// error; the only error is a cancelled ctx, in which case nothing is cached.
func (c *Cache) EnsureLoaded(ctx context.Context) (Assets, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && c.now().Sub(c.loadedAt) < c.ttl {
		return c.current, nil
	}

	var ready [2]*imageproc.TrimmedAsset
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range model.Variants {
		i, v := i, v
		g.Go(func() error {
			// ошибки варианта не фатальны - вариант просто считается отсутствующим
			ready[i] = c.prepare(gctx, v)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Assets{}, err
	}

	c.current = Assets{Dark: ready[0], Light: ready[1]}
	c.loaded = true
	c.loadedAt = c.now()

	c.logger.Debug().
		Bool("dark", c.current.Dark != nil).
		Bool("light", c.current.Light != nil).
		Msg("Watermark cache reloaded")

	return c.current, nil
}

// Invalidate forces a reload on the next EnsureLoaded.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaded = false
	c.current = Assets{}
}

type prepared struct {
	asset *imageproc.TrimmedAsset
	err   error
}

func (c *Cache) prepare(ctx context.Context, v model.Variant) *imageproc.TrimmedAsset {
	log := c.logger.With().Str("variant", string(v)).Logger()

	tctx, cancel := context.WithTimeout(ctx, c.prepareTimeout)
	defer cancel()

	done := make(chan prepared, 1)
	go func() {
		raw, err := c.src.Get(tctx, model.AssetKey(v))
		if err != nil {
			done <- prepared{err: err}
			return
		}
		a, err := c.prepareFn(raw, imageproc.PolicyFor(v))
		done <- prepared{asset: a, err: err}
	}()

	select {
	case <-tctx.Done():
		if ctx.Err() == nil {
			log.Warn().Err(fmt.Errorf("%w after %v", model.ErrPrepareTimeout, c.prepareTimeout)).Msg("Watermark variant treated as absent")
		}
		return nil
	case res := <-done:
		switch {
		case res.err == nil:
			return res.asset
		case errors.Is(res.err, model.ErrObjectNotFound):
			log.Debug().Msg("Watermark variant is not uploaded")
		default:
			log.Warn().Err(res.err).Msg("Failed to prepare watermark variant")
		}
		return nil
	}
}
