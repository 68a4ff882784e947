package assets

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/UnendingLoop/watermarker/internal/imageproc"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func pngLogo(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func newTestCache(src Source) (*Cache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(src, zerolog.Nop())
	c.now = clk.Now
	return c, clk
}

func TestCache_LoadsBothVariants(t *testing.T) {
	src := NewMemorySource(map[string][]byte{
		model.KeyWatermarkDark:  pngLogo(t, 40, 20, color.NRGBA{0, 0, 0, 255}),
		model.KeyWatermarkLight: pngLogo(t, 30, 30, color.NRGBA{200, 10, 10, 255}),
	})
	c, _ := newTestCache(src)

	a, err := c.EnsureLoaded(context.Background())
	require.NoError(t, err)
	require.NotNil(t, a.Dark)
	require.NotNil(t, a.Light)
	require.InDelta(t, 2.0, a.Get(model.VariantDark).AspectRatio, 1e-9)
	require.InDelta(t, 1.0, a.Get(model.VariantLight).AspectRatio, 1e-9)
	require.Equal(t, 2, src.Reads())
}

func TestCache_TTL(t *testing.T) {
	src := NewMemorySource(map[string][]byte{
		model.KeyWatermarkDark:  pngLogo(t, 10, 10, color.NRGBA{0, 0, 0, 255}),
		model.KeyWatermarkLight: pngLogo(t, 10, 10, color.NRGBA{90, 90, 90, 255}),
	})
	c, clk := newTestCache(src)
	ctx := context.Background()

	_, err := c.EnsureLoaded(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, src.Reads())

	clk.Advance(9*time.Minute + 59*time.Second)
	_, err = c.EnsureLoaded(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, src.Reads(), "no reads within TTL")

	clk.Advance(time.Second)
	_, err = c.EnsureLoaded(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, src.Reads(), "reload once TTL is reached")
}

func TestCache_Invalidate(t *testing.T) {
	src := NewMemorySource(map[string][]byte{
		model.KeyWatermarkDark: pngLogo(t, 10, 10, color.NRGBA{0, 0, 0, 255}),
	})
	c, _ := newTestCache(src)
	ctx := context.Background()

	a, err := c.EnsureLoaded(ctx)
	require.NoError(t, err)
	require.NotNil(t, a.Dark)
	require.Nil(t, a.Light)

	// светлый появился, но кэш еще жив - не видим его
	src.Set(model.KeyWatermarkLight, pngLogo(t, 20, 10, color.NRGBA{0, 0, 0, 255}))
	a, err = c.EnsureLoaded(ctx)
	require.NoError(t, err)
	require.Nil(t, a.Light)

	c.Invalidate()
	a, err = c.EnsureLoaded(ctx)
	require.NoError(t, err)
	require.NotNil(t, a.Light)
	require.Equal(t, 4, src.Reads())
}

func TestCache_BrokenAndMissingVariants(t *testing.T) {
	src := NewMemorySource(map[string][]byte{
		model.KeyWatermarkDark: []byte("definitely not png"),
	})
	c, _ := newTestCache(src)

	a, err := c.EnsureLoaded(context.Background())
	require.NoError(t, err)
	require.Nil(t, a.Dark)
	require.Nil(t, a.Light)

	// сбойный вариант не перечитывается до истечения TTL
	_, err = c.EnsureLoaded(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, src.Reads())
}

func TestCache_PrepareTimeoutIsolated(t *testing.T) {
	src := NewMemorySource(map[string][]byte{
		model.KeyWatermarkDark:  pngLogo(t, 10, 10, color.NRGBA{0, 0, 0, 255}),
		model.KeyWatermarkLight: pngLogo(t, 10, 10, color.NRGBA{0, 0, 0, 255}),
	})
	src.BlockKeys[model.KeyWatermarkLight] = true

	c, _ := newTestCache(src)
	c.prepareTimeout = 50 * time.Millisecond

	start := time.Now()
	a, err := c.EnsureLoaded(context.Background())
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	require.NotNil(t, a.Dark)
	require.Nil(t, a.Light)
}

func TestCache_SlowTrimTimesOut(t *testing.T) {
	src := NewMemorySource(map[string][]byte{
		model.KeyWatermarkDark:  pngLogo(t, 10, 10, color.NRGBA{0, 0, 0, 255}),
		model.KeyWatermarkLight: pngLogo(t, 10, 10, color.NRGBA{0, 0, 0, 255}),
	})
	c, _ := newTestCache(src)
	c.prepareTimeout = 30 * time.Millisecond

	release := make(chan struct{})
	defer close(release)
	c.prepareFn = func(raw []byte, policy imageproc.TrimPolicy) (*imageproc.TrimmedAsset, error) {
		if policy == imageproc.LightTrimPolicy {
			<-release
		}
		return decodeAndTrim(raw, policy)
	}

	a, err := c.EnsureLoaded(context.Background())
	require.NoError(t, err)
	require.NotNil(t, a.Dark)
	require.Nil(t, a.Light)
}

func TestCache_CancelledContextNotCached(t *testing.T) {
	src := NewMemorySource(map[string][]byte{
		model.KeyWatermarkDark: pngLogo(t, 10, 10, color.NRGBA{0, 0, 0, 255}),
	})
	c, _ := newTestCache(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.EnsureLoaded(ctx)
	require.ErrorIs(t, err, context.Canceled)

	a, err := c.EnsureLoaded(context.Background())
	require.NoError(t, err)
	require.NotNil(t, a.Dark)
}

func TestCache_ConcurrentCallersShareOneLoad(t *testing.T) {
	src := NewMemorySource(map[string][]byte{
		model.KeyWatermarkDark:  pngLogo(t, 10, 10, color.NRGBA{0, 0, 0, 255}),
		model.KeyWatermarkLight: pngLogo(t, 10, 10, color.NRGBA{0, 0, 0, 255}),
	})
	c, _ := newTestCache(src)

	results := make([]Assets, 8)
	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.EnsureLoaded(context.Background())
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Same(t, results[0].Dark, results[i].Dark)
		require.Same(t, results[0].Light, results[i].Light)
	}

	require.Equal(t, 2, src.Reads())
}

func TestAssets_Get(t *testing.T) {
	dark := &imageproc.TrimmedAsset{Width: 1}
	light := &imageproc.TrimmedAsset{Width: 2}
	a := Assets{Dark: dark, Light: light}

	require.Same(t, dark, a.Get(model.VariantDark))
	require.Same(t, light, a.Get(model.VariantLight))
	require.Same(t, dark, a.Get(model.Variant("other")))
	require.Nil(t, Assets{}.Get(model.VariantLight))
}
