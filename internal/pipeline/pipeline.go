// Package pipeline runs a batch of photos through variant selection, placement
// and compositing, one image at a time and in input order.
package pipeline

import (
	"context"
	"fmt"

	"github.com/UnendingLoop/watermarker/internal/assets"
	"github.com/UnendingLoop/watermarker/internal/imageproc"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/wb-go/wbf/zlog"
)

// AssetSource - обычно *assets.Cache
type AssetSource interface {
	EnsureLoaded(ctx context.Context) (assets.Assets, error)
}

// SettingsSource - обычно *settings.Store
type SettingsSource interface {
	Load(ctx context.Context) (model.Settings, error)
}

type Pipeline struct {
	assets   AssetSource
	settings SettingsSource
	logger   zlog.Zerolog
}

func New(a AssetSource, s SettingsSource, logger zlog.Zerolog) *Pipeline {
	return &Pipeline{assets: a, settings: s, logger: logger}
}

// ChooseVariant picks the logo contrasting with the sampled zone: a zone brighter
// than the threshold gets the dark logo, anything else (ties included) the light one.
func ChooseVariant(brightness, threshold float64) model.Variant {
	if brightness > threshold {
		return model.VariantDark
	}
	return model.VariantLight
}

// ProcessBatch watermarks items in order. Per-item failures end up in the
// corresponding BatchResult; missing logos fail the whole call before any item
// is touched. ctx is checked between items: on cancellation the results so far
// are returned together with ctx.Err().
func (p *Pipeline) ProcessBatch(ctx context.Context, items []model.BatchItem, mode model.Mode, onProgress model.ProgressFunc) ([]model.BatchResult, error) {
	if !model.ModesMap[mode] {
		return nil, model.ErrIncorrectMode
	}

	st := p.loadSettings(ctx)

	a, err := p.assets.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAssets(a, mode); err != nil {
		return nil, err
	}

	total := len(items)
	results := make([]model.BatchResult, 0, total)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := p.processItem(item, mode, a, st)
		if !res.Succeeded {
			p.logger.Warn().Str("name", item.Name).Str("error", res.Error).Msg("Batch item failed")
		}
		results = append(results, res)

		if onProgress != nil {
			onProgress(float64(i+1)/float64(total)*100, i+1, total)
		}
	}

	return results, nil
}

func requireAssets(a assets.Assets, mode model.Mode) error {
	switch mode {
	case model.ModeAuto:
		if a.Dark == nil || a.Light == nil {
			return model.ErrAssetUnavailable
		}
	default:
		v := model.Variant(mode)
		if a.Get(v) == nil {
			return fmt.Errorf("%w: %s logo is missing", model.ErrAssetUnavailable, v)
		}
	}
	return nil
}

func (p *Pipeline) loadSettings(ctx context.Context) model.Settings {
	st, err := p.settings.Load(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Using default watermark settings")
	}
	return st
}

func (p *Pipeline) processItem(item model.BatchItem, mode model.Mode, a assets.Assets, st model.Settings) (res model.BatchResult) {
	res.Name = item.Name

	// imaging не должен паниковать, но одна картинка не должна ронять батч
	defer func() {
		if r := recover(); r != nil {
			res = model.BatchResult{Name: item.Name, Error: fmt.Sprintf("%v: %v", model.ErrCompositeFailure, r)}
		}
	}()

	bmp, err := imageproc.Decode(item.Data)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	w, h := bmp.Bounds().Dx(), bmp.Bounds().Dy()
	res.Orientation = model.OrientationOf(w, h)

	variant := model.Variant(mode)
	if mode == model.ModeAuto {
		// зона замеряется по пропорциям темного логотипа
		probe := imageproc.Plan(w, h, a.Dark.AspectRatio, st)
		b := imageproc.SampleBrightness(bmp, probe.SampleRect(w, h), st.BrightnessThreshold)
		res.Brightness = &b
		variant = ChooseVariant(b, st.BrightnessThreshold)
	}
	res.Variant = variant

	asset := a.Get(variant)
	out, err := imageproc.Composite(bmp, asset, imageproc.Plan(w, h, asset.AspectRatio, st), st.Quality)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Output = out
	res.Succeeded = true
	return res
}

// WatermarkWithVariant watermarks a single image with the stored logo of the
// given variant.
func (p *Pipeline) WatermarkWithVariant(ctx context.Context, src []byte, v model.Variant) ([]byte, error) {
	if !v.Valid() {
		return nil, model.ErrIncorrectVariant
	}

	st := p.loadSettings(ctx)
	a, err := p.assets.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAssets(a, model.Mode(v)); err != nil {
		return nil, err
	}

	return compositeOne(src, a.Get(v), st)
}

// WatermarkWithAsset watermarks a single image with a caller-supplied logo,
// trimmed under policy. Stored logos and the cache are not involved.
func (p *Pipeline) WatermarkWithAsset(ctx context.Context, src, logo []byte, policy imageproc.TrimPolicy) ([]byte, error) {
	st := p.loadSettings(ctx)

	logoBmp, err := imageproc.Decode(logo)
	if err != nil {
		return nil, fmt.Errorf("logo: %w", err)
	}
	asset, err := imageproc.Trim(logoBmp, policy)
	if err != nil {
		return nil, fmt.Errorf("logo: %w", err)
	}

	return compositeOne(src, asset, st)
}

func compositeOne(src []byte, asset *imageproc.TrimmedAsset, st model.Settings) ([]byte, error) {
	bmp, err := imageproc.Decode(src)
	if err != nil {
		return nil, err
	}
	w, h := bmp.Bounds().Dx(), bmp.Bounds().Dy()
	return imageproc.Composite(bmp, asset, imageproc.Plan(w, h, asset.AspectRatio, st), st.Quality)
}
