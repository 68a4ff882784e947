package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/UnendingLoop/watermarker/internal/imageproc"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/UnendingLoop/watermarker/internal/mwlogger"
)

// Batcher - контракт пайплайна
type Batcher interface {
	ProcessBatch(ctx context.Context, items []model.BatchItem, mode model.Mode, onProgress model.ProgressFunc) ([]model.BatchResult, error)
	WatermarkWithAsset(ctx context.Context, src, logo []byte, policy imageproc.TrimPolicy) ([]byte, error)
}

// WatermarkService runs uploads through the pipeline synchronously.
type WatermarkService struct {
	pipeline Batcher
}

func NewWatermarkService(p Batcher) *WatermarkService {
	return &WatermarkService{pipeline: p}
}

func (w *WatermarkService) Process(ctx context.Context, rawMode string, images []model.UploadedImage) ([]model.BatchResult, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	mode, err := parseMode(rawMode)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, model.ErrNoImages
	}

	items := make([]model.BatchItem, 0, len(images))
	for _, img := range images {
		if img.File == nil {
			return nil, model.ErrEmptySource
		}
		data, err := io.ReadAll(img.File)
		if err != nil {
			logger.Error().Err(err).Str("name", img.Name).Msg("Failed to read uploaded image")
			return nil, model.ErrCommon500
		}
		// формат не проверяем - нераспознанная картинка станет ошибкой элемента, а не всего батча
		items = append(items, model.BatchItem{Name: img.Name, Data: data})
	}

	res, err := w.pipeline.ProcessBatch(ctx, items, mode, func(percent float64, done, total int) {
		logger.Debug().Int("done", done).Int("total", total).Float64("percent", percent).Msg("Batch progress")
	})
	if err != nil {
		return nil, mapPipelineErr(ctx, err)
	}
	return res, nil
}

// Custom watermarks one image with a logo uploaded in the same request.
func (w *WatermarkService) Custom(ctx context.Context, image, logo model.UploadedImage, removeLightBg bool, lightThreshold int) ([]byte, error) {
	if image.File == nil || logo.File == nil {
		return nil, model.ErrEmptySource
	}
	if lightThreshold < 0 || lightThreshold > 255 {
		return nil, fmt.Errorf("%w: light_threshold must be in [0,255]", model.ErrIncorrectQuery)
	}

	src, err := io.ReadAll(image.File)
	if err != nil {
		return nil, model.ErrCommon500
	}
	logoData, err := io.ReadAll(logo.File)
	if err != nil {
		return nil, model.ErrCommon500
	}

	policy := imageproc.TrimPolicy{RemoveLightBackground: removeLightBg, LightThreshold: uint8(lightThreshold)}
	out, err := w.pipeline.WatermarkWithAsset(ctx, src, logoData, policy)
	if err != nil {
		return nil, mapPipelineErr(ctx, err)
	}
	return out, nil
}

func mapPipelineErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrAssetUnavailable),
		errors.Is(err, model.ErrIncorrectMode),
		errors.Is(err, model.ErrDecodeFailure):
		return err
	}
	logger := mwlogger.LoggerFromContext(ctx)
	logger.Error().Err(err).Msg("Watermark pipeline failed")
	return model.ErrCommon500
}
