// Package settings persists WatermarkSettings as JSON in the blob store
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/wb-go/wbf/zlog"
)

type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

type Store struct {
	blobs  Blobs
	logger zlog.Zerolog
}

func NewStore(b Blobs, logger zlog.Zerolog) *Store {
	return &Store{blobs: b, logger: logger}
}

// stored - то, что реально может лежать в блобе, включая старое поле watermarkSize
type stored struct {
	Portrait     *float64 `json:"watermarkSizePortrait"`
	Landscape    *float64 `json:"watermarkSizeLandscape"`
	Legacy       *float64 `json:"watermarkSize"`
	BottomMargin *float64 `json:"bottomMargin"`
	DPI          *float64 `json:"dpi"`
	Quality      *float64 `json:"quality"`
	Brightness   *float64 `json:"brightnessThreshold"`
}

// Load reads the settings blob. An absent or unparsable blob yields defaults;
// an error is returned only when the store itself fails, together with defaults.
func (s *Store) Load(ctx context.Context) (model.Settings, error) {
	raw, err := s.blobs.Get(ctx, model.KeySettings)
	if err != nil {
		if errors.Is(err, model.ErrObjectNotFound) {
			return model.DefaultSettings(), nil
		}
		return model.DefaultSettings(), fmt.Errorf("failed to load settings: %w", err)
	}

	res, err := Parse(raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Stored settings are corrupt, using defaults")
	}
	return res, nil
}

// Save validates and stores s. The legacy field is never written.
func (s *Store) Save(ctx context.Context, st model.Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := s.blobs.Put(ctx, model.KeySettings, raw); err != nil {
		return fmt.Errorf("failed to store settings: %w", err)
	}
	return nil
}

// Parse maps a stored JSON document onto Settings, field by field: a missing or
// out-of-range value takes its default. Both size fields fall back to the legacy
// watermarkSize first. Broken JSON gives defaults plus the parse error.
func Parse(raw []byte) (model.Settings, error) {
	def := model.DefaultSettings()

	var st stored
	if err := json.Unmarshal(raw, &st); err != nil {
		return def, err
	}

	validSize := func(v *float64) bool { return v != nil && *v > 0 && *v <= 100 }
	legacy := def.SizePercentPortrait
	if validSize(st.Legacy) {
		legacy = *st.Legacy
	}

	res := def
	res.SizePercentPortrait = legacy
	if validSize(st.Portrait) {
		res.SizePercentPortrait = *st.Portrait
	}
	res.SizePercentLandscape = legacy
	if validSize(st.Landscape) {
		res.SizePercentLandscape = *st.Landscape
	}

	if st.BottomMargin != nil && *st.BottomMargin >= 0 {
		res.BottomMarginCm = *st.BottomMargin
	}
	if st.DPI != nil && *st.DPI >= 1 {
		res.DPI = int(math.Round(*st.DPI))
	}
	if st.Quality != nil && *st.Quality >= 1 && *st.Quality <= 100 {
		res.Quality = int(math.Round(*st.Quality))
	}
	if st.Brightness != nil && *st.Brightness >= 0 && *st.Brightness <= 255 {
		res.BrightnessThreshold = *st.Brightness
	}

	return res, nil
}
