// Package imageproc provides the pixel-level steps of watermarking: logo trimming,
// brightness sampling, placement planning and compositing.
package imageproc

import (
	"bytes"
	"fmt"
	"image"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/disintegration/imaging"
)

// Decode turns encoded image bytes into a bitmap anchored at (0,0).
func Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", model.ErrDecodeFailure)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecodeFailure, err)
	}

	bmp := ToBitmap(img)
	if bmp.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %v", model.ErrDecodeFailure, model.ErrEmptyBitmap)
	}
	return bmp, nil
}

// ToBitmap returns img as a fresh NRGBA buffer with Min at (0,0) and Stride == 4*width.
func ToBitmap(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// EncodeJPEG encodes the bitmap at quality 1..100, clamping out-of-range values.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(clampQuality(quality))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clampQuality(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	}
	return q
}
