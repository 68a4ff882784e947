package imageproc

import (
	"fmt"
	"image"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/disintegration/imaging"
)

// Overlay draws the trimmed logo scaled to the placement onto a copy of dst.
// dst itself is left untouched.
func Overlay(dst *image.NRGBA, asset *TrimmedAsset, p Placement) (*image.NRGBA, error) {
	if asset == nil || asset.Bitmap == nil {
		return nil, model.ErrAssetMissing
	}
	if dst == nil || dst.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %v", model.ErrCompositeFailure, model.ErrEmptyBitmap)
	}

	w, h := p.DrawSize()
	logo := imaging.Resize(asset.Bitmap, w, h, imaging.Lanczos)

	// само наложение, непрозрачность полная - прозрачность задается альфой логотипа
	return imaging.Overlay(dst, logo, image.Pt(p.X, p.Y), 1.0), nil
}

// Composite overlays the logo and encodes the result as JPEG at quality 1..100.
func Composite(dst *image.NRGBA, asset *TrimmedAsset, p Placement, quality int) ([]byte, error) {
	out, err := Overlay(dst, asset, p)
	if err != nil {
		return nil, err
	}

	data, err := EncodeJPEG(out, quality)
	if err != nil {
		return nil, fmt.Errorf("%w: encode result image: %v", model.ErrCompositeFailure, err)
	}
	return data, nil
}
