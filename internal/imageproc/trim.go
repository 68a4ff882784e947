package imageproc

import (
	"image"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/disintegration/imaging"
)

// TrimPolicy decides which pixels belong to the logo silhouette.
type TrimPolicy struct {
	RemoveLightBackground bool
	LightThreshold        uint8
}

// Пороги подобраны под реальные логотипы: у светлого варианта белые штрихи по краю
// должны выжить, поэтому порог выше.
const (
	DarkLightThreshold  = 240
	LightLightThreshold = 250
)

var (
	DarkTrimPolicy  = TrimPolicy{RemoveLightBackground: true, LightThreshold: DarkLightThreshold}
	LightTrimPolicy = TrimPolicy{RemoveLightBackground: true, LightThreshold: LightLightThreshold}
)

// PolicyFor returns the trim policy used when preparing the variant's logo.
func PolicyFor(v model.Variant) TrimPolicy {
	if v == model.VariantLight {
		return LightTrimPolicy
	}
	return DarkTrimPolicy
}

// TrimmedAsset is a logo cropped to its content box.
type TrimmedAsset struct {
	Bitmap         *image.NRGBA
	OriginX        int
	OriginY        int
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
	AspectRatio    float64
}

// isContent reports whether a non-premultiplied pixel is part of the logo.
func (p TrimPolicy) isContent(r, g, b, a uint8) bool {
	if !p.RemoveLightBackground {
		return a > 0
	}
	if a == 0 {
		return false
	}
	t := p.LightThreshold
	return !(r > t && g > t && b > t)
}

// Trim crops bmp to the tightest box containing every content pixel. When nothing
// qualifies the whole bitmap is kept, so the result never has zero size.
func Trim(bmp *image.NRGBA, policy TrimPolicy) (*TrimmedAsset, error) {
	if bmp == nil || bmp.Bounds().Empty() {
		return nil, model.ErrEmptyBitmap
	}
	b := bmp.Bounds()
	w, h := b.Dx(), b.Dy()

	minX, minY := w, h
	maxX, maxY := -1, -1

	for y := 0; y < h; y++ {
		row := bmp.Pix[y*bmp.Stride : y*bmp.Stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			if !policy.isContent(row[i], row[i+1], row[i+2], row[i+3]) {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}

	if maxX < minX || maxY < minY {
		minX, minY, maxX, maxY = 0, 0, w-1, h-1
	}

	cw := maxX - minX + 1
	ch := maxY - minY + 1
	crop := imaging.Crop(bmp, image.Rect(b.Min.X+minX, b.Min.Y+minY, b.Min.X+maxX+1, b.Min.Y+maxY+1))

	return &TrimmedAsset{
		Bitmap:         crop,
		OriginX:        minX,
		OriginY:        minY,
		Width:          cw,
		Height:         ch,
		OriginalWidth:  w,
		OriginalHeight: h,
		AspectRatio:    float64(cw) / float64(ch),
	}, nil
}
