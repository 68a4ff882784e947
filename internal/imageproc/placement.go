package imageproc

import (
	"image"
	"math"

	"github.com/UnendingLoop/watermarker/internal/model"
)

// Placement is where the logo lands on the destination. Width and Height stay
// fractional; they are rounded only when the logo is actually scaled.
type Placement struct {
	X           int
	Y           int
	Width       float64
	Height      float64
	Orientation model.Orientation
}

// CmToPx converts centimetres to whole pixels at the given dpi, rounding down.
func CmToPx(cm float64, dpi int) int {
	return int(math.Floor(cm * float64(dpi) / 2.54))
}

// Plan centers the logo horizontally and rests it on the bottom margin.
func Plan(destWidth, destHeight int, aspectRatio float64, s model.Settings) Placement {
	o := model.OrientationOf(destWidth, destHeight)

	w := float64(destWidth) * s.SizePercent(o) / 100
	h := w
	if aspectRatio > 0 {
		h = w / aspectRatio
	}
	margin := float64(CmToPx(s.BottomMarginCm, s.DPI))

	x := int(math.Floor((float64(destWidth) - w) / 2))
	y := int(math.Floor(float64(destHeight) - h - margin))
	if y < 0 {
		y = 0
	}

	return Placement{X: x, Y: y, Width: w, Height: h, Orientation: o}
}

// SampleRect is the placement clamped to the destination canvas, as handed to
// the brightness analyzer.
func (p Placement) SampleRect(destWidth, destHeight int) image.Rectangle {
	x := max(0, p.X)
	y := max(0, p.Y)
	w := int(math.Min(float64(destWidth), p.Width))
	h := int(math.Min(float64(destHeight), p.Height))

	return image.Rect(x, y, x+w, y+h).Intersect(image.Rect(0, 0, destWidth, destHeight))
}

// DrawSize is the integer logo size used for scaling, never below 1x1.
func (p Placement) DrawSize() (int, int) {
	return max(1, int(math.Round(p.Width))), max(1, int(math.Round(p.Height)))
}
