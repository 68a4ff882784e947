package imageproc

import "image"

// SampleBrightness averages (r+g+b)/3 over region clamped to the bitmap bounds.
// A region with no area yields fallback. Alpha is ignored.
func SampleBrightness(bmp *image.NRGBA, region image.Rectangle, fallback float64) float64 {
	if bmp == nil {
		return fallback
	}
	r := region.Intersect(bmp.Bounds())
	if r.Empty() {
		return fallback
	}

	var total float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := bmp.PixOffset(r.Min.X, y)
		row := bmp.Pix[off : off+r.Dx()*4]
		var rowSum int
		for i := 0; i < len(row); i += 4 {
			rowSum += int(row[i]) + int(row[i+1]) + int(row[i+2])
		}
		total += float64(rowSum) / 3
	}

	return total / float64(r.Dx()*r.Dy())
}

// BottomBandBrightness samples the full width of the lowest 20% of the image.
func BottomBandBrightness(bmp *image.NRGBA, fallback float64) float64 {
	if bmp == nil {
		return fallback
	}
	b := bmp.Bounds()
	startY := b.Min.Y + int(float64(b.Dy())*0.8)
	return SampleBrightness(bmp, image.Rect(b.Min.X, startY, b.Max.X, b.Max.Y), fallback)
}
