package imageproc

import (
	"fmt"

	"github.com/disintegration/imaging"
)

// Preview builds a JPEG that fits into a size x size box, keeping the aspect ratio.
func Preview(data []byte, size, quality int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("preview size must be positive, got %d", size)
	}

	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	res, err := EncodeJPEG(thumb, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to ENcode preview: %w", err)
	}
	return res, nil
}
