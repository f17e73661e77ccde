package artwork

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	coverMaxSize = 1000
	coverQuality = 90
)

// Cover decodes imageData and re-encodes it as a JPEG no larger than
// 1000x1000, keeping the aspect ratio
func Cover(imageData []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(imageData), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Validate image dimensions to prevent division by zero
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	// Fit never upscales
	img = imaging.Fit(img, coverMaxSize, coverMaxSize, imaging.Lanczos)

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(coverQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode cover: %w", err)
	}
	return buf.Bytes(), nil
}
