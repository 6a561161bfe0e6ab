package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

const (
	// maxImageBytes keeps screenshots under the vision model's payload
	// cap.
	maxImageBytes = 4 << 20
	maxImageWidth = 1600
)

// normalizePNG validates the screenshot and downscales it when it is
// too wide or too heavy for the OCR model.
func normalizePNG(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("empty screenshot")
	}

	if len(data) <= maxImageBytes && bounds.Dx() <= maxImageWidth {
		return data, nil
	}

	scale := float64(maxImageWidth) / float64(bounds.Dx())
	if scale > 1 {
		scale = 0.75
	}
	dst := image.NewRGBA(image.Rect(0, 0,
		int(float64(bounds.Dx())*scale),
		int(float64(bounds.Dy())*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("re-encoding screenshot: %w", err)
	}
	return buf.Bytes(), nil
}
