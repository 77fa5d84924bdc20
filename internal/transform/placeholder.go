package transform

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	apperrors "go-image-optimizer/internal/errors"
)

const (
	placeholderWidth   = 20
	placeholderQuality = 20
)

// Placeholder is a tiny blurred preview for instant paint while the real
// variant loads.
type Placeholder struct {
	// DataURI is a data:image/jpeg;base64 URI small enough to inline.
	DataURI string
	Width   int
	Height  int
	// DominantColor is the average page color as a hex string, usable as
	// a background while even the placeholder is in flight.
	DominantColor string
}

// GeneratePlaceholder produces a low-quality image placeholder from the
// source bytes: a 20px-wide blurred JPEG plus the image's dominant color.
func GeneratePlaceholder(data []byte) (*Placeholder, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to decode image for placeholder", err)
	}

	tiny := imaging.Resize(src, placeholderWidth, 0, imaging.Box)
	tiny = imaging.Blur(tiny, 1.5)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, tiny, &jpeg.Options{Quality: placeholderQuality}); err != nil {
		return nil, apperrors.NewProcessingError("failed to encode placeholder", err)
	}

	bounds := tiny.Bounds()
	return &Placeholder{
		DataURI:       "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		DominantColor: dominantColor(tiny),
	}, nil
}

// dominantColor averages the downscaled image's pixels. Averaging the
// 20px thumbnail instead of the source keeps this O(1) per image.
func dominantColor(img image.Image) string {
	bounds := img.Bounds()
	var r, g, b, n float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += float64(pr) / 65535
			g += float64(pg) / 65535
			b += float64(pb) / 65535
			n++
		}
	}
	if n == 0 {
		return "#000000"
	}
	c := colorful.Color{R: r / n, G: g / n, B: b / n}
	return c.Hex()
}
