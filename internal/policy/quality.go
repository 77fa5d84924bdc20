package policy

import "go-image-optimizer/pkg/models"

// ImageStats carries the source-image statistics the quality heuristic
// keys on.
type ImageStats struct {
	Width  int
	Height int
}

// Megapixels returns the pixel count in millions.
func (s ImageStats) Megapixels() float64 {
	return float64(s.Width) * float64(s.Height) / 1e6
}

// ResolveQuality picks an encoding quality for the target format. Base
// quality is 80, lowered for large images and raised for small ones, then
// shifted by a per-format delta. The result is always clamped to [1,100].
func ResolveQuality(stats ImageStats, target models.Format) int {
	quality := 80

	mp := stats.Megapixels()
	switch {
	case mp > 4:
		quality = 70
	case mp > 2:
		quality = 75
	case mp < 0.5:
		quality = 85
	}

	switch target {
	case models.FormatAVIF:
		// AVIF keeps perceptual quality at much lower settings.
		quality -= 15
		if quality < 50 {
			quality = 50
		}
	case models.FormatWebP:
		quality -= 10
		if quality < 60 {
			quality = 60
		}
	case models.FormatPNG:
		// PNG quality maps to compression effort, not lossy quality.
		quality += 10
		if quality > 95 {
			quality = 95
		}
	}

	return clamp(quality, 1, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
