// Package transform implements the image transformation pipeline: decode,
// resize, filter, and re-encode with format-aware quality settings.
//
// Stages run in a fixed order (resize, adjust, blur, sharpen, grayscale,
// then encode) so identical inputs always yield byte-identical outputs.
package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	_ "image/png" // Register PNG format decoder
	"io"
	"time"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp" // Register WebP format decoder

	apperrors "go-image-optimizer/internal/errors"
	"go-image-optimizer/internal/logger"
	"go-image-optimizer/pkg/models"
)

// Pipeline transforms raw image bytes according to fully-resolved options.
// It is stateless apart from its memory guard and safe for concurrent use.
type Pipeline struct {
	guard MemoryGuard
	// memoryThreshold is the free-memory floor in bytes below which the
	// chunked encode strategy is selected.
	memoryThreshold uint64
}

// NewPipeline creates a pipeline with the given low-memory threshold in
// megabytes. A nil guard falls back to the system guard.
func NewPipeline(guard MemoryGuard, memoryThresholdMB int64) *Pipeline {
	if guard == nil {
		guard = NewSystemMemoryGuard()
	}
	if memoryThresholdMB <= 0 {
		memoryThresholdMB = 500
	}
	return &Pipeline{
		guard:           guard,
		memoryThreshold: uint64(memoryThresholdMB) << 20,
	}
}

// Process runs the full pipeline over data. Decode and encode failures
// surface as processing errors; a low-memory condition is not a failure,
// only a strategy switch.
func (p *Pipeline) Process(data []byte, opts Options) (*Result, error) {
	start := time.Now()

	src, srcFormat, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to decode image", err)
	}

	img := p.resize(src, opts)
	img = p.applyFilters(img, opts)

	format := opts.Format
	if format == "" {
		format = models.FormatJPEG
	}

	encoded, chunked, err := p.encode(img, format, opts.Quality)
	if err != nil {
		return nil, apperrors.NewProcessingError(
			fmt.Sprintf("failed to encode image as %s", format), err)
	}

	bounds := img.Bounds()
	result := &Result{
		Data:           encoded,
		Format:         format,
		Width:          bounds.Dx(),
		Height:         bounds.Dy(),
		Channels:       channelCount(format),
		OriginalSize:   len(data),
		OptimizedSize:  len(encoded),
		ProcessingTime: time.Since(start),
		ChunkedEncode:  chunked,
	}
	if result.OriginalSize > 0 {
		result.CompressionRatio = 1 - float64(result.OptimizedSize)/float64(result.OriginalSize)
	}

	logger.WithFields(logrus.Fields{
		"source_format": srcFormat,
		"format":        format,
		"width":         result.Width,
		"height":        result.Height,
		"original":      result.OriginalSize,
		"optimized":     result.OptimizedSize,
		"duration_ms":   float64(result.ProcessingTime.Microseconds()) / 1000,
	}).Debug("Image transformed")

	return result, nil
}

// resize applies the fit strategy with a scale-dependent kernel: a
// quality-weighted kernel for upscaling, a speed-weighted one for heavy
// downscaling, and a balanced high-quality kernel in between.
func (p *Pipeline) resize(img image.Image, opts Options) image.Image {
	if opts.Width <= 0 && opts.Height <= 0 {
		return img
	}

	bounds := img.Bounds()
	ow, oh := bounds.Dx(), bounds.Dy()
	filter := kernelFor(scaleFactor(ow, oh, opts.Width, opts.Height))

	switch {
	case opts.Width > 0 && opts.Height > 0:
		switch opts.Fit {
		case models.FitContain:
			return imaging.Fit(img, opts.Width, opts.Height, filter)
		case models.FitFill:
			return imaging.Resize(img, opts.Width, opts.Height, filter)
		default: // cover
			return imaging.Fill(img, opts.Width, opts.Height, imaging.Center, filter)
		}
	case opts.Width > 0:
		return imaging.Resize(img, opts.Width, 0, filter)
	default:
		return imaging.Resize(img, 0, opts.Height, filter)
	}
}

// scaleFactor computes min(targetW/originalW, targetH/originalH) over the
// dimensions that were actually requested.
func scaleFactor(ow, oh, tw, th int) float64 {
	scale := 0.0
	set := false
	if tw > 0 && ow > 0 {
		scale = float64(tw) / float64(ow)
		set = true
	}
	if th > 0 && oh > 0 {
		s := float64(th) / float64(oh)
		if !set || s < scale {
			scale = s
			set = true
		}
	}
	if !set {
		return 1
	}
	return scale
}

func kernelFor(scale float64) imaging.ResampleFilter {
	switch {
	case scale > 1:
		return imaging.Lanczos
	case scale < 0.5:
		return imaging.Box
	default:
		return imaging.CatmullRom
	}
}

// applyFilters runs the filter stages in their fixed order.
func (p *Pipeline) applyFilters(img image.Image, opts Options) image.Image {
	if pct := multiplierToPercent(opts.Brightness); pct != 0 {
		img = imaging.AdjustBrightness(img, pct)
	}
	if pct := multiplierToPercent(opts.Contrast); pct != 0 {
		img = imaging.AdjustContrast(img, pct)
	}
	if pct := multiplierToPercent(opts.Saturation); pct != 0 {
		img = imaging.AdjustSaturation(img, pct)
	}
	if opts.Blur > 0 {
		img = blur.Gaussian(img, opts.Blur)
	}
	if opts.Sharpen {
		img = effect.Sharpen(img)
	}
	if opts.Grayscale {
		img = imaging.Grayscale(img)
	}
	return img
}

// multiplierToPercent maps a 1.0-centered multiplier onto the -100..100
// percentage scale the imaging adjustments use. Zero (unset) is a no-op.
func multiplierToPercent(mult float64) float64 {
	if mult == 0 || mult == 1 {
		return 0
	}
	pct := (mult - 1) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < -100 {
		pct = -100
	}
	return pct
}

// encode serializes img in the target format. When available memory is
// below the threshold the encoder writes through fixed-size chunks rather
// than one growing buffer.
func (p *Pipeline) encode(img image.Image, format models.Format, quality int) ([]byte, bool, error) {
	if quality < 1 || quality > 100 {
		quality = 80
	}

	if avail, ok := p.guard.Available(); ok && avail < p.memoryThreshold {
		logger.WithFields(logrus.Fields{
			"available_mb": avail >> 20,
			"threshold_mb": p.memoryThreshold >> 20,
		}).Warn("Low memory, switching to chunked encode")
		w := newChunkWriter()
		if err := encodeTo(w, img, format, quality); err != nil {
			return nil, false, err
		}
		return w.Bytes(), true, nil
	}

	var buf bytes.Buffer
	if err := encodeTo(&buf, img, format, quality); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), false, nil
}

func encodeTo(w io.Writer, img image.Image, format models.Format, quality int) error {
	switch format {
	case models.FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case models.FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case models.FormatGIF:
		return gif.Encode(w, img, nil)
	case models.FormatWebP:
		return webp.Encode(w, img, webp.Options{Quality: quality})
	case models.FormatAVIF:
		return avif.Encode(w, img, avif.Options{Quality: quality, Speed: 8})
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func channelCount(format models.Format) int {
	if format == models.FormatJPEG {
		return 3
	}
	return 4
}
