package validation

import (
	"fmt"
	"net/url"
	"strings"

	"go-image-optimizer/pkg/models"
)

// MaxBatchSize caps the number of items accepted in one batch call.
const MaxBatchSize = 10

// ErrBatchTooLarge is returned verbatim for oversized batches so callers
// can match it.
var ErrBatchTooLarge = fmt.Errorf("maximum %d images per batch", MaxBatchSize)

const (
	maxDimension  = 8192
	maxBlurRadius = 100
)

// ValidateSource checks that a source identifier is usable: either an
// http(s)/azblob URL with a host, or a relative asset path.
func ValidateSource(source string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("source identifier is empty")
	}
	if strings.Contains(source, "://") {
		parsed, err := url.Parse(source)
		if err != nil {
			return fmt.Errorf("invalid source URL: %w", err)
		}
		switch parsed.Scheme {
		case "http", "https", "azblob":
		default:
			return fmt.Errorf("unsupported source scheme %q", parsed.Scheme)
		}
		if parsed.Host == "" {
			return fmt.Errorf("source URL must have a host")
		}
		return nil
	}
	if strings.Contains(source, "..") {
		return fmt.Errorf("source path must not contain '..'")
	}
	return nil
}

// ValidateParams checks an OptimizationParams set before any pipeline work
// is scheduled. Zero values are legal (they mean "unset").
func ValidateParams(p models.OptimizationParams) error {
	if p.Width < 0 || p.Height < 0 {
		return fmt.Errorf("dimensions must be positive, got %dx%d", p.Width, p.Height)
	}
	if p.Width > maxDimension || p.Height > maxDimension {
		return fmt.Errorf("dimensions exceed maximum of %d, got %dx%d", maxDimension, p.Width, p.Height)
	}
	if p.Quality != 0 && (p.Quality < 1 || p.Quality > 100) {
		return fmt.Errorf("quality must be in [1,100], got %d", p.Quality)
	}
	if p.Format != "" && !p.Format.Valid() {
		return fmt.Errorf("unsupported format %q", p.Format)
	}
	switch p.Fit {
	case "", models.FitCover, models.FitContain, models.FitFill:
	default:
		return fmt.Errorf("unsupported fit mode %q", p.Fit)
	}
	if p.Blur < 0 || p.Blur > maxBlurRadius {
		return fmt.Errorf("blur radius must be in [0,%d], got %g", maxBlurRadius, p.Blur)
	}
	for name, v := range map[string]float64{
		"brightness": p.Brightness,
		"contrast":   p.Contrast,
		"saturation": p.Saturation,
	} {
		if v < 0 || v > 10 {
			return fmt.Errorf("%s multiplier must be in [0,10], got %g", name, v)
		}
	}
	return nil
}

// ValidateBatch enforces the all-or-nothing batch size cap. An oversized
// batch is rejected before any item is validated or processed.
func ValidateBatch(requests []models.OptimizationRequest) error {
	if len(requests) == 0 {
		return fmt.Errorf("batch is empty")
	}
	if len(requests) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	return nil
}
