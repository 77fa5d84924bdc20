package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go-image-optimizer/pkg/models"
)

// Key derives the deterministic cache key for a source identifier and its
// parameter set. Parameters are canonicalized first so that requests that
// differ only in unset-versus-default fields share a key, and the full
// set is serialized in a fixed field order before hashing so distinct
// parameter sets cannot collide.
func Key(source string, params models.OptimizationParams) string {
	p := params.Canonical()
	canonical := fmt.Sprintf(
		"src=%s|w=%d|h=%d|q=%d|f=%s|fit=%s|blur=%g|bri=%g|con=%g|sat=%g|sharpen=%t|gray=%t|resp=%t|ph=%t",
		source, p.Width, p.Height, p.Quality, p.Format, p.Fit,
		p.Blur, p.Brightness, p.Contrast, p.Saturation,
		p.Sharpen, p.Grayscale, p.Responsive, p.Placeholder,
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
