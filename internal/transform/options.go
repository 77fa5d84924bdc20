package transform

import (
	"time"

	"go-image-optimizer/pkg/models"
)

// Options is a fully-resolved parameter set for one transformation run.
// The optimizer service resolves format and quality through the policy
// package before constructing this; the pipeline itself never negotiates.
type Options struct {
	Width   int
	Height  int
	Quality int
	Format  models.Format
	Fit     models.Fit

	// Filter stages. Multipliers of 1.0 are no-ops.
	Blur       float64
	Brightness float64
	Contrast   float64
	Saturation float64
	Sharpen    bool
	Grayscale  bool
}

// Result is an immutable transformation outcome. Data is owned by the
// result; the pipeline never retains or mutates it after return.
type Result struct {
	Data     []byte
	Format   models.Format
	Width    int
	Height   int
	Channels int

	OriginalSize  int
	OptimizedSize int
	// CompressionRatio is 1 - optimized/original.
	CompressionRatio float64
	ProcessingTime   time.Duration
	// ChunkedEncode reports that the low-memory encode path was taken.
	ChunkedEncode bool
}
