package models

// ResponsiveSource is one generated srcset/sizes pair for a breakpoint.
type ResponsiveSource struct {
	Breakpoint string `json:"breakpoint"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Quality    int    `json:"quality"`
	Format     Format `json:"format"`
	SrcSet     string `json:"src_set"`
	Sizes      string `json:"sizes"`
}

// ImageSource points at a concrete image variant.
type ImageSource struct {
	Src    string `json:"src"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ImageDimensions carries the resolved output dimensions.
type ImageDimensions struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
}

// OptimizationMetrics reports how a descriptor was produced.
type OptimizationMetrics struct {
	ProcessingTime float64 `json:"processing_time_ms"`
	ResolvedFormat Format  `json:"resolved_format"`
	CacheHit       bool    `json:"cache_hit"`
	OriginalSize   int     `json:"original_size,omitempty"`
	OptimizedSize  int     `json:"optimized_size,omitempty"`
	// CompressionRatio is 1 - optimized/original; negative when the
	// re-encode grew the payload.
	CompressionRatio float64 `json:"compression_ratio"`
}

// OptimizedImageDescriptor is the boundary result contract handed to the
// API layer.
type OptimizedImageDescriptor struct {
	Sources     []ResponsiveSource  `json:"sources,omitempty"`
	Fallback    ImageSource         `json:"fallback"`
	Placeholder *ImageSource        `json:"placeholder,omitempty"`
	Dimensions  ImageDimensions     `json:"dimensions"`
	Metrics     OptimizationMetrics `json:"metrics"`
}

// BatchItemResult holds one slot of a batch response; exactly one of
// Descriptor or Error is set.
type BatchItemResult struct {
	Descriptor *OptimizedImageDescriptor `json:"descriptor,omitempty"`
	Error      string                    `json:"error,omitempty"`
}
