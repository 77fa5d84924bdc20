package models

// Format identifies a target image encoding.
type Format string

const (
	FormatAVIF Format = "avif"
	FormatWebP Format = "webp"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
)

// Valid reports whether f is one of the supported output formats.
func (f Format) Valid() bool {
	switch f {
	case FormatAVIF, FormatWebP, FormatJPEG, FormatPNG, FormatGIF:
		return true
	}
	return false
}

// Fit selects the resize strategy when both target dimensions are given.
type Fit string

const (
	// FitCover scales to fill the target box, cropping overflow.
	FitCover Fit = "cover"
	// FitContain scales to fit inside the target box, preserving aspect.
	FitContain Fit = "contain"
	// FitFill stretches to the exact target dimensions.
	FitFill Fit = "fill"
)

// Capabilities carries the client-negotiated format support flags.
// The API layer derives these from Accept headers; this core only reads them.
type Capabilities struct {
	SupportsAVIF bool `json:"supports_avif"`
	SupportsWebP bool `json:"supports_webp"`
}

// OptimizationParams describes a single optimization request.
// Zero values mean "unset": width/height 0 keeps the source dimension,
// quality 0 lets the quality policy decide, format "" lets the format
// policy negotiate, and multiplier filters at 0 are treated as 1.0.
type OptimizationParams struct {
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Quality int    `json:"quality,omitempty"`
	Format  Format `json:"format,omitempty"`
	Fit     Fit    `json:"fit,omitempty"`

	Blur       float64 `json:"blur,omitempty"`
	Brightness float64 `json:"brightness,omitempty"`
	Contrast   float64 `json:"contrast,omitempty"`
	Saturation float64 `json:"saturation,omitempty"`
	Sharpen    bool    `json:"sharpen,omitempty"`
	Grayscale  bool    `json:"grayscale,omitempty"`

	Responsive  bool `json:"responsive,omitempty"`
	Placeholder bool `json:"placeholder,omitempty"`
}

// Canonical returns a copy of p with every unset field replaced by its
// default, so that equivalent requests serialize identically for cache
// keying.
func (p OptimizationParams) Canonical() OptimizationParams {
	if p.Quality < 0 {
		p.Quality = 0
	}
	if p.Fit == "" {
		p.Fit = FitCover
	}
	if p.Brightness == 0 {
		p.Brightness = 1
	}
	if p.Contrast == 0 {
		p.Contrast = 1
	}
	if p.Saturation == 0 {
		p.Saturation = 1
	}
	return p
}

// Breakpoint describes one responsive variant request. Width is required;
// the remaining fields override the shared base parameters when set.
type Breakpoint struct {
	Label   string `json:"label"`
	Width   int    `json:"width"`
	Height  int    `json:"height,omitempty"`
	Quality int    `json:"quality,omitempty"`
	Format  Format `json:"format,omitempty"`
}

// OptimizationRequest pairs a source identifier with its parameters, used
// for batch submissions.
type OptimizationRequest struct {
	Source string             `json:"source"`
	Params OptimizationParams `json:"params"`
}
