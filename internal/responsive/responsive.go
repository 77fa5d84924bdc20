// Package responsive composes breakpoint-specific optimization requests
// into srcset/sizes descriptor pairs for client-side variant selection.
package responsive

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go-image-optimizer/internal/policy"
	"go-image-optimizer/pkg/models"
)

// breakpointWidths maps the canonical breakpoint names to their minimum
// viewport widths in pixels.
var breakpointWidths = map[string]int{
	"xs":  320,
	"sm":  640,
	"md":  768,
	"lg":  1024,
	"xl":  1280,
	"xxl": 1536,
}

// defaultAspectRatio derives a height when a breakpoint only sets width.
const defaultAspectRatio = 4.0 / 3.0

// Generator builds responsive source sets against the optimization
// endpoint at baseURL.
type Generator struct {
	baseURL string
}

// NewGenerator creates a generator. baseURL is the path variant URLs are
// rooted at, e.g. "/api/optimize".
func NewGenerator(baseURL string) *Generator {
	if baseURL == "" {
		baseURL = "/api/optimize"
	}
	return &Generator{baseURL: baseURL}
}

// Generate produces one ResponsiveSource per breakpoint. Format falls
// back to capability negotiation when a breakpoint does not pin one, and
// quality falls back to the quality policy for the breakpoint's size.
// Each source carries the full sizes string for the whole set.
func (g *Generator) Generate(
	source string,
	breakpoints []models.Breakpoint,
	base models.OptimizationParams,
	caps models.Capabilities,
) []models.ResponsiveSource {
	if len(breakpoints) == 0 {
		return nil
	}

	sizes := g.SizesString(breakpoints)
	sources := make([]models.ResponsiveSource, 0, len(breakpoints))

	for _, bp := range breakpoints {
		width := bp.Width
		height := bp.Height
		if height <= 0 {
			height = int(float64(width) / defaultAspectRatio)
		}

		format := bp.Format
		if format == "" {
			format = base.Format
		}
		if format == "" {
			format = policy.ResolveFormat(nil, caps)
		}

		quality := bp.Quality
		if quality <= 0 {
			quality = base.Quality
		}
		if quality <= 0 {
			quality = policy.ResolveQuality(policy.ImageStats{Width: width, Height: height}, format)
		}

		oneX := g.VariantURL(source, width, height, quality, format)
		twoX := g.VariantURL(source, width*2, height*2, quality, format)

		sources = append(sources, models.ResponsiveSource{
			Breakpoint: bp.Label,
			Width:      width,
			Height:     height,
			Quality:    quality,
			Format:     format,
			SrcSet:     fmt.Sprintf("%s 1x, %s 2x", oneX, twoX),
			Sizes:      sizes,
		})
	}
	return sources
}

// SizesString renders the media-query chain for a breakpoint set. The
// breakpoints are ordered descending by their named viewport width; every
// entry but the smallest gets a min-width condition and the smallest is
// emitted unconditionally last. Browsers take the first matching entry, so
// conditions must be evaluated largest-first.
func (g *Generator) SizesString(breakpoints []models.Breakpoint) string {
	ordered := make([]models.Breakpoint, len(breakpoints))
	copy(ordered, breakpoints)
	sort.SliceStable(ordered, func(i, j int) bool {
		return viewportWidth(ordered[i]) > viewportWidth(ordered[j])
	})

	parts := make([]string, 0, len(ordered))
	for i, bp := range ordered {
		if i == len(ordered)-1 {
			parts = append(parts, fmt.Sprintf("%dpx", bp.Width))
			continue
		}
		parts = append(parts, fmt.Sprintf("(min-width: %dpx) %dpx", viewportWidth(bp), bp.Width))
	}
	return strings.Join(parts, ", ")
}

// viewportWidth resolves a breakpoint label through the canonical table,
// falling back to the breakpoint's own target width for custom labels.
func viewportWidth(bp models.Breakpoint) int {
	if w, ok := breakpointWidths[bp.Label]; ok {
		return w
	}
	return bp.Width
}

// VariantURL renders the optimization-endpoint URL for one concrete
// variant. The fallback source in a descriptor uses the same form.
func (g *Generator) VariantURL(source string, width, height, quality int, format models.Format) string {
	q := url.Values{}
	q.Set("src", source)
	q.Set("w", strconv.Itoa(width))
	q.Set("h", strconv.Itoa(height))
	q.Set("q", strconv.Itoa(quality))
	q.Set("f", string(format))
	return g.baseURL + "?" + q.Encode()
}
