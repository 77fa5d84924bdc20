package responsive

import (
	"strings"
	"testing"

	"go-image-optimizer/pkg/models"
)

func TestGenerate_SizesOrdering(t *testing.T) {
	g := NewGenerator("/api/optimize")
	breakpoints := []models.Breakpoint{
		{Label: "sm", Width: 640},
		{Label: "lg", Width: 1024},
	}

	sources := g.Generate("/img/hero.jpg", breakpoints, models.OptimizationParams{}, models.Capabilities{})
	if len(sources) != 2 {
		t.Fatalf("Expected 2 sources, got %d", len(sources))
	}

	sizes := sources[0].Sizes
	if !strings.HasPrefix(sizes, "(min-width: 1024px) 1024px") {
		t.Errorf("Expected sizes to start with the lg condition, got %q", sizes)
	}
	if !strings.HasSuffix(sizes, ", 640px") {
		t.Errorf("Expected sizes to end with the unconditioned sm value, got %q", sizes)
	}
}

func TestGenerate_SizesOrderIndependentOfInput(t *testing.T) {
	g := NewGenerator("")
	shuffled := []models.Breakpoint{
		{Label: "lg", Width: 1024},
		{Label: "xs", Width: 320},
		{Label: "xl", Width: 1280},
	}
	sizes := g.SizesString(shuffled)

	xl := strings.Index(sizes, "1280px")
	lg := strings.Index(sizes, "1024px")
	xs := strings.Index(sizes, "320px")
	if !(xl < lg && lg < xs) {
		t.Errorf("Expected descending breakpoint order, got %q", sizes)
	}
	if strings.Contains(sizes, "(min-width: 320px)") {
		t.Errorf("Expected the smallest breakpoint to be unconditional, got %q", sizes)
	}
}

func TestGenerate_DensityVariants(t *testing.T) {
	g := NewGenerator("/api/optimize")
	sources := g.Generate("/img/a.png",
		[]models.Breakpoint{{Label: "sm", Width: 640}},
		models.OptimizationParams{Quality: 80, Format: models.FormatWebP},
		models.Capabilities{})

	srcSet := sources[0].SrcSet
	if !strings.Contains(srcSet, " 1x, ") || !strings.HasSuffix(srcSet, " 2x") {
		t.Fatalf("Expected a '1x, 2x' pair, got %q", srcSet)
	}
	// The 2x variant doubles both dimensions in its query.
	if !strings.Contains(srcSet, "w=1280") || !strings.Contains(srcSet, "h=960") {
		t.Errorf("Expected the 2x URL to double the dimensions, got %q", srcSet)
	}
}

func TestGenerate_DefaultAspectRatio(t *testing.T) {
	g := NewGenerator("")
	sources := g.Generate("src",
		[]models.Breakpoint{{Label: "md", Width: 768}},
		models.OptimizationParams{}, models.Capabilities{})

	// Missing height derives from 4:3.
	if sources[0].Height != 576 {
		t.Errorf("Expected derived height 576, got %d", sources[0].Height)
	}
}

func TestGenerate_FormatNegotiation(t *testing.T) {
	g := NewGenerator("")
	bps := []models.Breakpoint{{Label: "sm", Width: 640}}

	avif := g.Generate("src", bps, models.OptimizationParams{}, models.Capabilities{SupportsAVIF: true})
	if avif[0].Format != models.FormatAVIF {
		t.Errorf("Expected avif for a capable client, got %s", avif[0].Format)
	}

	legacy := g.Generate("src", bps, models.OptimizationParams{}, models.Capabilities{})
	if legacy[0].Format != models.FormatJPEG {
		t.Errorf("Expected jpeg fallback, got %s", legacy[0].Format)
	}

	pinned := g.Generate("src", []models.Breakpoint{{Label: "sm", Width: 640, Format: models.FormatPNG}},
		models.OptimizationParams{}, models.Capabilities{SupportsAVIF: true})
	if pinned[0].Format != models.FormatPNG {
		t.Errorf("Expected the breakpoint override to win, got %s", pinned[0].Format)
	}
}

func TestGenerate_QualityFallsBackToPolicy(t *testing.T) {
	g := NewGenerator("")
	sources := g.Generate("src",
		[]models.Breakpoint{{Label: "sm", Width: 640}},
		models.OptimizationParams{}, models.Capabilities{})

	// 640x480 is under half a megapixel: policy raises the base to 85.
	if sources[0].Quality != 85 {
		t.Errorf("Expected policy quality 85, got %d", sources[0].Quality)
	}
}

func TestGenerate_CustomLabelUsesOwnWidth(t *testing.T) {
	g := NewGenerator("")
	sizes := g.SizesString([]models.Breakpoint{
		{Label: "hero", Width: 1920},
		{Label: "sm", Width: 640},
	})
	if !strings.HasPrefix(sizes, "(min-width: 1920px)") {
		t.Errorf("Expected custom label to use its target width as threshold, got %q", sizes)
	}
}

func TestGenerate_EmptyBreakpoints(t *testing.T) {
	g := NewGenerator("")
	if sources := g.Generate("src", nil, models.OptimizationParams{}, models.Capabilities{}); sources != nil {
		t.Errorf("Expected nil for empty breakpoints, got %v", sources)
	}
}
