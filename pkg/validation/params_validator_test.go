package validation

import (
	"errors"
	"fmt"
	"testing"

	"go-image-optimizer/pkg/models"
)

func TestValidateSource(t *testing.T) {
	valid := []string{
		"https://example.com/photo.jpg",
		"http://cdn.example.com/a/b/c.png",
		"azblob://assets/hero.webp",
		"images/portfolio/shot.jpg",
	}
	for _, source := range valid {
		if err := ValidateSource(source); err != nil {
			t.Errorf("Expected %q to be valid, got: %v", source, err)
		}
	}

	invalid := []string{
		"",
		"   ",
		"ftp://example.com/photo.jpg",
		"https:///no-host.jpg",
		"../etc/passwd",
		"images/../../secret.png",
	}
	for _, source := range invalid {
		if err := ValidateSource(source); err == nil {
			t.Errorf("Expected %q to be rejected", source)
		}
	}
}

func TestValidateParams_ZeroValuesAreLegal(t *testing.T) {
	if err := ValidateParams(models.OptimizationParams{}); err != nil {
		t.Errorf("Expected zero params to validate, got: %v", err)
	}
}

func TestValidateParams_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		params models.OptimizationParams
	}{
		{"negative width", models.OptimizationParams{Width: -1}},
		{"oversized height", models.OptimizationParams{Height: 9000}},
		{"quality too high", models.OptimizationParams{Quality: 101}},
		{"quality too low", models.OptimizationParams{Quality: -5}},
		{"unknown format", models.OptimizationParams{Format: "bmp"}},
		{"unknown fit", models.OptimizationParams{Fit: "stretch"}},
		{"negative blur", models.OptimizationParams{Blur: -1}},
		{"huge blur", models.OptimizationParams{Blur: 101}},
		{"brightness out of range", models.OptimizationParams{Brightness: 11}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateParams(tc.params); err == nil {
				t.Errorf("Expected %s to be rejected", tc.name)
			}
		})
	}
}

func TestValidateParams_AcceptsFullSet(t *testing.T) {
	params := models.OptimizationParams{
		Width:      800,
		Height:     600,
		Quality:    85,
		Format:     models.FormatAVIF,
		Fit:        models.FitContain,
		Blur:       2.5,
		Brightness: 1.1,
		Contrast:   0.9,
		Saturation: 1.2,
		Sharpen:    true,
		Grayscale:  true,
	}
	if err := ValidateParams(params); err != nil {
		t.Errorf("Expected full parameter set to validate, got: %v", err)
	}
}

func TestValidateBatch_SizeCap(t *testing.T) {
	within := make([]models.OptimizationRequest, MaxBatchSize)
	for i := range within {
		within[i] = models.OptimizationRequest{Source: fmt.Sprintf("img-%d.jpg", i)}
	}
	if err := ValidateBatch(within); err != nil {
		t.Errorf("Expected batch of %d to be accepted, got: %v", MaxBatchSize, err)
	}

	over := append(within, models.OptimizationRequest{Source: "one-too-many.jpg"})
	err := ValidateBatch(over)
	if err == nil {
		t.Fatal("Expected batch of 11 to be rejected")
	}
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("Expected ErrBatchTooLarge, got: %v", err)
	}
	if err.Error() != "maximum 10 images per batch" {
		t.Errorf("Unexpected rejection message: %q", err.Error())
	}
}

func TestValidateBatch_Empty(t *testing.T) {
	if err := ValidateBatch(nil); err == nil {
		t.Error("Expected empty batch to be rejected")
	}
}
