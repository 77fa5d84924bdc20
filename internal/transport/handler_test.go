package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"go-image-optimizer/internal/cache"
	"go-image-optimizer/internal/config"
	"go-image-optimizer/internal/optimizer"
	"go-image-optimizer/internal/pool"
	"go-image-optimizer/internal/responsive"
	"go-image-optimizer/internal/transform"
	"go-image-optimizer/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubFetcher struct {
	sources map[string][]byte
}

func (f *stubFetcher) Fetch(_ context.Context, source string) ([]byte, error) {
	data, ok := f.sources[source]
	if !ok {
		return nil, fmt.Errorf("no such source %q", source)
	}
	return data, nil
}

type stubProcessor struct{}

func (stubProcessor) Process(data []byte, opts transform.Options) (*transform.Result, error) {
	out := append([]byte("encoded:"), data...)
	return &transform.Result{
		Data:          out,
		Format:        opts.Format,
		Width:         opts.Width,
		Height:        opts.Height,
		Channels:      3,
		OriginalSize:  len(data),
		OptimizedSize: len(out),
	}, nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	p := pool.New(stubProcessor{}, 2, nil, nil)
	t.Cleanup(p.Close)

	store := cache.NewTiered(cache.NewMemoryCache(100, 0))
	svc := optimizer.NewService(
		&stubFetcher{sources: map[string][]byte{"photo.jpg": []byte("rawbytes")}},
		p, store, responsive.NewGenerator(""), nil)

	cfg := &config.Config{RequestTimeout: 5 * time.Second}
	return NewHandler(svc, cfg)
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid health response: %v", err)
	}
	if body["status"] != "available" {
		t.Errorf("Expected status available, got %v", body["status"])
	}
}

func TestOptimizeEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	payload, _ := json.Marshal(OptimizeRequest{
		Source: "photo.jpg",
		Params: models.OptimizationParams{Width: 400, Height: 300, Format: models.FormatWebP},
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/optimize", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var descriptor models.OptimizedImageDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &descriptor); err != nil {
		t.Fatalf("Invalid descriptor response: %v", err)
	}
	if descriptor.Metrics.ResolvedFormat != models.FormatWebP {
		t.Errorf("Expected webp, got %s", descriptor.Metrics.ResolvedFormat)
	}
	if descriptor.Dimensions.Width != 400 {
		t.Errorf("Expected width 400, got %d", descriptor.Dimensions.Width)
	}
}

func TestOptimizeEndpointRejectsMissingSource(t *testing.T) {
	handler := newTestHandler(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/optimize", bytes.NewReader([]byte(`{"params":{}}`)))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing source, got %d", w.Code)
	}
}

func TestServeVariantEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/optimize?src=photo.jpg&w=200&h=150&q=80&f=jpeg", nil)
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", ct)
	}
	if w.Body.String() != "encoded:rawbytes" {
		t.Errorf("Unexpected payload %q", w.Body.String())
	}
}

func TestBatchEndpointRejectsOversized(t *testing.T) {
	handler := newTestHandler(t)

	requests := make([]models.OptimizationRequest, 11)
	for i := range requests {
		requests[i] = models.OptimizationRequest{Source: fmt.Sprintf("img-%d.jpg", i)}
	}
	payload, _ := json.Marshal(BatchRequest{Requests: requests})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/optimize/batch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for oversized batch, got %d", w.Code)
	}
}

func TestBatchEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	payload, _ := json.Marshal(BatchRequest{Requests: []models.OptimizationRequest{
		{Source: "photo.jpg", Params: models.OptimizationParams{Width: 100, Height: 100}},
		{Source: "missing.jpg", Params: models.OptimizationParams{Width: 100, Height: 100}},
	}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/optimize/batch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Results []models.BatchItemResult `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid batch response: %v", err)
	}
	if len(body.Results) != 2 {
		t.Fatalf("Expected 2 slots, got %d", len(body.Results))
	}
	if body.Results[0].Descriptor == nil {
		t.Error("Slot 0 should carry a descriptor")
	}
	if body.Results[1].Error == "" {
		t.Error("Slot 1 should carry the fetch error")
	}
}

func TestCapabilityNegotiationFromAcceptHeader(t *testing.T) {
	handler := newTestHandler(t)

	payload, _ := json.Marshal(OptimizeRequest{
		Source: "photo.jpg",
		Params: models.OptimizationParams{Width: 120, Height: 90},
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/optimize", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/avif,image/webp,image/*")
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var descriptor models.OptimizedImageDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &descriptor); err != nil {
		t.Fatalf("Invalid descriptor response: %v", err)
	}
	if descriptor.Metrics.ResolvedFormat != models.FormatAVIF {
		t.Errorf("Expected avif for an avif-capable client, got %s", descriptor.Metrics.ResolvedFormat)
	}
}
