// Package optimizer composes the cache hierarchy, format/quality policy,
// worker pool, and responsive generator into the image optimization
// service. It is the only package that sees the whole pipeline; every
// dependency is injected, nothing is a global.
package optimizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	"go-image-optimizer/internal/cache"
	apperrors "go-image-optimizer/internal/errors"
	"go-image-optimizer/internal/logger"
	"go-image-optimizer/internal/observer"
	"go-image-optimizer/internal/policy"
	"go-image-optimizer/internal/pool"
	"go-image-optimizer/internal/responsive"
	"go-image-optimizer/internal/storage"
	"go-image-optimizer/internal/transform"
	"go-image-optimizer/pkg/models"
	"go-image-optimizer/pkg/validation"
)

// defaultBreakpoints is the variant set generated when a request asks for
// responsive sources without naming breakpoints.
var defaultBreakpoints = []models.Breakpoint{
	{Label: "xs", Width: 320},
	{Label: "sm", Width: 640},
	{Label: "md", Width: 768},
	{Label: "lg", Width: 1024},
	{Label: "xl", Width: 1280},
	{Label: "xxl", Width: 1536},
}

// Outcome bundles the boundary descriptor with the encoded payload, so
// the API layer can answer with either JSON or raw image bytes.
type Outcome struct {
	Descriptor models.OptimizedImageDescriptor
	Data       []byte
	Format     models.Format
}

// Service is the optimization service object.
type Service struct {
	fetcher    storage.SourceFetcher
	pool       *pool.Pool
	store      cache.Cache
	responsive *responsive.Generator
	events     observer.Subject
}

// NewService wires the service from its collaborators. events may be nil
// when no observer is attached.
func NewService(
	fetcher storage.SourceFetcher,
	workerPool *pool.Pool,
	store cache.Cache,
	generator *responsive.Generator,
	events observer.Subject,
) *Service {
	return &Service{
		fetcher:    fetcher,
		pool:       workerPool,
		store:      store,
		responsive: generator,
		events:     events,
	}
}

// Optimize runs one source through the pipeline: probe the cache, resolve
// format and quality on a miss, transform on the worker pool, write the
// result back through every tier, and assemble the descriptor.
//
// A transformation failure does not surface as an error: the caller gets a
// fallback descriptor pointing at the unmodified source, so rendering is
// never blocked by a failed optimization.
func (s *Service) Optimize(
	ctx context.Context,
	source string,
	params models.OptimizationParams,
	caps models.Capabilities,
) (*Outcome, error) {
	if err := validation.ValidateSource(source); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), err)
	}
	if err := validation.ValidateParams(params); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), err)
	}

	start := time.Now()
	canonical := params.Canonical()
	key := cache.Key(source, params)

	if entry, ok := s.store.Get(ctx, key); ok {
		s.publish(ctx, observer.PipelineEvent{
			EventType: observer.CacheHit,
			Source:    source,
			Success:   true,
			Metadata:  map[string]interface{}{"key": key},
		})
		return s.cachedOutcome(source, canonical, caps, entry, time.Since(start)), nil
	}
	s.publish(ctx, observer.PipelineEvent{
		EventType: observer.CacheMiss,
		Source:    source,
		Metadata:  map[string]interface{}{"key": key},
	})

	prepared, err := s.prepare(ctx, source, canonical, caps)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, observer.PipelineEvent{
		EventType: observer.OptimizationStarted,
		Source:    source,
	})
	result, err := s.pool.Submit(pool.NewTask(prepared.srcData, prepared.opts)).Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		s.publish(ctx, observer.PipelineEvent{
			EventType:    observer.OptimizationFailed,
			Source:       source,
			ErrorMessage: err.Error(),
		})
		if apperrors.IsType(err, apperrors.ErrorTypeProcessing) {
			logger.WithSource(source).WithError(err).
				Warn("Transformation failed, serving fallback descriptor")
			return s.fallbackOutcome(source, canonical, time.Since(start)), nil
		}
		return nil, err
	}

	s.store.Set(ctx, key, &cache.Entry{
		Data: result.Data,
		Meta: cache.Metadata{
			Format:       string(result.Format),
			Width:        result.Width,
			Height:       result.Height,
			Channels:     result.Channels,
			OriginalSize: result.OriginalSize,
		},
		CreatedAt: time.Now(),
	})

	s.publish(ctx, observer.PipelineEvent{
		EventType:      observer.OptimizationCompleted,
		Source:         source,
		ProcessingTime: result.ProcessingTime,
		Success:        true,
		Metadata: map[string]interface{}{
			"format":         string(result.Format),
			"optimized_size": result.OptimizedSize,
		},
	})

	outcome := &Outcome{
		Data:   result.Data,
		Format: result.Format,
		Descriptor: models.OptimizedImageDescriptor{
			Fallback: models.ImageSource{
				Src:    s.responsive.VariantURL(source, result.Width, result.Height, prepared.opts.Quality, result.Format),
				Width:  result.Width,
				Height: result.Height,
			},
			Dimensions: dimensions(result.Width, result.Height),
			Metrics: models.OptimizationMetrics{
				ProcessingTime:   float64(time.Since(start).Microseconds()) / 1000,
				ResolvedFormat:   result.Format,
				CacheHit:         false,
				OriginalSize:     result.OriginalSize,
				OptimizedSize:    result.OptimizedSize,
				CompressionRatio: result.CompressionRatio,
			},
		},
	}
	s.decorate(&outcome.Descriptor, source, canonical, caps, prepared.srcData)
	return outcome, nil
}

// OptimizeBatch processes up to validation.MaxBatchSize requests. An
// oversized batch is rejected whole before any work; within an accepted
// batch each item succeeds or fails on its own slot. Misses are submitted
// together so the pool processes them in size-bounded chunks.
func (s *Service) OptimizeBatch(
	ctx context.Context,
	requests []models.OptimizationRequest,
	caps models.Capabilities,
) ([]models.BatchItemResult, error) {
	if err := validation.ValidateBatch(requests); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), err)
	}

	results := make([]models.BatchItemResult, len(requests))

	type pending struct {
		index   int
		source  string
		params  models.OptimizationParams
		key     string
		srcData []byte
		opts    transform.Options
		start   time.Time
	}
	var misses []*pending
	var tasks []*pool.Task

	for i, req := range requests {
		start := time.Now()
		if err := validation.ValidateSource(req.Source); err != nil {
			results[i] = models.BatchItemResult{Error: err.Error()}
			continue
		}
		if err := validation.ValidateParams(req.Params); err != nil {
			results[i] = models.BatchItemResult{Error: err.Error()}
			continue
		}

		canonical := req.Params.Canonical()
		key := cache.Key(req.Source, req.Params)
		if entry, ok := s.store.Get(ctx, key); ok {
			outcome := s.cachedOutcome(req.Source, canonical, caps, entry, time.Since(start))
			results[i] = models.BatchItemResult{Descriptor: &outcome.Descriptor}
			continue
		}

		prepared, err := s.prepare(ctx, req.Source, canonical, caps)
		if err != nil {
			results[i] = models.BatchItemResult{Error: err.Error()}
			continue
		}
		item := &pending{
			index:   i,
			source:  req.Source,
			params:  canonical,
			key:     key,
			srcData: prepared.srcData,
			opts:    prepared.opts,
			start:   start,
		}
		misses = append(misses, item)
		tasks = append(tasks, pool.NewTask(prepared.srcData, prepared.opts))
	}

	for j, br := range s.pool.SubmitBatch(ctx, tasks) {
		item := misses[j]
		if br.Err != nil {
			if apperrors.IsType(br.Err, apperrors.ErrorTypeProcessing) {
				outcome := s.fallbackOutcome(item.source, item.params, time.Since(item.start))
				results[item.index] = models.BatchItemResult{Descriptor: &outcome.Descriptor}
				continue
			}
			results[item.index] = models.BatchItemResult{Error: br.Err.Error()}
			continue
		}

		result := br.Result
		s.store.Set(ctx, item.key, &cache.Entry{
			Data: result.Data,
			Meta: cache.Metadata{
				Format:       string(result.Format),
				Width:        result.Width,
				Height:       result.Height,
				Channels:     result.Channels,
				OriginalSize: result.OriginalSize,
			},
			CreatedAt: time.Now(),
		})

		descriptor := models.OptimizedImageDescriptor{
			Fallback: models.ImageSource{
				Src:    s.responsive.VariantURL(item.source, result.Width, result.Height, item.opts.Quality, result.Format),
				Width:  result.Width,
				Height: result.Height,
			},
			Dimensions: dimensions(result.Width, result.Height),
			Metrics: models.OptimizationMetrics{
				ProcessingTime:   float64(time.Since(item.start).Microseconds()) / 1000,
				ResolvedFormat:   result.Format,
				OriginalSize:     result.OriginalSize,
				OptimizedSize:    result.OptimizedSize,
				CompressionRatio: result.CompressionRatio,
			},
		}
		s.decorate(&descriptor, item.source, item.params, caps, item.srcData)
		results[item.index] = models.BatchItemResult{Descriptor: &descriptor}
	}

	return results, nil
}

// ServiceStats aggregates pool and cache activity for the stats endpoint.
type ServiceStats struct {
	Pool       pool.Stats             `json:"pool"`
	Cache      cache.Stats            `json:"cache"`
	CacheTiers map[string]cache.Stats `json:"cache_tiers,omitempty"`
}

func (s *Service) Stats() ServiceStats {
	stats := ServiceStats{
		Pool:  s.pool.Stats(),
		Cache: s.store.Stats(),
	}
	if tiered, ok := s.store.(interface{ TierStats() map[string]cache.Stats }); ok {
		stats.CacheTiers = tiered.TierStats()
	}
	return stats
}

// preparedRequest carries everything resolved on the miss path before the
// task reaches the pool.
type preparedRequest struct {
	srcData []byte
	opts    transform.Options
}

// prepare fetches the source bytes and resolves format and quality for a
// cache miss.
func (s *Service) prepare(
	ctx context.Context,
	source string,
	canonical models.OptimizationParams,
	caps models.Capabilities,
) (*preparedRequest, error) {
	srcData, err := s.fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("failed to fetch source %q", source), err)
	}

	format := canonical.Format
	if format == "" {
		format = policy.ResolveFormat(nil, caps)
	}

	quality := canonical.Quality
	if quality <= 0 {
		stats := policy.ImageStats{Width: canonical.Width, Height: canonical.Height}
		if cfg, _, cfgErr := image.DecodeConfig(bytes.NewReader(srcData)); cfgErr == nil {
			stats = policy.ImageStats{Width: cfg.Width, Height: cfg.Height}
		}
		quality = policy.ResolveQuality(stats, format)
	}

	return &preparedRequest{
		srcData: srcData,
		opts: transform.Options{
			Width:      canonical.Width,
			Height:     canonical.Height,
			Quality:    quality,
			Format:     format,
			Fit:        canonical.Fit,
			Blur:       canonical.Blur,
			Brightness: canonical.Brightness,
			Contrast:   canonical.Contrast,
			Saturation: canonical.Saturation,
			Sharpen:    canonical.Sharpen,
			Grayscale:  canonical.Grayscale,
		},
	}, nil
}

// cachedOutcome builds the outcome for a cache hit.
func (s *Service) cachedOutcome(
	source string,
	canonical models.OptimizationParams,
	caps models.Capabilities,
	entry *cache.Entry,
	elapsed time.Duration,
) *Outcome {
	format := models.Format(entry.Meta.Format)
	quality := canonical.Quality
	if quality <= 0 {
		quality = policy.ResolveQuality(
			policy.ImageStats{Width: entry.Meta.Width, Height: entry.Meta.Height}, format)
	}

	ratio := 0.0
	if entry.Meta.OriginalSize > 0 {
		ratio = 1 - float64(len(entry.Data))/float64(entry.Meta.OriginalSize)
	}

	outcome := &Outcome{
		Data:   entry.Data,
		Format: format,
		Descriptor: models.OptimizedImageDescriptor{
			Fallback: models.ImageSource{
				Src:    s.responsive.VariantURL(source, entry.Meta.Width, entry.Meta.Height, quality, format),
				Width:  entry.Meta.Width,
				Height: entry.Meta.Height,
			},
			Dimensions: dimensions(entry.Meta.Width, entry.Meta.Height),
			Metrics: models.OptimizationMetrics{
				ProcessingTime:   float64(elapsed.Microseconds()) / 1000,
				ResolvedFormat:   format,
				CacheHit:         true,
				OriginalSize:     entry.Meta.OriginalSize,
				OptimizedSize:    len(entry.Data),
				CompressionRatio: ratio,
			},
		},
	}
	s.decorate(&outcome.Descriptor, source, canonical, caps, entry.Data)
	return outcome
}

// fallbackOutcome points the caller back at the unmodified source at the
// requested dimensions. No payload is attached.
func (s *Service) fallbackOutcome(
	source string,
	canonical models.OptimizationParams,
	elapsed time.Duration,
) *Outcome {
	return &Outcome{
		Descriptor: models.OptimizedImageDescriptor{
			Fallback: models.ImageSource{
				Src:    source,
				Width:  canonical.Width,
				Height: canonical.Height,
			},
			Dimensions: dimensions(canonical.Width, canonical.Height),
			Metrics: models.OptimizationMetrics{
				ProcessingTime: float64(elapsed.Microseconds()) / 1000,
			},
		},
	}
}

// decorate attaches the optional responsive sources and placeholder to a
// descriptor. Placeholder generation is best-effort; a decode failure here
// only logs, it never fails the request.
func (s *Service) decorate(
	d *models.OptimizedImageDescriptor,
	source string,
	canonical models.OptimizationParams,
	caps models.Capabilities,
	imageData []byte,
) {
	if canonical.Responsive {
		d.Sources = s.responsive.Generate(source, defaultBreakpoints, canonical, caps)
	}
	if canonical.Placeholder && len(imageData) > 0 {
		ph, err := transform.GeneratePlaceholder(imageData)
		if err != nil {
			logger.WithSource(source).WithError(err).Warn("Placeholder generation failed")
			return
		}
		d.Placeholder = &models.ImageSource{
			Src:    ph.DataURI,
			Width:  ph.Width,
			Height: ph.Height,
		}
	}
}

func (s *Service) publish(ctx context.Context, event observer.PipelineEvent) {
	if s.events == nil {
		return
	}
	s.events.NotifyObservers(ctx, event)
}

func dimensions(width, height int) models.ImageDimensions {
	d := models.ImageDimensions{Width: width, Height: height}
	if height > 0 {
		d.AspectRatio = float64(width) / float64(height)
	}
	return d
}
