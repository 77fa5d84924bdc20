package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-image-optimizer/internal/config"
	apperrors "go-image-optimizer/internal/errors"
	"go-image-optimizer/internal/logger"
	"go-image-optimizer/internal/optimizer"
	"go-image-optimizer/pkg/models"
)

// OptimizeRequest is the JSON body for a single optimization.
type OptimizeRequest struct {
	Source string                    `json:"source" binding:"required"`
	Params models.OptimizationParams `json:"params"`
}

// BatchRequest is the JSON body for a batch optimization.
type BatchRequest struct {
	Requests []models.OptimizationRequest `json:"requests" binding:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// maxRequestBodySize bounds JSON bodies; image payloads never travel in.
const maxRequestBodySize = 1 << 20

func NewHandler(svc *optimizer.Service, cfg *config.Config) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(maxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/stats", statsHandler(svc))
	r.GET("/api/optimize", serveVariant(svc, cfg))
	r.POST("/api/optimize", optimizeImage(svc, cfg))
	r.POST("/api/optimize/batch", optimizeBatch(svc, cfg))

	return r
}

// optimizeImage handles the descriptor-producing JSON endpoint.
func optimizeImage(svc *optimizer.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req OptimizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"ip": c.ClientIP(),
			}).Error("Invalid request format")
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		outcome, err := svc.Optimize(ctx, req.Source, req.Params, capabilitiesFromRequest(c))
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "optimization failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"source":             req.Source,
			"format":             string(outcome.Format),
			"cache_hit":          outcome.Descriptor.Metrics.CacheHit,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Image optimization completed")

		c.JSON(http.StatusOK, outcome.Descriptor)
	}
}

// serveVariant answers the generated variant URLs with raw image bytes.
func serveVariant(svc *optimizer.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		source := c.Query("src")
		if source == "" {
			respondError(c, http.StatusBadRequest, "missing src parameter", nil)
			return
		}
		params, err := paramsFromQuery(c)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid query parameters", err)
			return
		}

		outcome, err := svc.Optimize(ctx, source, params, capabilitiesFromRequest(c))
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "optimization failed", err)
			return
		}
		if len(outcome.Data) == 0 {
			// Pipeline failure degraded to a fallback descriptor; send the
			// client to the unmodified source.
			c.Redirect(http.StatusFound, outcome.Descriptor.Fallback.Src)
			return
		}

		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.Data(http.StatusOK, contentType(outcome.Format), outcome.Data)
	}
}

func optimizeBatch(svc *optimizer.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		results, err := svc.OptimizeBatch(ctx, req.Requests, capabilitiesFromRequest(c))
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "batch rejected", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"items": len(req.Requests),
			"ip":    c.ClientIP(),
		}).Info("Batch optimization completed")

		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

func statsHandler(svc *optimizer.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Stats())
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// capabilitiesFromRequest derives format support from the Accept header.
func capabilitiesFromRequest(c *gin.Context) models.Capabilities {
	accept := c.GetHeader("Accept")
	return models.Capabilities{
		SupportsAVIF: strings.Contains(accept, "image/avif"),
		SupportsWebP: strings.Contains(accept, "image/webp"),
	}
}

// paramsFromQuery parses the query form used by generated variant URLs.
func paramsFromQuery(c *gin.Context) (models.OptimizationParams, error) {
	var p models.OptimizationParams
	var err error

	if p.Width, err = intQuery(c, "w"); err != nil {
		return p, err
	}
	if p.Height, err = intQuery(c, "h"); err != nil {
		return p, err
	}
	if p.Quality, err = intQuery(c, "q"); err != nil {
		return p, err
	}
	p.Format = models.Format(c.Query("f"))
	p.Fit = models.Fit(c.Query("fit"))

	if v := c.Query("blur"); v != "" {
		if p.Blur, err = strconv.ParseFloat(v, 64); err != nil {
			return p, fmt.Errorf("invalid blur %q", v)
		}
	}
	p.Sharpen = c.Query("sharpen") == "true"
	p.Grayscale = c.Query("grayscale") == "true"
	return p, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

func contentType(format models.Format) string {
	if format == "" {
		return "application/octet-stream"
	}
	return "image/" + string(format)
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	detail := message
	if err != nil {
		detail = fmt.Sprintf("%s: %v", message, err)
	}
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: detail,
	})
}
