package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lg/macrotrack-api/internal/analysis"
	"lg/macrotrack-api/internal/imagestore"
	"lg/macrotrack-api/internal/store"
	"lg/macrotrack-api/internal/tracking"
)

// imageUploader stores meal photos. Satisfied by *imagestore.S3.
type imageUploader interface {
	Upload(ctx context.Context, userID int, contentType string, body io.Reader) (imagestore.Upload, error)
}

// Handler holds shared dependencies for all route handlers. analyzer and
// images are nil when their provider is not configured.
type Handler struct {
	store     store.Store
	tracker   *tracking.Aggregator
	analyzer  analysis.Analyzer
	images    imageUploader
	jwtSecret []byte
	log       *zap.Logger
	now       func() time.Time // overridable for tests
}

func NewHandler(s store.Store, analyzer analysis.Analyzer, images imageUploader, jwtSecret string, log *zap.Logger) *Handler {
	return &Handler{
		store:     s,
		tracker:   tracking.New(s, log),
		analyzer:  analyzer,
		images:    images,
		jwtSecret: []byte(jwtSecret),
		log:       log,
		now:       time.Now,
	}
}

/* ─── Response helpers ───────────────────────────────────────────────── */

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// storeError logs err and maps it to a status. ErrNotFound becomes 404 with
// notFound as the message; recompute failures become 503.
func (h *Handler) storeError(c *gin.Context, op string, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		apiError(c, http.StatusNotFound, notFound)
	case errors.Is(err, tracking.ErrUnavailable):
		h.log.Warn("tracking unavailable", zap.String("op", op), zap.Error(err))
		apiError(c, http.StatusServiceUnavailable, "daily tracking temporarily unavailable, retry")
	default:
		h.log.Error("request failed", zap.String("op", op), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "failed to "+op)
	}
}

/* ─── Middleware ─────────────────────────────────────────────────────── */

// requestLogger tags each request with an id and logs method, path,
// status and latency once it completes.
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if userID := c.GetInt("user_id"); userID != 0 {
			fields = append(fields, zap.Int("user_id", userID))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			h.log.Warn("request", fields...)
		} else {
			h.log.Info("request", fields...)
		}
	}
}

/* ─── Routes ─────────────────────────────────────────────────────────── */

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	// Public routes
	router.GET("/api/health", h.health)
	router.POST("/api/auth/logout", h.logout)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.GET("/auth/me", h.authMe)

	api.GET("/profile", h.getProfile)
	api.POST("/profile", h.createProfile)
	api.PATCH("/profile", h.patchProfile)

	api.GET("/meals", h.getMeals)
	api.GET("/meals/today", h.getMeals)
	api.POST("/meals", h.createMeal)
	api.PUT("/meals/:id", h.updateMeal)
	api.DELETE("/meals/:id", h.deleteMeal)

	api.GET("/tracking", h.getTracking)
	api.GET("/tracking/today", h.getTracking)
	api.GET("/tracking/range", h.getTrackingRange)

	api.GET("/coaching", h.getCoaching)
	api.GET("/coaching/today", h.getCoaching)

	api.POST("/analysis/image", h.analyzeImage)
	api.POST("/analysis/description", h.analyzeDescription)
	api.POST("/analysis/refine", h.refineAnalysis)
	api.POST("/uploads/meal-image", h.uploadMealImage)
}

// health reports whether the store is reachable.
// GET /api/health (public).
func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
