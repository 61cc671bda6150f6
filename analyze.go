package main

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lg/macrotrack-api/internal/analysis"
	"lg/macrotrack-api/internal/imagestore"
)

// maxUploadBytes caps meal photo uploads.
const maxUploadBytes = 10 << 20

// analyzeImage estimates a meal's macros from a photo URL, usually one
// returned by uploadMealImage.
// POST /api/analysis/image.
func (h *Handler) analyzeImage(c *gin.Context) {
	var req analyzeImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := url.Parse(strings.TrimSpace(req.ImageURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		apiError(c, http.StatusBadRequest, "image_url must be an http(s) URL")
		return
	}
	if !h.requireAnalyzer(c) {
		return
	}

	result, err := h.analyzer.AnalyzeImage(c.Request.Context(), u.String(), strings.TrimSpace(req.Notes))
	h.writeAnalysis(c, "image", result, err)
}

// analyzeDescription estimates a meal's macros from free text.
// POST /api/analysis/description.
func (h *Handler) analyzeDescription(c *gin.Context) {
	var req analyzeDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		apiError(c, http.StatusBadRequest, "description is required")
		return
	}
	if !h.requireAnalyzer(c) {
		return
	}

	result, err := h.analyzer.AnalyzeDescription(c.Request.Context(), description)
	h.writeAnalysis(c, "description", result, err)
}

// refineAnalysis corrects an earlier estimate using the user's feedback.
// POST /api/analysis/refine.
func (h *Handler) refineAnalysis(c *gin.Context) {
	var req refineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	feedback := strings.TrimSpace(req.Feedback)
	if feedback == "" {
		apiError(c, http.StatusBadRequest, "feedback is required")
		return
	}
	if strings.TrimSpace(req.Original.MealName) == "" {
		apiError(c, http.StatusBadRequest, "original analysis is required")
		return
	}
	if !h.requireAnalyzer(c) {
		return
	}

	result, err := h.analyzer.Refine(c.Request.Context(), req.Original, feedback)
	h.writeAnalysis(c, "refine", result, err)
}

func (h *Handler) requireAnalyzer(c *gin.Context) bool {
	if h.analyzer == nil {
		apiError(c, http.StatusServiceUnavailable, "meal analysis is not configured")
		return false
	}
	return true
}

// writeAnalysis maps provider errors: an unconfigured provider is 503, any
// other failure is 502.
func (h *Handler) writeAnalysis(c *gin.Context, kind string, result analysis.Result, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, analysis.ErrNotConfigured):
		h.log.Warn("analysis not configured", zap.String("kind", kind), zap.Error(err))
		apiError(c, http.StatusServiceUnavailable, "meal analysis is not configured")
	default:
		h.log.Error("analysis failed", zap.String("kind", kind), zap.Error(err))
		apiError(c, http.StatusBadGateway, "meal analysis failed")
	}
}

// uploadMealImage stores a meal photo and returns its key and a presigned
// URL suitable for analyzeImage.
// POST /api/uploads/meal-image (multipart, field "image").
func (h *Handler) uploadMealImage(c *gin.Context) {
	if h.images == nil {
		apiError(c, http.StatusServiceUnavailable, "image uploads are not configured")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fh, err := c.FormFile("image")
	if err != nil {
		apiError(c, http.StatusBadRequest, "image file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		apiError(c, http.StatusBadRequest, "unreadable image file")
		return
	}
	defer f.Close()

	userID := c.GetInt("user_id")
	up, err := h.images.Upload(c.Request.Context(), userID, fh.Header.Get("Content-Type"), f)
	if errors.Is(err, imagestore.ErrUnsupportedType) {
		apiError(c, http.StatusBadRequest, "image must be jpeg, png or webp")
		return
	}
	if err != nil {
		h.log.Error("image upload failed", zap.Int("user_id", userID), zap.Error(err))
		apiError(c, http.StatusBadGateway, "failed to store image")
		return
	}
	c.JSON(http.StatusCreated, up)
}
