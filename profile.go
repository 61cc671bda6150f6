package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"lg/macrotrack-api/internal/macro"
	"lg/macrotrack-api/internal/store"
)

const (
	goalChoices     = "bulk, lose, lean"
	genderChoices   = "male, female, other"
	activityChoices = "sedentary, light, moderate, active, very_active"
)

// getProfile returns the authenticated user's profile, or null before
// onboarding.
// GET /api/profile.
func (h *Handler) getProfile(c *gin.Context) {
	p, err := h.store.GetUserProfile(c.Request.Context(), c.GetInt("user_id"))
	if err != nil {
		h.storeError(c, "fetch profile", err, "profile not found")
		return
	}
	c.JSON(http.StatusOK, p)
}

// createProfile runs onboarding: validates every body metric, computes
// targets and stores the profile with onboarding_complete set.
// POST /api/profile. 409 when the user already has a profile.
func (h *Handler) createProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body createProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Timezone == "" {
		body.Timezone = "UTC"
	}
	patch := patchProfileRequest{
		Goal: &body.Goal, Age: &body.Age, Gender: &body.Gender,
		Height: &body.Height, Weight: &body.Weight, ActivityLevel: &body.ActivityLevel,
		Timezone: &body.Timezone,
	}
	if msg := validateProfilePatch(patch); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	existing, err := h.store.GetUserProfile(c.Request.Context(), userID)
	if err != nil {
		h.storeError(c, "fetch profile", err, "profile not found")
		return
	}
	if existing != nil {
		apiError(c, http.StatusConflict, "profile already exists")
		return
	}

	p := store.UserProfile{UserID: userID, OnboardingComplete: true}
	applyProfilePatch(&p, patch)
	targets, ok := macro.ComputeTargets(p.Metrics())
	if !ok {
		// Unreachable after validation.
		apiError(c, http.StatusBadRequest, "incomplete body metrics")
		return
	}
	p.SetTargets(targets)

	created, err := h.store.CreateUserProfile(c.Request.Context(), p)
	if err != nil {
		h.storeError(c, "create profile", err, "profile not found")
		return
	}
	c.JSON(http.StatusCreated, profileResponse{Profile: created, Targets: &targets})
}

// patchProfile updates only the provided fields. When all six target inputs
// are known after merging, targets are recomputed and stored too.
// PATCH /api/profile.
func (h *Handler) patchProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body patchProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body == (patchProfileRequest{}) {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}
	if msg := validateProfilePatch(body); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	p, err := h.store.GetUserProfile(c.Request.Context(), userID)
	if err != nil {
		h.storeError(c, "fetch profile", err, "profile not found")
		return
	}
	if p == nil {
		apiError(c, http.StatusNotFound, "profile not found")
		return
	}

	applyProfilePatch(p, body)
	var targets *macro.Targets
	if t, ok := macro.ComputeTargets(p.Metrics()); ok {
		p.SetTargets(t)
		targets = &t
	}

	updated, err := h.store.UpdateUserProfile(c.Request.Context(), *p)
	if err != nil {
		h.storeError(c, "update profile", err, "profile not found")
		return
	}
	c.JSON(http.StatusOK, profileResponse{Profile: updated, Targets: targets})
}

// validateProfilePatch checks every provided field and returns a client
// message, or "" when the patch is valid. Enum values are checked here
// rather than left to the DB constraint, which would surface as a 500.
func validateProfilePatch(p patchProfileRequest) string {
	if p.Goal != nil && !p.Goal.Valid() {
		return "goal must be one of: " + goalChoices
	}
	if p.Age != nil && *p.Age <= 0 {
		return "age must be a positive integer"
	}
	if p.Gender != nil && !p.Gender.Valid() {
		return "gender must be one of: " + genderChoices
	}
	if p.Height != nil && *p.Height <= 0 {
		return "height must be positive"
	}
	if p.Weight != nil && *p.Weight <= 0 {
		return "weight must be positive"
	}
	if p.ActivityLevel != nil && !p.ActivityLevel.Valid() {
		return "activity_level must be one of: " + activityChoices
	}
	if p.Timezone != nil {
		if _, err := time.LoadLocation(strings.TrimSpace(*p.Timezone)); err != nil || strings.TrimSpace(*p.Timezone) == "" {
			return "timezone must be an IANA zone name such as America/New_York"
		}
	}
	return ""
}

func applyProfilePatch(p *store.UserProfile, patch patchProfileRequest) {
	if patch.Goal != nil {
		p.Goal = *patch.Goal
	}
	if patch.Age != nil {
		age := *patch.Age
		p.Age = &age
	}
	if patch.Gender != nil {
		g := *patch.Gender
		p.Gender = &g
	}
	if patch.Height != nil {
		p.Height = decimal.NewNullDecimal(decimal.NewFromFloat(*patch.Height))
	}
	if patch.Weight != nil {
		p.Weight = decimal.NewNullDecimal(decimal.NewFromFloat(*patch.Weight))
	}
	if patch.ActivityLevel != nil {
		a := *patch.ActivityLevel
		p.ActivityLevel = &a
	}
	if patch.Timezone != nil {
		p.Timezone = strings.TrimSpace(*patch.Timezone)
	}
}

/* ─── Dates ──────────────────────────────────────────────────────────── */

// location returns the profile's timezone, or UTC when there is no profile
// or the stored zone cannot be loaded.
func location(p *store.UserProfile) *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// today is the current calendar date in the profile's timezone.
func (h *Handler) today(p *store.UserProfile) store.DateOnly {
	return store.DateOf(h.now().In(location(p)))
}

// requestDate resolves the day a request is about: ?date= when given (except
// on /today routes), otherwise today for the profile. Writes a 400 and
// returns ok=false for a malformed date.
func (h *Handler) requestDate(c *gin.Context, p *store.UserProfile) (store.DateOnly, bool) {
	raw := c.Query("date")
	if raw == "" || strings.HasSuffix(c.FullPath(), "/today") {
		return h.today(p), true
	}
	d, err := store.ParseDate(raw)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return store.DateOnly{}, false
	}
	return d, true
}
