package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lg/macrotrack-api/internal/macro"
	"lg/macrotrack-api/internal/store"
)

// Targets assumed for coaching when the profile has none stored yet.
var defaultTargets = macro.Targets{Calories: 2000, Protein: 150, Carbs: 200, Fat: 65}

// getCoaching returns the day's coaching tips. Tips are generated from the
// tracking row the first time a day is requested and stored; later requests
// return the stored tips even if more meals were logged since.
// GET /api/coaching?date=YYYY-MM-DD and GET /api/coaching/today.
// Returns [] when there is no profile or nothing logged yet.
func (h *Handler) getCoaching(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetInt("user_id")

	p, err := h.store.GetUserProfile(ctx, userID)
	if err != nil {
		h.storeError(c, "fetch profile", err, "profile not found")
		return
	}
	date, ok := h.requestDate(c, p)
	if !ok {
		return
	}

	logs, err := h.store.GetCoachingLogs(ctx, userID, date)
	if err != nil {
		h.storeError(c, "fetch coaching", err, "coaching not found")
		return
	}
	if len(logs) > 0 || p == nil {
		c.JSON(http.StatusOK, logs)
		return
	}

	t, err := h.store.GetDailyTracking(ctx, userID, date)
	if err != nil {
		h.storeError(c, "fetch tracking", err, "tracking not found")
		return
	}
	if t == nil || t.MealCount == 0 {
		c.JSON(http.StatusOK, []store.CoachingLog{})
		return
	}

	totals := macro.Totals{
		Calories: t.TotalCalories,
		Protein:  t.TotalProtein.InexactFloat64(),
		Carbs:    t.TotalCarbs.InexactFloat64(),
		Fat:      t.TotalFat.InexactFloat64(),
	}
	tips, err := macro.GenerateCoachingTips(totals, coachingTargets(p), p.Goal)
	if errors.Is(err, macro.ErrUndefinedTarget) {
		c.JSON(http.StatusOK, []store.CoachingLog{})
		return
	}

	logs, created, err := h.store.CreateCoachingLogsIfAbsent(ctx, userID, date, tips)
	if err != nil {
		h.storeError(c, "save coaching", err, "coaching not found")
		return
	}
	if created {
		h.log.Info("coaching generated", zap.Int("user_id", userID),
			zap.Stringer("date", date), zap.Int("tips", len(logs)))
	}
	c.JSON(http.StatusOK, logs)
}

// coachingTargets reads the stored targets, falling back per field to
// defaultTargets where one is unset.
func coachingTargets(p *store.UserProfile) macro.Targets {
	t := defaultTargets
	if p.TargetCalories != nil {
		t.Calories = *p.TargetCalories
	}
	grams := func(v decimal.NullDecimal, fallback float64) float64 {
		if !v.Valid {
			return fallback
		}
		return v.Decimal.InexactFloat64()
	}
	t.Protein = grams(p.TargetProtein, t.Protein)
	t.Carbs = grams(p.TargetCarbs, t.Carbs)
	t.Fat = grams(p.TargetFat, t.Fat)
	return t
}
