package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"lg/macrotrack-api/internal/macro"
	"lg/macrotrack-api/internal/store"
)

// On-target band for the range summary, in percent of target calories.
const (
	onTargetLow  = 90.0
	onTargetHigh = 110.0
)

// getTracking returns the day's totals alongside the profile targets, the
// per-macro adherence and the calorie split.
// GET /api/tracking?date=YYYY-MM-DD and GET /api/tracking/today.
// tracking is null when nothing has been logged that day.
func (h *Handler) getTracking(c *gin.Context) {
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

	t, err := h.store.GetDailyTracking(ctx, userID, date)
	if err != nil {
		h.storeError(c, "fetch tracking", err, "tracking not found")
		return
	}

	resp := trackingResponse{Date: date, Tracking: t, Profile: p}
	if t != nil {
		resp.Split = macro.CalculateMacroPercentages(t.TotalCalories,
			t.TotalProtein.InexactFloat64(), t.TotalCarbs.InexactFloat64(), t.TotalFat.InexactFloat64())
		if p != nil {
			resp.Adherence = adherenceOf(t, p)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// adherenceOf computes each total against its stored target, leaving out
// macros whose target is unset or zero.
func adherenceOf(t *store.DailyTracking, p *store.UserProfile) adherence {
	pct := func(total float64, target decimal.NullDecimal) *float64 {
		if !target.Valid {
			return nil
		}
		v, err := macro.Percentage(total, target.Decimal.InexactFloat64())
		if err != nil {
			return nil
		}
		v = roundTo(v, 1)
		return &v
	}

	var a adherence
	if p.TargetCalories != nil {
		a.Calories = pct(float64(t.TotalCalories), decimal.NewNullDecimal(decimal.NewFromInt(int64(*p.TargetCalories))))
	}
	a.Protein = pct(t.TotalProtein.InexactFloat64(), p.TargetProtein)
	a.Carbs = pct(t.TotalCarbs.InexactFloat64(), p.TargetCarbs)
	a.Fat = pct(t.TotalFat.InexactFloat64(), p.TargetFat)
	return a
}

// getTrackingRange returns the stored day rows in [start, end] and summary
// stats over the days that have meals.
// GET /api/tracking/range?start=YYYY-MM-DD&end=YYYY-MM-DD. Both params required.
// Days without a row are not gap-filled.
func (h *Handler) getTrackingRange(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetInt("user_id")

	rawStart, rawEnd := c.Query("start"), c.Query("end")
	if rawStart == "" || rawEnd == "" {
		apiError(c, http.StatusBadRequest, "start and end query params are required")
		return
	}
	start, err := store.ParseDate(rawStart)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid start, expected YYYY-MM-DD")
		return
	}
	end, err := store.ParseDate(rawEnd)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid end, expected YYYY-MM-DD")
		return
	}
	if start.After(end.Time) {
		apiError(c, http.StatusBadRequest, "start must not be after end")
		return
	}

	p, err := h.store.GetUserProfile(ctx, userID)
	if err != nil {
		h.storeError(c, "fetch profile", err, "profile not found")
		return
	}
	days, err := h.store.GetDailyTrackingRange(ctx, userID, start, end)
	if err != nil {
		h.storeError(c, "fetch tracking range", err, "tracking not found")
		return
	}

	var targetCalories *int
	if p != nil {
		targetCalories = p.TargetCalories
	}
	c.JSON(http.StatusOK, rangeResponse{Days: days, Stats: summarize(days, targetCalories)})
}

// summarize averages the days that have at least one meal. A day is on target
// when its calories fall within 90-110% of targetCalories.
func summarize(days []store.DailyTracking, targetCalories *int) rangeStats {
	stats := rangeStats{TargetCalories: targetCalories}
	var calories int
	protein, carbs, fat := decimal.Zero, decimal.Zero, decimal.Zero
	for _, d := range days {
		if d.MealCount == 0 {
			continue
		}
		stats.DaysTracked++
		calories += d.TotalCalories
		protein = protein.Add(d.TotalProtein)
		carbs = carbs.Add(d.TotalCarbs)
		fat = fat.Add(d.TotalFat)

		if targetCalories != nil {
			if pct, err := macro.Percentage(float64(d.TotalCalories), float64(*targetCalories)); err == nil &&
				pct >= onTargetLow && pct <= onTargetHigh {
				stats.DaysOnTarget++
			}
		}
	}
	if stats.DaysTracked == 0 {
		return stats
	}

	n := decimal.NewFromInt(int64(stats.DaysTracked))
	stats.AvgCalories = int(decimal.NewFromInt(int64(calories)).Div(n).Round(0).IntPart())
	stats.AvgProtein = protein.Div(n).Round(1).InexactFloat64()
	stats.AvgCarbs = carbs.Div(n).Round(1).InexactFloat64()
	stats.AvgFat = fat.Div(n).Round(1).InexactFloat64()
	return stats
}

func roundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
