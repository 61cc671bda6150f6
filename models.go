package main

import (
	"github.com/shopspring/decimal"

	"lg/macrotrack-api/internal/analysis"
	"lg/macrotrack-api/internal/macro"
	"lg/macrotrack-api/internal/store"
)

/* ─── Request bodies ─────────────────────────────────────────────────── */

// createProfileRequest is the onboarding body for POST /api/profile. Every
// metric is required so targets can be computed up front.
type createProfileRequest struct {
	Goal          macro.Goal          `json:"goal"`
	Age           int                 `json:"age"`
	Gender        macro.Gender        `json:"gender"`
	Height        float64             `json:"height"`
	Weight        float64             `json:"weight"`
	ActivityLevel macro.ActivityLevel `json:"activity_level"`
	Timezone      string              `json:"timezone"`
}

// patchProfileRequest uses pointer fields to distinguish "not provided" from
// zero. Only non-nil fields are applied.
type patchProfileRequest struct {
	Goal          *macro.Goal          `json:"goal"`
	Age           *int                 `json:"age"`
	Gender        *macro.Gender        `json:"gender"`
	Height        *float64             `json:"height"`
	Weight        *float64             `json:"weight"`
	ActivityLevel *macro.ActivityLevel `json:"activity_level"`
	Timezone      *string              `json:"timezone"`
}

// createMealRequest is the body for POST /api/meals. meal_date defaults to
// today in the profile timezone.
type createMealRequest struct {
	MealType    store.MealType  `json:"meal_type"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Calories    int             `json:"calories"`
	Protein     decimal.Decimal `json:"protein"`
	Carbs       decimal.Decimal `json:"carbs"`
	Fat         decimal.Decimal `json:"fat"`
	ImageURL    *string         `json:"image_url"`
	AIEstimated bool            `json:"ai_estimated"`
	MealDate    string          `json:"meal_date"`
	MealTime    *string         `json:"meal_time"`
}

// updateMealRequest is the body for PUT /api/meals/:id. The date is not
// editable: a meal stays on the day it was logged.
type updateMealRequest struct {
	MealType    *store.MealType  `json:"meal_type"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Calories    *int             `json:"calories"`
	Protein     *decimal.Decimal `json:"protein"`
	Carbs       *decimal.Decimal `json:"carbs"`
	Fat         *decimal.Decimal `json:"fat"`
	MealTime    *string          `json:"meal_time"`
}

type analyzeImageRequest struct {
	ImageURL string `json:"image_url"`
	Notes    string `json:"notes"`
}

type analyzeDescriptionRequest struct {
	Description string `json:"description"`
}

type refineRequest struct {
	Original analysis.Result `json:"original"`
	Feedback string          `json:"feedback"`
}

/* ─── Responses ──────────────────────────────────────────────────────── */

type profileResponse struct {
	Profile store.UserProfile `json:"profile"`
	Targets *macro.Targets    `json:"targets"`
}

// mealResponse is returned by every meal mutation: the affected meal (absent
// on delete) and the day's recomputed tracking row.
type mealResponse struct {
	Meal     *store.Meal         `json:"meal,omitempty"`
	Tracking store.DailyTracking `json:"tracking"`
}

// adherence is each total as a percentage of its target. Macros with an
// undefined target are omitted.
type adherence struct {
	Calories *float64 `json:"calories,omitempty"`
	Protein  *float64 `json:"protein,omitempty"`
	Carbs    *float64 `json:"carbs,omitempty"`
	Fat      *float64 `json:"fat,omitempty"`
}

type trackingResponse struct {
	Date      store.DateOnly       `json:"date"`
	Tracking  *store.DailyTracking `json:"tracking"`
	Profile   *store.UserProfile   `json:"profile"`
	Adherence adherence            `json:"adherence"`
	Split     macro.Percentages    `json:"split"`
}

// rangeStats summarizes the tracked days in a range. Averages are over
// tracked days only.
type rangeStats struct {
	DaysTracked    int     `json:"days_tracked"`
	DaysOnTarget   int     `json:"days_on_target"`
	AvgCalories    int     `json:"avg_calories"`
	AvgProtein     float64 `json:"avg_protein"`
	AvgCarbs       float64 `json:"avg_carbs"`
	AvgFat         float64 `json:"avg_fat"`
	TargetCalories *int    `json:"target_calories"`
}

type rangeResponse struct {
	Days  []store.DailyTracking `json:"days"`
	Stats rangeStats            `json:"stats"`
}
