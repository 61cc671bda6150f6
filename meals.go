package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"lg/macrotrack-api/internal/store"
)

const mealTypeChoices = "breakfast, lunch, dinner, snack, other"

// getMeals returns the meals logged on a date, oldest first.
// GET /api/meals?date=YYYY-MM-DD (defaults to today) and GET /api/meals/today.
func (h *Handler) getMeals(c *gin.Context) {
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

	meals, err := h.store.GetMealsByDate(ctx, userID, date)
	if err != nil {
		h.storeError(c, "fetch meals", err, "meals not found")
		return
	}
	c.JSON(http.StatusOK, meals)
}

// createMeal logs a meal and recomputes that day's tracking row.
// POST /api/meals.
func (h *Handler) createMeal(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetInt("user_id")

	var body createMealRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	body.Protein, body.Carbs, body.Fat = body.Protein.Round(2), body.Carbs.Round(2), body.Fat.Round(2)
	if msg := validateMealFields(&body.MealType, &body.Name, &body.Calories, &body.Protein, &body.Carbs, &body.Fat, body.MealTime); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	var date store.DateOnly
	if body.MealDate != "" {
		d, err := store.ParseDate(body.MealDate)
		if err != nil {
			apiError(c, http.StatusBadRequest, "invalid meal_date, expected YYYY-MM-DD")
			return
		}
		date = d
	} else {
		p, err := h.store.GetUserProfile(ctx, userID)
		if err != nil {
			h.storeError(c, "fetch profile", err, "profile not found")
			return
		}
		date = h.today(p)
	}

	meal, err := h.store.CreateMeal(ctx, store.Meal{
		UserID:      userID,
		MealType:    body.MealType,
		Name:        strings.TrimSpace(body.Name),
		Description: body.Description,
		Calories:    body.Calories,
		Protein:     body.Protein,
		Carbs:       body.Carbs,
		Fat:         body.Fat,
		ImageURL:    body.ImageURL,
		AIEstimated: body.AIEstimated,
		MealDate:    date,
		MealTime:    body.MealTime,
	})
	if err != nil {
		h.storeError(c, "create meal", err, "meal not found")
		return
	}

	t, err := h.tracker.Recompute(ctx, userID, meal.MealDate)
	if err != nil {
		h.storeError(c, "recompute tracking", err, "meal not found")
		return
	}
	c.JSON(http.StatusCreated, mealResponse{Meal: &meal, Tracking: t})
}

// updateMeal applies the provided fields and recomputes the meal's day.
// PUT /api/meals/:id. Omitted fields keep their current value.
func (h *Handler) updateMeal(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetInt("user_id")
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid meal id")
		return
	}

	var body updateMealRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body == (updateMealRequest{}) {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}
	body.Protein, body.Carbs, body.Fat = round2(body.Protein), round2(body.Carbs), round2(body.Fat)
	if msg := validateMealFields(body.MealType, body.Name, body.Calories, body.Protein, body.Carbs, body.Fat, body.MealTime); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	patch := store.MealPatch{
		MealType:    body.MealType,
		Description: body.Description,
		Calories:    body.Calories,
		Protein:     body.Protein,
		Carbs:       body.Carbs,
		Fat:         body.Fat,
		MealTime:    body.MealTime,
	}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		patch.Name = &name
	}

	meal, err := h.store.UpdateMeal(ctx, userID, id, patch)
	if err != nil {
		h.storeError(c, "update meal", err, "meal not found")
		return
	}

	t, err := h.tracker.Recompute(ctx, userID, meal.MealDate)
	if err != nil {
		h.storeError(c, "recompute tracking", err, "meal not found")
		return
	}
	c.JSON(http.StatusOK, mealResponse{Meal: &meal, Tracking: t})
}

// deleteMeal removes a meal and recomputes its day.
// DELETE /api/meals/:id.
func (h *Handler) deleteMeal(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetInt("user_id")
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid meal id")
		return
	}

	date, err := h.store.DeleteMeal(ctx, userID, id)
	if err != nil {
		h.storeError(c, "delete meal", err, "meal not found")
		return
	}

	t, err := h.tracker.Recompute(ctx, userID, date)
	if err != nil {
		h.storeError(c, "recompute tracking", err, "meal not found")
		return
	}
	c.JSON(http.StatusOK, mealResponse{Tracking: t})
}

// Column limits: calories is INTEGER, macros are NUMERIC(6,2).
const maxMealCalories = 100_000

var maxMacroGrams = decimal.New(999999, -2)

// validateMealFields checks each non-nil field and returns a client message,
// or "" when valid. Macros must already be rounded to two places.
func validateMealFields(mealType *store.MealType, name *string, calories *int, protein, carbs, fat *decimal.Decimal, mealTime *string) string {
	if mealType != nil && !mealType.Valid() {
		return "meal_type must be one of: " + mealTypeChoices
	}
	if name != nil && strings.TrimSpace(*name) == "" {
		return "name is required"
	}
	if calories != nil && (*calories <= 0 || *calories > maxMealCalories) {
		return fmt.Sprintf("calories must be between 1 and %d", maxMealCalories)
	}
	for _, m := range []struct {
		field string
		v     *decimal.Decimal
	}{{"protein", protein}, {"carbs", carbs}, {"fat", fat}} {
		if m.v != nil && (!m.v.IsPositive() || m.v.GreaterThan(maxMacroGrams)) {
			return m.field + " must be between 0.01 and " + maxMacroGrams.StringFixed(2)
		}
	}
	if mealTime != nil {
		if _, err := time.Parse("15:04", *mealTime); err != nil || len(*mealTime) != len("15:04") {
			return "invalid meal_time, expected HH:MM"
		}
	}
	return ""
}

func round2(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	r := d.Round(2)
	return &r
}
