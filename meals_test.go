package main

import (
	"fmt"
	"net/http"
	"testing"

	"lg/macrotrack-api/internal/store"
)

const (
	breakfastBody = `{"meal_type":"breakfast","name":"Oats","calories":500,"protein":30,"carbs":50,"fat":15,"meal_time":"08:00"}`
	lunchBody     = `{"meal_type":"lunch","name":"Chicken bowl","calories":700,"protein":40,"carbs":60,"fat":25,"meal_time":"12:30"}`
)

func createMeal(t *testing.T, env *testEnv, token, body string) mealResponse {
	t.Helper()
	w := env.do("POST", "/api/meals", token, body)
	expectStatus(t, w, http.StatusCreated)
	return decode[mealResponse](t, w)
}

func TestMeals_CreateUpdatesTracking(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, "alice")

	first := createMeal(t, env, token, breakfastBody)
	if first.Meal == nil || first.Meal.ID == 0 {
		t.Fatal("expected created meal")
	}
	if first.Meal.MealDate.String() != "2026-03-10" {
		t.Errorf("expected meal_date defaulted to 2026-03-10, got %s", first.Meal.MealDate)
	}
	if first.Tracking.TotalCalories != 500 || first.Tracking.MealCount != 1 {
		t.Errorf("expected 500 kcal / 1 meal, got %d / %d", first.Tracking.TotalCalories, first.Tracking.MealCount)
	}

	second := createMeal(t, env, token, lunchBody)
	tr := second.Tracking
	if tr.TotalCalories != 1200 || tr.MealCount != 2 {
		t.Errorf("expected 1200 kcal / 2 meals, got %d / %d", tr.TotalCalories, tr.MealCount)
	}
	if tr.TotalProtein.String() != "70" || tr.TotalCarbs.String() != "110" || tr.TotalFat.String() != "40" {
		t.Errorf("unexpected macro totals %s/%s/%s", tr.TotalProtein, tr.TotalCarbs, tr.TotalFat)
	}

	w := env.do("GET", "/api/meals/today", token, "")
	expectStatus(t, w, http.StatusOK)
	meals := decode[[]store.Meal](t, w)
	if len(meals) != 2 || meals[0].Name != "Oats" || meals[1].Name != "Chicken bowl" {
		t.Errorf("expected [Oats, Chicken bowl], got %+v", meals)
	}
}

func TestMeals_DefaultDateUsesProfileTimezone(t *testing.T) {
	env := newTestEnv(t)
	u := env.userFor(t, "alice")
	env.seedProfile(t, u.ID, "Asia/Tokyo")
	token := tokenFor(t, "alice")

	resp := createMeal(t, env, token, breakfastBody)
	if got := resp.Meal.MealDate.String(); got != "2026-03-11" {
		t.Errorf("expected Tokyo date 2026-03-11, got %s", got)
	}

	// ?date is ignored on /today.
	w := env.do("GET", "/api/meals/today?date=2026-03-10", token, "")
	expectStatus(t, w, http.StatusOK)
	if meals := decode[[]store.Meal](t, w); len(meals) != 1 {
		t.Errorf("expected 1 meal today, got %d", len(meals))
	}
	w = env.do("GET", "/api/meals?date=2026-03-10", token, "")
	expectStatus(t, w, http.StatusOK)
	if meals := decode[[]store.Meal](t, w); len(meals) != 0 {
		t.Errorf("expected no meals on 2026-03-10, got %d", len(meals))
	}
}

func TestMeals_ExplicitDate(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, "alice")

	resp := createMeal(t, env, token,
		`{"meal_type":"dinner","name":"Pasta","calories":800,"protein":25,"carbs":110,"fat":20,"meal_date":"2026-03-01","ai_estimated":true}`)
	if resp.Tracking.TrackingDate.String() != "2026-03-01" {
		t.Errorf("expected tracking for 2026-03-01, got %s", resp.Tracking.TrackingDate)
	}
	if !resp.Meal.AIEstimated {
		t.Error("expected ai_estimated")
	}
	if resp.Meal.MealTime != nil {
		t.Errorf("expected no meal_time, got %q", *resp.Meal.MealTime)
	}
}

func TestMeals_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, "alice")
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"bad meal type", `{"meal_type":"brunch","name":"x","calories":1,"protein":1,"carbs":1,"fat":1}`},
		{"blank name", `{"meal_type":"lunch","name":"  ","calories":1,"protein":1,"carbs":1,"fat":1}`},
		{"zero calories", `{"meal_type":"lunch","name":"x","calories":0,"protein":1,"carbs":1,"fat":1}`},
		{"zero protein", `{"meal_type":"lunch","name":"x","calories":1,"protein":0,"carbs":1,"fat":1}`},
		{"negative fat", `{"meal_type":"lunch","name":"x","calories":1,"protein":1,"carbs":1,"fat":-2}`},
		{"bad time", `{"meal_type":"lunch","name":"x","calories":1,"protein":1,"carbs":1,"fat":1,"meal_time":"25:00"}`},
		{"unpadded time", `{"meal_type":"lunch","name":"x","calories":1,"protein":1,"carbs":1,"fat":1,"meal_time":"9:05"}`},
		{"protein rounds to zero", `{"meal_type":"lunch","name":"x","calories":1,"protein":0.001,"carbs":1,"fat":1}`},
		{"fat rounds to zero", `{"meal_type":"lunch","name":"x","calories":1,"protein":1,"carbs":1,"fat":0.004}`},
		{"protein too large", `{"meal_type":"lunch","name":"x","calories":1,"protein":10000,"carbs":1,"fat":1}`},
		{"carbs round past limit", `{"meal_type":"lunch","name":"x","calories":1,"protein":1,"carbs":9999.996,"fat":1}`},
		{"calories too large", `{"meal_type":"lunch","name":"x","calories":3000000000,"protein":1,"carbs":1,"fat":1}`},
		{"bad date", `{"meal_type":"lunch","name":"x","calories":1,"protein":1,"carbs":1,"fat":1,"meal_date":"03/10/2026"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expectStatus(t, env.do("POST", "/api/meals", token, tc.body), http.StatusBadRequest)
		})
	}

	expectStatus(t, env.do("GET", "/api/meals?date=yesterday", token, ""), http.StatusBadRequest)

	w := env.do("GET", "/api/meals/today", token, "")
	if meals := decode[[]store.Meal](t, w); len(meals) != 0 {
		t.Errorf("expected no meals stored, got %+v", meals)
	}
}

func TestMeals_MacrosRoundedBeforeValidation(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, "alice")

	resp := createMeal(t, env, token,
		`{"meal_type":"snack","name":"Gum","calories":5,"protein":0.005,"carbs":9999.994,"fat":1.234,"meal_time":"09:05"}`)
	m := resp.Meal
	if m.Protein.String() != "0.01" || m.Carbs.String() != "9999.99" || m.Fat.String() != "1.23" {
		t.Errorf("expected 0.01/9999.99/1.23, got %s/%s/%s", m.Protein, m.Carbs, m.Fat)
	}
	if m.MealTime == nil || *m.MealTime != "09:05" {
		t.Errorf("expected meal_time 09:05, got %v", m.MealTime)
	}

	path := fmt.Sprintf("/api/meals/%d", m.ID)
	expectStatus(t, env.do("PUT", path, token, `{"protein":0.001}`), http.StatusBadRequest)
	expectStatus(t, env.do("PUT", path, token, `{"fat":10000}`), http.StatusBadRequest)
	expectStatus(t, env.do("PUT", path, token, `{"calories":100001}`), http.StatusBadRequest)
	expectStatus(t, env.do("PUT", path, token, `{"meal_time":"9:05"}`), http.StatusBadRequest)

	w := env.do("PUT", path, token, `{"protein":2.499}`)
	expectStatus(t, w, http.StatusOK)
	if got := decode[mealResponse](t, w).Meal.Protein.String(); got != "2.5" {
		t.Errorf("expected protein 2.5, got %s", got)
	}
}

func TestMeals_UpdateRecomputes(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, "alice")
	first := createMeal(t, env, token, breakfastBody)
	createMeal(t, env, token, lunchBody)

	w := env.do("PUT", fmt.Sprintf("/api/meals/%d", first.Meal.ID), token, `{"calories":800,"protein":45.5}`)
	expectStatus(t, w, http.StatusOK)
	resp := decode[mealResponse](t, w)

	if resp.Meal.Calories != 800 || resp.Meal.Name != "Oats" {
		t.Errorf("expected Oats at 800 kcal, got %s at %d", resp.Meal.Name, resp.Meal.Calories)
	}
	if resp.Tracking.TotalCalories != 1500 || resp.Tracking.MealCount != 2 {
		t.Errorf("expected 1500 kcal / 2 meals, got %d / %d", resp.Tracking.TotalCalories, resp.Tracking.MealCount)
	}
	if resp.Tracking.TotalProtein.String() != "85.5" {
		t.Errorf("expected protein 85.5, got %s", resp.Tracking.TotalProtein)
	}
}

func TestMeals_UpdateErrors(t *testing.T) {
	env := newTestEnv(t)
	alice := tokenFor(t, "alice")
	meal := createMeal(t, env, alice, breakfastBody).Meal
	path := fmt.Sprintf("/api/meals/%d", meal.ID)

	expectStatus(t, env.do("PUT", "/api/meals/abc", alice, `{"calories":1}`), http.StatusBadRequest)
	expectStatus(t, env.do("PUT", path, alice, `{}`), http.StatusBadRequest)
	expectStatus(t, env.do("PUT", path, alice, `{"calories":-5}`), http.StatusBadRequest)
	expectStatus(t, env.do("PUT", path, alice, `{"meal_time":"noon"}`), http.StatusBadRequest)
	expectStatus(t, env.do("PUT", "/api/meals/9999", alice, `{"calories":1}`), http.StatusNotFound)

	// Another user's meal is not found.
	expectStatus(t, env.do("PUT", path, tokenFor(t, "bob"), `{"calories":1}`), http.StatusNotFound)
	expectStatus(t, env.do("DELETE", path, tokenFor(t, "bob"), ""), http.StatusNotFound)
}

func TestMeals_DeleteRecomputes(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, "alice")
	first := createMeal(t, env, token, breakfastBody)
	second := createMeal(t, env, token, lunchBody)

	w := env.do("DELETE", fmt.Sprintf("/api/meals/%d", first.Meal.ID), token, "")
	expectStatus(t, w, http.StatusOK)
	resp := decode[mealResponse](t, w)
	if resp.Meal != nil {
		t.Error("expected no meal in delete response")
	}
	if resp.Tracking.TotalCalories != 700 || resp.Tracking.MealCount != 1 {
		t.Errorf("expected 700 kcal / 1 meal, got %d / %d", resp.Tracking.TotalCalories, resp.Tracking.MealCount)
	}

	w = env.do("DELETE", fmt.Sprintf("/api/meals/%d", second.Meal.ID), token, "")
	expectStatus(t, w, http.StatusOK)
	resp = decode[mealResponse](t, w)
	if resp.Tracking.TotalCalories != 0 || resp.Tracking.MealCount != 0 || !resp.Tracking.TotalFat.IsZero() {
		t.Errorf("expected zeroed tracking, got %+v", resp.Tracking)
	}

	expectStatus(t, env.do("DELETE", fmt.Sprintf("/api/meals/%d", second.Meal.ID), token, ""), http.StatusNotFound)
}
