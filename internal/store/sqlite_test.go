package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lg/macrotrack-api/internal/macro"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func testUser(t *testing.T, s *SQLite, openID string) User {
	t.Helper()
	u, err := s.UpsertUser(context.Background(), openID, nil, nil)
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return u
}

func mustDate(t *testing.T, s string) DateOnly {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func testMeal(userID int, date DateOnly, name string, calories int) Meal {
	return Meal{
		UserID:   userID,
		MealType: MealLunch,
		Name:     name,
		Calories: calories,
		Protein:  decimal.RequireFromString("30.5"),
		Carbs:    decimal.NewFromInt(40),
		Fat:      decimal.NewFromInt(10),
		MealDate: date,
	}
}

func TestUpsertUser_SameOpenID(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	email := "a@example.com"

	first, err := s.UpsertUser(ctx, "sub-1", &email, nil)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := s.UpsertUser(ctx, "sub-1", nil, nil)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("IDs differ: %d vs %d", first.ID, second.ID)
	}
	if second.Email == nil || *second.Email != email {
		t.Errorf("email = %v, want kept %q", second.Email, email)
	}
	if second.LastSignedIn == nil {
		t.Error("last_signed_in not set")
	}
}

func TestUserProfile_CreateGetUpdate(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	u := testUser(t, s, "sub-1")

	got, err := s.GetUserProfile(ctx, u.ID)
	if err != nil || got != nil {
		t.Fatalf("GetUserProfile before create = %v, %v; want nil, nil", got, err)
	}

	age := 25
	gender := macro.GenderMale
	level := macro.ActivityModerate
	p := UserProfile{
		UserID:        u.ID,
		Goal:          macro.GoalLean,
		Age:           &age,
		Gender:        &gender,
		Height:        decimal.NewNullDecimal(decimal.NewFromInt(180)),
		Weight:        decimal.NewNullDecimal(decimal.NewFromInt(75)),
		ActivityLevel: &level,
		Timezone:      "UTC",
	}
	p.SetTargets(macro.Targets{Calories: 2520, Protein: 202, Carbs: 265, Fat: 73})

	created, err := s.CreateUserProfile(ctx, p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.TargetCalories == nil || *created.TargetCalories != 2520 {
		t.Errorf("target_calories = %v, want 2520", created.TargetCalories)
	}
	if !created.TargetProtein.Valid || !created.TargetProtein.Decimal.Equal(decimal.NewFromInt(202)) {
		t.Errorf("target_protein = %v, want 202", created.TargetProtein)
	}
	if created.Gender == nil || *created.Gender != macro.GenderMale {
		t.Errorf("gender = %v", created.Gender)
	}

	created.Goal = macro.GoalBulk
	created.OnboardingComplete = true
	updated, err := s.UpdateUserProfile(ctx, created)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Goal != macro.GoalBulk || !updated.OnboardingComplete {
		t.Errorf("update not applied: %+v", updated)
	}

	if _, err := s.UpdateUserProfile(ctx, UserProfile{UserID: u.ID + 100, Goal: macro.GoalLean, Timezone: "UTC"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing profile: err = %v, want ErrNotFound", err)
	}
}

func TestMeals_CRUD(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	u := testUser(t, s, "sub-1")
	other := testUser(t, s, "sub-2")
	day := mustDate(t, "2024-03-10")

	m, err := s.CreateMeal(ctx, testMeal(u.ID, day, "Chicken bowl", 500))
	if err != nil {
		t.Fatalf("create meal: %v", err)
	}
	if !m.Protein.Equal(decimal.RequireFromString("30.5")) {
		t.Errorf("protein = %s, want 30.5", m.Protein)
	}
	if m.MealDate.String() != "2024-03-10" {
		t.Errorf("meal_date = %s", m.MealDate)
	}

	name := "Big chicken bowl"
	cal := 650
	patched, err := s.UpdateMeal(ctx, u.ID, m.ID, MealPatch{Name: &name, Calories: &cal})
	if err != nil {
		t.Fatalf("update meal: %v", err)
	}
	if patched.Name != name || patched.Calories != cal {
		t.Errorf("patch not applied: %+v", patched)
	}
	if !patched.Carbs.Equal(decimal.NewFromInt(40)) || patched.MealType != MealLunch {
		t.Errorf("omitted fields changed: %+v", patched)
	}

	if _, err := s.GetMeal(ctx, other.ID, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("other user GetMeal: err = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateMeal(ctx, other.ID, m.ID, MealPatch{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Errorf("other user UpdateMeal: err = %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteMeal(ctx, other.ID, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("other user DeleteMeal: err = %v, want ErrNotFound", err)
	}

	date, err := s.DeleteMeal(ctx, u.ID, m.ID)
	if err != nil {
		t.Fatalf("delete meal: %v", err)
	}
	if date.String() != "2024-03-10" {
		t.Errorf("deleted meal date = %s", date)
	}
	meals, err := s.GetMealsByDate(ctx, u.ID, day)
	if err != nil {
		t.Fatalf("get meals: %v", err)
	}
	if meals == nil || len(meals) != 0 {
		t.Errorf("meals = %v, want empty non-nil slice", meals)
	}
}

func TestGetMealsByDate_FiltersByDayAndUser(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	u := testUser(t, s, "sub-1")
	other := testUser(t, s, "sub-2")
	day := mustDate(t, "2024-03-10")

	for _, m := range []Meal{
		testMeal(u.ID, day, "lunch", 500),
		testMeal(u.ID, day, "dinner", 700),
		testMeal(u.ID, mustDate(t, "2024-03-11"), "next day", 300),
		testMeal(other.ID, day, "someone else", 900),
	} {
		if _, err := s.CreateMeal(ctx, m); err != nil {
			t.Fatalf("create meal: %v", err)
		}
	}

	meals, err := s.GetMealsByDate(ctx, u.ID, day)
	if err != nil {
		t.Fatalf("get meals: %v", err)
	}
	if len(meals) != 2 {
		t.Fatalf("got %d meals, want 2", len(meals))
	}
	if meals[0].Name != "lunch" || meals[1].Name != "dinner" {
		t.Errorf("order = %s, %s", meals[0].Name, meals[1].Name)
	}
}

func TestUpsertDailyTracking_OneRowPerDay(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	u := testUser(t, s, "sub-1")
	day := mustDate(t, "2024-03-10")

	first, err := s.UpsertDailyTracking(ctx, DailyTracking{
		UserID: u.ID, TrackingDate: day, TotalCalories: 500,
		TotalProtein: decimal.NewFromInt(30), TotalCarbs: decimal.NewFromInt(40), TotalFat: decimal.NewFromInt(10),
		MealCount: 1,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := s.UpsertDailyTracking(ctx, DailyTracking{
		UserID: u.ID, TrackingDate: day, TotalCalories: 1200,
		TotalProtein: decimal.NewFromInt(70), TotalCarbs: decimal.NewFromInt(90), TotalFat: decimal.NewFromInt(35),
		MealCount: 2,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("upsert created a second row: %d vs %d", first.ID, second.ID)
	}

	got, err := s.GetDailyTracking(ctx, u.ID, day)
	if err != nil || got == nil {
		t.Fatalf("get tracking = %v, %v", got, err)
	}
	if got.TotalCalories != 1200 || got.MealCount != 2 || !got.TotalFat.Equal(decimal.NewFromInt(35)) {
		t.Errorf("tracking = %+v", got)
	}

	missing, err := s.GetDailyTracking(ctx, u.ID, mustDate(t, "2024-03-11"))
	if err != nil || missing != nil {
		t.Errorf("untracked day = %v, %v; want nil, nil", missing, err)
	}
}

func TestGetDailyTrackingRange(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	u := testUser(t, s, "sub-1")

	for _, d := range []string{"2024-03-12", "2024-03-09", "2024-03-10", "2024-03-20"} {
		if _, err := s.UpsertDailyTracking(ctx, DailyTracking{UserID: u.ID, TrackingDate: mustDate(t, d), TotalCalories: 100, MealCount: 1}); err != nil {
			t.Fatalf("upsert %s: %v", d, err)
		}
	}

	rows, err := s.GetDailyTrackingRange(ctx, u.ID, mustDate(t, "2024-03-10"), mustDate(t, "2024-03-16"))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	var got []string
	for _, r := range rows {
		got = append(got, r.TrackingDate.String())
	}
	if len(got) != 2 || got[0] != "2024-03-10" || got[1] != "2024-03-12" {
		t.Errorf("range dates = %v", got)
	}
}

func TestCreateCoachingLogsIfAbsent_OncePerDay(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	u := testUser(t, s, "sub-1")
	day := mustDate(t, "2024-03-10")

	tips := []macro.Tip{
		{Tip: "first", Category: macro.CategoryCalories},
		{Tip: "second", Category: macro.CategoryProtein},
	}
	logs, created, err := s.CreateCoachingLogsIfAbsent(ctx, u.ID, day, tips)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !created || len(logs) != 2 {
		t.Fatalf("first call: created=%v logs=%d, want true, 2", created, len(logs))
	}
	if logs[0].Tip != "first" || logs[1].Category != macro.CategoryProtein {
		t.Errorf("logs = %+v", logs)
	}

	again, created, err := s.CreateCoachingLogsIfAbsent(ctx, u.ID, day, []macro.Tip{{Tip: "other", Category: macro.CategoryGeneral}})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if created {
		t.Error("second call reported created")
	}
	if len(again) != 2 || again[0].ID != logs[0].ID {
		t.Errorf("second call logs = %+v, want the stored pair", again)
	}
}

func TestCreateCoachingLogsIfAbsent_UnknownCategoryStoredAsGeneral(t *testing.T) {
	s := openTestDB(t)
	u := testUser(t, s, "sub-1")

	// The table's category CHECK would reject "hydration".
	logs, created, err := s.CreateCoachingLogsIfAbsent(context.Background(), u.ID, mustDate(t, "2024-03-10"),
		[]macro.Tip{{Tip: "drink water", Category: macro.Category("hydration")}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created || len(logs) != 1 || logs[0].Category != macro.CategoryGeneral {
		t.Errorf("created=%v logs=%+v, want one general tip", created, logs)
	}
}

func TestWithinDay_RollsBackOnError(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	u := testUser(t, s, "sub-1")
	day := mustDate(t, "2024-03-10")
	boom := errors.New("boom")

	err := s.WithinDay(ctx, u.ID, day, func(ctx context.Context, ds DayStore) error {
		if _, err := ds.UpsertDailyTracking(ctx, DailyTracking{UserID: u.ID, TrackingDate: day, TotalCalories: 10}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	got, err := s.GetDailyTracking(ctx, u.ID, day)
	if err != nil || got != nil {
		t.Errorf("tracking after rollback = %v, %v; want nil", got, err)
	}
}

func TestDateOf_UsesLocalCalendarDate(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2026-03-10 20:00 UTC is already the 11th in Tokyo.
	d := DateOf(time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC).In(tokyo))
	if d.String() != "2026-03-11" {
		t.Errorf("expected 2026-03-11, got %s", d)
	}
	if d.Location() != time.UTC || d.Hour() != 0 {
		t.Errorf("expected UTC midnight, got %v", d.Time)
	}
}
