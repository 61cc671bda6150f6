package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lg/macrotrack-api/internal/store"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSum(t *testing.T) {
	cases := []struct {
		name  string
		meals []store.Meal
		want  Totals
	}{
		{"empty", nil, Totals{Protein: decimal.Zero, Carbs: decimal.Zero, Fat: decimal.Zero}},
		{
			"two meals",
			[]store.Meal{
				{Calories: 500, Protein: dec("30.5"), Carbs: dec("40"), Fat: dec("10.25")},
				{Calories: 700, Protein: dec("40"), Carbs: dec("60.1"), Fat: dec("25")},
			},
			Totals{Calories: 1200, Protein: dec("70.5"), Carbs: dec("100.1"), Fat: dec("35.25"), MealCount: 2},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Sum(tc.meals)
			if got.Calories != tc.want.Calories || got.MealCount != tc.want.MealCount ||
				!got.Protein.Equal(tc.want.Protein) || !got.Carbs.Equal(tc.want.Carbs) || !got.Fat.Equal(tc.want.Fat) {
				t.Errorf("Sum = %+v, want %+v", got, tc.want)
			}
		})
	}
}

// Decimal sums do not drift the way repeated float addition does.
func TestSum_NoFloatDrift(t *testing.T) {
	meals := make([]store.Meal, 10)
	for i := range meals {
		meals[i] = store.Meal{Calories: 10, Protein: dec("0.1"), Carbs: dec("0.1"), Fat: dec("0.1")}
	}
	if got := Sum(meals); !got.Protein.Equal(dec("1")) {
		t.Errorf("protein = %s, want 1", got.Protein)
	}
}

type fixture struct {
	db   *store.SQLite
	agg  *Aggregator
	user store.User
	day  store.DateOnly
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := store.OpenSQLite(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(db.Close)
	u, err := db.UpsertUser(context.Background(), "sub-1", nil, nil)
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	day, _ := store.ParseDate("2024-03-10")
	return fixture{db: db, agg: New(db, zap.NewNop()), user: u, day: day}
}

func (f fixture) addMeal(t *testing.T, calories int, protein, carbs, fat string) store.Meal {
	t.Helper()
	m, err := f.db.CreateMeal(context.Background(), store.Meal{
		UserID: f.user.ID, MealType: store.MealLunch, Name: "meal",
		Calories: calories, Protein: dec(protein), Carbs: dec(carbs), Fat: dec(fat),
		MealDate: f.day,
	})
	if err != nil {
		t.Fatalf("create meal: %v", err)
	}
	return m
}

// TestRecompute_TwoMeals: logging 500 and 700 kcal meals yields a single
// row for the day with 1200 kcal over 2 meals.
func TestRecompute_TwoMeals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addMeal(t, 500, "30", "40", "10")
	if _, err := f.agg.Recompute(ctx, f.user.ID, f.day); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	f.addMeal(t, 700, "40", "60", "25")
	row, err := f.agg.Recompute(ctx, f.user.ID, f.day)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if row.TotalCalories != 1200 || row.MealCount != 2 {
		t.Errorf("row = %d kcal / %d meals, want 1200 / 2", row.TotalCalories, row.MealCount)
	}
	if !row.TotalProtein.Equal(dec("70")) || !row.TotalCarbs.Equal(dec("100")) || !row.TotalFat.Equal(dec("35")) {
		t.Errorf("macros = %s/%s/%s", row.TotalProtein, row.TotalCarbs, row.TotalFat)
	}

	rows, err := f.db.GetDailyTrackingRange(ctx, f.user.ID, f.day, f.day)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d tracking rows for the day, want 1", len(rows))
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMeal(t, 500, "30", "40", "10")

	first, err := f.agg.Recompute(ctx, f.user.ID, f.day)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	second, err := f.agg.Recompute(ctx, f.user.ID, f.day)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if first.ID != second.ID || first.TotalCalories != second.TotalCalories || first.MealCount != second.MealCount {
		t.Errorf("recompute not idempotent: %+v vs %+v", first, second)
	}
}

func TestRecompute_AfterDeleteIsZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.addMeal(t, 500, "30", "40", "10")
	if _, err := f.agg.Recompute(ctx, f.user.ID, f.day); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	date, err := f.db.DeleteMeal(ctx, f.user.ID, m.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	row, err := f.agg.Recompute(ctx, f.user.ID, date)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if row.TotalCalories != 0 || row.MealCount != 0 || !row.TotalProtein.IsZero() {
		t.Errorf("row after delete = %+v, want zeros", row)
	}
}

// TestRecompute_Concurrent: recomputes racing with inserts still converge on
// the true sum once the last one finishes.
func TestRecompute_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.db.CreateMeal(ctx, store.Meal{
				UserID: f.user.ID, MealType: store.MealSnack, Name: "snack",
				Calories: 100, Protein: dec("1"), Carbs: dec("1"), Fat: dec("1"),
				MealDate: f.day,
			}); err != nil {
				t.Errorf("create meal: %v", err)
				return
			}
			if _, err := f.agg.Recompute(ctx, f.user.ID, f.day); err != nil {
				t.Errorf("recompute: %v", err)
			}
		}()
	}
	wg.Wait()

	row, err := f.agg.Recompute(ctx, f.user.ID, f.day)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if row.TotalCalories != 800 || row.MealCount != 8 {
		t.Errorf("row = %d kcal / %d meals, want 800 / 8", row.TotalCalories, row.MealCount)
	}
}

type failingStore struct{ err error }

func (s failingStore) WithinDay(ctx context.Context, userID int, date store.DateOnly, fn store.DayFunc) error {
	return s.err
}

func TestRecompute_WrapsErrUnavailable(t *testing.T) {
	cause := errors.New("connection reset")
	agg := New(failingStore{err: cause}, zap.NewNop())
	day, _ := store.ParseDate("2024-03-10")

	_, err := agg.Recompute(context.Background(), 1, day)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want cause preserved", err)
	}
}
