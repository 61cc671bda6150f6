// Package tracking keeps each day's daily_tracking row equal to the sum of
// that day's meals.
package tracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lg/macrotrack-api/internal/store"
)

// ErrUnavailable wraps any persistence failure during a recompute. Callers
// may retry.
var ErrUnavailable = errors.New("tracking unavailable")

// Totals are a day's summed intake.
type Totals struct {
	Calories  int
	Protein   decimal.Decimal
	Carbs     decimal.Decimal
	Fat       decimal.Decimal
	MealCount int
}

// Sum adds up meals. An empty slice yields zero totals.
func Sum(meals []store.Meal) Totals {
	t := Totals{Protein: decimal.Zero, Carbs: decimal.Zero, Fat: decimal.Zero}
	for _, m := range meals {
		t.Calories += m.Calories
		t.Protein = t.Protein.Add(m.Protein)
		t.Carbs = t.Carbs.Add(m.Carbs)
		t.Fat = t.Fat.Add(m.Fat)
		t.MealCount++
	}
	return t
}

// dayLocker is the part of store.Store the aggregator needs.
type dayLocker interface {
	WithinDay(ctx context.Context, userID int, date store.DateOnly, fn store.DayFunc) error
}

// Aggregator rebuilds daily_tracking rows from a day's meals.
type Aggregator struct {
	store dayLocker
	log   *zap.Logger
}

// New returns an Aggregator over s.
func New(s dayLocker, log *zap.Logger) *Aggregator {
	return &Aggregator{store: s, log: log}
}

// Recompute re-sums every meal on date and upserts the result. It holds the
// store's per-day critical section throughout, so two concurrent recomputes
// of the same day cannot interleave their read and write.
func (a *Aggregator) Recompute(ctx context.Context, userID int, date store.DateOnly) (store.DailyTracking, error) {
	var row store.DailyTracking
	err := a.store.WithinDay(ctx, userID, date, func(ctx context.Context, s store.DayStore) error {
		meals, err := s.GetMealsByDate(ctx, userID, date)
		if err != nil {
			return fmt.Errorf("get meals: %w", err)
		}
		totals := Sum(meals)
		row, err = s.UpsertDailyTracking(ctx, store.DailyTracking{
			UserID:        userID,
			TrackingDate:  date,
			TotalCalories: totals.Calories,
			TotalProtein:  totals.Protein,
			TotalCarbs:    totals.Carbs,
			TotalFat:      totals.Fat,
			MealCount:     totals.MealCount,
		})
		if err != nil {
			return fmt.Errorf("upsert tracking: %w", err)
		}
		return nil
	})
	if err != nil {
		a.log.Error("recompute failed",
			zap.Int("user_id", userID), zap.String("date", date.String()), zap.Error(err))
		return store.DailyTracking{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return row, nil
}
