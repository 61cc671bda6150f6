// Package store is the persistence boundary: users, profiles, meals, daily
// tracking and coaching logs, backed by Postgres (pgx) or SQLite.
package store

import (
	"context"
	"errors"

	"lg/macrotrack-api/internal/macro"
)

// ErrNotFound is returned when an update or delete matches no row owned by
// the user.
var ErrNotFound = errors.New("not found")

// Store is implemented by Postgres and SQLite.
type Store interface {
	UpsertUser(ctx context.Context, openID string, email, name *string) (User, error)

	GetUserProfile(ctx context.Context, userID int) (*UserProfile, error)
	CreateUserProfile(ctx context.Context, p UserProfile) (UserProfile, error)
	UpdateUserProfile(ctx context.Context, p UserProfile) (UserProfile, error)

	GetMealsByDate(ctx context.Context, userID int, date DateOnly) ([]Meal, error)
	GetMeal(ctx context.Context, userID, mealID int) (Meal, error)
	CreateMeal(ctx context.Context, m Meal) (Meal, error)
	UpdateMeal(ctx context.Context, userID, mealID int, patch MealPatch) (Meal, error)
	DeleteMeal(ctx context.Context, userID, mealID int) (DateOnly, error)

	GetDailyTracking(ctx context.Context, userID int, date DateOnly) (*DailyTracking, error)
	GetDailyTrackingRange(ctx context.Context, userID int, start, end DateOnly) ([]DailyTracking, error)
	UpsertDailyTracking(ctx context.Context, t DailyTracking) (DailyTracking, error)
	WithinDay(ctx context.Context, userID int, date DateOnly, fn DayFunc) error

	GetCoachingLogs(ctx context.Context, userID int, date DateOnly) ([]CoachingLog, error)
	CreateCoachingLogsIfAbsent(ctx context.Context, userID int, date DateOnly, tips []macro.Tip) ([]CoachingLog, bool, error)

	Ping(ctx context.Context) error
	Close()
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*SQLite)(nil)
)

// DayStore is the subset of queries available inside a per-day critical
// section.
type DayStore interface {
	GetMealsByDate(ctx context.Context, userID int, date DateOnly) ([]Meal, error)
	UpsertDailyTracking(ctx context.Context, t DailyTracking) (DailyTracking, error)
}

// DayFunc runs inside WithinDay.
type DayFunc func(ctx context.Context, s DayStore) error

// NewCoachingLogs converts tips into unsaved log rows for (userID, date).
// Unknown categories are stored as general.
func NewCoachingLogs(userID int, date DateOnly, tips []macro.Tip) []CoachingLog {
	logs := make([]CoachingLog, len(tips))
	for i, tip := range tips {
		category := tip.Category
		if !category.Valid() {
			category = macro.CategoryGeneral
		}
		logs[i] = CoachingLog{UserID: userID, CoachingDate: date, Tip: tip.Tip, Category: category}
	}
	return logs
}

// dayLockKey packs a date into the second advisory-lock key.
func dayLockKey(d DateOnly) int32 {
	return int32(d.Year()*10000 + int(d.Month())*100 + d.Day())
}
