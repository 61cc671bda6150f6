package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"lg/macrotrack-api/internal/macro"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is the production store, backed by a pgx connection pool.
type Postgres struct {
	pgQueries
	pool *pgxpool.Pool
}

// pgQueries runs every statement against q, which is the pool or an open
// transaction.
type pgQueries struct {
	q   querier
	log *zap.Logger
}

// NewPostgres creates a connection pool. A pool (not a single conn) survives
// the provider closing idle connections.
func NewPostgres(ctx context.Context, url string, log *zap.Logger) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Simple protocol avoids "cached plan must not change result type" after
	// schema changes on poolers with server-side statement caches.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pgQueries: pgQueries{q: pool, log: log}, pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

/* ─── Query helpers ──────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Logs query and scan errors (e.g. struct/column mismatches) but not
// pgx.ErrNoRows, which callers treat as absence.
func queryOne[T any](ctx context.Context, q pgQueries, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := q.q.Query(ctx, sql, args)
	if err != nil {
		q.log.Error("query failed", zap.String("op", "queryOne"), zap.Error(err))
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		q.log.Error("scan failed", zap.String("op", "queryOne"), zap.Error(err))
	}
	return result, err
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](ctx context.Context, q pgQueries, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := q.q.Query(ctx, sql, args)
	if err != nil {
		q.log.Error("query failed", zap.String("op", "queryMany"), zap.Error(err))
		return nil, err
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		q.log.Error("scan failed", zap.String("op", "queryMany"), zap.Error(err))
	}
	return results, err
}

// optional maps pgx.ErrNoRows to (nil, nil).
func optional[T any](v T, err error) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// required maps pgx.ErrNoRows to ErrNotFound.
func required[T any](v T, err error) (T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return v, ErrNotFound
	}
	return v, err
}

const (
	userColumns     = `id, open_id, email, name, created_at, last_signed_in`
	profileColumns  = `id, user_id, goal, age, gender, height, weight, activity_level, target_calories, target_protein, target_carbs, target_fat, timezone, onboarding_complete, created_at, updated_at`
	mealColumns     = `id, user_id, meal_type, name, description, calories, protein, carbs, fat, image_url, ai_estimated, meal_date, meal_time, created_at, updated_at`
	trackingColumns = `id, user_id, tracking_date, total_calories, total_protein, total_carbs, total_fat, meal_count, created_at, updated_at`
	coachingColumns = `id, user_id, coaching_date, tip, category, created_at`
)

/* ─── Users ──────────────────────────────────────────────────────────── */

// UpsertUser creates the user for openID on first sight and refreshes
// last_signed_in afterwards. Nil email or name keep the stored value.
func (s pgQueries) UpsertUser(ctx context.Context, openID string, email, name *string) (User, error) {
	return queryOne[User](ctx, s,
		`INSERT INTO users (open_id, email, name, last_signed_in)
		 VALUES (@openID, @email, @name, now())
		 ON CONFLICT (open_id) DO UPDATE SET
			email = COALESCE(EXCLUDED.email, users.email),
			name = COALESCE(EXCLUDED.name, users.name),
			last_signed_in = now()
		 RETURNING `+userColumns,
		pgx.NamedArgs{"openID": openID, "email": email, "name": name})
}

/* ─── Profiles ───────────────────────────────────────────────────────── */

// GetUserProfile returns nil, nil when the user has no profile.
func (s pgQueries) GetUserProfile(ctx context.Context, userID int) (*UserProfile, error) {
	return optional(queryOne[UserProfile](ctx, s,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = @userID`,
		pgx.NamedArgs{"userID": userID}))
}

func (s pgQueries) CreateUserProfile(ctx context.Context, p UserProfile) (UserProfile, error) {
	return queryOne[UserProfile](ctx, s,
		`INSERT INTO user_profiles (user_id, goal, age, gender, height, weight, activity_level,
			target_calories, target_protein, target_carbs, target_fat, timezone, onboarding_complete)
		 VALUES (@userID, @goal, @age, @gender, @height, @weight, @activityLevel,
			@targetCalories, @targetProtein, @targetCarbs, @targetFat, @timezone, @onboardingComplete)
		 RETURNING `+profileColumns,
		profileArgs(p))
}

// UpdateUserProfile overwrites every mutable column with p's values.
func (s pgQueries) UpdateUserProfile(ctx context.Context, p UserProfile) (UserProfile, error) {
	return required(queryOne[UserProfile](ctx, s,
		`UPDATE user_profiles SET
			goal = @goal, age = @age, gender = @gender, height = @height, weight = @weight,
			activity_level = @activityLevel, target_calories = @targetCalories,
			target_protein = @targetProtein, target_carbs = @targetCarbs, target_fat = @targetFat,
			timezone = @timezone, onboarding_complete = @onboardingComplete, updated_at = now()
		 WHERE user_id = @userID
		 RETURNING `+profileColumns,
		profileArgs(p)))
}

func profileArgs(p UserProfile) pgx.NamedArgs {
	return pgx.NamedArgs{
		"userID": p.UserID, "goal": p.Goal, "age": p.Age, "gender": p.Gender,
		"height": p.Height, "weight": p.Weight, "activityLevel": p.ActivityLevel,
		"targetCalories": p.TargetCalories, "targetProtein": p.TargetProtein,
		"targetCarbs": p.TargetCarbs, "targetFat": p.TargetFat,
		"timezone": p.Timezone, "onboardingComplete": p.OnboardingComplete,
	}
}

/* ─── Meals ──────────────────────────────────────────────────────────── */

func (s pgQueries) GetMealsByDate(ctx context.Context, userID int, date DateOnly) ([]Meal, error) {
	meals, err := queryMany[Meal](ctx, s,
		`SELECT `+mealColumns+` FROM meals
		 WHERE user_id = @userID AND meal_date = @date
		 ORDER BY meal_time NULLS LAST, created_at, id`,
		pgx.NamedArgs{"userID": userID, "date": date.String()})
	if err != nil {
		return nil, err
	}
	if meals == nil {
		meals = []Meal{}
	}
	return meals, nil
}

func (s pgQueries) GetMeal(ctx context.Context, userID, mealID int) (Meal, error) {
	return required(queryOne[Meal](ctx, s,
		`SELECT `+mealColumns+` FROM meals WHERE id = @id AND user_id = @userID`,
		pgx.NamedArgs{"id": mealID, "userID": userID}))
}

func (s pgQueries) CreateMeal(ctx context.Context, m Meal) (Meal, error) {
	return queryOne[Meal](ctx, s,
		`INSERT INTO meals (user_id, meal_type, name, description, calories, protein, carbs, fat,
			image_url, ai_estimated, meal_date, meal_time)
		 VALUES (@userID, @mealType, @name, @description, @calories, @protein, @carbs, @fat,
			@imageURL, @aiEstimated, @mealDate, @mealTime)
		 RETURNING `+mealColumns,
		pgx.NamedArgs{
			"userID": m.UserID, "mealType": m.MealType, "name": m.Name,
			"description": m.Description, "calories": m.Calories,
			"protein": m.Protein, "carbs": m.Carbs, "fat": m.Fat,
			"imageURL": m.ImageURL, "aiEstimated": m.AIEstimated,
			"mealDate": m.MealDate.String(), "mealTime": m.MealTime,
		})
}

// UpdateMeal applies the non-nil fields of patch. Uses COALESCE so omitted
// fields keep their current value; meal_date is never changed.
func (s pgQueries) UpdateMeal(ctx context.Context, userID, mealID int, patch MealPatch) (Meal, error) {
	return required(queryOne[Meal](ctx, s,
		`UPDATE meals SET
			meal_type = COALESCE(@mealType, meal_type),
			name = COALESCE(@name, name),
			description = COALESCE(@description, description),
			calories = COALESCE(@calories, calories),
			protein = COALESCE(@protein, protein),
			carbs = COALESCE(@carbs, carbs),
			fat = COALESCE(@fat, fat),
			meal_time = COALESCE(@mealTime, meal_time),
			updated_at = now()
		 WHERE id = @id AND user_id = @userID
		 RETURNING `+mealColumns,
		pgx.NamedArgs{
			"id": mealID, "userID": userID,
			"mealType": patch.MealType, "name": patch.Name, "description": patch.Description,
			"calories": patch.Calories, "protein": patch.Protein, "carbs": patch.Carbs,
			"fat": patch.Fat, "mealTime": patch.MealTime,
		}))
}

// DeleteMeal removes the meal and returns its date so the day can be
// recomputed.
func (s pgQueries) DeleteMeal(ctx context.Context, userID, mealID int) (DateOnly, error) {
	var date DateOnly
	rows, err := s.q.Query(ctx,
		`DELETE FROM meals WHERE id = @id AND user_id = @userID RETURNING meal_date`,
		pgx.NamedArgs{"id": mealID, "userID": userID})
	if err != nil {
		return date, err
	}
	date, err = pgx.CollectOneRow(rows, pgx.RowTo[DateOnly])
	if errors.Is(err, pgx.ErrNoRows) {
		return date, ErrNotFound
	}
	return date, err
}

/* ─── Daily tracking ─────────────────────────────────────────────────── */

// GetDailyTracking returns nil, nil when nothing has been logged that day.
func (s pgQueries) GetDailyTracking(ctx context.Context, userID int, date DateOnly) (*DailyTracking, error) {
	return optional(queryOne[DailyTracking](ctx, s,
		`SELECT `+trackingColumns+` FROM daily_tracking
		 WHERE user_id = @userID AND tracking_date = @date`,
		pgx.NamedArgs{"userID": userID, "date": date.String()}))
}

// GetDailyTrackingRange returns stored rows in [start, end], oldest first.
// Days without a row are not filled in.
func (s pgQueries) GetDailyTrackingRange(ctx context.Context, userID int, start, end DateOnly) ([]DailyTracking, error) {
	rows, err := queryMany[DailyTracking](ctx, s,
		`SELECT `+trackingColumns+` FROM daily_tracking
		 WHERE user_id = @userID AND tracking_date >= @start AND tracking_date <= @end
		 ORDER BY tracking_date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start.String(), "end": end.String()})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []DailyTracking{}
	}
	return rows, nil
}

// UpsertDailyTracking writes t's totals. The UNIQUE(user_id, tracking_date)
// constraint means an existing day is updated in place.
func (s pgQueries) UpsertDailyTracking(ctx context.Context, t DailyTracking) (DailyTracking, error) {
	return queryOne[DailyTracking](ctx, s,
		`INSERT INTO daily_tracking (user_id, tracking_date, total_calories, total_protein, total_carbs, total_fat, meal_count)
		 VALUES (@userID, @date, @calories, @protein, @carbs, @fat, @mealCount)
		 ON CONFLICT (user_id, tracking_date) DO UPDATE SET
			total_calories = EXCLUDED.total_calories,
			total_protein  = EXCLUDED.total_protein,
			total_carbs    = EXCLUDED.total_carbs,
			total_fat      = EXCLUDED.total_fat,
			meal_count     = EXCLUDED.meal_count,
			updated_at     = now()
		 RETURNING `+trackingColumns,
		pgx.NamedArgs{
			"userID": t.UserID, "date": t.TrackingDate.String(),
			"calories": t.TotalCalories, "protein": t.TotalProtein,
			"carbs": t.TotalCarbs, "fat": t.TotalFat, "mealCount": t.MealCount,
		})
}

// WithinDay runs fn in a transaction holding an advisory lock on
// (userID, date), so concurrent recomputes of the same day serialize.
func (p *Postgres) WithinDay(ctx context.Context, userID int, date DateOnly, fn DayFunc) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, int32(userID), dayLockKey(date)); err != nil {
			return fmt.Errorf("lock day: %w", err)
		}
		return fn(ctx, pgQueries{q: tx, log: p.log})
	})
}

/* ─── Coaching ───────────────────────────────────────────────────────── */

func (s pgQueries) GetCoachingLogs(ctx context.Context, userID int, date DateOnly) ([]CoachingLog, error) {
	logs, err := queryMany[CoachingLog](ctx, s,
		`SELECT `+coachingColumns+` FROM coaching_logs
		 WHERE user_id = @userID AND coaching_date = @date
		 ORDER BY id`,
		pgx.NamedArgs{"userID": userID, "date": date.String()})
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []CoachingLog{}
	}
	return logs, nil
}

// CreateCoachingLogsIfAbsent inserts tips for (userID, date) unless that day
// already has logs, then returns the day's logs. created reports whether
// this call inserted them. The coaching_days claim row makes the check and
// the insert one conditional write: a concurrent second caller blocks on the
// unique index and then sees the first caller's rows.
func (p *Postgres) CreateCoachingLogsIfAbsent(ctx context.Context, userID int, date DateOnly, tips []macro.Tip) (logs []CoachingLog, created bool, err error) {
	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		q := pgQueries{q: tx, log: p.log}
		tag, err := tx.Exec(ctx,
			`INSERT INTO coaching_days (user_id, coaching_date) VALUES (@userID, @date)
			 ON CONFLICT (user_id, coaching_date) DO NOTHING`,
			pgx.NamedArgs{"userID": userID, "date": date.String()})
		if err != nil {
			return fmt.Errorf("claim coaching day: %w", err)
		}
		if tag.RowsAffected() == 1 {
			created = true
			for _, l := range NewCoachingLogs(userID, date, tips) {
				if _, err := tx.Exec(ctx,
					`INSERT INTO coaching_logs (user_id, coaching_date, tip, category)
					 VALUES (@userID, @date, @tip, @category)`,
					pgx.NamedArgs{"userID": l.UserID, "date": date.String(), "tip": l.Tip, "category": l.Category}); err != nil {
					return fmt.Errorf("insert coaching log: %w", err)
				}
			}
		}
		logs, err = q.GetCoachingLogs(ctx, userID, date)
		return err
	})
	return logs, created, err
}
