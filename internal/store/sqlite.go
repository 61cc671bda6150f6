package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"lg/macrotrack-api/internal/macro"
)

// SQLite is a single-file store for local development and tests. Pass
// ":memory:" for a throwaway database.
type SQLite struct {
	sqliteQueries
	db *sql.DB
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqliteQueries struct {
	q   sqlQuerier
	log *zap.Logger
}

func OpenSQLite(path string, log *zap.Logger) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: SQLite allows a single writer, and each :memory:
	// connection would otherwise be its own empty database.
	db.SetMaxOpenConns(1)

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLite{sqliteQueries: sqliteQueries{q: db, log: log}, db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			open_id TEXT NOT NULL UNIQUE,
			email TEXT,
			name TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_signed_in DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
			goal TEXT NOT NULL CHECK (goal IN ('bulk', 'lose', 'lean')),
			age INTEGER,
			gender TEXT CHECK (gender IN ('male', 'female', 'other')),
			height TEXT,
			weight TEXT,
			activity_level TEXT CHECK (activity_level IN ('sedentary', 'light', 'moderate', 'active', 'very_active')),
			target_calories INTEGER,
			target_protein TEXT,
			target_carbs TEXT,
			target_fat TEXT,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			onboarding_complete INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS meals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			meal_type TEXT NOT NULL CHECK (meal_type IN ('breakfast', 'lunch', 'dinner', 'snack', 'other')),
			name TEXT NOT NULL,
			description TEXT,
			calories INTEGER NOT NULL,
			protein TEXT NOT NULL,
			carbs TEXT NOT NULL,
			fat TEXT NOT NULL,
			image_url TEXT,
			ai_estimated INTEGER NOT NULL DEFAULT 0,
			meal_date TEXT NOT NULL,
			meal_time TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS meals_user_date ON meals (user_id, meal_date)`,
		`CREATE TABLE IF NOT EXISTS daily_tracking (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			tracking_date TEXT NOT NULL,
			total_calories INTEGER NOT NULL DEFAULT 0,
			total_protein TEXT NOT NULL DEFAULT '0',
			total_carbs TEXT NOT NULL DEFAULT '0',
			total_fat TEXT NOT NULL DEFAULT '0',
			meal_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, tracking_date)
		)`,
		`CREATE TABLE IF NOT EXISTS coaching_days (
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			coaching_date TEXT NOT NULL,
			PRIMARY KEY (user_id, coaching_date)
		)`,
		`CREATE TABLE IF NOT EXISTS coaching_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			coaching_date TEXT NOT NULL,
			tip TEXT NOT NULL,
			category TEXT NOT NULL CHECK (category IN ('protein', 'carbs', 'fat', 'calories', 'motivation', 'general')),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS coaching_logs_user_date ON coaching_logs (user_id, coaching_date)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Close() {
	if err := s.db.Close(); err != nil {
		s.log.Warn("close sqlite", zap.Error(err))
	}
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

/* ─── Scanning ───────────────────────────────────────────────────────── */

type rowScanner interface {
	Scan(dest ...any) error
}

// sqliteTime scans DATETIME columns, which the driver returns as time.Time
// or as text depending on how the value was written.
type sqliteTime struct{ t **time.Time }

func (s sqliteTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s.t = nil
		return nil
	case time.Time:
		*s.t = &v
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	}
	return fmt.Errorf("cannot scan %T into time", src)
}

func (s sqliteTime) parse(v string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			*s.t = &t
			return nil
		}
	}
	return fmt.Errorf("cannot parse time %q", v)
}

func scanUser(r rowScanner) (User, error) {
	var u User
	err := r.Scan(&u.ID, &u.OpenID, &u.Email, &u.Name, sqliteTime{&u.CreatedAt}, sqliteTime{&u.LastSignedIn})
	return u, err
}

func scanProfile(r rowScanner) (UserProfile, error) {
	var p UserProfile
	err := r.Scan(&p.ID, &p.UserID, &p.Goal, &p.Age, &p.Gender, &p.Height, &p.Weight, &p.ActivityLevel,
		&p.TargetCalories, &p.TargetProtein, &p.TargetCarbs, &p.TargetFat, &p.Timezone,
		&p.OnboardingComplete, sqliteTime{&p.CreatedAt}, sqliteTime{&p.UpdatedAt})
	return p, err
}

func scanMeal(r rowScanner) (Meal, error) {
	var m Meal
	err := r.Scan(&m.ID, &m.UserID, &m.MealType, &m.Name, &m.Description, &m.Calories,
		&m.Protein, &m.Carbs, &m.Fat, &m.ImageURL, &m.AIEstimated, &m.MealDate, &m.MealTime,
		sqliteTime{&m.CreatedAt}, sqliteTime{&m.UpdatedAt})
	return m, err
}

func scanTracking(r rowScanner) (DailyTracking, error) {
	var t DailyTracking
	err := r.Scan(&t.ID, &t.UserID, &t.TrackingDate, &t.TotalCalories, &t.TotalProtein,
		&t.TotalCarbs, &t.TotalFat, &t.MealCount, sqliteTime{&t.CreatedAt}, sqliteTime{&t.UpdatedAt})
	return t, err
}

func scanCoachingLog(r rowScanner) (CoachingLog, error) {
	var l CoachingLog
	err := r.Scan(&l.ID, &l.UserID, &l.CoachingDate, &l.Tip, &l.Category, sqliteTime{&l.CreatedAt})
	return l, err
}

// collect scans every row with scan. The result is never nil.
func collect[T any](rows *sql.Rows, err error, scan func(rowScanner) (T, error)) ([]T, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// one maps sql.ErrNoRows to ErrNotFound.
func one[T any](v T, err error) (T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrNotFound
	}
	return v, err
}

/* ─── Users ──────────────────────────────────────────────────────────── */

func (s sqliteQueries) UpsertUser(ctx context.Context, openID string, email, name *string) (User, error) {
	return scanUser(s.q.QueryRowContext(ctx,
		`INSERT INTO users (open_id, email, name, last_signed_in)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (open_id) DO UPDATE SET
			email = COALESCE(excluded.email, users.email),
			name = COALESCE(excluded.name, users.name),
			last_signed_in = CURRENT_TIMESTAMP
		 RETURNING `+userColumns,
		openID, email, name))
}

/* ─── Profiles ───────────────────────────────────────────────────────── */

func (s sqliteQueries) GetUserProfile(ctx context.Context, userID int) (*UserProfile, error) {
	p, err := scanProfile(s.q.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s sqliteQueries) CreateUserProfile(ctx context.Context, p UserProfile) (UserProfile, error) {
	return scanProfile(s.q.QueryRowContext(ctx,
		`INSERT INTO user_profiles (user_id, goal, age, gender, height, weight, activity_level,
			target_calories, target_protein, target_carbs, target_fat, timezone, onboarding_complete)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+profileColumns,
		p.UserID, p.Goal, p.Age, p.Gender, p.Height, p.Weight, p.ActivityLevel,
		p.TargetCalories, p.TargetProtein, p.TargetCarbs, p.TargetFat, p.Timezone, p.OnboardingComplete))
}

func (s sqliteQueries) UpdateUserProfile(ctx context.Context, p UserProfile) (UserProfile, error) {
	return one(scanProfile(s.q.QueryRowContext(ctx,
		`UPDATE user_profiles SET
			goal = ?, age = ?, gender = ?, height = ?, weight = ?, activity_level = ?,
			target_calories = ?, target_protein = ?, target_carbs = ?, target_fat = ?,
			timezone = ?, onboarding_complete = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ?
		 RETURNING `+profileColumns,
		p.Goal, p.Age, p.Gender, p.Height, p.Weight, p.ActivityLevel,
		p.TargetCalories, p.TargetProtein, p.TargetCarbs, p.TargetFat,
		p.Timezone, p.OnboardingComplete, p.UserID)))
}

/* ─── Meals ──────────────────────────────────────────────────────────── */

func (s sqliteQueries) GetMealsByDate(ctx context.Context, userID int, date DateOnly) ([]Meal, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+mealColumns+` FROM meals
		 WHERE user_id = ? AND meal_date = ?
		 ORDER BY meal_time NULLS LAST, created_at, id`,
		userID, date.String())
	return collect(rows, err, scanMeal)
}

func (s sqliteQueries) GetMeal(ctx context.Context, userID, mealID int) (Meal, error) {
	return one(scanMeal(s.q.QueryRowContext(ctx,
		`SELECT `+mealColumns+` FROM meals WHERE id = ? AND user_id = ?`, mealID, userID)))
}

func (s sqliteQueries) CreateMeal(ctx context.Context, m Meal) (Meal, error) {
	return scanMeal(s.q.QueryRowContext(ctx,
		`INSERT INTO meals (user_id, meal_type, name, description, calories, protein, carbs, fat,
			image_url, ai_estimated, meal_date, meal_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+mealColumns,
		m.UserID, m.MealType, m.Name, m.Description, m.Calories, m.Protein, m.Carbs, m.Fat,
		m.ImageURL, m.AIEstimated, m.MealDate.String(), m.MealTime))
}

func (s sqliteQueries) UpdateMeal(ctx context.Context, userID, mealID int, patch MealPatch) (Meal, error) {
	return one(scanMeal(s.q.QueryRowContext(ctx,
		`UPDATE meals SET
			meal_type = COALESCE(?, meal_type),
			name = COALESCE(?, name),
			description = COALESCE(?, description),
			calories = COALESCE(?, calories),
			protein = COALESCE(?, protein),
			carbs = COALESCE(?, carbs),
			fat = COALESCE(?, fat),
			meal_time = COALESCE(?, meal_time),
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?
		 RETURNING `+mealColumns,
		patch.MealType, patch.Name, patch.Description, patch.Calories,
		patch.Protein, patch.Carbs, patch.Fat, patch.MealTime, mealID, userID)))
}

func (s sqliteQueries) DeleteMeal(ctx context.Context, userID, mealID int) (DateOnly, error) {
	var date DateOnly
	err := s.q.QueryRowContext(ctx,
		`DELETE FROM meals WHERE id = ? AND user_id = ? RETURNING meal_date`, mealID, userID).
		Scan(&date)
	return one(date, err)
}

/* ─── Daily tracking ─────────────────────────────────────────────────── */

func (s sqliteQueries) GetDailyTracking(ctx context.Context, userID int, date DateOnly) (*DailyTracking, error) {
	t, err := scanTracking(s.q.QueryRowContext(ctx,
		`SELECT `+trackingColumns+` FROM daily_tracking WHERE user_id = ? AND tracking_date = ?`,
		userID, date.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s sqliteQueries) GetDailyTrackingRange(ctx context.Context, userID int, start, end DateOnly) ([]DailyTracking, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+trackingColumns+` FROM daily_tracking
		 WHERE user_id = ? AND tracking_date >= ? AND tracking_date <= ?
		 ORDER BY tracking_date ASC`,
		userID, start.String(), end.String())
	return collect(rows, err, scanTracking)
}

func (s sqliteQueries) UpsertDailyTracking(ctx context.Context, t DailyTracking) (DailyTracking, error) {
	return scanTracking(s.q.QueryRowContext(ctx,
		`INSERT INTO daily_tracking (user_id, tracking_date, total_calories, total_protein, total_carbs, total_fat, meal_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, tracking_date) DO UPDATE SET
			total_calories = excluded.total_calories,
			total_protein  = excluded.total_protein,
			total_carbs    = excluded.total_carbs,
			total_fat      = excluded.total_fat,
			meal_count     = excluded.meal_count,
			updated_at     = CURRENT_TIMESTAMP
		 RETURNING `+trackingColumns,
		t.UserID, t.TrackingDate.String(), t.TotalCalories, t.TotalProtein, t.TotalCarbs, t.TotalFat, t.MealCount))
}

// WithinDay runs fn in a transaction. With a single connection every
// transaction is already exclusive.
func (s *SQLite) WithinDay(ctx context.Context, userID int, date DateOnly, fn DayFunc) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, sqliteQueries{q: tx, log: s.log})
	})
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

/* ─── Coaching ───────────────────────────────────────────────────────── */

func (s sqliteQueries) GetCoachingLogs(ctx context.Context, userID int, date DateOnly) ([]CoachingLog, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+coachingColumns+` FROM coaching_logs
		 WHERE user_id = ? AND coaching_date = ?
		 ORDER BY id`,
		userID, date.String())
	return collect(rows, err, scanCoachingLog)
}

func (s *SQLite) CreateCoachingLogsIfAbsent(ctx context.Context, userID int, date DateOnly, tips []macro.Tip) (logs []CoachingLog, created bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO coaching_days (user_id, coaching_date) VALUES (?, ?)
			 ON CONFLICT (user_id, coaching_date) DO NOTHING`,
			userID, date.String())
		if err != nil {
			return fmt.Errorf("claim coaching day: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			created = true
			for _, l := range NewCoachingLogs(userID, date, tips) {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO coaching_logs (user_id, coaching_date, tip, category) VALUES (?, ?, ?, ?)`,
					l.UserID, date.String(), l.Tip, l.Category); err != nil {
					return fmt.Errorf("insert coaching log: %w", err)
				}
			}
		}
		logs, err = sqliteQueries{q: tx, log: s.log}.GetCoachingLogs(ctx, userID, date)
		return err
	})
	return logs, created, err
}
