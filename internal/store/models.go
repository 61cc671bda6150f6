package store

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"lg/macrotrack-api/internal/macro"
)

func init() {
	// Macro decimals go out as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

const dateLayout = "2006-01-02"

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON and SQL.
type DateOnly struct{ time.Time }

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (DateOnly, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return DateOnly{}, err
	}
	return DateOnly{t}, nil
}

// DateOf returns t's calendar date, read in t's own location, as a
// DateOnly at UTC midnight.
func DateOf(t time.Time) DateOnly {
	return DateOnly{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d DateOnly) String() string {
	return d.Time.Format(dateLayout)
}

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"`+dateLayout+`"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns (OID 1082) into DateOnly.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

// Scan implements sql.Scanner for SQLite, which stores the text form.
func (d *DateOnly) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Time = time.Time{}
		return nil
	case time.Time:
		d.Time = time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
		return nil
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	}
	return fmt.Errorf("cannot scan %T into DateOnly", src)
}

func (d *DateOnly) scanText(s string) error {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

/* ─── Domain structs ─────────────────────────────────────────────────── */

// MealType is the meal_type enum.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
	MealOther     MealType = "other"
)

func (t MealType) Valid() bool {
	switch t {
	case MealBreakfast, MealLunch, MealDinner, MealSnack, MealOther:
		return true
	}
	return false
}

// User maps to users. OpenID is the identity provider's subject.
type User struct {
	ID           int        `json:"id"             db:"id"`
	OpenID       string     `json:"open_id"        db:"open_id"`
	Email        *string    `json:"email"          db:"email"`
	Name         *string    `json:"name"           db:"name"`
	CreatedAt    *time.Time `json:"created_at"     db:"created_at"`
	LastSignedIn *time.Time `json:"last_signed_in" db:"last_signed_in"`
}

// UserProfile maps to user_profiles. One row per user. Body metrics are
// nullable; targets are derived and written whenever every metric is known.
type UserProfile struct {
	ID                 int                  `json:"id"                  db:"id"`
	UserID             int                  `json:"user_id"             db:"user_id"`
	Goal               macro.Goal           `json:"goal"                db:"goal"`
	Age                *int                 `json:"age"                 db:"age"`
	Gender             *macro.Gender        `json:"gender"              db:"gender"`
	Height             decimal.NullDecimal  `json:"height"              db:"height"`
	Weight             decimal.NullDecimal  `json:"weight"              db:"weight"`
	ActivityLevel      *macro.ActivityLevel `json:"activity_level"      db:"activity_level"`
	TargetCalories     *int                 `json:"target_calories"     db:"target_calories"`
	TargetProtein      decimal.NullDecimal  `json:"target_protein"      db:"target_protein"`
	TargetCarbs        decimal.NullDecimal  `json:"target_carbs"        db:"target_carbs"`
	TargetFat          decimal.NullDecimal  `json:"target_fat"          db:"target_fat"`
	Timezone           string               `json:"timezone"            db:"timezone"`
	OnboardingComplete bool                 `json:"onboarding_complete" db:"onboarding_complete"`
	CreatedAt          *time.Time           `json:"created_at"          db:"created_at"`
	UpdatedAt          *time.Time           `json:"updated_at"          db:"updated_at"`
}

// Metrics returns the profile's inputs to target computation.
func (p *UserProfile) Metrics() macro.Metrics {
	m := macro.Metrics{
		Goal:          &p.Goal,
		Age:           p.Age,
		Gender:        p.Gender,
		ActivityLevel: p.ActivityLevel,
	}
	if p.Height.Valid {
		h := p.Height.Decimal.InexactFloat64()
		m.HeightCM = &h
	}
	if p.Weight.Valid {
		w := p.Weight.Decimal.InexactFloat64()
		m.WeightKG = &w
	}
	return m
}

// SetTargets stores computed targets on the profile.
func (p *UserProfile) SetTargets(t macro.Targets) {
	cal := t.Calories
	p.TargetCalories = &cal
	p.TargetProtein = decimal.NewNullDecimal(decimal.NewFromFloat(t.Protein))
	p.TargetCarbs = decimal.NewNullDecimal(decimal.NewFromFloat(t.Carbs))
	p.TargetFat = decimal.NewNullDecimal(decimal.NewFromFloat(t.Fat))
}

// Meal maps to meals. MealDate is fixed once logged.
type Meal struct {
	ID          int             `json:"id"           db:"id"`
	UserID      int             `json:"user_id"      db:"user_id"`
	MealType    MealType        `json:"meal_type"    db:"meal_type"`
	Name        string          `json:"name"         db:"name"`
	Description *string         `json:"description"  db:"description"`
	Calories    int             `json:"calories"     db:"calories"`
	Protein     decimal.Decimal `json:"protein"      db:"protein"`
	Carbs       decimal.Decimal `json:"carbs"        db:"carbs"`
	Fat         decimal.Decimal `json:"fat"          db:"fat"`
	ImageURL    *string         `json:"image_url"    db:"image_url"`
	AIEstimated bool            `json:"ai_estimated" db:"ai_estimated"`
	MealDate    DateOnly        `json:"meal_date"    db:"meal_date"`
	MealTime    *string         `json:"meal_time"    db:"meal_time"`
	CreatedAt   *time.Time      `json:"created_at"   db:"created_at"`
	UpdatedAt   *time.Time      `json:"updated_at"   db:"updated_at"`
}

// MealPatch holds the optional fields of a meal update. Nil fields keep their
// current value.
type MealPatch struct {
	MealType    *MealType
	Name        *string
	Description *string
	Calories    *int
	Protein     *decimal.Decimal
	Carbs       *decimal.Decimal
	Fat         *decimal.Decimal
	MealTime    *string
}

// DailyTracking maps to daily_tracking, unique on (user_id, tracking_date).
// Totals always equal the sums over the day's meals at the last recompute.
type DailyTracking struct {
	ID            int             `json:"id"             db:"id"`
	UserID        int             `json:"user_id"        db:"user_id"`
	TrackingDate  DateOnly        `json:"tracking_date"  db:"tracking_date"`
	TotalCalories int             `json:"total_calories" db:"total_calories"`
	TotalProtein  decimal.Decimal `json:"total_protein"  db:"total_protein"`
	TotalCarbs    decimal.Decimal `json:"total_carbs"    db:"total_carbs"`
	TotalFat      decimal.Decimal `json:"total_fat"      db:"total_fat"`
	MealCount     int             `json:"meal_count"     db:"meal_count"`
	CreatedAt     *time.Time      `json:"created_at"     db:"created_at"`
	UpdatedAt     *time.Time      `json:"updated_at"     db:"updated_at"`
}

// CoachingLog maps to coaching_logs.
type CoachingLog struct {
	ID           int            `json:"id"            db:"id"`
	UserID       int            `json:"user_id"       db:"user_id"`
	CoachingDate DateOnly       `json:"coaching_date" db:"coaching_date"`
	Tip          string         `json:"tip"           db:"tip"`
	Category     macro.Category `json:"category"      db:"category"`
	CreatedAt    *time.Time     `json:"created_at"    db:"created_at"`
}
