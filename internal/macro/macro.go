// Package macro computes energy expenditure, macro targets and coaching tips
// from body metrics and a day's logged totals. Everything here is pure
// arithmetic: no I/O, no shared state.
package macro

import (
	"errors"
	"math"
)

// ErrUndefinedTarget is returned when a percentage is requested against a
// zero or negative target.
var ErrUndefinedTarget = errors.New("undefined target")

// Energy density in kcal per gram.
const (
	kcalPerGramProtein = 4
	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9
)

/* ─── Enums ──────────────────────────────────────────────────────────── */

// Goal is the user's body-composition goal. It selects the calorie
// adjustment and macro split.
type Goal string

const (
	GoalBulk Goal = "bulk"
	GoalLose Goal = "lose"
	GoalLean Goal = "lean"
)

// Valid reports whether g is a known goal.
func (g Goal) Valid() bool {
	_, ok := goalPlans[g]
	return ok
}

// Gender picks the BMR constant.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Valid reports whether g is male, female or other.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale || g == GenderOther
}

// ActivityLevel scales BMR to TDEE.
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

// Valid reports whether a has a TDEE multiplier.
func (a ActivityLevel) Valid() bool {
	_, ok := activityMultipliers[a]
	return ok
}

// Category classifies a coaching tip.
type Category string

const (
	CategoryProtein    Category = "protein"
	CategoryCarbs      Category = "carbs"
	CategoryFat        Category = "fat"
	CategoryCalories   Category = "calories"
	CategoryMotivation Category = "motivation"
	CategoryGeneral    Category = "general"
)

// Valid reports whether c is accepted by the coaching_logs category check.
func (c Category) Valid() bool {
	switch c {
	case CategoryProtein, CategoryCarbs, CategoryFat, CategoryCalories, CategoryMotivation, CategoryGeneral:
		return true
	}
	return false
}

// activityMultipliers maps activity levels to their TDEE multiplier. This is
// the single source of truth for valid activity levels.
var activityMultipliers = map[ActivityLevel]float64{
	ActivitySedentary:  1.2,
	ActivityLight:      1.375,
	ActivityModerate:   1.55,
	ActivityActive:     1.725,
	ActivityVeryActive: 1.9,
}

// goalPlan is the calorie adjustment and calorie split for a goal.
type goalPlan struct {
	calorieDelta int
	protein      float64
	carbs        float64
	fat          float64
}

var goalPlans = map[Goal]goalPlan{
	GoalBulk: {calorieDelta: 300, protein: 0.30, carbs: 0.45, fat: 0.25},
	GoalLose: {calorieDelta: -400, protein: 0.35, carbs: 0.35, fat: 0.30},
	GoalLean: {calorieDelta: -200, protein: 0.32, carbs: 0.42, fat: 0.26},
}

/* ─── Energy expenditure ─────────────────────────────────────────────── */

// CalculateBMR returns the Mifflin-St Jeor basal metabolic rate in kcal/day.
// "other" uses the female constant. The result is not rounded.
func CalculateBMR(weightKG, heightCM float64, age int, gender Gender) float64 {
	bmr := 10*weightKG + 6.25*heightCM - 5*float64(age)
	if gender == GenderMale {
		return bmr + 5
	}
	return bmr - 161
}

// TDEE multiplies bmr by the activity multiplier and rounds to the nearest
// kcal. ok is false for an unknown activity level.
func TDEE(bmr float64, level ActivityLevel) (int, bool) {
	mult, ok := activityMultipliers[level]
	if !ok {
		return 0, false
	}
	return int(math.Round(bmr * mult)), true
}

// CalculateTDEE is TDEE for a pre-validated activity level; an unknown level
// yields 0.
func CalculateTDEE(bmr float64, level ActivityLevel) int {
	tdee, _ := TDEE(bmr, level)
	return tdee
}

/* ─── Targets ────────────────────────────────────────────────────────── */

// Targets are the daily goals derived from TDEE and goal. Gram values are
// rounded independently, so they need not recombine to exactly Calories.
type Targets struct {
	Calories int     `json:"target_calories"`
	Protein  float64 `json:"target_protein"`
	Carbs    float64 `json:"target_carbs"`
	Fat      float64 `json:"target_fat"`
}

// CalculateMacroTargets applies the goal's calorie adjustment to tdee and
// splits the result into grams of protein, carbs and fat.
func CalculateMacroTargets(tdee int, goal Goal) Targets {
	plan := goalPlans[goal]
	calories := tdee + plan.calorieDelta
	kcal := float64(calories)
	return Targets{
		Calories: calories,
		Protein:  math.Round(kcal * plan.protein / kcalPerGramProtein),
		Carbs:    math.Round(kcal * plan.carbs / kcalPerGramCarbs),
		Fat:      math.Round(kcal * plan.fat / kcalPerGramFat),
	}
}

// Metrics are the body and goal inputs of a profile. Nil fields are unknown.
type Metrics struct {
	Goal          *Goal
	Age           *int
	Gender        *Gender
	HeightCM      *float64
	WeightKG      *float64
	ActivityLevel *ActivityLevel
}

// Complete reports whether every input needed for targets is present and
// in range.
func (m Metrics) Complete() bool {
	if m.Goal == nil || m.Age == nil || m.Gender == nil ||
		m.HeightCM == nil || m.WeightKG == nil || m.ActivityLevel == nil {
		return false
	}
	return m.Goal.Valid() && m.Gender.Valid() && m.ActivityLevel.Valid() &&
		*m.Age > 0 && *m.HeightCM > 0 && *m.WeightKG > 0
}

// ComputeTargets runs BMR, TDEE and the goal split in sequence. ok is false
// when the metrics are incomplete.
func ComputeTargets(m Metrics) (Targets, bool) {
	if !m.Complete() {
		return Targets{}, false
	}
	bmr := CalculateBMR(*m.WeightKG, *m.HeightCM, *m.Age, *m.Gender)
	tdee, ok := TDEE(bmr, *m.ActivityLevel)
	if !ok {
		return Targets{}, false
	}
	return CalculateMacroTargets(tdee, *m.Goal), true
}

/* ─── Macro split ────────────────────────────────────────────────────── */

// Percentages is the share of total calories contributed by each macro.
type Percentages struct {
	ProteinPercent int `json:"protein_percent"`
	CarbsPercent   int `json:"carbs_percent"`
	FatPercent     int `json:"fat_percent"`
}

// CalculateMacroPercentages returns each macro's calorie contribution as a
// rounded percentage of calories. All three are 0 when calories is 0.
func CalculateMacroPercentages(calories int, protein, carbs, fat float64) Percentages {
	if calories == 0 {
		return Percentages{}
	}
	total := float64(calories)
	return Percentages{
		ProteinPercent: int(math.Round(protein * kcalPerGramProtein / total * 100)),
		CarbsPercent:   int(math.Round(carbs * kcalPerGramCarbs / total * 100)),
		FatPercent:     int(math.Round(fat * kcalPerGramFat / total * 100)),
	}
}

// Percentage returns total as a percentage of target. Scaling before the
// division keeps whole-number band edges such as 110% exact.
func Percentage(total, target float64) (float64, error) {
	if target <= 0 {
		return 0, ErrUndefinedTarget
	}
	return total * 100 / target, nil
}
