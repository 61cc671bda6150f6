package macro

import (
	"fmt"
	"math"
)

// Adherence band edges, in percent of target.
const (
	underTarget      = 80.0
	overTarget       = 110.0
	onTrackCaloriesL = 90.0
)

const fallbackTip = "Keep tracking your meals for better insights!"

// Tip is one coaching message.
type Tip struct {
	Tip      string   `json:"tip"`
	Category Category `json:"category"`
}

// Totals are a day's logged intake.
type Totals struct {
	Calories int
	Protein  float64
	Carbs    float64
	Fat      float64
}

var motivationByGoal = map[Goal]string{
	GoalBulk: "Perfect calorie intake for muscle building! Keep up the consistent eating.",
	GoalLose: "Excellent calorie deficit maintained. Stay consistent for best results!",
	GoalLean: "You're right on track with your lean gains goal. Great work!",
}

// GenerateCoachingTips compares totals against targets and returns tips in a
// fixed order: calories, protein, carbs, fat, then motivation.
//
// A macro with a non-positive target gets no tip. If every target is
// non-positive there is nothing to compare and ErrUndefinedTarget is
// returned. When no rule fires a single general tip is returned.
func GenerateCoachingTips(totals Totals, targets Targets, goal Goal) ([]Tip, error) {
	calPct, calErr := Percentage(float64(totals.Calories), float64(targets.Calories))
	proPct, proErr := Percentage(totals.Protein, targets.Protein)
	carbPct, carbErr := Percentage(totals.Carbs, targets.Carbs)
	fatPct, fatErr := Percentage(totals.Fat, targets.Fat)
	if calErr != nil && proErr != nil && carbErr != nil && fatErr != nil {
		return nil, ErrUndefinedTarget
	}

	var tips []Tip
	add := func(category Category, text string) {
		tips = append(tips, Tip{Tip: text, Category: category})
	}

	if calErr == nil {
		switch {
		case calPct < underTarget:
			add(CategoryCalories, fmt.Sprintf("You're %d%% under your calorie target. Consider adding a snack to reach your goal.", roundInt(100-calPct)))
		case calPct > overTarget:
			add(CategoryCalories, fmt.Sprintf("You've exceeded your calorie target by %d%%. Be mindful of portion sizes for your next meal.", roundInt(calPct-100)))
		}
	}

	if proErr == nil {
		switch {
		case proPct < underTarget:
			add(CategoryProtein, fmt.Sprintf("Your protein intake is %d%% below target. Add lean protein like chicken, fish, or Greek yogurt.", roundInt(underTarget-proPct)))
		case proPct > overTarget:
			add(CategoryProtein, "Great job on protein! You're exceeding your target.")
		}
	}

	if carbErr == nil {
		switch {
		case carbPct < underTarget:
			add(CategoryCarbs, "Your carbs are running low. Consider adding rice, pasta, or whole grains to your meals.")
		case carbPct > overTarget:
			add(CategoryCarbs, "You're high on carbs. Balance with more protein and vegetables for your next meal.")
		}
	}

	if fatErr == nil {
		switch {
		case fatPct < underTarget:
			add(CategoryFat, "Your fat intake is below target. Add healthy fats like avocado, nuts, or olive oil.")
		case fatPct > overTarget:
			add(CategoryFat, "You're high on fats. Choose leaner protein sources for your next meal.")
		}
	}

	if calErr == nil && calPct >= onTrackCaloriesL && calPct <= overTarget {
		msg, ok := motivationByGoal[goal]
		if !ok {
			msg = motivationByGoal[GoalLean]
		}
		add(CategoryMotivation, msg)
	}

	if len(tips) == 0 {
		return []Tip{{Tip: fallbackTip, Category: CategoryGeneral}}, nil
	}
	return tips, nil
}

// roundInt rounds half away from zero.
func roundInt(v float64) int {
	return int(math.Round(v))
}
