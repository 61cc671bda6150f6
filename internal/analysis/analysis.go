// Package analysis estimates a meal's macros with a vision-capable LLM, from
// a photo, from a text description, or by refining an earlier estimate.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidResponse means the provider answered but the content was not
	// a usable estimate.
	ErrInvalidResponse = errors.New("invalid analysis response")
	// ErrNotConfigured means no API key was supplied for the provider.
	ErrNotConfigured = errors.New("analysis provider not configured")
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func (c Confidence) Valid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

// Result is one macro estimate. Values are totals for the whole meal.
type Result struct {
	MealName    string     `json:"meal_name"`
	Description string     `json:"description"`
	Calories    float64    `json:"calories"`
	Protein     float64    `json:"protein"`
	Carbs       float64    `json:"carbs"`
	Fat         float64    `json:"fat"`
	Confidence  Confidence `json:"confidence"`
	Ingredients []string   `json:"ingredients"`
	Notes       string     `json:"notes"`
}

// Analyzer is implemented by OpenAI and Gemini.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, imageURL, notes string) (Result, error)
	AnalyzeDescription(ctx context.Context, description string) (Result, error)
	Refine(ctx context.Context, original Result, feedback string) (Result, error)
}

var (
	_ Analyzer = (*OpenAI)(nil)
	_ Analyzer = (*Gemini)(nil)
)

/* ─── Prompts ────────────────────────────────────────────────────────── */

const resultFormat = `Return a JSON object with these exact keys:
- "meal_name" (string)
- "description" (string)
- "calories" (number, total kcal)
- "protein" (number, grams)
- "carbs" (number, grams)
- "fat" (number, grams)
- "confidence" (one of: high, medium, low)
- "ingredients" (array of strings)
- "notes" (string, portion size and assumptions)
Return only valid JSON, no explanation.`

const imageSystemPrompt = `You are a professional nutritionist and food analyst. Analyze the meal in the image and estimate its calories and macros.
If you cannot see the image clearly, set confidence to "low" and explain in notes.
` + resultFormat

const descriptionSystemPrompt = `You are a professional nutritionist providing macro estimates for meals described by users. Infer the meal name and likely ingredients from the description and assume typical portion sizes.
If the description is vague, set confidence to "medium" and explain your assumptions in notes.
` + resultFormat

const refineSystemPrompt = `You are a professional nutritionist. A user has given feedback on an earlier meal estimate, such as a corrected portion size or a missing ingredient. Return refined estimates that take the feedback into account.
` + resultFormat

func imageUserPrompt(notes string) string {
	if strings.TrimSpace(notes) == "" {
		return "Analyze this meal."
	}
	return "Analyze this meal. User notes: " + notes
}

func refineUserPrompt(original Result, feedback string) string {
	return fmt.Sprintf(`Original analysis:
- Meal: %s
- Calories: %g
- Protein: %gg
- Carbs: %gg
- Fat: %gg
- Confidence: %s

User feedback: %q`,
		original.MealName, original.Calories, original.Protein, original.Carbs, original.Fat,
		original.Confidence, feedback)
}

/* ─── Response parsing ───────────────────────────────────────────────── */

// parseResult decodes and validates model output. Some models wrap JSON in a
// markdown fence even when asked not to.
func parseResult(content string) (Result, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var r Result
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if strings.TrimSpace(r.MealName) == "" {
		return Result{}, fmt.Errorf("%w: missing meal_name", ErrInvalidResponse)
	}
	if !r.Confidence.Valid() {
		return Result{}, fmt.Errorf("%w: confidence %q", ErrInvalidResponse, r.Confidence)
	}
	if r.Calories < 0 || r.Protein < 0 || r.Carbs < 0 || r.Fat < 0 {
		return Result{}, fmt.Errorf("%w: negative estimate", ErrInvalidResponse)
	}
	if r.Ingredients == nil {
		r.Ingredients = []string{}
	}
	return r, nil
}
