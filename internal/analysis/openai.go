package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenAIBaseURL points at OpenRouter, which speaks the OpenAI chat
// completions protocol.
const DefaultOpenAIBaseURL = "https://openrouter.ai/api"

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAI builds a client. An empty baseURL uses DefaultOpenAIBaseURL; the
// base URL is overridable so tests can point at an httptest server.
func NewOpenAI(baseURL, apiKey, model string, timeout time.Duration) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &OpenAI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

/* ─── Wire types ─────────────────────────────────────────────────────── */

// openAIMessage is a single chat message. Content is either a string or a
// slice of openAIContentPart for multimodal input.
type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat map[string]any  `json:"response_format"`
}

// resultSchema is the strict JSON schema every answer must satisfy.
var resultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meal_name":   map[string]any{"type": "string"},
		"description": map[string]any{"type": "string"},
		"calories":    map[string]any{"type": "number"},
		"protein":     map[string]any{"type": "number"},
		"carbs":       map[string]any{"type": "number"},
		"fat":         map[string]any{"type": "number"},
		"confidence":  map[string]any{"type": "string", "enum": []string{"high", "medium", "low"}},
		"ingredients": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"notes":       map[string]any{"type": "string"},
	},
	"required":             []string{"meal_name", "description", "calories", "protein", "carbs", "fat", "confidence", "ingredients", "notes"},
	"additionalProperties": false,
}

/* ─── Analyzer ───────────────────────────────────────────────────────── */

func (o *OpenAI) AnalyzeImage(ctx context.Context, imageURL, notes string) (Result, error) {
	return o.analyze(ctx, []openAIMessage{
		{Role: "system", Content: imageSystemPrompt},
		{Role: "user", Content: []openAIContentPart{
			{Type: "image_url", ImageURL: &openAIImageURL{URL: imageURL, Detail: "high"}},
			{Type: "text", Text: imageUserPrompt(notes)},
		}},
	})
}

func (o *OpenAI) AnalyzeDescription(ctx context.Context, description string) (Result, error) {
	return o.analyze(ctx, []openAIMessage{
		{Role: "system", Content: descriptionSystemPrompt},
		{Role: "user", Content: description},
	})
}

func (o *OpenAI) Refine(ctx context.Context, original Result, feedback string) (Result, error) {
	return o.analyze(ctx, []openAIMessage{
		{Role: "system", Content: refineSystemPrompt},
		{Role: "user", Content: refineUserPrompt(original, feedback)},
	})
}

func (o *OpenAI) analyze(ctx context.Context, messages []openAIMessage) (Result, error) {
	content, err := o.chat(ctx, messages)
	if err != nil {
		return Result{}, err
	}
	return parseResult(content)
}

// chat sends a chat completions request and returns the content of the first
// choice. Uses raw net/http to avoid pulling in a provider SDK.
func (o *OpenAI) chat(ctx context.Context, messages []openAIMessage) (string, error) {
	if o.apiKey == "" {
		return "", ErrNotConfigured
	}

	reqBody := openAIRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: 0,
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "meal_analysis",
				"strict": true,
				"schema": resultSchema,
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(respBytes))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %v", ErrInvalidResponse, err)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: no choices in response", ErrInvalidResponse)
	}

	return result.Choices[0].Message.Content, nil
}
