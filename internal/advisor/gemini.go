package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"google.golang.org/genai"

	"finboard/internal/core"
)

const DefaultModel = "gemini-2.5-flash"

var promptTemplate = template.Must(template.New("prompt").Parse(`You are a personal finance coach.
Spending for {{.Period}} totals {{.TotalSpend.StringFixed 2}}{{if .Income.IsPositive}} against income of {{.Income.StringFixed 2}}{{end}}.
By category:
{{range .Categories}}- {{.Category}}: {{.TotalAmount.StringFixed 2}} ({{.PercentageOfTotal}}%, {{.TransactionCount}} transactions)
{{end}}
Return ONLY a JSON array of at most 5 objects with keys
"title", "detail", "category" and "priority" ("high", "medium" or "low").
"category" must be one of: groceries, transport, dining, shopping, bills, subscriptions, other, or empty.
`))

// generateFunc sends a prompt to the model and returns its raw text.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// Gemini asks a Gemini model for recommendations.
type Gemini struct {
	generate generateFunc
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.2),
		ResponseMIMEType: "application/json",
	}
	return &Gemini{
		generate: func(ctx context.Context, prompt string) (string, error) {
			resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
			if err != nil {
				return "", err
			}
			return resp.Text(), nil
		},
	}, nil
}

func (g *Gemini) Recommend(ctx context.Context, s Summary) ([]Recommendation, error) {
	if len(s.Categories) == 0 {
		return nil, ErrEmptySummary
	}
	prompt, err := buildPrompt(s)
	if err != nil {
		return nil, err
	}
	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return parseRecommendations(raw)
}

func buildPrompt(s Summary) (string, error) {
	if s.Period == "" {
		s.Period = "the selected period"
	}
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

type modelRecommendation struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// parseRecommendations decodes the model reply. Unknown categories are
// dropped to none and unknown priorities become low.
func parseRecommendations(raw string) ([]Recommendation, error) {
	var items []modelRecommendation
	if err := json.Unmarshal([]byte(stripFences(raw)), &items); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	out := make([]Recommendation, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		cat, err := core.ParseCategory(it.Category)
		if err != nil || cat.IsIncome() {
			cat = core.CategoryNone
		}
		p := Priority(strings.ToLower(strings.TrimSpace(it.Priority)))
		switch p {
		case PriorityHigh, PriorityMedium, PriorityLow:
		default:
			p = PriorityLow
		}
		out = append(out, Recommendation{
			Title:    strings.TrimSpace(it.Title),
			Detail:   strings.TrimSpace(it.Detail),
			Category: cat,
			Priority: p,
		})
	}
	return out, nil
}

// stripFences removes a ```json ... ``` wrapper and anything outside the
// outermost JSON array.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
