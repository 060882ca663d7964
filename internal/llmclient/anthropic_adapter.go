package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/R3E-Network/repo-scout/domain"
	apperrors "github.com/R3E-Network/repo-scout/internal/errors"
)

// modelForTier maps the tier-driven model selection of spec §4.4 onto
// concrete Anthropic model IDs. Pulled in from jordigilh-kubernaut's
// dependency surface — the closest pack repo that actually calls an LLM for
// structured analysis — since the teacher itself never talks to an LLM.
var modelForTier = map[domain.ModelTier]anthropic.Model{
	domain.ModelHigh:   anthropic.ModelClaudeOpus4_20250514,
	domain.ModelMedium: anthropic.ModelClaudeSonnet4_20250514,
	domain.ModelSmall:  anthropic.ModelClaude3_5HaikuLatest,
}

// analyzeToolSchema forces the model to return the exact shape Analysis
// needs, rather than parsing narrative prose — spec §9's "dynamic payloads"
// note: parse into a tagged variant with explicit fallback fields.
var analyzeToolSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"investment":          map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
		"innovation":          map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
		"team":                map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
		"market":              map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
		"technical_moat":      map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
		"scalability":         map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
		"developer_adoption":  map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
		"recommendation":      map[string]interface{}{"type": "string", "enum": []string{"strong_buy", "buy", "hold", "pass"}},
		"summary":             map[string]interface{}{"type": "string"},
		"strengths":           map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"risks":               map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"questions":           map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
	"required": []string{"investment", "innovation", "team", "market", "recommendation", "summary"},
}

type rawAnalysis struct {
	Investment        int      `json:"investment"`
	Innovation        int      `json:"innovation"`
	Team              int      `json:"team"`
	Market            int      `json:"market"`
	TechnicalMoat     *int     `json:"technical_moat"`
	Scalability       *int     `json:"scalability"`
	DeveloperAdoption *int     `json:"developer_adoption"`
	Recommendation    string   `json:"recommendation"`
	Summary           string   `json:"summary"`
	Strengths         []string `json:"strengths"`
	Risks             []string `json:"risks"`
	Questions         []string `json:"questions"`
}

// AnthropicAdapter implements Client against the Anthropic Messages API,
// forcing the model to call a single structured-output tool.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter builds an adapter authenticated with an API key.
func NewAnthropicAdapter(apiKey string) *AnthropicAdapter {
	return &AnthropicAdapter{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (a *AnthropicAdapter) Analyze(ctx context.Context, req AnalyzeRequest) (domain.Analysis, error) {
	model, ok := modelForTier[req.ModelTier]
	if !ok {
		model = modelForTier[domain.ModelMedium]
	}

	schemaBytes, _ := json.Marshal(analyzeToolSchema)
	var inputSchema anthropic.ToolInputSchemaParam
	_ = json.Unmarshal(schemaBytes, &inputSchema)

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        "submit_analysis",
					Description: anthropic.String("Submit the structured investment analysis for this repository."),
					InputSchema: inputSchema,
				},
			},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: "submit_analysis"},
		},
	})
	if err != nil {
		return domain.Analysis{}, translateAnthropicErr(err)
	}

	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}
		var raw rawAnalysis
		if err := json.Unmarshal(block.Input, &raw); err != nil {
			return domain.Analysis{}, apperrors.InvalidResponse("anthropic", err)
		}
		return toAnalysis(req, raw, model)
	}
	return domain.Analysis{}, apperrors.InvalidResponse("anthropic", errors.New("no tool_use block in response"))
}

func toAnalysis(req AnalyzeRequest, raw rawAnalysis, model anthropic.Model) (domain.Analysis, error) {
	rec, err := domain.ParseRecommendation(raw.Recommendation)
	if err != nil {
		return domain.Analysis{}, apperrors.InvalidResponse("anthropic", err)
	}
	return domain.Analysis{
		RepoID: req.Repository.ID,
		Scores: domain.AnalysisScores{
			Investment:        raw.Investment,
			Innovation:        raw.Innovation,
			Team:              raw.Team,
			Market:            raw.Market,
			TechnicalMoat:     raw.TechnicalMoat,
			Scalability:       raw.Scalability,
			DeveloperAdoption: raw.DeveloperAdoption,
		},
		Recommendation: rec,
		Summary:        raw.Summary,
		Strengths:      raw.Strengths,
		Risks:          raw.Risks,
		Questions:      raw.Questions,
		ModelUsed:      req.ModelTier,
		Cost:           estimateCost(model),
		CreatedAt:      time.Now(),
	}, nil
}

func buildPrompt(req AnalyzeRequest) string {
	r := req.Repository
	return fmt.Sprintf(
		"Evaluate the open-source repository %s as an AI/ML investment candidate.\n"+
			"Stars: %d, Forks: %d, Open issues: %d, Language: %s, Topics: %v.\n"+
			"Description: %s\n\nREADME (truncated):\n%s\n\n"+
			"Call submit_analysis with your scores and narrative fields.",
		r.FullName, r.Stars, r.Forks, r.OpenIssues, r.Language, r.Topics, r.Description, truncate(req.Readme, 6000),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// estimateCost is a coarse per-call credit estimate used for budget
// accounting; the exact pricing is vendor/model-specific and intentionally
// not modeled precisely here (the governor treats credits as abstract
// units, per spec glossary).
func estimateCost(model anthropic.Model) float64 {
	switch model {
	case modelForTier[domain.ModelHigh]:
		return 3
	case modelForTier[domain.ModelMedium]:
		return 1
	default:
		return 0.3
	}
}

func translateAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return apperrors.RateLimited(30)
		case 401, 403:
			return apperrors.AuthFailed("anthropic")
		case 408:
			return apperrors.Timeout("analyze")
		}
		if apiErr.StatusCode >= 500 {
			return apperrors.Unavailable("anthropic", err)
		}
		return apperrors.InvalidResponse("anthropic", err)
	}
	return apperrors.Unavailable("anthropic", err)
}
