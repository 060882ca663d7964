package domain

import (
	"fmt"
	"time"
)

// Recommendation is a closed enum; unknown strings from an LLM response must
// be rejected rather than coerced (§9 "dynamic payloads").
type Recommendation string

const (
	RecommendationStrongBuy Recommendation = "strong_buy"
	RecommendationBuy       Recommendation = "buy"
	RecommendationHold      Recommendation = "hold"
	RecommendationPass      Recommendation = "pass"
)

// ParseRecommendation validates a raw LLM-supplied string against the closed
// enum. It never coerces an unrecognized value to a default.
func ParseRecommendation(raw string) (Recommendation, error) {
	switch Recommendation(raw) {
	case RecommendationStrongBuy, RecommendationBuy, RecommendationHold, RecommendationPass:
		return Recommendation(raw), nil
	default:
		return "", fmt.Errorf("unrecognized recommendation %q", raw)
	}
}

// AnalysisScores holds the per-dimension LLM scores, each in [0,100].
// The last three are enhanced metrics: optional, never zeroed silently when
// the LLM response omits them.
type AnalysisScores struct {
	Investment         int
	Innovation         int
	Team               int
	Market             int
	TechnicalMoat      *int
	Scalability        *int
	DeveloperAdoption  *int
}

// Analysis is the LLM-produced artifact for a repository. Append-only;
// "latest" is the row with the maximum CreatedAt for a repo.
type Analysis struct {
	ID             int64           `db:"id"`
	RepoID         string          `db:"repo_id"`
	Scores         AnalysisScores  `db:"-"`
	Recommendation Recommendation  `db:"recommendation"`
	Summary        string          `db:"summary"`
	Strengths      []string        `db:"strengths"`
	Risks          []string        `db:"risks"`
	Questions      []string        `db:"questions"`
	ModelUsed      ModelTier       `db:"model_used"`
	Cost           float64         `db:"cost"`
	CreatedAt      time.Time       `db:"created_at"`
}

// IsCurrent reports whether the analysis is still within the given freshness
// window, measured from now.
func (a Analysis) IsCurrent(now time.Time, window time.Duration) bool {
	return now.Sub(a.CreatedAt) < window
}
