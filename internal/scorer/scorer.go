// Package scorer implements C4, the Scorer/Tier Classifier: pure functions
// turning a Repository (plus optional metric history) into a Score, a tier,
// and a recommended LLM model — nothing here touches the network or the
// store.
package scorer

import (
	"strings"
	"time"

	"github.com/R3E-Network/repo-scout/domain"
)

// DefaultAITopics is the topic boost list; hasAITopic also falls back to it
// when given an empty list. Config.Topics is not consulted for the boost.
var DefaultAITopics = []string{"ai", "ml", "llm", "machine-learning", "deep-learning", "artificial-intelligence"}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Score computes the weighted composite of spec §4.4:
// total = 0.4*growth + 0.3*engagement + 0.3*quality.
func Score(repo domain.Repository, prior *domain.RepoMetricSnapshot, aiTopics []string, now time.Time) domain.Score {
	factors := map[string]float64{}

	growth := starVelocity(repo, prior, now)
	factors["star_velocity"] = growth

	engagement := engagementScore(repo)
	factors["engagement"] = engagement

	quality := qualityScore(repo, aiTopics, now)
	factors["quality"] = quality

	total := 0.4*growth + 0.3*engagement + 0.3*quality
	return domain.Score{
		Total:      clamp100(total),
		Growth:     growth,
		Engagement: engagement,
		Quality:    quality,
		Factors:    factors,
	}
}

func starVelocity(repo domain.Repository, prior *domain.RepoMetricSnapshot, now time.Time) float64 {
	age := repo.AgeDays(now)
	if age <= 0 {
		age = 1
	}
	var deltaStars float64
	var deltaDays float64
	if prior != nil {
		deltaStars = float64(repo.Stars - prior.Stars)
		deltaDays = now.Sub(prior.RecordedAt).Hours() / 24
		if deltaDays < 1 {
			deltaDays = 1
		}
	} else {
		deltaStars = float64(repo.Stars)
		deltaDays = age
	}
	perDay := deltaStars / deltaDays
	// Normalize: 5 stars/day maps to 100.
	return clamp100(perDay / 5 * 100)
}

func engagementScore(repo domain.Repository) float64 {
	forkRatio := 0.0
	if repo.Stars > 0 {
		forkRatio = float64(repo.Forks) / float64(repo.Stars)
	}
	// Healthy engagement sits around a 0.1-0.3 fork-to-star ratio; beyond
	// that, diminishing returns.
	forkScore := clamp100(forkRatio * 300)
	issueScore := clamp100(float64(repo.OpenIssues) / 2)
	return clamp100(0.7*forkScore + 0.3*issueScore)
}

func qualityScore(repo domain.Repository, aiTopics []string, now time.Time) float64 {
	score := 40.0
	if hasAITopic(repo, aiTopics) {
		score += 25
	}
	daysSincePush := repo.DaysSincePush(now)
	if daysSincePush <= 7 {
		score += 20
	} else if daysSincePush <= 30 {
		score += 10
	}
	if repo.Description != "" {
		score += 5
	}
	if !repo.IsFork {
		score += 10
	}
	return clamp100(score)
}

func hasAITopic(repo domain.Repository, aiTopics []string) bool {
	if len(aiTopics) == 0 {
		aiTopics = DefaultAITopics
	}
	for _, t := range aiTopics {
		if repo.HasTopic(strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// AssignTier applies the tier boundaries of spec §4.4.
//
//	Tier 1 if total >= 70 OR (stars >= 100 AND monthly growth >= 10%)
//	Tier 2 if total >= 50 OR stars >= 50
//	Tier 3 otherwise
func AssignTier(score domain.Score, repo domain.Repository, monthlyGrowthPct float64) int {
	if score.Total >= 70 || (repo.Stars >= 100 && monthlyGrowthPct >= 10) {
		return domain.Tier1
	}
	if score.Total >= 50 || repo.Stars >= 50 {
		return domain.Tier2
	}
	return domain.Tier3
}

// VeryHighGrowthThreshold is the monthly growth percentage, distinctly above
// Tier 1's own 10% promotion bar, that flags a repo as very-high-growth for
// model-recommendation purposes (spec §4.4). Not otherwise named by the
// spec; chosen as 5x the tier-1 bar so it fires only for outlier growth.
const VeryHighGrowthThreshold = 50.0

// VeryHighGrowth reports whether monthlyGrowthPct crosses
// VeryHighGrowthThreshold.
func VeryHighGrowth(monthlyGrowthPct float64) bool {
	return monthlyGrowthPct >= VeryHighGrowthThreshold
}

// RecommendModel maps a tier onto the LLM model size of spec §4.4, promoting
// to "high" regardless of tier when veryHighGrowth holds.
func RecommendModel(tier int, veryHighGrowth bool) domain.ModelTier {
	if veryHighGrowth {
		return domain.ModelHigh
	}
	switch tier {
	case domain.Tier1:
		return domain.ModelHigh
	case domain.Tier2:
		return domain.ModelMedium
	default:
		return domain.ModelSmall
	}
}

// HybridTrendingScore is used when historical metrics are missing, per
// spec §4.4: a weighted blend of five [0,100]-normalized factors, with a
// momentum multiplier favoring very young repos.
func HybridTrendingScore(repo domain.Repository, now time.Time) float64 {
	age := repo.AgeDays(now)
	if age <= 0 {
		age = 1
	}
	starVel := clamp100(float64(repo.Stars) / age / 5 * 100)

	daysSincePush := repo.DaysSincePush(now)
	recentActivity := clamp100(100 - daysSincePush*5)

	momentum := clamp100(float64(repo.Stars) / age)
	if age < 90 {
		momentum *= 1.5
	} else if age < 180 {
		momentum *= 1.2
	}
	momentum = clamp100(momentum)

	popularity := clamp100(float64(repo.Stars) / 10)

	forkActivity := 0.0
	if repo.Stars > 0 {
		forkActivity = clamp100(float64(repo.Forks) / float64(repo.Stars) * 200)
	}

	return clamp100(0.35*starVel + 0.25*recentActivity + 0.20*momentum + 0.10*popularity + 0.10*forkActivity)
}
