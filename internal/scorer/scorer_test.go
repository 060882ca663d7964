package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/repo-scout/domain"
)

func TestAssignTier(t *testing.T) {
	highTotal := domain.Score{Total: 75}
	assert.Equal(t, domain.Tier1, AssignTier(highTotal, domain.Repository{Stars: 10}, 0))

	growthRepo := domain.Repository{Stars: 150}
	assert.Equal(t, domain.Tier1, AssignTier(domain.Score{Total: 20}, growthRepo, 12))

	midTotal := domain.Score{Total: 55}
	assert.Equal(t, domain.Tier2, AssignTier(midTotal, domain.Repository{Stars: 10}, 0))

	starsOnly := domain.Repository{Stars: 60}
	assert.Equal(t, domain.Tier2, AssignTier(domain.Score{Total: 10}, starsOnly, 0))

	assert.Equal(t, domain.Tier3, AssignTier(domain.Score{Total: 10}, domain.Repository{Stars: 5}, 0))
}

func TestRecommendModel(t *testing.T) {
	assert.Equal(t, domain.ModelHigh, RecommendModel(domain.Tier1, false))
	assert.Equal(t, domain.ModelMedium, RecommendModel(domain.Tier2, false))
	assert.Equal(t, domain.ModelSmall, RecommendModel(domain.Tier3, false))
	assert.Equal(t, domain.ModelHigh, RecommendModel(domain.Tier3, true))
}

func TestScoreIsBoundedAndTopicBoosted(t *testing.T) {
	now := time.Now()
	plain := domain.Repository{
		Stars: 20, Forks: 2, CreatedAt: now.AddDate(0, 0, -30), PushedAt: now.AddDate(0, 0, -1),
	}
	withTopic := plain
	withTopic.Topics = []string{"machine-learning"}

	plainScore := Score(plain, nil, nil, now)
	boostedScore := Score(withTopic, nil, nil, now)

	assert.GreaterOrEqual(t, plainScore.Total, 0.0)
	assert.LessOrEqual(t, plainScore.Total, 100.0)
	assert.Greater(t, boostedScore.Quality, plainScore.Quality)
}

func TestHybridTrendingScoreFavorsYoungRepos(t *testing.T) {
	now := time.Now()
	young := domain.Repository{Stars: 500, Forks: 50, CreatedAt: now.AddDate(0, 0, -30), PushedAt: now}
	old := domain.Repository{Stars: 500, Forks: 50, CreatedAt: now.AddDate(-2, 0, 0), PushedAt: now}

	assert.Greater(t, HybridTrendingScore(young, now), HybridTrendingScore(old, now))
}
