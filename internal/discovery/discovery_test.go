package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/repo-scout/domain"
)

func TestStrategiesIsTopicsByLanguagesCrossProduct(t *testing.T) {
	cfg := Config{Topics: []string{"ai", "ml"}, Languages: []string{"Go", "Python", "Rust"}}
	got := strategies(cfg)
	assert.Len(t, got, 6)
	assert.Contains(t, got, Strategy{Topic: "ai", Language: "Go"})
	assert.Contains(t, got, Strategy{Topic: "ml", Language: "Rust"})
}

func TestBuildQueryIncludesAllConstraints(t *testing.T) {
	q := buildQuery(Strategy{Topic: "llm", Language: "Go"}, 25)
	assert.Equal(t, "topic:llm language:Go stars:>=25", q)
}

func TestGrowthVelocityFromAgeZeroStars(t *testing.T) {
	repo := domain.Repository{Stars: 0, CreatedAt: time.Now().Add(-30 * 24 * time.Hour)}
	assert.Equal(t, float64(0), growthVelocityFromAge(repo, time.Now()))
}

func TestGrowthVelocityFromAgeClampsAgeFloor(t *testing.T) {
	now := time.Now()
	repo := domain.Repository{Stars: 100, CreatedAt: now}
	got := growthVelocityFromAge(repo, now)
	assert.Greater(t, got, float64(0))
}

func TestGrowthVelocityFromAgeOlderRepoLowerVelocity(t *testing.T) {
	now := time.Now()
	young := domain.Repository{Stars: 100, CreatedAt: now.Add(-10 * 24 * time.Hour)}
	old := domain.Repository{Stars: 100, CreatedAt: now.Add(-300 * 24 * time.Hour)}
	assert.Greater(t, growthVelocityFromAge(young, now), growthVelocityFromAge(old, now))
}
