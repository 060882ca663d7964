package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/repo-scout/domain"
)

func TestModelTierForTier1AlwaysHigh(t *testing.T) {
	assert.Equal(t, domain.ModelHigh, modelTierFor(domain.Tier1, 0, 0, 0))
	assert.Equal(t, domain.ModelHigh, modelTierFor(domain.Tier1, 99, 10, 0))
}

func TestModelTierForTier2TopNGetsDeepModel(t *testing.T) {
	assert.Equal(t, domain.ModelHigh, modelTierFor(domain.Tier2, 0, 10, 0))
	assert.Equal(t, domain.ModelHigh, modelTierFor(domain.Tier2, 9, 10, 0))
	assert.Equal(t, domain.ModelMedium, modelTierFor(domain.Tier2, 10, 10, 0))
}

func TestModelTierForTier2NoDeepModelWhenTopNZero(t *testing.T) {
	assert.Equal(t, domain.ModelMedium, modelTierFor(domain.Tier2, 0, 0, 0))
}

func TestModelTierForTier3AlwaysSmall(t *testing.T) {
	assert.Equal(t, domain.ModelSmall, modelTierFor(domain.Tier3, 0, 10, 0))
}

func TestModelTierForVeryHighGrowthPromotesRegardlessOfTier(t *testing.T) {
	assert.Equal(t, domain.ModelHigh, modelTierFor(domain.Tier3, 50, 0, 75))
	assert.Equal(t, domain.ModelHigh, modelTierFor(domain.Tier2, 50, 0, 60))
}

func TestModelTierForBelowVeryHighGrowthThresholdUsesTierDefault(t *testing.T) {
	assert.Equal(t, domain.ModelSmall, modelTierFor(domain.Tier3, 50, 0, 20))
}
