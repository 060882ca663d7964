// Package planner implements C6, the Tier Scan Planner: a pure function
// over data already in the Repository Store, selecting which repos each
// tier processes this cycle under the per-tier cadence and hourly batch cap.
package planner

import (
	"context"

	"github.com/R3E-Network/repo-scout/domain"
	"github.com/R3E-Network/repo-scout/internal/config"
	"github.com/R3E-Network/repo-scout/internal/scorer"
	"github.com/R3E-Network/repo-scout/internal/store"
)

// ScanTask is one unit of planned work for the Batch Orchestrator.
type ScanTask struct {
	FullName  string
	RepoID    string
	Tier      int
	ScanKind  string // "deep" or "basic"
	ModelTier domain.ModelTier
}

// Planner is C6.
type Planner struct {
	store *store.Store
}

func New(s *store.Store) *Planner {
	return &Planner{store: s}
}

// Plan returns the ordered scan tasks for every tier, truncated to each
// tier's hourly batch cap, for the given cadence configuration.
func (p *Planner) Plan(ctx context.Context, cadences [3]config.TierCadence, force bool) ([]ScanTask, error) {
	var tasks []ScanTask
	for i, cadence := range cadences {
		tier := i + 1
		assignments, err := p.store.GetReposNeedingScan(ctx, tier, cadence.ScanKind, force)
		if err != nil {
			return nil, err
		}
		if len(assignments) > cadence.HourlyBatchCap {
			assignments = assignments[:cadence.HourlyBatchCap]
		}
		for rank, a := range assignments {
			modelTier := modelTierFor(tier, rank, cadence.DeepModelTopN, a.GrowthVelocity)
			repo, ok, err := p.store.GetRepository(ctx, a.RepoID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			tasks = append(tasks, ScanTask{
				FullName: repo.FullName, RepoID: a.RepoID, Tier: tier,
				ScanKind: cadence.ScanKind, ModelTier: modelTier,
			})
		}
	}
	return tasks, nil
}

// modelTierFor applies tier 2's "top-10 by rank get the deep model" rule
// from spec §4.6, then defers to scorer.RecommendModel for the tier default
// and the §4.4 very-high-growth override, so a repo whose growth velocity
// crosses scorer.VeryHighGrowthThreshold is promoted to the high model
// regardless of tier even outside the tier-2 top-N path.
func modelTierFor(tier, rank, deepModelTopN int, growthVelocity float64) domain.ModelTier {
	if tier == domain.Tier2 && deepModelTopN > 0 && rank < deepModelTopN {
		return domain.ModelHigh
	}
	return scorer.RecommendModel(tier, scorer.VeryHighGrowth(growthVelocity))
}
