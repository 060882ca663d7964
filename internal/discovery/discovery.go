// Package discovery implements C5, the Discovery Engine: it runs multiple
// search strategies concurrently, deduplicates by full_name, and hands every
// newly or re-discovered repository to the Repository Store and Scorer.
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/R3E-Network/repo-scout/domain"
	"github.com/R3E-Network/repo-scout/internal/codehost"
	"github.com/R3E-Network/repo-scout/internal/fetcher"
	"github.com/R3E-Network/repo-scout/internal/scorer"
	"github.com/R3E-Network/repo-scout/internal/store"
)

// maxConcurrentStrategies caps in-flight search strategies, per spec §5.
const maxConcurrentStrategies = 5

// Strategy is one (topic, language) search pair.
type Strategy struct {
	Topic    string
	Language string
}

// Config controls a single discovery run.
type Config struct {
	Topics        []string
	Languages     []string
	MinStars      int
	ResultCap     int // default 1000; manual scans pass 200
	AITopics      []string
	AllowDemotion bool
}

// Result summarizes one discovery run.
type Result struct {
	Discovered int
	Strategies int
	Errors     []error
}

// Engine is C5.
type Engine struct {
	fetcher *fetcher.Fetcher
	store   *store.Store
}

func New(f *fetcher.Fetcher, s *store.Store) *Engine {
	return &Engine{fetcher: f, store: s}
}

func strategies(cfg Config) []Strategy {
	out := make([]Strategy, 0, len(cfg.Topics)*len(cfg.Languages))
	for _, topic := range cfg.Topics {
		for _, lang := range cfg.Languages {
			out = append(out, Strategy{Topic: topic, Language: lang})
		}
	}
	return out
}

// Run executes every strategy concurrently (bounded to
// maxConcurrentStrategies in flight), deduplicates by full_name exactly as
// results land, and upserts each surviving repository plus its initial
// metric snapshot and tier assignment.
func (e *Engine) Run(ctx context.Context, cfg Config) (Result, error) {
	tasks := strategies(cfg)

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		all  []domain.Repository
		errs []error
	)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentStrategies)

	for _, st := range tasks {
		st := st
		group.Go(func() error {
			query := buildQuery(st, cfg.MinStars)
			repos, err := e.fetcher.Search(gctx, codehost.SearchParams{
				Query: query, Sort: "stars", Order: "desc", PerPage: 100,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("strategy %s/%s: %w", st.Topic, st.Language, err))
				return nil
			}
			for _, r := range repos {
				if r.IsArchived || r.IsFork {
					if r.Stars < cfg.MinStars*5 {
						continue
					}
				}
				if _, ok := seen[r.FullName]; ok {
					continue
				}
				seen[r.FullName] = struct{}{}
				all = append(all, r)
				if len(all) >= cfg.ResultCap {
					return errStopEarly
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil && err != errStopEarly {
		return Result{}, err
	}

	if len(all) > cfg.ResultCap {
		all = all[:cfg.ResultCap]
	}

	now := time.Now()
	for _, repo := range all {
		if err := e.ingest(ctx, repo, cfg.AITopics, cfg.AllowDemotion, now); err != nil {
			errs = append(errs, fmt.Errorf("ingest %s: %w", repo.FullName, err))
		}
	}

	out := Result{Discovered: len(all), Strategies: len(tasks)}
	for _, err := range errs {
		out.Errors = append(out.Errors, err)
	}
	return out, nil
}

var errStopEarly = fmt.Errorf("discovery: result cap reached")

func buildQuery(st Strategy, minStars int) string {
	q := fmt.Sprintf("topic:%s language:%s stars:>=%d", st.Topic, st.Language, minStars)
	return q
}

// ingest upserts a discovered repository, writes its initial metric
// snapshot, computes growth velocity, and calls upsert_tier — exactly the
// per-repo sequence of spec §4.5.
func (e *Engine) ingest(ctx context.Context, repo domain.Repository, aiTopics []string, allowDemotion bool, now time.Time) error {
	if err := e.store.UpsertRepository(ctx, repo); err != nil {
		return err
	}
	snapshot := domain.RepoMetricSnapshot{
		RepoID: repo.ID, Stars: repo.Stars, Forks: repo.Forks, OpenIssues: repo.OpenIssues,
		RecordedAt: now,
	}
	if err := e.store.UpsertMetricsBatch(ctx, []domain.RepoMetricSnapshot{snapshot}); err != nil {
		return err
	}

	growthVelocity := growthVelocityFromAge(repo, now)
	score := scorer.Score(repo, nil, aiTopics, now)
	tier := scorer.AssignTier(score, repo, growthVelocity)

	assignment := domain.TierAssignment{
		RepoID: repo.ID, Tier: tier, Stars: repo.Stars, GrowthVelocity: growthVelocity,
		EngagementScore: score.Engagement, ScanPriority: score.Total,
		NextScanDue: now, UpdatedAt: now,
	}
	return e.store.UpsertTier(ctx, assignment, allowDemotion)
}

// growthVelocityFromAge estimates monthly star growth percentage from
// creation date and current stars, for use where no prior snapshot exists.
func growthVelocityFromAge(repo domain.Repository, now time.Time) float64 {
	ageDays := repo.AgeDays(now)
	if ageDays < 1 {
		ageDays = 1
	}
	monthlyStars := float64(repo.Stars) / ageDays * 30
	if repo.Stars == 0 {
		return 0
	}
	return monthlyStars / float64(repo.Stars) * 100
}
