// Package core exposes the Controller facade: the single entry point a
// caller (the CLI, an HTTP handler, a test) uses to drive every component
// of the scout — discovery, planning, batch analysis, and the read-side
// status/report/metrics views. It owns no business logic of its own; it
// wires C1 through C9 together and translates between their internal
// types and the facade's public methods.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/repo-scout/domain"
	"github.com/R3E-Network/repo-scout/internal/alertnotify"
	"github.com/R3E-Network/repo-scout/internal/batch"
	"github.com/R3E-Network/repo-scout/internal/codehost"
	"github.com/R3E-Network/repo-scout/internal/config"
	"github.com/R3E-Network/repo-scout/internal/discovery"
	apperrors "github.com/R3E-Network/repo-scout/internal/errors"
	"github.com/R3E-Network/repo-scout/internal/fetcher"
	"github.com/R3E-Network/repo-scout/internal/llmclient"
	"github.com/R3E-Network/repo-scout/internal/logging"
	"github.com/R3E-Network/repo-scout/internal/metrics"
	"github.com/R3E-Network/repo-scout/internal/planner"
	"github.com/R3E-Network/repo-scout/internal/progress"
	"github.com/R3E-Network/repo-scout/internal/ratelimit"
	"github.com/R3E-Network/repo-scout/internal/scheduler"
	"github.com/R3E-Network/repo-scout/internal/scorer"
	"github.com/R3E-Network/repo-scout/internal/store"
)

// Controller wires together every component of the scout and is the
// facade surfaced to cmd/scout and to tests.
type Controller struct {
	cfg      *config.Config
	log      *logging.Logger
	metrics  *metrics.Metrics
	store    *store.Store
	governor *ratelimit.Governor
	fetcher  *fetcher.Fetcher
	discover *discovery.Engine
	plan     *planner.Planner
	orch     *batch.Orchestrator
	progress *progress.Tracker
}

// Init constructs a fully wired Controller from configuration. It opens the
// database connection, runs pending migrations, and connects the cache, but
// does not start the scheduler — callers that want cron ticks construct
// internal/scheduler.Scheduler separately with RunCycle as its CycleRunner.
func Init(cfg *config.Config) (*Controller, error) {
	log := logging.New("repo-scout", cfg.LogLevel, cfg.LogFormat)

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cache := store.NewCache(cfg.RedisAddr, "", 0, 10*time.Minute)
	st, err := store.Open(cfg.DatabaseURL, cache)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	governor := ratelimit.New(ratelimit.DefaultEndpointConfigs())
	host := codehost.NewGitHubAdapter(cfg.CodeHostToken)
	llm := llmclient.NewAnthropicAdapter(cfg.LLMAPIKey)
	f := fetcher.New(host, llm, governor, log)

	m := metrics.Init()

	var alertSink alertnotify.Sink = alertnotify.NoopSink{}
	if cfg.SlackWebhook != "" {
		alertSink = alertnotify.NewSlackSink(cfg.SlackWebhook, log)
	}

	return &Controller{
		cfg: cfg, log: log, metrics: m, store: st, governor: governor, fetcher: f,
		discover: discovery.New(f, st),
		plan:     planner.New(st),
		orch:     batch.New(st, f, governor, cfg, log, m, alertSink),
		progress: progress.New(st),
	}, nil
}

// Scan runs a single discovery pass (the regular hourly cycle's discovery
// phase) using the configured topics, languages, and the default result
// cap.
func (c *Controller) Scan(ctx context.Context) (discovery.Result, error) {
	return c.discover.Run(ctx, discovery.Config{
		Topics: c.cfg.Topics, Languages: c.cfg.Languages, MinStars: c.cfg.MinStars,
		ResultCap: c.cfg.DiscoveryLimit, AITopics: scorer.DefaultAITopics,
		AllowDemotion: c.cfg.AllowTierDemotion,
	})
}

// ScanComprehensive runs a manual, narrower discovery pass (spec §5's
// manual-trigger path), capped at ManualDiscoveryLimit.
func (c *Controller) ScanComprehensive(ctx context.Context) (discovery.Result, error) {
	return c.discover.Run(ctx, discovery.Config{
		Topics: c.cfg.Topics, Languages: c.cfg.Languages, MinStars: c.cfg.MinStars,
		ResultCap: c.cfg.ManualDiscoveryLimit, AITopics: scorer.DefaultAITopics,
		AllowDemotion: c.cfg.AllowTierDemotion,
	})
}

// Analyze runs a single repository's analysis synchronously, outside of any
// batch, for ad hoc / manual use (e.g. a CLI `analyze <owner>/<repo>`
// invocation). It does not touch tier cadences or batch bookkeeping.
func (c *Controller) Analyze(ctx context.Context, fullName string) (domain.Analysis, error) {
	repo, ok, err := c.store.GetRepositoryByFullName(ctx, fullName)
	if err != nil {
		return domain.Analysis{}, err
	}
	if !ok {
		return domain.Analysis{}, apperrors.NotFound("repository", fullName)
	}
	readme, _ := c.fetcher.GetReadme(ctx, repo.Owner, repo.Name)
	analysis, err := c.fetcher.Analyze(ctx, llmclient.AnalyzeRequest{
		Repository: repo, Readme: readme, ModelTier: domain.ModelHigh,
	})
	if err != nil {
		return domain.Analysis{}, err
	}
	if err := c.store.SaveAnalysis(ctx, analysis); err != nil {
		return domain.Analysis{}, err
	}
	return analysis, nil
}

// Status returns the in-memory progress of the currently running (or most
// recently finished) cycle.
func (c *Controller) Status() domain.CycleProgress {
	return c.progress.Snapshot()
}

// Report returns the daily summary statistics of spec §4.3's dashboard
// surface.
func (c *Controller) Report(ctx context.Context) (store.DailyStats, error) {
	return c.store.DailyStats(ctx)
}

// Metrics returns the comprehensive per-repository metrics view.
func (c *Controller) Metrics(ctx context.Context, repoID string) (store.ComprehensiveMetrics, error) {
	return c.store.ComprehensiveMetrics(ctx, repoID)
}

// Tiers returns up to limit repositories in the given tier, ranked by scan
// priority.
func (c *Controller) Tiers(ctx context.Context, tier, limit int) ([]domain.TierAssignment, error) {
	return c.store.GetReposByTier(ctx, tier, limit)
}

// BatchStart plans and starts a new batch analysis run across every tier
// due for a scan this cycle (or, if force is true, every known repo in
// each tier regardless of cadence).
func (c *Controller) BatchStart(ctx context.Context, batchID string, force bool) error {
	tasks, err := c.plan.Plan(ctx, c.cfg.Tiers(), force)
	if err != nil {
		return err
	}
	c.progress.SetActiveBatch(batchID)
	return c.orch.Start(ctx, batchID, tasks)
}

// BatchStatus returns a single batch's durable state, annotated with
// staleness.
func (c *Controller) BatchStatus(ctx context.Context, batchID string) (progress.BatchStatus, bool, error) {
	return c.progress.Status(ctx, batchID)
}

// BatchActive lists every batch currently in a non-terminal state.
func (c *Controller) BatchActive(ctx context.Context) ([]progress.BatchStatus, error) {
	return c.progress.Active(ctx)
}

// BatchHistory lists every batch's durable status, most recent first.
func (c *Controller) BatchHistory(ctx context.Context) ([]progress.BatchStatus, error) {
	return c.progress.History(ctx, "")
}

// BatchStop requests a running batch stop after its current repo
// finishes. Idempotent.
func (c *Controller) BatchStop(ctx context.Context, batchID string) error {
	return c.orch.Stop(ctx, batchID)
}

// BatchClear deletes a terminal batch's durable record.
func (c *Controller) BatchClear(ctx context.Context, batchID string) error {
	status, ok, err := c.progress.Status(ctx, batchID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.BatchNotFound(batchID)
	}
	switch status.Status {
	case domain.BatchCompleted, domain.BatchStopped, domain.BatchFailed:
	default:
		return apperrors.InvalidInput("batch_id", "cannot clear a batch that has not reached a terminal state")
	}
	return c.store.DeleteBatch(ctx, batchID)
}

// ResumeActiveBatches reattaches the orchestrator to every batch left
// running or recovering by a prior process (spec §4.8, §9) — call once at
// startup, before the scheduler begins taking new ticks.
func (c *Controller) ResumeActiveBatches(ctx context.Context) error {
	active, err := c.progress.Active(ctx)
	if err != nil {
		return err
	}
	for _, b := range active {
		c.progress.SetActiveBatch(b.BatchID)
		if err := c.orch.Resume(ctx, b.BatchID); err != nil {
			return fmt.Errorf("resume batch %s: %w", b.BatchID, err)
		}
	}
	return nil
}

// Scheduler builds the Cycle Controller (C8) driving this Controller's
// RunCycle on the configured hourly cron entry. The caller owns Start/Stop.
func (c *Controller) Scheduler() *scheduler.Scheduler {
	return scheduler.New(c, c.store, c.log)
}

// RunCycle implements scheduler.CycleRunner: it runs a full scheduler tick
// (discovery, planning, batch analysis) for the given cycle kind, per spec
// §4.8.
func (c *Controller) RunCycle(ctx context.Context, kind domain.CycleKind) error {
	c.progress.BeginCycle(kind)
	defer c.progress.EndCycle()

	resultCap := c.cfg.DiscoveryLimit
	if kind == domain.CycleSweep {
		resultCap = c.cfg.ManualDiscoveryLimit * 5
	}
	c.progress.SetPhase(domain.PhaseDiscovery)
	result, err := c.discover.Run(ctx, discovery.Config{
		Topics: c.cfg.Topics, Languages: c.cfg.Languages, MinStars: c.cfg.MinStars,
		ResultCap: resultCap, AITopics: scorer.DefaultAITopics,
		AllowDemotion: c.cfg.AllowTierDemotion,
	})
	if err != nil {
		c.progress.RecordError(err.Error())
		return err
	}
	for _, derr := range result.Errors {
		c.progress.RecordError(derr.Error())
	}

	c.progress.SetPhase(domain.PhasePlanning)
	tasks, err := c.plan.Plan(ctx, c.cfg.Tiers(), kind == domain.CycleSweep)
	if err != nil {
		c.progress.RecordError(err.Error())
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	c.progress.SetPhase(domain.PhaseBatch)
	batchID := fmt.Sprintf("%s-%d", kind, time.Now().Unix())
	c.progress.SetActiveBatch(batchID)
	return c.orch.Start(ctx, batchID, tasks)
}
