// Package batch implements C7, the Batch Orchestrator: a resumable,
// checkpointed, chunked repository-analysis run with a concurrent health
// monitor and self-healing recovery, exactly the state machine and
// per-repo processing of spec §4.7. There is no existing worker-pool
// primitive in the teacher to reuse, so the chunk-level concurrency here is
// new code, shaped like the ticker-driven goroutines of the teacher's
// services/automation package, generalized to a bounded pool.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/repo-scout/domain"
	"github.com/R3E-Network/repo-scout/internal/alertnotify"
	"github.com/R3E-Network/repo-scout/internal/config"
	apperrors "github.com/R3E-Network/repo-scout/internal/errors"
	"github.com/R3E-Network/repo-scout/internal/llmclient"
	"github.com/R3E-Network/repo-scout/internal/logging"
	"github.com/R3E-Network/repo-scout/internal/metrics"
	"github.com/R3E-Network/repo-scout/internal/planner"
	"github.com/R3E-Network/repo-scout/internal/ratelimit"
	"github.com/R3E-Network/repo-scout/internal/scorer"
)

// repoStore is the subset of *store.Store the orchestrator depends on, kept
// as an interface so batch-scenario tests can exercise the state machine
// against an in-memory fake instead of a real database.
type repoStore interface {
	GetRepository(ctx context.Context, id string) (domain.Repository, bool, error)
	GetRepositoryByFullName(ctx context.Context, fullName string) (domain.Repository, bool, error)
	UpsertRepository(ctx context.Context, r domain.Repository) error
	SaveAnalysis(ctx context.Context, a domain.Analysis) error
	SaveAlert(ctx context.Context, a domain.Alert) error
	MarkScanned(ctx context.Context, repoID, scanKind string, at time.Time, rescanInterval time.Duration) error
	GetTierAssignment(ctx context.Context, repoID string) (domain.TierAssignment, bool, error)
	PutBatch(ctx context.Context, b domain.BatchState) error
	GetBatch(ctx context.Context, batchID string) (domain.BatchState, bool, error)
}

// repoFetcher is the subset of *fetcher.Fetcher the orchestrator depends on.
type repoFetcher interface {
	GetRepository(ctx context.Context, owner, name string) (domain.Repository, error)
	GetReadme(ctx context.Context, owner, name string) (string, error)
	Analyze(ctx context.Context, req llmclient.AnalyzeRequest) (domain.Analysis, error)
}

// Orchestrator runs batches of planner.ScanTasks to completion, persisting
// BatchState to the Repository Store between every chunk.
type Orchestrator struct {
	store    repoStore
	fetcher  repoFetcher
	governor *ratelimit.Governor
	cfg      *config.Config
	log      *logging.Logger
	metrics  *metrics.Metrics
	alerts   alertnotify.Sink

	mu     sync.Mutex
	active map[string]*run
}

type run struct {
	state *domain.BatchState
	tasks []planner.ScanTask
	mu    sync.Mutex // guards state and failures
	stop  chan struct{}
	done  chan struct{}

	failures int // consecutive analysis failures across the whole run
}

func New(s repoStore, f repoFetcher, g *ratelimit.Governor, cfg *config.Config, log *logging.Logger, m *metrics.Metrics, alerts alertnotify.Sink) *Orchestrator {
	if alerts == nil {
		alerts = alertnotify.NoopSink{}
	}
	return &Orchestrator{
		store: s, fetcher: f, governor: g, cfg: cfg, log: log, metrics: m, alerts: alerts,
		active: make(map[string]*run),
	}
}

// Start begins processing batchID's tasks in the background and returns
// immediately. Progress is observed through the batch state it persists to
// the store (see internal/progress); Active reports whether it is still running.
func (o *Orchestrator) Start(ctx context.Context, batchID string, tasks []planner.ScanTask) error {
	o.mu.Lock()
	if _, exists := o.active[batchID]; exists {
		o.mu.Unlock()
		return apperrors.InvalidInput("batch_id", "batch already active")
	}
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.FullName
	}
	state := &domain.BatchState{
		BatchID: batchID, Status: domain.BatchPending, Total: len(tasks),
		StartedAt: time.Now(), UpdatedAt: time.Now(), Repositories: names,
		Health: string(HealthHealthy),
		Credits: domain.Credits{Limit: o.cfg.MaxCreditsPerBatch},
	}
	r := &run{state: state, tasks: tasks, stop: make(chan struct{}), done: make(chan struct{})}
	o.active[batchID] = r
	o.mu.Unlock()

	if err := o.store.PutBatch(ctx, *state); err != nil {
		return err
	}

	go o.runBatch(context.Background(), batchID, r)
	return nil
}

// Stop signals a running batch to stop after its current repo finishes.
// Idempotent: stopping an already-stopped (or otherwise terminal) batch is
// a no-op, per spec §8.
func (o *Orchestrator) Stop(ctx context.Context, batchID string) error {
	o.mu.Lock()
	r, exists := o.active[batchID]
	o.mu.Unlock()
	if !exists {
		state, ok, err := o.store.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.BatchNotFound(batchID)
		}
		if err := state.TransitionTo(domain.BatchStopped); err != nil {
			return err
		}
		state.UpdatedAt = time.Now()
		return o.store.PutBatch(ctx, state)
	}

	r.mu.Lock()
	err := r.state.TransitionTo(domain.BatchStopped)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	return nil
}

// stopForBudget transitions r into BatchStopped and signals every worker to
// stop once a credit budget is crossed mid-batch (spec §7). Idempotent and
// safe to call concurrently from multiple workers in the same chunk.
func (o *Orchestrator) stopForBudget(r *run, reason string) {
	r.mu.Lock()
	_ = r.state.TransitionTo(domain.BatchStopped)
	r.state.Health = "critical: " + reason
	r.state.UpdatedAt = time.Now()
	r.mu.Unlock()
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

// Resume reattaches a goroutine to a batch left in a non-terminal state by a
// process restart (spec §4.8, §9). It reconstructs the remaining scan tasks
// from domain.BatchState.Remaining(), which only retains bare repo full
// names: each is looked up by full name for its RepoID, then by RepoID for
// its current tier assignment, to rebuild ScanKind and ModelTier. The
// original per-repo rank within its tier (and so tier 2's top-N deep-model
// override) is not preserved across a restart; resumed tasks get the plain
// tier-default model unless the repo's growth velocity alone crosses
// scorer.VeryHighGrowthThreshold. A repo that has since been removed from the
// store is silently dropped from the resumed run. Resume is a no-op if
// batchID is already active or does not exist or is already terminal.
func (o *Orchestrator) Resume(ctx context.Context, batchID string) error {
	o.mu.Lock()
	_, exists := o.active[batchID]
	o.mu.Unlock()
	if exists {
		return nil
	}

	state, ok, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	switch state.Status {
	case domain.BatchPending, domain.BatchRunning, domain.BatchRecovering:
	default:
		return nil
	}

	cadences := o.cfg.Tiers()
	var tasks []planner.ScanTask
	for _, fullName := range state.Remaining() {
		repo, ok, err := o.store.GetRepositoryByFullName(ctx, fullName)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		assignment, ok, err := o.store.GetTierAssignment(ctx, repo.ID)
		if err != nil {
			return err
		}
		tier := domain.Tier3
		growth := 0.0
		if ok {
			tier = assignment.Tier
			growth = assignment.GrowthVelocity
		}
		cadence := cadences[tier-1]
		tasks = append(tasks, planner.ScanTask{
			FullName: fullName, RepoID: repo.ID, Tier: tier,
			ScanKind: cadence.ScanKind, ModelTier: scorer.RecommendModel(tier, scorer.VeryHighGrowth(growth)),
		})
	}

	stateCopy := state
	r := &run{state: &stateCopy, tasks: tasks, stop: make(chan struct{}), done: make(chan struct{})}
	o.mu.Lock()
	o.active[batchID] = r
	o.mu.Unlock()

	o.log.WithFields(nil).WithField("batch_id", batchID).WithField("remaining", len(tasks)).Info("resuming batch after restart")
	go o.runBatch(context.Background(), batchID, r)
	return nil
}

// Active reports whether batchID currently has a goroutine running.
func (o *Orchestrator) Active(batchID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[batchID]
	return ok
}

func (o *Orchestrator) runBatch(ctx context.Context, batchID string, r *run) {
	defer func() {
		o.mu.Lock()
		delete(o.active, batchID)
		o.mu.Unlock()
		close(r.done)
	}()

	r.mu.Lock()
	_ = r.state.TransitionTo(domain.BatchRunning)
	r.state.UpdatedAt = time.Now()
	stateCopy := *r.state
	r.mu.Unlock()
	_ = o.store.PutBatch(ctx, stateCopy)

	healthDone := make(chan struct{})
	go o.monitorHealth(ctx, r, healthDone)
	defer close(healthDone)

	chunks := chunkTasks(r.tasks, o.cfg.ChunkSize)

chunkLoop:
	for _, chunk := range chunks {
		select {
		case <-r.stop:
			break chunkLoop
		default:
		}

		r.mu.Lock()
		elapsed := time.Since(r.state.StartedAt)
		r.mu.Unlock()
		if elapsed > o.cfg.MaxBatchRuntime {
			break chunkLoop
		}

		results := o.processChunk(ctx, r, chunk)

		r.mu.Lock()
		for _, res := range results {
			r.state.Results = append(r.state.Results, res)
			switch res.Status {
			case domain.ResultSuccess:
				r.state.Completed++
			case domain.ResultSkipped:
				r.state.Skipped++
			default:
				r.state.Failed++
			}
		}
		r.state.Checkpoint = &domain.Checkpoint{
			CompletedRepos: namesWithStatus(r.state.Results, domain.ResultSuccess),
			FailedRepos:    namesWithStatus(r.state.Results, domain.ResultFailed, domain.ResultTimeout),
			RemainingRepos: r.state.Remaining(),
			Health:         r.state.Health,
			TakenAt:        time.Now(),
		}
		r.state.UpdatedAt = time.Now()
		stateCopy = *r.state
		r.mu.Unlock()
		if err := o.store.PutBatch(ctx, stateCopy); err != nil {
			o.log.WithError(err).Warn("checkpoint persist failed")
		}

		r.mu.Lock()
		tooManyFailures := r.failures >= o.cfg.MaxConsecutiveFailures
		r.mu.Unlock()
		if tooManyFailures {
			if recovered := o.recover(ctx, r); !recovered {
				break chunkLoop
			}
			r.mu.Lock()
			r.failures = 0
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	if r.state.Status != domain.BatchStopped && r.state.Status != domain.BatchFailed {
		_ = r.state.TransitionTo(domain.BatchCompleted)
	}
	now := time.Now()
	r.state.EndedAt = &now
	r.state.UpdatedAt = now
	stateCopy = *r.state
	r.mu.Unlock()
	_ = o.store.PutBatch(ctx, stateCopy)

	if o.metrics != nil {
		o.metrics.BatchesTotal.WithLabelValues(string(stateCopy.Status)).Inc()
		if stateCopy.Processed() > 0 {
			o.metrics.BatchSuccessRate.Set(float64(stateCopy.Completed) / float64(stateCopy.Processed()))
		}
	}
}

// recover moves the batch into BatchRecovering, waits RecoveryDelay, and
// attempts to resume. Returns false if the recovery budget is exhausted,
// in which case the batch is transitioned to BatchFailed.
func (o *Orchestrator) recover(ctx context.Context, r *run) bool {
	r.mu.Lock()
	_ = r.state.TransitionTo(domain.BatchRecovering)
	r.state.RecoveryAttempts++
	attempts := r.state.RecoveryAttempts
	r.state.UpdatedAt = time.Now()
	stateCopy := *r.state
	r.mu.Unlock()
	_ = o.store.PutBatch(ctx, stateCopy)

	if attempts > o.cfg.MaxRecoveryAttempts {
		r.mu.Lock()
		_ = r.state.TransitionTo(domain.BatchFailed)
		r.mu.Unlock()
		return false
	}

	select {
	case <-time.After(o.cfg.RecoveryDelay):
	case <-r.stop:
		return false
	}

	r.mu.Lock()
	_ = r.state.TransitionTo(domain.BatchRunning)
	r.mu.Unlock()
	return true
}

func (o *Orchestrator) monitorHealth(ctx context.Context, r *run, done <-chan struct{}) {
	ticker := time.NewTicker(o.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			elapsed := time.Since(r.state.StartedAt)
			h := evaluateHealth(r.state.Completed, r.state.Failed, r.state.Skipped, elapsed, o.cfg.MaxBatchRuntime, o.cfg.MinSuccessRate, false)
			r.state.Health = string(h)
			critical := h == HealthCritical
			r.mu.Unlock()
			if critical {
				select {
				case <-r.stop:
				default:
					close(r.stop)
				}
				return
			}
		}
	}
}

func chunkTasks(tasks []planner.ScanTask, size int) [][]planner.ScanTask {
	if size <= 0 {
		size = 5
	}
	var chunks [][]planner.ScanTask
	for i := 0; i < len(tasks); i += size {
		end := i + size
		if end > len(tasks) {
			end = len(tasks)
		}
		chunks = append(chunks, tasks[i:end])
	}
	return chunks
}

func namesWithStatus(results []domain.RepoResult, statuses ...domain.ResultStatus) []string {
	want := make(map[domain.ResultStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []string
	for _, r := range results {
		if want[r.Status] {
			out = append(out, r.RepoFullName)
		}
	}
	return out
}

// analyzeOne is shared by processChunk: it looks up (or fetches+upserts)
// the repository, runs the LLM analysis under the configured retry/timeout
// budget, and saves the result, emitting an alert when the score crosses
// the configured threshold. Crossing a credit budget stops the enclosing
// batch outright (spec §7) rather than merely failing this one repo.
func (o *Orchestrator) analyzeOne(ctx context.Context, r *run, task planner.ScanTask) domain.RepoResult {
	start := time.Now()
	repo, ok, err := o.store.GetRepository(ctx, task.RepoID)
	if err != nil {
		return domain.RepoResult{RepoFullName: task.FullName, Status: domain.ResultFailed, Error: err.Error(), Duration: time.Since(start)}
	}
	if !ok {
		owner, name := splitFullName(task.FullName)
		fetched, err := o.fetcher.GetRepository(ctx, owner, name)
		if err != nil {
			return domain.RepoResult{RepoFullName: task.FullName, Status: domain.ResultFailed, Error: err.Error(), Duration: time.Since(start)}
		}
		if err := o.store.UpsertRepository(ctx, fetched); err != nil {
			return domain.RepoResult{RepoFullName: task.FullName, Status: domain.ResultFailed, Error: err.Error(), Duration: time.Since(start)}
		}
		repo = fetched
	}

	if exceeded := o.governor.ChargeBatch(task.RepoID, o.cfg.CreditsPerAnalysis, o.cfg.MaxCreditsPerBatch); exceeded {
		o.stopForBudget(r, "batch credit limit exceeded")
		return domain.RepoResult{RepoFullName: task.FullName, Status: domain.ResultFailed, Error: "batch credit limit exceeded", Duration: time.Since(start)}
	}
	if exceeded := o.governor.ChargeHourly(o.cfg.CreditsPerAnalysis, o.cfg.MaxCreditsPerHour); exceeded {
		o.stopForBudget(r, "hourly credit limit exceeded")
		return domain.RepoResult{RepoFullName: task.FullName, Status: domain.ResultFailed, Error: "hourly credit limit exceeded", Duration: time.Since(start)}
	}

	readme, _ := o.fetcher.GetReadme(ctx, repo.Owner, repo.Name)

	var analysis domain.Analysis
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AnalysisTimeout)
		analysis, lastErr = o.fetcher.Analyze(attemptCtx, llmclient.AnalyzeRequest{
			Repository: repo, Readme: readme, ModelTier: task.ModelTier,
		})
		cancel()
		if lastErr == nil {
			break
		}
		if attempt < o.cfg.MaxRetries {
			time.Sleep(3 * time.Second)
		}
	}
	if lastErr != nil {
		status := domain.ResultFailed
		if lastErr == context.DeadlineExceeded {
			status = domain.ResultTimeout
		}
		return domain.RepoResult{RepoFullName: task.FullName, Status: status, Error: lastErr.Error(), Duration: time.Since(start)}
	}

	if err := o.store.SaveAnalysis(ctx, analysis); err != nil {
		return domain.RepoResult{RepoFullName: task.FullName, Status: domain.ResultFailed, Error: err.Error(), Duration: time.Since(start)}
	}
	growthScore := scorer.Score(repo, nil, scorer.DefaultAITopics, time.Now()).Growth
	o.maybeAlert(ctx, repo, analysis, growthScore)
	rescanInterval := o.cfg.Tiers()[task.Tier-1].RescanInterval
	if err := o.store.MarkScanned(ctx, repo.ID, task.ScanKind, time.Now(), rescanInterval); err != nil {
		o.log.WithError(err).Warn("mark_scanned failed")
	}

	return domain.RepoResult{
		RepoFullName: task.FullName, Status: domain.ResultSuccess,
		Duration: time.Since(start), CreditsUsed: o.cfg.CreditsPerAnalysis,
	}
}

// growthSpikeThreshold is the score.growth bar of spec §4.7/§8: a repo
// crossing it alerts regardless of its investment score.
const growthSpikeThreshold = 90.0

// maybeAlert evaluates both of spec §4.7's independent alert triggers — an
// investment score over the configured threshold, OR a growth score at or
// above growthSpikeThreshold — emitting one alert per condition that holds.
func (o *Orchestrator) maybeAlert(ctx context.Context, repo domain.Repository, analysis domain.Analysis, growthScore float64) {
	if analysis.Scores.Investment >= o.cfg.AlertThreshold {
		level := domain.AlertLevelMedium
		if analysis.Scores.Investment >= 90 {
			level = domain.AlertLevelUrgent
		} else if analysis.Scores.Investment >= 80 {
			level = domain.AlertLevelHigh
		}
		o.sendAlert(ctx, domain.Alert{
			RepoID: repo.ID, Type: domain.AlertTypeInvestmentOpportunity, Level: level,
			Message: fmt.Sprintf("%s scored %d on investment potential (%s)", repo.FullName, analysis.Scores.Investment, analysis.Recommendation),
			Metadata: map[string]interface{}{
				"investment_score": analysis.Scores.Investment,
				"recommendation":   string(analysis.Recommendation),
				"model_used":       string(analysis.ModelUsed),
			},
			SentAt: time.Now(),
		}, repo)
	}

	if growthScore >= growthSpikeThreshold {
		o.sendAlert(ctx, domain.Alert{
			RepoID: repo.ID, Type: domain.AlertTypeGrowthSpike, Level: domain.AlertLevelHigh,
			Message:  fmt.Sprintf("%s growth score reached %.0f", repo.FullName, growthScore),
			Metadata: map[string]interface{}{"growth_score": growthScore},
			SentAt:   time.Now(),
		}, repo)
	}
}

func (o *Orchestrator) sendAlert(ctx context.Context, alert domain.Alert, repo domain.Repository) {
	if err := o.store.SaveAlert(ctx, alert); err != nil {
		o.log.WithError(err).Warn("save_alert failed")
		return
	}
	if err := o.alerts.Send(ctx, alert, repo); err != nil {
		o.log.WithError(err).Debug("alert sink delivery failed")
	}
}

func splitFullName(fullName string) (owner, name string) {
	for i := 0; i < len(fullName); i++ {
		if fullName[i] == '/' {
			return fullName[:i], fullName[i+1:]
		}
	}
	return "", fullName
}
