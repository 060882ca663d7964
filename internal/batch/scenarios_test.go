package batch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/repo-scout/domain"
	"github.com/R3E-Network/repo-scout/internal/config"
	"github.com/R3E-Network/repo-scout/internal/logging"
	"github.com/R3E-Network/repo-scout/internal/planner"
	"github.com/R3E-Network/repo-scout/internal/ratelimit"
)

// These scenarios mirror spec.md §8's S2-S6 testable properties, scaled down
// by roughly 100x in every time-based config value so the suite runs in
// milliseconds instead of minutes without changing the ratios the properties
// actually assert on.

func testLogger() *logging.Logger {
	return logging.New("batch-test", "error", "json")
}

func seedTasks(s *fakeStore, n int, tier int) []planner.ScanTask {
	tasks := make([]planner.ScanTask, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		full := fmt.Sprintf("org/repo-%d", i)
		repo := domain.Repository{
			ID: full, Owner: "org", Name: fmt.Sprintf("repo-%d", i), FullName: full,
			Stars: 10, CreatedAt: now.Add(-30 * 24 * time.Hour), PushedAt: now,
		}
		s.seedRepo(repo, tier, 0)
		tasks[i] = planner.ScanTask{FullName: full, RepoID: full, Tier: tier, ScanKind: "basic", ModelTier: domain.ModelSmall}
	}
	return tasks
}

// waitTerminal polls the fake store until batchID reaches a terminal status
// or timeout elapses, returning the last observed state.
func waitTerminal(t *testing.T, s *fakeStore, batchID string, timeout time.Duration) domain.BatchState {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if st, ok, _ := s.GetBatch(context.Background(), batchID); ok {
			switch st.Status {
			case domain.BatchCompleted, domain.BatchStopped, domain.BatchFailed:
				return st
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("batch %s did not reach a terminal state within %s", batchID, timeout)
	return domain.BatchState{}
}

// S2: hourly cycle budget — a batch must stop within its runtime budget
// without processing every overdue repo, and MarkScanned must only have
// touched the repos actually processed this cycle.
func TestS2HourlyCycleBudgetStopsWithinRuntimeWindow(t *testing.T) {
	s := newFakeStore()
	tasks := seedTasks(s, 40, 3)
	f := &fakeFetcher{delay: 30 * time.Millisecond, result: domain.Analysis{
		Recommendation: domain.RecommendationHold,
		Scores:         domain.AnalysisScores{Investment: 10},
	}}
	cfg := &config.Config{
		ChunkSize: 5, MaxRetries: 0, AnalysisTimeout: 200 * time.Millisecond,
		DelayBetweenAnalyses: 20 * time.Millisecond, RetryBackoffMultiplier: 2,
		MaxConsecutiveFailures: 1000, MaxRecoveryAttempts: 3, RecoveryDelay: time.Millisecond,
		MaxBatchRuntime: 600 * time.Millisecond, HealthCheckInterval: 50 * time.Millisecond,
		MinSuccessRate: 0, MaxCreditsPerBatch: 0, MaxCreditsPerHour: 0, CreditsPerAnalysis: 1,
		AlertThreshold: 1000, ConcurrentLLMWorkersFree: 1,
	}
	o := New(s, f, ratelimit.New(nil), cfg, testLogger(), nil, nil)

	start := time.Now()
	require.NoError(t, o.Start(context.Background(), "s2-batch", tasks))
	final := waitTerminal(t, s, "s2-batch", 3*time.Second)
	elapsed := time.Since(start)

	assert.Equal(t, domain.BatchCompleted, final.Status)
	assert.Less(t, final.Completed, 40, "not every overdue repo should fit in the runtime budget")
	assert.Greater(t, final.Completed, 0)
	assert.Less(t, elapsed, 2*time.Second, "a stuck runtime guard would hang the whole suite")

	s.mu.Lock()
	scanned := len(s.scannedRepoIDs)
	s.mu.Unlock()
	assert.Equal(t, final.Completed, scanned, "MarkScanned must only fire for repos actually processed this cycle")
}

// S3: self-healing — five consecutive LLM failures push the batch through
// recovering and back to running, and it still finishes.
func TestS3SelfHealingRecoversFromConsecutiveFailures(t *testing.T) {
	s := newFakeStore()
	tasks := seedTasks(s, 10, 3)
	f := &fakeFetcher{failNext: 5, failErr: assert.AnError, result: domain.Analysis{
		Recommendation: domain.RecommendationHold,
		Scores:         domain.AnalysisScores{Investment: 10},
	}}
	cfg := &config.Config{
		ChunkSize: 5, MaxRetries: 0, AnalysisTimeout: 200 * time.Millisecond,
		DelayBetweenAnalyses: 2 * time.Millisecond, RetryBackoffMultiplier: 2,
		MaxConsecutiveFailures: 5, MaxRecoveryAttempts: 3, RecoveryDelay: 20 * time.Millisecond,
		MaxBatchRuntime: 2 * time.Second, HealthCheckInterval: 500 * time.Millisecond,
		MinSuccessRate: 0, MaxCreditsPerBatch: 0, MaxCreditsPerHour: 0, CreditsPerAnalysis: 1,
		AlertThreshold: 1000, ConcurrentLLMWorkersFree: 1,
	}
	o := New(s, f, ratelimit.New(nil), cfg, testLogger(), nil, nil)

	require.NoError(t, o.Start(context.Background(), "s3-batch", tasks))
	final := waitTerminal(t, s, "s3-batch", 3*time.Second)

	assert.Equal(t, domain.BatchCompleted, final.Status)
	assert.GreaterOrEqual(t, final.Completed, final.Total-5)

	s.mu.Lock()
	history := append([]domain.BatchStatus(nil), s.statusHistory...)
	s.mu.Unlock()
	assert.Contains(t, history, domain.BatchRecovering, "batch must pass through recovering after the failure streak")
	recoveringAt := -1
	for i, st := range history {
		if st == domain.BatchRecovering {
			recoveringAt = i
			break
		}
	}
	require.NotEqual(t, -1, recoveringAt)
	assert.Contains(t, history[recoveringAt+1:], domain.BatchRunning, "batch must return to running after recovering")
}

// S4: credit cap — a batch stops outright the moment its credit budget is
// exhausted, with a health message that names the cause.
func TestS4CreditCapStopsBatch(t *testing.T) {
	s := newFakeStore()
	tasks := seedTasks(s, 20, 3)
	f := &fakeFetcher{result: domain.Analysis{
		Recommendation: domain.RecommendationHold,
		Scores:         domain.AnalysisScores{Investment: 10},
	}}
	cfg := &config.Config{
		ChunkSize: 5, MaxRetries: 0, AnalysisTimeout: 200 * time.Millisecond,
		DelayBetweenAnalyses: time.Millisecond, RetryBackoffMultiplier: 2,
		MaxConsecutiveFailures: 1000, MaxRecoveryAttempts: 3, RecoveryDelay: time.Millisecond,
		MaxBatchRuntime: 2 * time.Second, HealthCheckInterval: 500 * time.Millisecond,
		MinSuccessRate: 0, MaxCreditsPerBatch: 10, MaxCreditsPerHour: 10000, CreditsPerAnalysis: 2,
		AlertThreshold: 1000, ConcurrentLLMWorkersFree: 1,
	}
	o := New(s, f, ratelimit.New(nil), cfg, testLogger(), nil, nil)

	require.NoError(t, o.Start(context.Background(), "s4-batch", tasks))
	final := waitTerminal(t, s, "s4-batch", 3*time.Second)

	assert.Equal(t, domain.BatchStopped, final.Status)
	assert.Equal(t, 5, final.Completed+final.Failed)
	assert.Contains(t, final.Health, "credit limit")
}

// S5: crash resume — a batch left running by a simulated process restart is
// picked back up by a fresh Orchestrator sharing the same durable store, and
// finishes without reprocessing any already-completed repo.
func TestS5CrashResumeContinuesFromCheckpoint(t *testing.T) {
	s := newFakeStore()
	tasks := seedTasks(s, 30, 3)

	names := make([]string, len(tasks))
	for i, tk := range tasks {
		names[i] = tk.FullName
	}
	var results []domain.RepoResult
	for _, name := range names[:10] {
		results = append(results, domain.RepoResult{RepoFullName: name, Status: domain.ResultSuccess})
	}
	crashed := domain.BatchState{
		BatchID: "s5-batch", Status: domain.BatchRunning, Total: 30, Completed: 10,
		Repositories: names, Results: results, StartedAt: time.Now(), UpdatedAt: time.Now(),
		Health: string(HealthHealthy),
	}
	require.NoError(t, s.PutBatch(context.Background(), crashed))

	f := &fakeFetcher{result: domain.Analysis{
		Recommendation: domain.RecommendationHold,
		Scores:         domain.AnalysisScores{Investment: 10},
	}}
	cfg := &config.Config{
		ChunkSize: 5, MaxRetries: 0, AnalysisTimeout: 200 * time.Millisecond,
		DelayBetweenAnalyses: time.Millisecond, RetryBackoffMultiplier: 2,
		MaxConsecutiveFailures: 1000, MaxRecoveryAttempts: 3, RecoveryDelay: time.Millisecond,
		MaxBatchRuntime: 2 * time.Second, HealthCheckInterval: 500 * time.Millisecond,
		MinSuccessRate: 0, MaxCreditsPerBatch: 0, MaxCreditsPerHour: 0, CreditsPerAnalysis: 1,
		AlertThreshold: 1000, ConcurrentLLMWorkersFree: 1,
	}
	// A fresh Orchestrator stands in for the restarted process; it only
	// shares the durable store with the "crashed" run, never the old
	// in-memory Orchestrator or its goroutines.
	o := New(s, f, ratelimit.New(nil), cfg, testLogger(), nil, nil)

	require.NoError(t, o.Resume(context.Background(), "s5-batch"))
	final := waitTerminal(t, s, "s5-batch", 3*time.Second)

	assert.Equal(t, domain.BatchCompleted, final.Status)
	assert.Equal(t, 30, final.Completed+final.Failed+final.Skipped)

	seen := map[string]int{}
	for _, res := range final.Results {
		seen[res.RepoFullName]++
	}
	assert.Len(t, seen, 30, "every repo should appear in the results exactly once")
	for name, count := range seen {
		assert.Equalf(t, 1, count, "repo %s was analyzed more than once after resume", name)
	}
}

// S6: alerting — an investment score that crosses the urgent threshold
// raises exactly one alert, carrying the score and model in its metadata.
func TestS6AlertingEmitsInvestmentOpportunityAlert(t *testing.T) {
	s := newFakeStore()
	now := time.Now()
	repo := domain.Repository{
		ID: "org/hot-repo", Owner: "org", Name: "hot-repo", FullName: "org/hot-repo",
		Stars: 400, CreatedAt: now.Add(-100 * 24 * time.Hour), PushedAt: now,
	}
	s.seedRepo(repo, 1, 0)
	task := planner.ScanTask{FullName: repo.FullName, RepoID: repo.ID, Tier: 1, ScanKind: "deep", ModelTier: domain.ModelHigh}

	f := &fakeFetcher{result: domain.Analysis{
		Recommendation: domain.RecommendationStrongBuy,
		Scores:         domain.AnalysisScores{Investment: 92},
	}}
	cfg := &config.Config{
		ChunkSize: 5, MaxRetries: 0, AnalysisTimeout: 200 * time.Millisecond,
		DelayBetweenAnalyses: time.Millisecond, RetryBackoffMultiplier: 2,
		MaxConsecutiveFailures: 1000, MaxRecoveryAttempts: 3, RecoveryDelay: time.Millisecond,
		MaxBatchRuntime: 2 * time.Second, HealthCheckInterval: 500 * time.Millisecond,
		MinSuccessRate: 0, MaxCreditsPerBatch: 0, MaxCreditsPerHour: 0, CreditsPerAnalysis: 1,
		AlertThreshold: 80, ConcurrentLLMWorkersFree: 1,
	}
	o := New(s, f, ratelimit.New(nil), cfg, testLogger(), nil, nil)

	require.NoError(t, o.Start(context.Background(), "s6-batch", []planner.ScanTask{task}))
	final := waitTerminal(t, s, "s6-batch", 3*time.Second)
	assert.Equal(t, domain.BatchCompleted, final.Status)

	s.mu.Lock()
	alerts := append([]domain.Alert(nil), s.alerts...)
	s.mu.Unlock()
	require.Len(t, alerts, 1, "exactly one alert should fire")
	a := alerts[0]
	assert.Equal(t, domain.AlertTypeInvestmentOpportunity, a.Type)
	assert.Equal(t, domain.AlertLevelUrgent, a.Level)
	assert.Equal(t, 92, a.Metadata["investment_score"])
	assert.Equal(t, string(domain.ModelHigh), a.Metadata["model_used"])
}
