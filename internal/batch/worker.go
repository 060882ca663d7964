package batch

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/repo-scout/domain"
	"github.com/R3E-Network/repo-scout/internal/planner"
)

// processChunk runs one chunk of tasks through analyzeOne with a
// worker-pool bounded by cfg.ConcurrentLLMWorkers (up to 3 on paid plans, 1
// otherwise, per spec §5), pausing DelayBetweenAnalyses (scaled by
// RetryBackoffMultiplier^consecutiveFailures) between individual analyses
// to stay polite to upstream even though the Governor already gates calls.
func (o *Orchestrator) processChunk(ctx context.Context, r *run, chunk []planner.ScanTask) []domain.RepoResult {
	workers := o.cfg.ConcurrentLLMWorkers()
	if workers <= 0 {
		workers = 1
	}

	tasksCh := make(chan planner.ScanTask)
	resultsCh := make(chan domain.RepoResult, len(chunk))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasksCh {
				select {
				case <-r.stop:
					resultsCh <- domain.RepoResult{RepoFullName: task.FullName, Status: domain.ResultSkipped}
					continue
				default:
				}

				r.mu.Lock()
				r.state.CurrentRepo = task.FullName
				failures := r.failures
				r.mu.Unlock()

				delay := o.cfg.DelayBetweenAnalyses
				if failures > 0 {
					delay = time.Duration(float64(delay) * pow(o.cfg.RetryBackoffMultiplier, failures))
				}

				res := o.analyzeOne(ctx, r, task)
				resultsCh <- res

				r.mu.Lock()
				if res.Status == domain.ResultSuccess {
					r.failures = 0
				} else {
					r.failures++
				}
				r.mu.Unlock()

				if o.metrics != nil {
					o.metrics.RepoResultsTotal.WithLabelValues(string(res.Status)).Inc()
				}

				select {
				case <-time.After(delay):
				case <-r.stop:
				}
			}
		}()
	}

	go func() {
		defer close(tasksCh)
		for _, task := range chunk {
			select {
			case tasksCh <- task:
			case <-r.stop:
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	results := make([]domain.RepoResult, 0, len(chunk))
	for res := range resultsCh {
		results = append(results, res)
	}
	return results
}

// pow computes base^exp for small non-negative integer exponents, avoiding
// a math.Pow import for what is always a tiny backoff multiplier.
func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
