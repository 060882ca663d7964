// Package fetcher implements C2, the External Fetcher: it is the only part
// of the system allowed to call out to a code-host or LLM adapter, and does
// so under the Rate-Limit Governor's gate, a bounded retry loop, a circuit
// breaker around the LLM path, and a process-wide concurrency cap.
package fetcher

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/R3E-Network/repo-scout/domain"
	apperrors "github.com/R3E-Network/repo-scout/internal/errors"
	"github.com/R3E-Network/repo-scout/internal/llmclient"
	"github.com/R3E-Network/repo-scout/internal/logging"
	"github.com/R3E-Network/repo-scout/internal/ratelimit"

	"github.com/R3E-Network/repo-scout/internal/codehost"
)

// maxConcurrentCalls caps in-flight outbound calls across both adapters,
// regardless of how many goroutines are racing to fetch. Sized per spec §5's
// 5-concurrent-search ceiling plus headroom for analysis calls in the same
// cycle.
const maxConcurrentCalls = 6

// Fetcher is the sole caller of codehost.Client and llmclient.Client.
type Fetcher struct {
	host     codehost.Client
	llm      llmclient.Client
	governor *ratelimit.Governor
	log      *logging.Logger
	sem      chan struct{}
	breaker  *gobreaker.CircuitBreaker
	retry    retryConfig
}

// New builds a Fetcher wired to concrete adapters and a shared governor.
func New(host codehost.Client, llm llmclient.Client, governor *ratelimit.Governor, log *logging.Logger) *Fetcher {
	breakerSettings := gobreaker.Settings{
		Name:        "llm-analyze",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(nil).WithField("breaker", name).
				WithField("from", from.String()).WithField("to", to.String()).
				Warn("circuit breaker state change")
		},
	}
	return &Fetcher{
		host:     host,
		llm:      llm,
		governor: governor,
		log:      log,
		sem:      make(chan struct{}, maxConcurrentCalls),
		breaker:  gobreaker.NewCircuitBreaker(breakerSettings),
		retry:    defaultRetryConfig(),
	}
}

func (f *Fetcher) acquireSlot(ctx context.Context) error {
	select {
	case f.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fetcher) releaseSlot() { <-f.sem }

// call runs fn under the concurrency cap, the governor's token bucket for
// endpoint, and the shared retry loop. It never retries permanent failures
// (NotFound, AuthFailed, InvalidResponse, InvariantViolation).
func (f *Fetcher) call(ctx context.Context, endpoint string, fn func() error) error {
	if err := f.acquireSlot(ctx); err != nil {
		return err
	}
	defer f.releaseSlot()

	if err := f.governor.Acquire(ctx, endpoint, 1, true); err != nil {
		return err
	}

	start := time.Now()
	err := withRetry(ctx, f.retry, apperrors.IsTransient, fn)
	f.log.LogUpstreamCall(ctx, "codehost", endpoint, time.Since(start), err)
	return err
}

// Search runs a single code-host search strategy.
func (f *Fetcher) Search(ctx context.Context, params codehost.SearchParams) ([]domain.Repository, error) {
	var out []domain.Repository
	err := f.call(ctx, "search", func() error {
		var innerErr error
		out, innerErr = f.host.Search(ctx, params)
		return innerErr
	})
	return out, err
}

// GetRepository fetches a single repository's current metadata.
func (f *Fetcher) GetRepository(ctx context.Context, owner, name string) (domain.Repository, error) {
	var out domain.Repository
	err := f.call(ctx, "repo", func() error {
		var innerErr error
		out, innerErr = f.host.GetRepository(ctx, owner, name)
		return innerErr
	})
	return out, err
}

// GetReadme fetches a repository's README text.
func (f *Fetcher) GetReadme(ctx context.Context, owner, name string) (string, error) {
	var out string
	err := f.call(ctx, "readme", func() error {
		var innerErr error
		out, innerErr = f.host.GetReadme(ctx, owner, name)
		return innerErr
	})
	return out, err
}

// GetContributors fetches up to limit contributors.
func (f *Fetcher) GetContributors(ctx context.Context, owner, name string, limit int) ([]domain.Contributor, error) {
	var out []domain.Contributor
	err := f.call(ctx, "contributors", func() error {
		var innerErr error
		out, innerErr = f.host.GetContributors(ctx, owner, name, limit)
		return innerErr
	})
	return out, err
}

// GetCommitActivity fetches commit history for the trailing window of days.
func (f *Fetcher) GetCommitActivity(ctx context.Context, owner, name string, days int) ([]domain.CommitMetric, error) {
	var out []domain.CommitMetric
	err := f.call(ctx, "commits", func() error {
		var innerErr error
		out, innerErr = f.host.GetCommitActivity(ctx, owner, name, days)
		return innerErr
	})
	return out, err
}

// RateLimitStatus reports the code-host's own remaining quota, independent
// of the governor's cooperative buckets.
func (f *Fetcher) RateLimitStatus(ctx context.Context) (codehost.RateLimitStatus, error) {
	return f.host.RateLimit(ctx)
}

// Analyze runs the LLM analysis path behind both the retry loop and the
// circuit breaker: the breaker trips independently of any single call's
// retries, protecting the process from hammering a degraded LLM endpoint
// across many repositories in the same batch.
func (f *Fetcher) Analyze(ctx context.Context, req llmclient.AnalyzeRequest) (domain.Analysis, error) {
	if err := f.acquireSlot(ctx); err != nil {
		return domain.Analysis{}, err
	}
	defer f.releaseSlot()

	if err := f.governor.Acquire(ctx, "llm", 1, true); err != nil {
		return domain.Analysis{}, err
	}

	start := time.Now()
	result, err := f.breaker.Execute(func() (interface{}, error) {
		var analysis domain.Analysis
		retryErr := withRetry(ctx, f.retry, apperrors.IsTransient, func() error {
			var innerErr error
			analysis, innerErr = f.llm.Analyze(ctx, req)
			return innerErr
		})
		return analysis, retryErr
	})
	f.log.LogUpstreamCall(ctx, "llm", "analyze", time.Since(start), err)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return domain.Analysis{}, apperrors.Unavailable("llm", err)
		}
		return domain.Analysis{}, err
	}
	return result.(domain.Analysis), nil
}
