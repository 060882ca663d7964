// Package ratelimit implements C1, the Rate-Limit Governor: per-endpoint
// token buckets plus per-batch and per-hour credit counters (spec §4.1).
//
// Grounded on the teacher's infrastructure/ratelimit.RateLimiter, which
// already wraps golang.org/x/time/rate in a single-endpoint bucket; this
// generalizes it to one bucket per endpoint class and adds the credit
// counters the teacher's version never had.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/R3E-Network/repo-scout/domain"
	apperrors "github.com/R3E-Network/repo-scout/internal/errors"
)

// EndpointConfig configures one endpoint's token bucket.
type EndpointConfig struct {
	Capacity     int
	RefillPerSec float64
}

// DefaultEndpointConfigs mirrors the code-host and LLM endpoint classes of
// spec §4.2.
func DefaultEndpointConfigs() map[string]EndpointConfig {
	return map[string]EndpointConfig{
		"search":       {Capacity: 30, RefillPerSec: 0.5},
		"repo":         {Capacity: 60, RefillPerSec: 1},
		"readme":       {Capacity: 60, RefillPerSec: 1},
		"contributors": {Capacity: 30, RefillPerSec: 0.5},
		"commits":      {Capacity: 30, RefillPerSec: 0.5},
		"llm":          {Capacity: 10, RefillPerSec: 0.2},
	}
}

type endpointBucket struct {
	limiter *rate.Limiter
	cfg     EndpointConfig
}

// creditCounter is a process-scoped counter that resets on the first add
// after its window has elapsed since the previous reset (a rolling window
// anchored at creation, not a clock boundary) — acceptable per §9 since
// external providers are the
// authoritative limit; this is cooperative self-throttling only.
type creditCounter struct {
	mu       sync.Mutex
	used     float64
	resetsAt time.Time
	window   time.Duration
}

func newCreditCounter(window time.Duration, now time.Time) *creditCounter {
	return &creditCounter{resetsAt: now.Add(window), window: window}
}

func (c *creditCounter) add(now time.Time, amount float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.After(c.resetsAt) {
		c.used = 0
		c.resetsAt = now.Add(c.window)
	}
	c.used += amount
	return c.used
}

func (c *creditCounter) value(now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.After(c.resetsAt) {
		return 0
	}
	return c.used
}

func (c *creditCounter) reset(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used = 0
	c.resetsAt = now.Add(c.window)
}

// Governor is C1: it gates every outbound call made by the External
// Fetcher (C2) and tracks credit spend per batch and per hour.
type Governor struct {
	mu       sync.RWMutex
	buckets  map[string]*endpointBucket
	hourly   *creditCounter
	batchMu  sync.Mutex
	batches  map[string]*creditCounter
	nowFn    func() time.Time
}

// New constructs a Governor with the given per-endpoint configs.
func New(endpoints map[string]EndpointConfig) *Governor {
	g := &Governor{
		buckets: make(map[string]*endpointBucket, len(endpoints)),
		batches: make(map[string]*creditCounter),
		nowFn:   time.Now,
	}
	for name, cfg := range endpoints {
		g.buckets[name] = &endpointBucket{
			limiter: rate.NewLimiter(rate.Limit(cfg.RefillPerSec), cfg.Capacity),
			cfg:     cfg,
		}
	}
	g.hourly = newCreditCounter(time.Hour, g.nowFn())
	return g
}

// Acquire consumes n tokens from endpoint's bucket. If blocking is true it
// waits (cooperatively, cancellable via ctx) until enough tokens refill;
// otherwise it fails immediately with RateLimited.
func (g *Governor) Acquire(ctx context.Context, endpoint string, n int, blocking bool) error {
	bucket := g.bucketFor(endpoint)
	if blocking {
		if err := bucket.limiter.WaitN(ctx, n); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeRateLimited, "rate limit wait cancelled", 429, err)
		}
		return nil
	}
	if !bucket.limiter.AllowN(g.nowFn(), n) {
		return apperrors.RateLimited(1)
	}
	return nil
}

func (g *Governor) bucketFor(endpoint string) *endpointBucket {
	g.mu.RLock()
	b, ok := g.buckets[endpoint]
	g.mu.RUnlock()
	if ok {
		return b
	}
	// Unknown endpoints get a conservative default bucket rather than
	// panicking — new code-host operations shouldn't require a governor
	// code change to stay safe.
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok = g.buckets[endpoint]; ok {
		return b
	}
	b = &endpointBucket{limiter: rate.NewLimiter(rate.Limit(0.5), 10), cfg: EndpointConfig{Capacity: 10, RefillPerSec: 0.5}}
	g.buckets[endpoint] = b
	return b
}

// ChargeHourly records a credit spend against the process-wide hourly
// counter and reports whether the hourly cap has been reached.
func (g *Governor) ChargeHourly(amount, limit float64) (exceeded bool) {
	used := g.hourly.add(g.nowFn(), amount)
	return limit > 0 && used >= limit
}

// HourlyUsed returns the current hourly credit spend.
func (g *Governor) HourlyUsed() float64 {
	return g.hourly.value(g.nowFn())
}

// ChargeBatch records a credit spend against a specific batch's counter and
// reports whether the per-batch cap has been reached.
func (g *Governor) ChargeBatch(batchID string, amount, limit float64) (exceeded bool) {
	c := g.batchCounter(batchID)
	used := c.add(g.nowFn(), amount)
	return limit > 0 && used >= limit
}

// BatchUsed returns the current credit spend for a batch.
func (g *Governor) BatchUsed(batchID string) float64 {
	return g.batchCounter(batchID).value(g.nowFn())
}

// ResetBatch clears a batch's credit counter, e.g. once it reaches a
// terminal state and its ID may be reused in tests.
func (g *Governor) ResetBatch(batchID string) {
	g.batchCounter(batchID).reset(g.nowFn())
}

func (g *Governor) batchCounter(batchID string) *creditCounter {
	g.batchMu.Lock()
	defer g.batchMu.Unlock()
	c, ok := g.batches[batchID]
	if !ok {
		c = newCreditCounter(24*time.Hour, g.nowFn())
		g.batches[batchID] = c
	}
	return c
}

// Snapshot returns the observable state of every known endpoint bucket.
func (g *Governor) Snapshot() []domain.RateLimitBucket {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.RateLimitBucket, 0, len(g.buckets))
	for name, b := range g.buckets {
		out = append(out, domain.RateLimitBucket{
			Endpoint:     name,
			Capacity:     b.cfg.Capacity,
			Tokens:       b.limiter.Tokens(),
			RefillRate:   b.cfg.RefillPerSec,
			RefillPeriod: time.Second,
		})
	}
	return out
}
