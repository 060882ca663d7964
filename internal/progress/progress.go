// Package progress implements C9, the Cycle State & Progress Tracker: an
// in-memory view of the currently running cycle plus durable batch-history
// queries over the Repository Store, and staleness detection for batches
// that have stopped updating without reaching a terminal state.
package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/repo-scout/domain"
	"github.com/R3E-Network/repo-scout/internal/store"
)

// StaleAfter is how long a non-terminal batch can go without an update
// before it is reported stale (spec §4.9).
const StaleAfter = 5 * time.Minute

// Tracker holds the in-memory CycleProgress of the current (or most recent)
// cycle and answers durable batch-status queries against the store.
type Tracker struct {
	store *store.Store

	mu       sync.RWMutex
	progress domain.CycleProgress
}

func New(s *store.Store) *Tracker {
	return &Tracker{store: s, progress: domain.CycleProgress{Phase: domain.PhaseIdle}}
}

// BeginCycle resets the in-memory progress for a newly started cycle.
func (t *Tracker) BeginCycle(kind domain.CycleKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = domain.CycleProgress{
		Kind: kind, Phase: domain.PhaseDiscovery, StartedAt: time.Now(),
		TierCounters: make(map[int]int),
	}
}

// SetPhase advances the in-memory phase of the current cycle.
func (t *Tracker) SetPhase(phase domain.CyclePhase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Phase = phase
}

// SetActiveBatch records which batch ID the current cycle's batch phase is
// running.
func (t *Tracker) SetActiveBatch(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.ActiveBatch = batchID
}

// IncrementTier records one more repository processed for tier.
func (t *Tracker) IncrementTier(tier int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progress.TierCounters == nil {
		t.progress.TierCounters = make(map[int]int)
	}
	t.progress.TierCounters[tier]++
}

// RecordError appends an error to the current cycle's bounded error log.
func (t *Tracker) RecordError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.RecordError(msg)
}

// EndCycle marks the current cycle done.
func (t *Tracker) EndCycle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Phase = domain.PhaseDone
	t.progress.ActiveBatch = ""
}

// Snapshot returns a copy of the current in-memory cycle progress.
func (t *Tracker) Snapshot() domain.CycleProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.progress
	out.TierCounters = make(map[int]int, len(t.progress.TierCounters))
	for k, v := range t.progress.TierCounters {
		out.TierCounters[k] = v
	}
	out.Errors = append([]string(nil), t.progress.Errors...)
	return out
}

// BatchStatus is a durable batch's state augmented with whether it has
// gone stale (running/recovering but not updated within StaleAfter).
type BatchStatus struct {
	domain.BatchState
	Stale bool `json:"stale"`
}

// Status returns the durable status of a single batch, annotated with
// staleness.
func (t *Tracker) Status(ctx context.Context, batchID string) (BatchStatus, bool, error) {
	state, ok, err := t.store.GetBatch(ctx, batchID)
	if err != nil || !ok {
		return BatchStatus{}, ok, err
	}
	return BatchStatus{BatchState: state, Stale: isStale(state, time.Now())}, true, nil
}

// History returns the durable status of every batch whose ID starts with
// prefix (empty prefix lists all batches), most-recently-started first.
func (t *Tracker) History(ctx context.Context, prefix string) ([]BatchStatus, error) {
	ids, err := t.store.ListBatches(ctx, prefix)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]BatchStatus, 0, len(ids))
	for _, id := range ids {
		state, ok, err := t.store.GetBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, BatchStatus{BatchState: state, Stale: isStale(state, now)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// Active returns every batch currently in a non-terminal status.
func (t *Tracker) Active(ctx context.Context) ([]BatchStatus, error) {
	all, err := t.History(ctx, "")
	if err != nil {
		return nil, err
	}
	var active []BatchStatus
	for _, b := range all {
		switch b.Status {
		case domain.BatchPending, domain.BatchRunning, domain.BatchRecovering:
			active = append(active, b)
		}
	}
	return active, nil
}

func isStale(state domain.BatchState, now time.Time) bool {
	switch state.Status {
	case domain.BatchCompleted, domain.BatchStopped, domain.BatchFailed:
		return false
	}
	return now.Sub(state.UpdatedAt) >= StaleAfter
}
