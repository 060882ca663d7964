package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/repo-scout/domain"
)

func TestIsStale(t *testing.T) {
	now := time.Now()

	assert.False(t, isStale(domain.BatchState{Status: domain.BatchRunning, UpdatedAt: now.Add(-time.Minute)}, now))
	assert.True(t, isStale(domain.BatchState{Status: domain.BatchRunning, UpdatedAt: now.Add(-6 * time.Minute)}, now))
	assert.False(t, isStale(domain.BatchState{Status: domain.BatchCompleted, UpdatedAt: now.Add(-time.Hour)}, now))
}

func TestTrackerSnapshotIsolatesState(t *testing.T) {
	tr := New(nil)
	tr.BeginCycle(domain.CycleHourly)
	tr.IncrementTier(1)

	snap := tr.Snapshot()
	snap.TierCounters[1] = 999

	assert.Equal(t, 1, tr.Snapshot().TierCounters[1])
}
