package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/repo-scout/internal/planner"
)

func TestEvaluateHealth(t *testing.T) {
	t.Run("healthy under budget", func(t *testing.T) {
		h := evaluateHealth(8, 1, 0, 30*time.Second, 300*time.Second, 0.5, false)
		assert.Equal(t, HealthHealthy, h)
	})

	t.Run("critical on fatal condition", func(t *testing.T) {
		h := evaluateHealth(0, 0, 0, 0, 300*time.Second, 0.5, true)
		assert.Equal(t, HealthCritical, h)
	})

	t.Run("critical on sustained low success rate", func(t *testing.T) {
		h := evaluateHealth(1, 5, 0, 30*time.Second, 300*time.Second, 0.5, false)
		assert.Equal(t, HealthCritical, h)
	})

	t.Run("not critical below the processed floor", func(t *testing.T) {
		h := evaluateHealth(0, 2, 0, 30*time.Second, 300*time.Second, 0.5, false)
		assert.NotEqual(t, HealthCritical, h)
	})

	t.Run("degraded when time is nearly exhausted", func(t *testing.T) {
		h := evaluateHealth(10, 1, 0, 299*time.Second, 300*time.Second, 0.5, false)
		assert.Equal(t, HealthDegraded, h)
	})

	t.Run("degraded when failures outnumber successes", func(t *testing.T) {
		h := evaluateHealth(1, 2, 0, 10*time.Second, 300*time.Second, 0.5, false)
		assert.Equal(t, HealthDegraded, h)
	})
}

func TestChunkTasks(t *testing.T) {
	tasks := make([]planner.ScanTask, 12)
	chunks := chunkTasks(tasks, 5)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 5)
	assert.Len(t, chunks[2], 2)
}

func TestChunkTasksDefaultsNonPositiveSize(t *testing.T) {
	tasks := make([]planner.ScanTask, 7)
	chunks := chunkTasks(tasks, 0)
	assert.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 5)
}
