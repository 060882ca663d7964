package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireNonBlockingRespectsCapacity(t *testing.T) {
	g := New(map[string]EndpointConfig{"search": {Capacity: 2, RefillPerSec: 0}})

	require.NoError(t, g.Acquire(context.Background(), "search", 1, false))
	require.NoError(t, g.Acquire(context.Background(), "search", 1, false))

	err := g.Acquire(context.Background(), "search", 1, false)
	assert.Error(t, err)
}

func TestAcquireUnknownEndpointGetsDefaultBucket(t *testing.T) {
	g := New(map[string]EndpointConfig{})
	err := g.Acquire(context.Background(), "some-new-endpoint", 1, false)
	assert.NoError(t, err)

	snap := g.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "some-new-endpoint", snap[0].Endpoint)
}

func TestChargeHourlyReportsExceeded(t *testing.T) {
	g := New(nil)

	assert.False(t, g.ChargeHourly(50, 100))
	assert.True(t, g.ChargeHourly(50, 100))
	assert.Equal(t, float64(100), g.HourlyUsed())
}

func TestChargeHourlyUnlimitedWhenLimitIsZero(t *testing.T) {
	g := New(nil)
	assert.False(t, g.ChargeHourly(1_000_000, 0))
}

func TestChargeBatchIsolatedPerBatchID(t *testing.T) {
	g := New(nil)

	assert.False(t, g.ChargeBatch("batch-a", 40, 60))
	assert.False(t, g.ChargeBatch("batch-b", 40, 60))
	assert.True(t, g.ChargeBatch("batch-a", 40, 60))

	assert.Equal(t, float64(80), g.BatchUsed("batch-a"))
	assert.Equal(t, float64(40), g.BatchUsed("batch-b"))
}

func TestResetBatchClearsCounter(t *testing.T) {
	g := New(nil)
	g.ChargeBatch("batch-a", 50, 100)
	g.ResetBatch("batch-a")
	assert.Equal(t, float64(0), g.BatchUsed("batch-a"))
}
