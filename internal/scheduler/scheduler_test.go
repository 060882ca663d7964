package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/repo-scout/domain"
)

func TestClassifySweepHours(t *testing.T) {
	for hour := range SweepHours {
		at := time.Date(2026, 7, 29, hour, 0, 0, 0, time.UTC)
		assert.Equal(t, domain.CycleSweep, classify(at), "hour %d should be a sweep", hour)
	}
}

func TestClassifyOrdinaryHoursAreHourly(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		if SweepHours[hour] {
			continue
		}
		at := time.Date(2026, 7, 29, hour, 0, 0, 0, time.UTC)
		assert.Equal(t, domain.CycleHourly, classify(at), "hour %d should be hourly", hour)
	}
}

func TestSweepHoursAreExactlyTwo(t *testing.T) {
	assert.Len(t, SweepHours, 2)
	assert.True(t, SweepHours[2])
	assert.True(t, SweepHours[14])
}
