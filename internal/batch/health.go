package batch

import "time"

// Health is the status reported by the health monitor of spec §4.7, run
// every HealthCheckInterval while a batch is active.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthCritical Health = "critical"
)

// evaluateHealth applies the thresholds of spec §4.7:
//
//	healthy  — within budget and above minSuccessRate
//	degraded — timeRemaining < 60s OR failed > completed
//	critical — success_rate < minSuccessRate over >= 5 processed repos,
//	           or a fatal external condition (passed in via fatal)
func evaluateHealth(completed, failed, skipped int, elapsed, maxRuntime time.Duration, minSuccessRate float64, fatal bool) Health {
	if fatal {
		return HealthCritical
	}
	processed := completed + failed + skipped
	successRate := 1.0
	if processed > 0 {
		successRate = float64(completed) / float64(processed)
	}
	if processed >= 5 && successRate < minSuccessRate {
		return HealthCritical
	}
	timeRemaining := maxRuntime - elapsed
	if timeRemaining < 60*time.Second || failed > completed {
		return HealthDegraded
	}
	return HealthHealthy
}
