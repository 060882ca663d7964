package domain

import "time"

// RateLimitBucket describes one endpoint's token-bucket state, surfaced by
// C1's snapshot() for observability (§4.1).
type RateLimitBucket struct {
	Endpoint     string        `db:"endpoint" json:"endpoint"`
	Capacity     int           `db:"capacity" json:"capacity"`
	Tokens       float64       `db:"tokens" json:"tokens"`
	RefillRate   float64       `db:"refill_rate" json:"refill_rate"`
	RefillPeriod time.Duration `db:"refill_period" json:"refill_period"`
}

// CyclePhase names where the cycle controller currently is within a tick.
type CyclePhase string

const (
	PhaseIdle      CyclePhase = "idle"
	PhaseDiscovery CyclePhase = "discovery"
	PhasePlanning  CyclePhase = "planning"
	PhaseBatch     CyclePhase = "batch"
	PhaseDone      CyclePhase = "done"
)

// CycleKind distinguishes the two cycle shapes of §4.8.
type CycleKind string

const (
	CycleHourly CycleKind = "hourly"
	CycleSweep  CycleKind = "sweep"
)

// CycleProgress is the in-memory state of the currently running (or most
// recently finished) cycle.
type CycleProgress struct {
	Kind         CycleKind
	Phase        CyclePhase
	StartedAt    time.Time
	TierCounters map[int]int
	Errors       []string
	ActiveBatch  string
}

// MaxCycleErrors bounds the in-memory error ring buffer.
const MaxCycleErrors = 50

// RecordError appends an error message, discarding the oldest entry once the
// buffer is full.
func (c *CycleProgress) RecordError(msg string) {
	c.Errors = append(c.Errors, msg)
	if len(c.Errors) > MaxCycleErrors {
		c.Errors = c.Errors[len(c.Errors)-MaxCycleErrors:]
	}
}
