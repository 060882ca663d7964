package domain

import "time"

// RepoMetricSnapshot is a point-in-time metrics sample for a repository.
// Append-only, keyed by (RepoID, RecordedAt).
type RepoMetricSnapshot struct {
	RepoID        string    `db:"repo_id"`
	Stars         int       `db:"stars"`
	Forks         int       `db:"forks"`
	OpenIssues    int       `db:"open_issues"`
	Watchers      int       `db:"watchers"`
	Contributors  *int      `db:"contributors"`
	CommitsCount  *int      `db:"commits_count"`
	RecordedAt    time.Time `db:"recorded_at"`
}

// Score is the output of the scorer: a weighted composite plus its factors,
// per spec §4.4: total = 0.4*growth + 0.3*engagement + 0.3*quality.
type Score struct {
	Total      float64
	Growth     float64
	Engagement float64
	Quality    float64
	Factors    map[string]float64
}

// Tier assignment buckets, per spec §4.4.
const (
	Tier1 = 1
	Tier2 = 2
	Tier3 = 3
)

// ModelTier names the LLM model size selected for an analysis, per spec §4.4.
type ModelTier string

const (
	ModelHigh   ModelTier = "high"
	ModelMedium ModelTier = "medium"
	ModelSmall  ModelTier = "small"
)

// TierAssignment is the durable per-repo priority classification.
type TierAssignment struct {
	RepoID          string     `db:"repo_id"`
	Tier            int        `db:"tier"`
	Stars           int        `db:"stars"`
	GrowthVelocity  float64    `db:"growth_velocity"`
	EngagementScore float64    `db:"engagement_score"`
	ScanPriority    float64    `db:"scan_priority"`
	LastDeepScan    *time.Time `db:"last_deep_scan"`
	LastBasicScan   *time.Time `db:"last_basic_scan"`
	NextScanDue     time.Time  `db:"next_scan_due"`
	UpdatedAt       time.Time  `db:"updated_at"`
}
