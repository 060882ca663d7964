// Package domain holds the entity types owned by the Repository Store and
// passed between the discovery, scoring, planning, and batch-analysis
// components.
package domain

import "time"

// Repository is the canonical record of a discovered project.
type Repository struct {
	ID             string    `db:"id"`
	Owner          string    `db:"owner"`
	Name           string    `db:"name"`
	FullName       string    `db:"full_name"`
	Description    string    `db:"description"`
	Stars          int       `db:"stars"`
	Forks          int       `db:"forks"`
	OpenIssues     int       `db:"open_issues"`
	Language       string    `db:"language"`
	Topics         []string  `db:"topics"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
	PushedAt       time.Time `db:"pushed_at"`
	IsArchived     bool      `db:"is_archived"`
	IsFork         bool      `db:"is_fork"`
	HTMLURL        string    `db:"html_url"`
	DefaultBranch  string    `db:"default_branch"`
	DiscoveredAt   time.Time `db:"discovered_at"`
}

// HasTopic reports whether t is present among the repository's topics
// (case-insensitive match is the caller's responsibility — topics are stored
// lower-cased at discovery time).
func (r Repository) HasTopic(t string) bool {
	for _, topic := range r.Topics {
		if topic == t {
			return true
		}
	}
	return false
}

// AgeDays returns the repository's age in days at the given reference time.
func (r Repository) AgeDays(now time.Time) float64 {
	if r.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(r.CreatedAt).Hours() / 24
}

// DaysSincePush returns how many days have elapsed since the last push at
// the given reference time.
func (r Repository) DaysSincePush(now time.Time) float64 {
	if r.PushedAt.IsZero() {
		return 1e9
	}
	return now.Sub(r.PushedAt).Hours() / 24
}

// Contributor is a single contributor record fetched from the code-host
// adapter; it is a child row of Repository keyed by RepoID.
type Contributor struct {
	RepoID        string `db:"repo_id"`
	Login         string `db:"login"`
	Contributions int    `db:"contributions"`
	HTMLURL       string `db:"html_url"`
}

// CommitMetric is one week's commit total for a repository (Date is the
// start of the week), as returned by the code-host's commit-activity endpoint.
type CommitMetric struct {
	Date    time.Time `db:"metric_date"`
	Commits int       `db:"commits"`
}
