package domain

import (
	"fmt"
	"time"
)

// BatchStatus is a node in the state machine of §4.7:
//
//	pending -> running -> (recovering -> running)* -> completed
//	running -> stopped
//	running -> failed
//	recovering -> failed
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchRunning    BatchStatus = "running"
	BatchRecovering BatchStatus = "recovering"
	BatchStopped    BatchStatus = "stopped"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// validBatchTransitions encodes the allowed edges of the state graph. A
// transition not present here is rejected by BatchState.TransitionTo.
var validBatchTransitions = map[BatchStatus]map[BatchStatus]bool{
	BatchPending: {
		BatchRunning: true,
	},
	BatchRunning: {
		BatchRecovering: true,
		BatchCompleted:  true,
		BatchStopped:    true,
		BatchFailed:     true,
	},
	BatchRecovering: {
		BatchRunning: true,
		BatchFailed:  true,
	},
}

// ResultStatus is the outcome of one repo's analysis attempt within a batch.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultTimeout ResultStatus = "timeout"
	ResultSkipped ResultStatus = "skipped"
)

// RepoResult is one entry in BatchState.Results.
type RepoResult struct {
	RepoFullName string        `json:"repo_full_name"`
	Status       ResultStatus  `json:"status"`
	Duration     time.Duration `json:"duration"`
	CreditsUsed  float64       `json:"credits_used"`
	Error        string        `json:"error,omitempty"`
}

// Credits tracks estimated vs. actual spend against the configured caps.
type Credits struct {
	Estimated float64 `json:"estimated"`
	Actual    float64 `json:"actual"`
	Limit     float64 `json:"limit"`
}

// Checkpoint is a durable snapshot enabling a recovering batch (or a
// restarted process) to resume without reprocessing completed repos (§4.7,
// S5).
type Checkpoint struct {
	CompletedRepos []string  `json:"completed_repos"`
	FailedRepos    []string  `json:"failed_repos"`
	RemainingRepos []string  `json:"remaining_repos"`
	Health         string    `json:"health"`
	TakenAt        time.Time `json:"taken_at"`
}

// BatchState is the durable record of one resumable batch analysis run.
type BatchState struct {
	BatchID             string       `db:"batch_id" json:"batch_id"`
	Status              BatchStatus  `db:"status" json:"status"`
	Total               int          `db:"total" json:"total"`
	Completed           int          `db:"completed" json:"completed"`
	Failed              int          `db:"failed" json:"failed"`
	Skipped             int          `db:"skipped" json:"skipped"`
	StartedAt           time.Time    `db:"started_at" json:"started_at"`
	EndedAt             *time.Time   `db:"ended_at" json:"ended_at,omitempty"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updated_at"`
	CurrentRepo         string       `db:"current_repo" json:"current_repo,omitempty"`
	EstimatedCompletion *time.Time   `db:"estimated_completion" json:"estimated_completion,omitempty"`
	Repositories        []string     `db:"-" json:"repositories"`
	Results             []RepoResult `db:"-" json:"results"`
	Health              string       `db:"health" json:"health"`
	RecoveryAttempts    int          `db:"recovery_attempts" json:"recovery_attempts"`
	Credits             Credits      `db:"-" json:"credits"`
	Checkpoint          *Checkpoint  `db:"-" json:"checkpoint,omitempty"`
	ConsecutiveFailures int          `db:"-" json:"-"`
}

// Processed returns completed+failed+skipped, which must never exceed Total
// (invariant of §8).
func (b BatchState) Processed() int {
	return b.Completed + b.Failed + b.Skipped
}

// Remaining returns the repositories not yet accounted for in Results.
func (b BatchState) Remaining() []string {
	done := make(map[string]bool, len(b.Results))
	for _, r := range b.Results {
		done[r.RepoFullName] = true
	}
	remaining := make([]string, 0, len(b.Repositories))
	for _, name := range b.Repositories {
		if !done[name] {
			remaining = append(remaining, name)
		}
	}
	return remaining
}

// TransitionTo moves the batch to newStatus if the edge is legal, returning
// an error otherwise. Stopping an already-stopped (or otherwise terminal)
// batch is treated as a no-op, not an error, so repeated stop calls remain
// idempotent (§8).
func (b *BatchState) TransitionTo(newStatus BatchStatus) error {
	if b.Status == newStatus {
		return nil
	}
	if newStatus == BatchStopped && b.isTerminal() {
		return nil
	}
	edges, ok := validBatchTransitions[b.Status]
	if !ok || !edges[newStatus] {
		return fmt.Errorf("illegal batch transition %s -> %s", b.Status, newStatus)
	}
	b.Status = newStatus
	return nil
}

func (b BatchState) isTerminal() bool {
	switch b.Status {
	case BatchCompleted, BatchStopped, BatchFailed:
		return true
	default:
		return false
	}
}
