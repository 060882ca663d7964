// Package store implements C3, the Repository Store: the sole durable owner
// of Repository, RepoMetricSnapshot, TierAssignment, Analysis, Alert,
// Contributor, and BatchState rows. Every other component reaches this data
// only through the operations below — nobody mutates another component's
// state directly (spec §3).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/repo-scout/domain"
	apperrors "github.com/R3E-Network/repo-scout/internal/errors"
)

// Store is the single type backing C3, grounded on the teacher's
// infrastructure/database repository pattern (one struct, one method per
// operation) but against Postgres via sqlx instead of a Supabase REST
// client.
type Store struct {
	db    *sqlx.DB
	cache *Cache
}

// Open connects to Postgres at dsn and wraps it with the given cache (may be
// nil, in which case analysis lookups always hit the database).
func Open(dsn string, cache *Cache) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, apperrors.StorageError("connect", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db, cache: cache}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertRepository inserts or refreshes the canonical repository row,
// keyed by id.
func (s *Store) UpsertRepository(ctx context.Context, r domain.Repository) error {
	const q = `
INSERT INTO repositories (id, owner, name, full_name, description, stars, forks, open_issues,
	language, topics, created_at, updated_at, pushed_at, is_archived, is_fork, html_url,
	default_branch, discovered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (id) DO UPDATE SET
	owner = EXCLUDED.owner, name = EXCLUDED.name, full_name = EXCLUDED.full_name,
	description = EXCLUDED.description, stars = EXCLUDED.stars, forks = EXCLUDED.forks,
	open_issues = EXCLUDED.open_issues, language = EXCLUDED.language, topics = EXCLUDED.topics,
	updated_at = EXCLUDED.updated_at, pushed_at = EXCLUDED.pushed_at,
	is_archived = EXCLUDED.is_archived, is_fork = EXCLUDED.is_fork, html_url = EXCLUDED.html_url,
	default_branch = EXCLUDED.default_branch`
	_, err := s.db.ExecContext(ctx, q, r.ID, r.Owner, r.Name, r.FullName, r.Description, r.Stars,
		r.Forks, r.OpenIssues, r.Language, pq.Array(r.Topics), r.CreatedAt, r.UpdatedAt, r.PushedAt,
		r.IsArchived, r.IsFork, r.HTMLURL, r.DefaultBranch, r.DiscoveredAt)
	if err != nil {
		return apperrors.StorageError("upsert_repository", err)
	}
	return nil
}

// UpsertMetricsBatch appends a metric snapshot for each repository given.
func (s *Store) UpsertMetricsBatch(ctx context.Context, snapshots []domain.RepoMetricSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.StorageError("upsert_metrics_batch_begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
INSERT INTO repo_metric_snapshots (repo_id, stars, forks, open_issues, watchers, contributors, commits_count, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (repo_id, recorded_at) DO NOTHING`
	for _, snap := range snapshots {
		if _, err := tx.ExecContext(ctx, q, snap.RepoID, snap.Stars, snap.Forks, snap.OpenIssues,
			snap.Watchers, snap.Contributors, snap.CommitsCount, snap.RecordedAt); err != nil {
			return apperrors.StorageError("upsert_metrics_batch", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.StorageError("upsert_metrics_batch_commit", err)
	}
	return nil
}

// SaveAnalysis appends an analysis row and invalidates the repo's cached
// "latest analysis" entry.
func (s *Store) SaveAnalysis(ctx context.Context, a domain.Analysis) error {
	const q = `
INSERT INTO analyses (repo_id, investment, innovation, team, market, technical_moat,
	scalability, developer_adoption, recommendation, summary, strengths, risks, questions,
	model_used, cost, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := s.db.ExecContext(ctx, q, a.RepoID, a.Scores.Investment, a.Scores.Innovation,
		a.Scores.Team, a.Scores.Market, a.Scores.TechnicalMoat, a.Scores.Scalability,
		a.Scores.DeveloperAdoption, string(a.Recommendation), a.Summary, pq.Array(a.Strengths),
		pq.Array(a.Risks), pq.Array(a.Questions), string(a.ModelUsed), a.Cost, a.CreatedAt)
	if err != nil {
		return apperrors.StorageError("save_analysis", err)
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, a.RepoID)
	}
	return nil
}

// GetLatestAnalysis returns the most recent analysis for repoID, checking
// the cache first.
func (s *Store) GetLatestAnalysis(ctx context.Context, repoID string) (domain.Analysis, bool, error) {
	if s.cache != nil {
		var cached domain.Analysis
		hit, err := s.cache.Get(ctx, repoID, &cached)
		if err == nil && hit {
			return cached, true, nil
		}
	}
	const q = `
SELECT repo_id, investment, innovation, team, market, technical_moat, scalability,
	developer_adoption, recommendation, summary, strengths, risks, questions, model_used, cost, created_at
FROM analyses WHERE repo_id = $1 ORDER BY created_at DESC LIMIT 1`
	var row analysisRow
	if err := s.db.GetContext(ctx, &row, q, repoID); err != nil {
		if err == sql.ErrNoRows {
			return domain.Analysis{}, false, nil
		}
		return domain.Analysis{}, false, apperrors.StorageError("get_latest_analysis", err)
	}
	a := row.toDomain()
	if s.cache != nil {
		_ = s.cache.Set(ctx, repoID, a)
	}
	return a, true, nil
}

type analysisRow struct {
	RepoID            string         `db:"repo_id"`
	Investment        int            `db:"investment"`
	Innovation        int            `db:"innovation"`
	Team              int            `db:"team"`
	Market            int            `db:"market"`
	TechnicalMoat     sql.NullInt64  `db:"technical_moat"`
	Scalability       sql.NullInt64  `db:"scalability"`
	DeveloperAdoption sql.NullInt64  `db:"developer_adoption"`
	Recommendation    string         `db:"recommendation"`
	Summary           string         `db:"summary"`
	Strengths         pq.StringArray `db:"strengths"`
	Risks             pq.StringArray `db:"risks"`
	Questions         pq.StringArray `db:"questions"`
	ModelUsed         string         `db:"model_used"`
	Cost              float64        `db:"cost"`
	CreatedAt         time.Time      `db:"created_at"`
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func (r analysisRow) toDomain() domain.Analysis {
	return domain.Analysis{
		RepoID: r.RepoID,
		Scores: domain.AnalysisScores{
			Investment:        r.Investment,
			Innovation:        r.Innovation,
			Team:              r.Team,
			Market:            r.Market,
			TechnicalMoat:     nullIntPtr(r.TechnicalMoat),
			Scalability:       nullIntPtr(r.Scalability),
			DeveloperAdoption: nullIntPtr(r.DeveloperAdoption),
		},
		Recommendation: domain.Recommendation(r.Recommendation),
		Summary:        r.Summary,
		Strengths:      []string(r.Strengths),
		Risks:          []string(r.Risks),
		Questions:      []string(r.Questions),
		ModelUsed:      domain.ModelTier(r.ModelUsed),
		Cost:           r.Cost,
		CreatedAt:      r.CreatedAt,
	}
}

// HasRecentAnalysis reports whether repoID has an analysis newer than
// hours ago.
func (s *Store) HasRecentAnalysis(ctx context.Context, repoID string, hours int) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM analyses WHERE repo_id = $1 AND created_at > now() - ($2 || ' hours')::interval)`
	var exists bool
	if err := s.db.GetContext(ctx, &exists, q, repoID, hours); err != nil {
		return false, apperrors.StorageError("has_recent_analysis", err)
	}
	return exists, nil
}

// GetRepository looks up a repository by its host-stable id.
func (s *Store) GetRepository(ctx context.Context, id string) (domain.Repository, bool, error) {
	return s.getRepositoryWhere(ctx, "id = $1", id)
}

// GetRepositoryByFullName looks up a repository by "owner/name".
func (s *Store) GetRepositoryByFullName(ctx context.Context, fullName string) (domain.Repository, bool, error) {
	return s.getRepositoryWhere(ctx, "full_name = $1", fullName)
}

func (s *Store) getRepositoryWhere(ctx context.Context, where string, arg interface{}) (domain.Repository, bool, error) {
	q := fmt.Sprintf(`
SELECT id, owner, name, full_name, description, stars, forks, open_issues, language, topics,
	created_at, updated_at, pushed_at, is_archived, is_fork, html_url, default_branch, discovered_at
FROM repositories WHERE %s`, where)
	var row repositoryScan
	if err := s.db.GetContext(ctx, &row, q, arg); err != nil {
		if err == sql.ErrNoRows {
			return domain.Repository{}, false, nil
		}
		return domain.Repository{}, false, apperrors.StorageError("get_repository", err)
	}
	return row.toDomain(), true, nil
}

type repositoryScan struct {
	ID            string         `db:"id"`
	Owner         string         `db:"owner"`
	Name          string         `db:"name"`
	FullName      string         `db:"full_name"`
	Description   string         `db:"description"`
	Stars         int            `db:"stars"`
	Forks         int            `db:"forks"`
	OpenIssues    int            `db:"open_issues"`
	Language      string         `db:"language"`
	Topics        pq.StringArray `db:"topics"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	PushedAt      time.Time      `db:"pushed_at"`
	IsArchived    bool           `db:"is_archived"`
	IsFork        bool           `db:"is_fork"`
	HTMLURL       string         `db:"html_url"`
	DefaultBranch string         `db:"default_branch"`
	DiscoveredAt  time.Time      `db:"discovered_at"`
}

func (r repositoryScan) toDomain() domain.Repository {
	return domain.Repository{
		ID: r.ID, Owner: r.Owner, Name: r.Name, FullName: r.FullName, Description: r.Description,
		Stars: r.Stars, Forks: r.Forks, OpenIssues: r.OpenIssues, Language: r.Language,
		Topics: []string(r.Topics), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, PushedAt: r.PushedAt,
		IsArchived: r.IsArchived, IsFork: r.IsFork, HTMLURL: r.HTMLURL, DefaultBranch: r.DefaultBranch,
		DiscoveredAt: r.DiscoveredAt,
	}
}

// SaveAlert persists an emitted alert.
func (s *Store) SaveAlert(ctx context.Context, a domain.Alert) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return apperrors.StorageError("save_alert_marshal", err)
	}
	const q = `
INSERT INTO alerts (repo_id, type, level, message, metadata, sent_at, acknowledged)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.db.ExecContext(ctx, q, a.RepoID, string(a.Type), string(a.Level), a.Message, meta, a.SentAt, a.Acknowledged); err != nil {
		return apperrors.StorageError("save_alert", err)
	}
	return nil
}

// SaveContributors replaces the contributor rows known for a repository.
func (s *Store) SaveContributors(ctx context.Context, repoID string, contributors []domain.Contributor) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.StorageError("save_contributors_begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contributors WHERE repo_id = $1`, repoID); err != nil {
		return apperrors.StorageError("save_contributors_delete", err)
	}
	const q = `INSERT INTO contributors (repo_id, login, contributions, html_url) VALUES ($1, $2, $3, $4)`
	for _, c := range contributors {
		if _, err := tx.ExecContext(ctx, q, repoID, c.Login, c.Contributions, c.HTMLURL); err != nil {
			return apperrors.StorageError("save_contributors", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.StorageError("save_contributors_commit", err)
	}
	return nil
}

// UpsertTier recomputes and persists a repository's tier assignment,
// applying the tier formula of spec §4.4's boundaries directly (kept in the
// scorer package; the store just persists whatever tier/priority it is
// given — it never re-derives scoring logic itself). Lower tier numbers are
// better (tier 1 outranks tier 3); when allowDemotion is false, an existing
// row's tier is never raised numerically — only promotion (a smaller tier
// number) is allowed, per spec §9's open-question resolution. An existing
// row keeps its next_scan_due; t.NextScanDue only seeds a new row, and
// MarkScanned is what advances it afterwards.
func (s *Store) UpsertTier(ctx context.Context, t domain.TierAssignment, allowDemotion bool) error {
	const q = `
INSERT INTO tier_assignments (repo_id, tier, stars, growth_velocity, engagement_score, scan_priority,
	last_deep_scan, last_basic_scan, next_scan_due, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (repo_id) DO UPDATE SET
	tier = CASE WHEN $11 THEN EXCLUDED.tier ELSE LEAST(tier_assignments.tier, EXCLUDED.tier) END,
	stars = EXCLUDED.stars, growth_velocity = EXCLUDED.growth_velocity,
	engagement_score = EXCLUDED.engagement_score, scan_priority = EXCLUDED.scan_priority,
	last_deep_scan = COALESCE(EXCLUDED.last_deep_scan, tier_assignments.last_deep_scan),
	last_basic_scan = COALESCE(EXCLUDED.last_basic_scan, tier_assignments.last_basic_scan),
	next_scan_due = tier_assignments.next_scan_due, updated_at = EXCLUDED.updated_at`
	_, err := s.db.ExecContext(ctx, q, t.RepoID, t.Tier, t.Stars, t.GrowthVelocity, t.EngagementScore,
		t.ScanPriority, t.LastDeepScan, t.LastBasicScan, t.NextScanDue, t.UpdatedAt, allowDemotion)
	if err != nil {
		return apperrors.StorageError("upsert_tier", err)
	}
	return nil
}

// GetReposByTier returns up to limit repos in the given tier, ordered by
// scan priority descending.
func (s *Store) GetReposByTier(ctx context.Context, tier, limit int) ([]domain.TierAssignment, error) {
	const q = `
SELECT repo_id, tier, stars, growth_velocity, engagement_score, scan_priority,
	last_deep_scan, last_basic_scan, next_scan_due, updated_at
FROM tier_assignments WHERE tier = $1 ORDER BY scan_priority DESC LIMIT $2`
	var out []domain.TierAssignment
	if err := s.db.SelectContext(ctx, &out, q, tier, limit); err != nil {
		return nil, apperrors.StorageError("get_repos_by_tier", err)
	}
	return out, nil
}

// GetTierAssignment returns a single repo's current tier classification, used
// when reconstructing a batch's remaining scan tasks on resume (spec §4.8),
// since domain.BatchState only retains bare repo full names, not the tier and
// model that were originally assigned.
func (s *Store) GetTierAssignment(ctx context.Context, repoID string) (domain.TierAssignment, bool, error) {
	const q = `
SELECT repo_id, tier, stars, growth_velocity, engagement_score, scan_priority,
	last_deep_scan, last_basic_scan, next_scan_due, updated_at
FROM tier_assignments WHERE repo_id = $1`
	var t domain.TierAssignment
	if err := s.db.GetContext(ctx, &t, q, repoID); err != nil {
		if err == sql.ErrNoRows {
			return domain.TierAssignment{}, false, nil
		}
		return domain.TierAssignment{}, false, apperrors.StorageError("get_tier_assignment", err)
	}
	return t, true, nil
}

// GetReposNeedingScan returns repos in tier whose next_scan_due has passed
// (or force is true), ordered by most-overdue first, then stars, then most
// recently pushed — the ordering named in spec §4.6.
func (s *Store) GetReposNeedingScan(ctx context.Context, tier int, scanKind string, force bool) ([]domain.TierAssignment, error) {
	q := `
SELECT ta.repo_id, ta.tier, ta.stars, ta.growth_velocity, ta.engagement_score, ta.scan_priority,
	ta.last_deep_scan, ta.last_basic_scan, ta.next_scan_due, ta.updated_at
FROM tier_assignments ta
JOIN repositories r ON r.id = ta.repo_id
WHERE ta.tier = $1`
	args := []interface{}{tier}
	if !force {
		q += ` AND ta.next_scan_due <= now()`
	}
	q += ` ORDER BY ta.next_scan_due ASC, r.stars DESC, r.pushed_at DESC`
	var out []domain.TierAssignment
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, apperrors.StorageError("get_repos_needing_scan", err)
	}
	_ = scanKind // deep vs basic affects which timestamp the planner compares, not this query
	return out, nil
}

// MarkScanned updates the tier assignment's last_deep_scan or
// last_basic_scan timestamp and advances next_scan_due to at plus the
// tier's rescan interval — without this, GetReposNeedingScan's
// next_scan_due <= now() filter never goes false and a scanned repo is
// re-selected on the very next cycle.
func (s *Store) MarkScanned(ctx context.Context, repoID, scanKind string, at time.Time, rescanInterval time.Duration) error {
	col := "last_basic_scan"
	if scanKind == "deep" {
		col = "last_deep_scan"
	}
	q := fmt.Sprintf(`UPDATE tier_assignments SET %s = $1, next_scan_due = $2, updated_at = $1 WHERE repo_id = $3`, col)
	if _, err := s.db.ExecContext(ctx, q, at, at.Add(rescanInterval), repoID); err != nil {
		return apperrors.StorageError("mark_scanned", err)
	}
	return nil
}

// HighGrowthRepos returns repos created within the trailing days with at
// least minStars, ordered by stars descending.
func (s *Store) HighGrowthRepos(ctx context.Context, days int, minStars int) ([]domain.Repository, error) {
	const q = `
SELECT id, owner, name, full_name, description, stars, forks, open_issues, language, topics,
	created_at, updated_at, pushed_at, is_archived, is_fork, html_url, default_branch, discovered_at
FROM repositories
WHERE created_at > now() - ($1 || ' days')::interval AND stars >= $2
ORDER BY stars DESC`
	var rows []repositoryScan
	if err := s.db.SelectContext(ctx, &rows, q, days, minStars); err != nil {
		return nil, apperrors.StorageError("high_growth_repos", err)
	}
	out := make([]domain.Repository, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// DailyStats summarizes repository_count/analysis counts for the dashboard.
type DailyStats struct {
	TotalRepos      int `db:"total_repos"`
	AnalysesToday   int `db:"analyses_today"`
	AlertsToday     int `db:"alerts_today"`
	Tier1Count      int `db:"tier1_count"`
}

func (s *Store) DailyStats(ctx context.Context) (DailyStats, error) {
	const q = `
SELECT
	(SELECT count(*) FROM repositories) AS total_repos,
	(SELECT count(*) FROM analyses WHERE created_at > date_trunc('day', now())) AS analyses_today,
	(SELECT count(*) FROM alerts WHERE sent_at > date_trunc('day', now())) AS alerts_today,
	(SELECT count(*) FROM tier_assignments WHERE tier = 1) AS tier1_count`
	var stats DailyStats
	if err := s.db.GetContext(ctx, &stats, q); err != nil {
		return DailyStats{}, apperrors.StorageError("daily_stats", err)
	}
	return stats, nil
}

// ComprehensiveMetrics joins a repository's current row with its most recent
// metric snapshot and latest analysis for a single-call dashboard view.
type ComprehensiveMetrics struct {
	Repository domain.Repository
	LatestSnap *domain.RepoMetricSnapshot
	Latest     *domain.Analysis
	Tier       *domain.TierAssignment
}

func (s *Store) ComprehensiveMetrics(ctx context.Context, repoID string) (ComprehensiveMetrics, error) {
	repo, ok, err := s.GetRepository(ctx, repoID)
	if err != nil {
		return ComprehensiveMetrics{}, err
	}
	if !ok {
		return ComprehensiveMetrics{}, apperrors.NotFound("repository", repoID)
	}
	out := ComprehensiveMetrics{Repository: repo}

	var snap domain.RepoMetricSnapshot
	err = s.db.GetContext(ctx, &snap, `
SELECT repo_id, stars, forks, open_issues, watchers, contributors, commits_count, recorded_at
FROM repo_metric_snapshots WHERE repo_id = $1 ORDER BY recorded_at DESC LIMIT 1`, repoID)
	if err == nil {
		out.LatestSnap = &snap
	} else if err != sql.ErrNoRows {
		return ComprehensiveMetrics{}, apperrors.StorageError("comprehensive_metrics_snapshot", err)
	}

	analysis, found, err := s.GetLatestAnalysis(ctx, repoID)
	if err != nil {
		return ComprehensiveMetrics{}, err
	}
	if found {
		out.Latest = &analysis
	}

	var tier domain.TierAssignment
	err = s.db.GetContext(ctx, &tier, `
SELECT repo_id, tier, stars, growth_velocity, engagement_score, scan_priority,
	last_deep_scan, last_basic_scan, next_scan_due, updated_at
FROM tier_assignments WHERE repo_id = $1`, repoID)
	if err == nil {
		out.Tier = &tier
	} else if err != sql.ErrNoRows {
		return ComprehensiveMetrics{}, apperrors.StorageError("comprehensive_metrics_tier", err)
	}
	return out, nil
}

// RepositoryCount returns the total number of known repositories.
func (s *Store) RepositoryCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT count(*) FROM repositories`); err != nil {
		return 0, apperrors.StorageError("repository_count", err)
	}
	return count, nil
}

// batchRow is the durable shape of a BatchState: queryable top-level
// columns plus a JSONB payload holding the parts with no `db` tag
// (Repositories, Results, Credits, Checkpoint).
type batchRow struct {
	BatchID   string       `db:"batch_id"`
	Status    string       `db:"status"`
	Payload   []byte       `db:"payload"`
	StartedAt time.Time    `db:"started_at"`
	EndedAt   sql.NullTime `db:"ended_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

type batchPayload struct {
	Total               int                 `json:"total"`
	Completed           int                 `json:"completed"`
	Failed              int                 `json:"failed"`
	Skipped             int                 `json:"skipped"`
	CurrentRepo         string              `json:"current_repo"`
	EstimatedCompletion *time.Time          `json:"estimated_completion,omitempty"`
	Repositories        []string            `json:"repositories"`
	Results             []domain.RepoResult `json:"results"`
	Health              string              `json:"health"`
	RecoveryAttempts    int                 `json:"recovery_attempts"`
	Credits             domain.Credits      `json:"credits"`
	Checkpoint          *domain.Checkpoint  `json:"checkpoint,omitempty"`
}

func toBatchRow(b domain.BatchState) (batchRow, error) {
	payload := batchPayload{
		Total: b.Total, Completed: b.Completed, Failed: b.Failed, Skipped: b.Skipped,
		CurrentRepo: b.CurrentRepo, EstimatedCompletion: b.EstimatedCompletion,
		Repositories: b.Repositories, Results: b.Results, Health: b.Health,
		RecoveryAttempts: b.RecoveryAttempts, Credits: b.Credits, Checkpoint: b.Checkpoint,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return batchRow{}, err
	}
	row := batchRow{
		BatchID: b.BatchID, Status: string(b.Status), Payload: raw,
		StartedAt: b.StartedAt, UpdatedAt: b.UpdatedAt,
	}
	if b.EndedAt != nil {
		row.EndedAt = sql.NullTime{Time: *b.EndedAt, Valid: true}
	}
	return row, nil
}

func (r batchRow) toDomain() (domain.BatchState, error) {
	var payload batchPayload
	if err := json.Unmarshal(r.Payload, &payload); err != nil {
		return domain.BatchState{}, err
	}
	b := domain.BatchState{
		BatchID: r.BatchID, Status: domain.BatchStatus(r.Status),
		Total: payload.Total, Completed: payload.Completed, Failed: payload.Failed, Skipped: payload.Skipped,
		StartedAt: r.StartedAt, UpdatedAt: r.UpdatedAt, CurrentRepo: payload.CurrentRepo,
		EstimatedCompletion: payload.EstimatedCompletion, Repositories: payload.Repositories,
		Results: payload.Results, Health: payload.Health, RecoveryAttempts: payload.RecoveryAttempts,
		Credits: payload.Credits, Checkpoint: payload.Checkpoint,
	}
	if r.EndedAt.Valid {
		t := r.EndedAt.Time
		b.EndedAt = &t
	}
	return b, nil
}

// PutBatch upserts the durable state of a batch run.
func (s *Store) PutBatch(ctx context.Context, b domain.BatchState) error {
	row, err := toBatchRow(b)
	if err != nil {
		return apperrors.StorageError("put_batch_marshal", err)
	}
	const q = `
INSERT INTO batch_states (batch_id, status, payload, started_at, ended_at, updated_at)
VALUES (:batch_id, :status, :payload, :started_at, :ended_at, :updated_at)
ON CONFLICT (batch_id) DO UPDATE SET
	status = EXCLUDED.status, payload = EXCLUDED.payload, ended_at = EXCLUDED.ended_at,
	updated_at = EXCLUDED.updated_at`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return apperrors.StorageError("put_batch", err)
	}
	return nil
}

// GetBatch returns the durable state of a batch run.
func (s *Store) GetBatch(ctx context.Context, batchID string) (domain.BatchState, bool, error) {
	const q = `SELECT batch_id, status, payload, started_at, ended_at, updated_at FROM batch_states WHERE batch_id = $1`
	var row batchRow
	if err := s.db.GetContext(ctx, &row, q, batchID); err != nil {
		if err == sql.ErrNoRows {
			return domain.BatchState{}, false, nil
		}
		return domain.BatchState{}, false, apperrors.StorageError("get_batch", err)
	}
	b, err := row.toDomain()
	if err != nil {
		return domain.BatchState{}, false, apperrors.StorageError("get_batch_unmarshal", err)
	}
	return b, true, nil
}

// ListBatches returns batch IDs whose id starts with prefix (empty prefix
// lists every batch), most recently started first.
func (s *Store) ListBatches(ctx context.Context, prefix string) ([]string, error) {
	q := `SELECT batch_id FROM batch_states`
	args := []interface{}{}
	if prefix != "" {
		q += ` WHERE batch_id LIKE $1`
		args = append(args, strings.ReplaceAll(prefix, "%", `\%`)+"%")
	}
	q += ` ORDER BY started_at DESC`
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, q, args...); err != nil {
		return nil, apperrors.StorageError("list_batches", err)
	}
	return ids, nil
}

// DeleteBatch removes a batch's durable state, e.g. after cleanup.
func (s *Store) DeleteBatch(ctx context.Context, batchID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM batch_states WHERE batch_id = $1`, batchID); err != nil {
		return apperrors.StorageError("delete_batch", err)
	}
	return nil
}

// SaveNextTick persists the scheduler's next scheduled tick (spec §4.8's
// durable-singleton design note), overwriting the single row each call so a
// restarted process can tell whether a tick was missed while it was down.
func (s *Store) SaveNextTick(ctx context.Context, at time.Time) error {
	const q = `
INSERT INTO scheduler_state (id, next_tick, updated_at) VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE SET next_tick = EXCLUDED.next_tick, updated_at = now()`
	if _, err := s.db.ExecContext(ctx, q, at); err != nil {
		return apperrors.StorageError("save_next_tick", err)
	}
	return nil
}

// GetNextTick returns the last persisted next-tick time, if any.
func (s *Store) GetNextTick(ctx context.Context) (time.Time, bool, error) {
	const q = `SELECT next_tick FROM scheduler_state WHERE id = 1`
	var at time.Time
	if err := s.db.GetContext(ctx, &at, q); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, apperrors.StorageError("get_next_tick", err)
	}
	return at, true, nil
}

// SaveRateLimitSnapshot writes bucket states (the shape returned by the
// governor's Snapshot) for observability only. No component in this
// repository calls it, and the core never reads the table back.
func (s *Store) SaveRateLimitSnapshot(ctx context.Context, buckets []domain.RateLimitBucket) error {
	if len(buckets) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.StorageError("save_rate_limit_snapshot_begin", err)
	}
	defer func() { _ = tx.Rollback() }()
	const q = `INSERT INTO rate_limit_snapshots (endpoint, capacity, tokens, refill_rate) VALUES ($1, $2, $3, $4)`
	for _, b := range buckets {
		if _, err := tx.ExecContext(ctx, q, b.Endpoint, b.Capacity, b.Tokens, b.RefillRate); err != nil {
			return apperrors.StorageError("save_rate_limit_snapshot", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.StorageError("save_rate_limit_snapshot_commit", err)
	}
	return nil
}
