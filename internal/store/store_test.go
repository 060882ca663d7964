package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockStore wraps a sqlmock connection in a *Store the way Open wires a
// real one, grounded on the teacher's infrastructure/database sqlmock test
// suite (e.g. applications/httpapi/neo_provider_test.go).
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: sqlx.NewDb(db, "postgres")}, mock
}

func TestGetRepositoryReturnsRowWhenFound(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"id", "owner", "name", "full_name", "description", "stars", "forks", "open_issues",
		"language", "topics", "created_at", "updated_at", "pushed_at", "is_archived", "is_fork",
		"html_url", "default_branch", "discovered_at"}
	mock.ExpectQuery(`FROM repositories WHERE id = \$1`).
		WithArgs("org/repo").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"org/repo", "org", "repo", "org/repo", "desc", 100, 10, 2, "Go",
			"{}", now, now, now, false, false, "https://x", "main", now,
		))

	repo, ok, err := s.GetRepository(context.Background(), "org/repo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "org/repo", repo.FullName)
	assert.Equal(t, 100, repo.Stars)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRepositoryReturnsNotFoundOnNoRows(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM repositories WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, ok, err := s.GetRepository(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkScannedAdvancesNextScanDueByRescanInterval(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	interval := 7 * 24 * time.Hour
	want := at.Add(interval)

	mock.ExpectExec(`UPDATE tier_assignments SET last_deep_scan = \$1, next_scan_due = \$2, updated_at = \$1 WHERE repo_id = \$3`).
		WithArgs(at, want, "org/repo").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.MarkScanned(context.Background(), "org/repo", "deep", at, interval)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkScannedUsesBasicScanColumnForBasicScanKind(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Now()

	mock.ExpectExec(`UPDATE tier_assignments SET last_basic_scan = \$1`).
		WithArgs(at, sqlmock.AnyArg(), "org/repo").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.MarkScanned(context.Background(), "org/repo", "basic", at, 10*24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTierAssignmentFound(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"repo_id", "tier", "stars", "growth_velocity", "engagement_score",
		"scan_priority", "last_deep_scan", "last_basic_scan", "next_scan_due", "updated_at"}
	mock.ExpectQuery(`FROM tier_assignments WHERE repo_id = \$1`).
		WithArgs("org/repo").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("org/repo", 1, 500, 42.5, 10.0, 1.0, nil, nil, now, now))

	ta, ok, err := s.GetTierAssignment(context.Background(), "org/repo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, ta.Tier)
	assert.Equal(t, 42.5, ta.GrowthVelocity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTierAssignmentNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM tier_assignments WHERE repo_id = \$1`).
		WithArgs("org/missing").
		WillReturnRows(sqlmock.NewRows([]string{"repo_id"}))

	_, ok, err := s.GetTierAssignment(context.Background(), "org/missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAndGetNextTickRoundTrips(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Now()

	mock.ExpectExec(`INSERT INTO scheduler_state`).
		WithArgs(at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := s.SaveNextTick(context.Background(), at)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT next_tick FROM scheduler_state`).
		WillReturnRows(sqlmock.NewRows([]string{"next_tick"}).AddRow(at))
	got, ok, err := s.GetNextTick(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, at, got, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBatchExecutesDelete(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM batch_states WHERE batch_id = \$1`).
		WithArgs("b1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.DeleteBatch(context.Background(), "b1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
