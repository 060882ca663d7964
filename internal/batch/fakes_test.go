package batch

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/repo-scout/domain"
	"github.com/R3E-Network/repo-scout/internal/llmclient"
)

// fakeStore is an in-memory repoStore good enough to drive the orchestrator
// through a full run without a database, grounded on the teacher's
// in-repository test doubles that hold state in plain maps behind a mutex.
type fakeStore struct {
	mu sync.Mutex

	reposByID   map[string]domain.Repository
	reposByName map[string]domain.Repository
	tiers       map[string]domain.TierAssignment
	analyses    []domain.Analysis
	alerts      []domain.Alert
	batches     map[string]domain.BatchState

	scannedRepoIDs []string
	markScannedErr error
	statusHistory  []domain.BatchStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reposByID:   make(map[string]domain.Repository),
		reposByName: make(map[string]domain.Repository),
		tiers:       make(map[string]domain.TierAssignment),
		batches:     make(map[string]domain.BatchState),
	}
}

func (s *fakeStore) seedRepo(r domain.Repository, tier int, growthVelocity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reposByID[r.ID] = r
	s.reposByName[r.FullName] = r
	s.tiers[r.ID] = domain.TierAssignment{RepoID: r.ID, Tier: tier, Stars: r.Stars, GrowthVelocity: growthVelocity}
}

func (s *fakeStore) GetRepository(_ context.Context, id string) (domain.Repository, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reposByID[id]
	return r, ok, nil
}

func (s *fakeStore) GetRepositoryByFullName(_ context.Context, fullName string) (domain.Repository, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reposByName[fullName]
	return r, ok, nil
}

func (s *fakeStore) UpsertRepository(_ context.Context, r domain.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reposByID[r.ID] = r
	s.reposByName[r.FullName] = r
	return nil
}

func (s *fakeStore) SaveAnalysis(_ context.Context, a domain.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses = append(s.analyses, a)
	return nil
}

func (s *fakeStore) SaveAlert(_ context.Context, a domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *fakeStore) MarkScanned(_ context.Context, repoID, _ string, _ time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markScannedErr != nil {
		return s.markScannedErr
	}
	s.scannedRepoIDs = append(s.scannedRepoIDs, repoID)
	return nil
}

func (s *fakeStore) GetTierAssignment(_ context.Context, repoID string) (domain.TierAssignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiers[repoID]
	return t, ok, nil
}

func (s *fakeStore) PutBatch(_ context.Context, b domain.BatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statusHistory) == 0 || s.statusHistory[len(s.statusHistory)-1] != b.Status {
		s.statusHistory = append(s.statusHistory, b.Status)
	}
	s.batches[b.BatchID] = b
	return nil
}

func (s *fakeStore) GetBatch(_ context.Context, batchID string) (domain.BatchState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	return b, ok, nil
}

func (s *fakeStore) analysisCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.analyses)
}

func (s *fakeStore) alertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

// fakeFetcher is a repoFetcher whose Analyze behavior is scripted per call:
// the first failNext calls return failErr, every later call (or every call
// once failNext is exhausted) succeeds with result (or a default).
type fakeFetcher struct {
	mu sync.Mutex

	failNext  int
	failErr   error
	result    domain.Analysis
	resultFor map[string]domain.Analysis // keyed by repo full name, overrides result
	delay     time.Duration

	calls int
}

func (f *fakeFetcher) GetRepository(_ context.Context, owner, name string) (domain.Repository, error) {
	return domain.Repository{ID: owner + "/" + name, Owner: owner, Name: name, FullName: owner + "/" + name}, nil
}

func (f *fakeFetcher) GetReadme(_ context.Context, _, _ string) (string, error) {
	return "# readme", nil
}

func (f *fakeFetcher) Analyze(ctx context.Context, req llmclient.AnalyzeRequest) (domain.Analysis, error) {
	f.mu.Lock()
	f.calls++
	shouldFail := f.failNext > 0
	if shouldFail {
		f.failNext--
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.Analysis{}, ctx.Err()
		}
	}

	if shouldFail {
		return domain.Analysis{}, f.failErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.resultFor[req.Repository.FullName]; ok {
		a.RepoID = req.Repository.ID
		a.ModelUsed = req.ModelTier
		return a, nil
	}
	a := f.result
	a.RepoID = req.Repository.ID
	a.ModelUsed = req.ModelTier
	return a, nil
}
