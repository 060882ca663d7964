// Package codehost defines the code-host adapter contract consumed by the
// External Fetcher (C2), per spec §6. The concrete vendor is replaceable;
// see github_adapter.go for the one wired implementation.
package codehost

import (
	"context"
	"time"

	"github.com/R3E-Network/repo-scout/domain"
)

// SearchParams mirrors the search() capability of spec §6.
type SearchParams struct {
	Query   string
	Sort    string // "stars", "updated", "forks"
	Order   string // "asc", "desc"
	PerPage int
}

// RateLimitStatus mirrors rate_limit() of spec §6.
type RateLimitStatus struct {
	Remaining int
	ResetAt   time.Time
	Limit     int
}

// Client is the capability surface the core consumes from a code-hosting
// platform. Implementations must translate vendor-specific errors into the
// error surface named in spec §6 (NotFound, RateLimited, AuthFailed,
// Unavailable, InvalidResponse) using internal/errors.
type Client interface {
	Search(ctx context.Context, params SearchParams) ([]domain.Repository, error)
	GetRepository(ctx context.Context, owner, name string) (domain.Repository, error)
	GetReadme(ctx context.Context, owner, name string) (string, error)
	GetContributors(ctx context.Context, owner, name string, limit int) ([]domain.Contributor, error)
	GetCommitActivity(ctx context.Context, owner, name string, days int) ([]domain.CommitMetric, error)
	RateLimit(ctx context.Context) (RateLimitStatus, error)
}
