package codehost

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/R3E-Network/repo-scout/domain"
	apperrors "github.com/R3E-Network/repo-scout/internal/errors"
)

// GitHubAdapter implements Client against the GitHub REST API, grounded on
// the search-and-crawl shape of other_examples' go-ghcrawl reference
// (github.NewClient + Organizations/Repositories calls), generalized to the
// full capability surface spec §6 names.
type GitHubAdapter struct {
	client *github.Client
}

// NewGitHubAdapter builds an adapter authenticated with a personal access
// token. An empty token still works against GitHub's unauthenticated (much
// lower) rate limit.
func NewGitHubAdapter(token string) *GitHubAdapter {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), ts)
	}
	return &GitHubAdapter{client: github.NewClient(hc)}
}

func (a *GitHubAdapter) Search(ctx context.Context, params SearchParams) ([]domain.Repository, error) {
	opts := &github.SearchOptions{
		Sort:        params.Sort,
		Order:       params.Order,
		ListOptions: github.ListOptions{PerPage: params.PerPage},
	}
	result, _, err := a.client.Search.Repositories(ctx, params.Query, opts)
	if err != nil {
		return nil, translateErr("search", err)
	}
	out := make([]domain.Repository, 0, len(result.Repositories))
	for _, r := range result.Repositories {
		out = append(out, fromGitHubRepo(r))
	}
	return out, nil
}

func (a *GitHubAdapter) GetRepository(ctx context.Context, owner, name string) (domain.Repository, error) {
	r, _, err := a.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return domain.Repository{}, translateErr("get_repository", err)
	}
	return fromGitHubRepo(r), nil
}

func (a *GitHubAdapter) GetReadme(ctx context.Context, owner, name string) (string, error) {
	content, _, err := a.client.Repositories.GetReadme(ctx, owner, name, nil)
	if err != nil {
		return "", translateErr("get_readme", err)
	}
	text, err := content.GetContent()
	if err != nil {
		return "", apperrors.InvalidResponse("github", err)
	}
	return text, nil
}

func (a *GitHubAdapter) GetContributors(ctx context.Context, owner, name string, limit int) ([]domain.Contributor, error) {
	opts := &github.ListContributorsOptions{ListOptions: github.ListOptions{PerPage: limit}}
	contributors, _, err := a.client.Repositories.ListContributors(ctx, owner, name, opts)
	if err != nil {
		return nil, translateErr("get_contributors", err)
	}
	out := make([]domain.Contributor, 0, len(contributors))
	for _, c := range contributors {
		out = append(out, domain.Contributor{
			Login:         c.GetLogin(),
			Contributions: c.GetContributions(),
			HTMLURL:       c.GetHTMLURL(),
		})
	}
	return out, nil
}

func (a *GitHubAdapter) GetCommitActivity(ctx context.Context, owner, name string, days int) ([]domain.CommitMetric, error) {
	weeks, _, err := a.client.Repositories.ListCommitActivity(ctx, owner, name)
	if err != nil {
		return nil, translateErr("get_commit_activity", err)
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	out := make([]domain.CommitMetric, 0, len(weeks))
	for _, w := range weeks {
		weekStart := w.GetWeek().Time
		if weekStart.Before(cutoff) {
			continue
		}
		out = append(out, domain.CommitMetric{Date: weekStart, Commits: w.GetTotal()})
	}
	return out, nil
}

func (a *GitHubAdapter) RateLimit(ctx context.Context) (RateLimitStatus, error) {
	limits, _, err := a.client.RateLimit.Get(ctx)
	if err != nil {
		return RateLimitStatus{}, translateErr("rate_limit", err)
	}
	core := limits.GetCore()
	return RateLimitStatus{
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
		Limit:     core.Limit,
	}, nil
}

func fromGitHubRepo(r *github.Repository) domain.Repository {
	topics := r.Topics
	now := time.Now()
	return domain.Repository{
		ID:            strFromInt64(r.GetID()),
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		OpenIssues:    r.GetOpenIssuesCount(),
		Language:      r.GetLanguage(),
		Topics:        lowerAll(topics),
		CreatedAt:     r.GetCreatedAt().Time,
		UpdatedAt:     r.GetUpdatedAt().Time,
		PushedAt:      r.GetPushedAt().Time,
		IsArchived:    r.GetArchived(),
		IsFork:        r.GetFork(),
		HTMLURL:       r.GetHTMLURL(),
		DefaultBranch: r.GetDefaultBranch(),
		DiscoveredAt:  now,
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func strFromInt64(v int64) string {
	return github.Stringify(v)
}

// translateErr maps go-github's error shapes onto the error surface of
// spec §6: NotFound, RateLimited, AuthFailed, Unavailable, InvalidResponse.
func translateErr(operation string, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		retryAfter := int(time.Until(rateErr.Rate.Reset.Time).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		return apperrors.RateLimited(retryAfter)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		retryAfter := 60
		if abuseErr.RetryAfter != nil {
			retryAfter = int(abuseErr.RetryAfter.Seconds())
		}
		return apperrors.RateLimited(retryAfter)
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return apperrors.NotFound("repository", operation)
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.AuthFailed("github")
		case http.StatusUnprocessableEntity, http.StatusBadRequest:
			return apperrors.InvalidResponse("github", err)
		}
		if respErr.Response.StatusCode >= 500 {
			return apperrors.Unavailable("github", err)
		}
	}
	return apperrors.Unavailable("github", err)
}
