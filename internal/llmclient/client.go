// Package llmclient defines the LLM adapter contract consumed by the
// External Fetcher (C2), per spec §6. The concrete vendor is replaceable;
// see anthropic_adapter.go for the one wired implementation.
package llmclient

import (
	"context"

	"github.com/R3E-Network/repo-scout/domain"
)

// AnalyzeRequest carries everything the LLM needs to produce a structured
// Analysis for one repository.
type AnalyzeRequest struct {
	Repository domain.Repository
	Readme     string
	ModelTier  domain.ModelTier
}

// Client is the capability surface the core consumes from an LLM provider.
// Implementations must translate vendor-specific errors into the error
// surface named in spec §6 (RateLimited, Timeout, InvalidResponse,
// Unavailable) using internal/errors, and must reject (not coerce) an
// unrecognized recommendation string per §9.
type Client interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (domain.Analysis, error)
}
