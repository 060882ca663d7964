package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/repo-scout/domain"
)

func TestNamesWithStatusFiltersAndPreservesOrder(t *testing.T) {
	results := []domain.RepoResult{
		{RepoFullName: "a/a", Status: domain.ResultSuccess},
		{RepoFullName: "b/b", Status: domain.ResultFailed},
		{RepoFullName: "c/c", Status: domain.ResultTimeout},
		{RepoFullName: "d/d", Status: domain.ResultSkipped},
	}

	assert.Equal(t, []string{"a/a"}, namesWithStatus(results, domain.ResultSuccess))
	assert.Equal(t, []string{"b/b", "c/c"}, namesWithStatus(results, domain.ResultFailed, domain.ResultTimeout))
	assert.Nil(t, namesWithStatus(results))
}

func TestSplitFullName(t *testing.T) {
	owner, name := splitFullName("anthropics/claude-code")
	assert.Equal(t, "anthropics", owner)
	assert.Equal(t, "claude-code", name)
}

func TestSplitFullNameNoSlash(t *testing.T) {
	owner, name := splitFullName("no-owner-here")
	assert.Equal(t, "", owner)
	assert.Equal(t, "no-owner-here", name)
}
