package git

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitpulse/gitpulse-go/internal/models"
)

func branchCommit(sha string, at time.Time) *models.Commit {
	return &models.Commit{
		SHA:         sha,
		Repository:  "demo",
		AuthorEmail: "a@x.com",
		CommittedAt: at,
		Branches:    []string{},
	}
}

func TestCollectBranchDeduplicatesAcrossBranches(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	result := &Result{DefaultBranch: "main"}
	seen := make(map[string]*models.Commit)

	main := collectBranch(result, seen, "main",
		[]*models.Commit{branchCommit("aaa", base), branchCommit("bbb", base.Add(time.Hour))}, 100)
	dev := collectBranch(result, seen, "dev",
		[]*models.Commit{branchCommit("bbb", base.Add(time.Hour)), branchCommit("ccc", base.Add(2*time.Hour))}, 100)

	require.Len(t, result.Commits, 3, "bbb appears once in the deduplicated set")
	assert.True(t, main.IsDefault)
	assert.Equal(t, 2, main.CommitCount)
	assert.Equal(t, 2, dev.CommitCount, "a shared commit still counts toward the second branch")
	assert.Contains(t, seen["bbb"].Branches, "dev")
	assert.False(t, result.Truncated)
}

func TestCollectBranchCapExcludesRejectedCommit(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	result := &Result{}
	seen := make(map[string]*models.Commit)

	commits := []*models.Commit{
		branchCommit("aaa", base),
		branchCommit("bbb", base.Add(time.Hour)),
		branchCommit("ccc", base.Add(2*time.Hour)),
	}
	branch := collectBranch(result, seen, "main", commits, 2)

	assert.True(t, result.Truncated)
	require.Len(t, result.Commits, 2)
	assert.Equal(t, 2, branch.CommitCount, "the commit that trips the cap is not counted")
	assert.Equal(t, base.Add(time.Hour), branch.LastCommit)
}

func TestCollectBranchCapStillCountsAlreadySeen(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	result := &Result{}
	seen := make(map[string]*models.Commit)

	collectBranch(result, seen, "main",
		[]*models.Commit{branchCommit("aaa", base), branchCommit("bbb", base.Add(time.Hour))}, 2)
	dev := collectBranch(result, seen, "dev",
		[]*models.Commit{branchCommit("bbb", base.Add(time.Hour)), branchCommit("ddd", base.Add(3*time.Hour))}, 2)

	assert.True(t, result.Truncated)
	assert.Equal(t, 1, dev.CommitCount, "already emitted commits count even at the cap")
	assert.Equal(t, base.Add(time.Hour), dev.LastCommit)
}
