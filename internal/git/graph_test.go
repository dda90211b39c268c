package git

import (
	"testing"
	"time"

	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commit builds a minimal test commit; parents may be empty.
func commit(sha string, parents ...string) *models.Commit {
	return &models.Commit{
		SHA:         sha,
		ParentSHAs:  parents,
		AuthorEmail: "dev@x.com",
		CommittedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Linear history with a feature branch:
//
//	root -- m1 -- m2 ----- merge (mainline)
//	   \                  /
//	    f1 ----- f2 ------
func testGraph() *Graph {
	return BuildGraph([]*models.Commit{
		commit("root"),
		commit("m1", "root"),
		commit("m2", "m1"),
		commit("f1", "root"),
		commit("f2", "f1"),
		commit("merge", "m2", "f2"),
	})
}

func TestBuildGraphDeduplicates(t *testing.T) {
	g := BuildGraph([]*models.Commit{
		commit("a"),
		commit("a"),
		commit("b", "a"),
	})
	assert.Equal(t, 2, g.Len(), "no commit appears twice")
}

func TestReachable(t *testing.T) {
	g := testGraph()

	reached := g.Reachable("f2")
	assert.True(t, reached["f2"])
	assert.True(t, reached["f1"])
	assert.True(t, reached["root"])
	assert.False(t, reached["m1"])
	assert.False(t, reached["merge"])
}

func TestReachableUnknownStartIsEmpty(t *testing.T) {
	g := testGraph()
	assert.Empty(t, g.Reachable("missing"))
}

func TestExclusiveIsMergeBaseExclusion(t *testing.T) {
	g := testGraph()

	introduced := g.Exclusive("f2", "m2")
	shas := make([]string, 0, len(introduced))
	for _, c := range introduced {
		shas = append(shas, c.SHA)
	}
	assert.ElementsMatch(t, []string{"f1", "f2"}, shas)

	// No introduced commit may be reachable from the mainline parent.
	mainline := g.Reachable("m2")
	for _, c := range introduced {
		assert.False(t, mainline[c.SHA], "commit %s predates the merge on the mainline", c.SHA)
	}
}

func TestExclusiveToleratesTruncatedParents(t *testing.T) {
	// f1's parent was truncated away; exclusion must not panic or loop.
	g := BuildGraph([]*models.Commit{
		commit("m2", "m1"),
		commit("f1", "gone"),
		commit("merge", "m2", "f1"),
	})

	introduced := g.Exclusive("f1", "m2")
	require.Len(t, introduced, 1)
	assert.Equal(t, "f1", introduced[0].SHA)
}
