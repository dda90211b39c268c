package pullreq

import (
	"testing"
	"time"

	"github.com/gitpulse/gitpulse-go/internal/git"
	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commit(sha, email, message string, added int, parents ...string) *models.Commit {
	return &models.Commit{
		SHA:          sha,
		ParentSHAs:   parents,
		AuthorEmail:  email,
		Message:      message,
		LinesAdded:   added,
		FilesChanged: 1,
		CommittedAt:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newDetector() *Detector {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewDetector(nil, logger)
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	d := newDetector()

	pattern, ok := d.Match("Merge Pull Request #42 from org/feature")
	assert.True(t, ok)
	assert.Equal(t, "merge pull request", pattern)

	_, ok = d.Match("Merge branch 'develop'")
	assert.False(t, ok, "plain branch merges are not PRs")
}

func TestMatchCustomPatterns(t *testing.T) {
	d := NewDetector([]string{"integrated change"}, nil)

	_, ok := d.Match("Integrated change 991 into trunk")
	assert.True(t, ok)

	_, ok = d.Match("Merge pull request #1")
	assert.False(t, ok, "custom pattern set replaces the default")
}

// Three branches off a common root; the feature branch is merged with a PR
// message. The inferred PR must contain exactly the feature branch's unique
// commits.
func TestInferThreeBranchScenario(t *testing.T) {
	g := git.BuildGraph([]*models.Commit{
		commit("root", "a@x.com", "init", 1),
		commit("m1", "a@x.com", "mainline work", 5, "root"),
		commit("f1", "b@x.com", "feature start", 10, "root"),
		commit("f2", "b@x.com", "feature finish", 20, "f1"),
		commit("side1", "c@x.com", "unrelated branch", 3, "root"),
		commit("merge", "a@x.com", "Merge pull request #12 from feature", 0, "m1", "f2"),
	})

	prs := newDetector().Infer(g, "demo")
	require.Len(t, prs, 1)

	pr := prs[0]
	assert.Equal(t, "merge", pr.MergeSHA)
	assert.ElementsMatch(t, []string{"f1", "f2"}, pr.CommitSHAs)
	assert.Equal(t, []string{"b@x.com"}, pr.Contributors)
	assert.Equal(t, 30, pr.LinesAdded, "aggregate diff sums the introduced commits")
	assert.Equal(t, 2, pr.FilesChanged)
}

func TestInferExcludesMainlineCommits(t *testing.T) {
	// f branched after m1, so m1 and root are reachable from both parents.
	g := git.BuildGraph([]*models.Commit{
		commit("root", "a@x.com", "init", 1),
		commit("m1", "a@x.com", "shared history", 2, "root"),
		commit("f1", "b@x.com", "feature", 3, "m1"),
		commit("m2", "a@x.com", "mainline moved on", 4, "m1"),
		commit("merge", "a@x.com", "Merged PR 9: feature", 0, "m2", "f1"),
	})

	prs := newDetector().Infer(g, "demo")
	require.Len(t, prs, 1)

	mainline := g.Reachable("m2")
	for _, sha := range prs[0].CommitSHAs {
		assert.False(t, mainline[sha], "no PR commit may predate the merge on the mainline")
	}
	assert.Equal(t, []string{"f1"}, prs[0].CommitSHAs)
}

func TestInferEmptyIntroducedSet(t *testing.T) {
	// Feature parent is already reachable from the mainline parent.
	base := []*models.Commit{
		commit("root", "a@x.com", "init", 1),
		commit("f1", "b@x.com", "feature", 3, "root"),
		commit("m1", "a@x.com", "mainline includes feature", 2, "f1"),
	}

	// Without a body the merge is dropped entirely.
	g := git.BuildGraph(append(base,
		commit("merge", "a@x.com", "Merge pull request #7 from feature", 0, "m1", "f1")))
	assert.Empty(t, newDetector().Infer(g, "demo"))

	// With a body it is kept with zero commits (counted, never quality-scored).
	g = git.BuildGraph(append(base,
		commit("merge2", "a@x.com", "Merge pull request #7 from feature\n\nAlready on mainline.", 0, "m1", "f1")))
	prs := newDetector().Infer(g, "demo")
	require.Len(t, prs, 1)
	assert.Empty(t, prs[0].CommitSHAs)
	assert.Empty(t, prs[0].Contributors)
}

func TestInferIgnoresNonMergeCommits(t *testing.T) {
	g := git.BuildGraph([]*models.Commit{
		commit("a", "a@x.com", "merge pull request style message on a regular commit", 1),
	})
	assert.Empty(t, newDetector().Infer(g, "demo"))
}
