package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitpulse/gitpulse-go/internal/identity"
	"github.com/gitpulse/gitpulse-go/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRepositoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetRepository(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	repo := &models.Repository{
		Name:          "demo",
		Path:          "/repos/demo",
		DefaultBranch: "main",
		TotalCommits:  42,
		LastAnalyzed:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveRepository(ctx, repo))

	got, err := store.GetRepository(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "main", got.DefaultBranch)
	assert.Equal(t, 42, got.TotalCommits)

	// Saving again updates in place.
	repo.TotalCommits = 50
	require.NoError(t, store.SaveRepository(ctx, repo))
	repos, err := store.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, 50, repos[0].TotalCommits)
}

func TestCommitsPreserveGraphFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	commits := []*models.Commit{
		{
			SHA: "merge", Repository: "demo", ParentSHAs: []string{"m1", "f2"},
			AuthorEmail: "a@x.com", Message: "Merge pull request #1",
			CommittedAt: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			Branches:    []string{"main"},
		},
		{
			SHA: "f2", Repository: "demo", ParentSHAs: []string{"f1"},
			AuthorEmail: "b@x.com", Message: "feature",
			CommittedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Branches:    []string{"main", "feature"}, LinesAdded: 10,
		},
	}
	require.NoError(t, store.SaveCommits(ctx, commits))

	got, err := store.GetCommits(ctx, "demo", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "merge", got[0].SHA, "newest first")
	assert.Equal(t, []string{"m1", "f2"}, got[0].ParentSHAs)
	assert.Equal(t, []string{"main", "feature"}, got[1].Branches)
	assert.True(t, got[0].IsMerge())
}

func TestContributorsReplacedWholesale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := []*models.Contributor{
		{Email: "a@x.com", Name: "A", Commits: 5, ImpactScore: 60},
		{Email: "b@x.com", Name: "B", Commits: 3, ImpactScore: 40},
	}
	require.NoError(t, store.SaveContributors(ctx, "demo", first))

	// A merge collapsed b into a; the new snapshot has one row.
	merged := []*models.Contributor{
		{
			Email: "a@x.com", Name: "A", Commits: 8, ImpactScore: 70,
			Aliases: []string{"a@x.com", "b@x.com"}, MergedEmails: []string{"b@x.com"},
		},
	}
	require.NoError(t, store.SaveContributors(ctx, "demo", merged))

	got, err := store.GetContributors(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"b@x.com"}, got[0].MergedEmails)
	assert.Equal(t, 1, got[0].MergedCount())
}

func TestMergeRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := []identity.MergeRecord{
		{MergedEmail: "b@x.com", PrimaryEmail: "a@x.com"},
		{MergedEmail: "c@x.com", PrimaryEmail: "a@x.com"},
	}
	require.NoError(t, store.SaveMerges(ctx, records))

	got, err := store.GetMerges(ctx)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	require.NoError(t, store.DeleteMerges(ctx, []string{"b@x.com"}))
	got, err = store.GetMerges(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c@x.com", got[0].MergedEmail)
}

func TestScoreUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	score := &models.Score{
		Scope: models.ScopeRepository, Subject: "demo",
		Dimensions: models.Dimensions{Activity: 70, Overall: 65},
		Grade:      "B-", ComputedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveScore(ctx, score))

	score.Dimensions.Overall = 72
	score.Grade = "B"
	require.NoError(t, store.SaveScore(ctx, score))

	got, err := store.GetScore(ctx, models.ScopeRepository, "demo")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Grade)
	assert.Equal(t, 72.0, got.Dimensions.Overall)

	_, err = store.GetScore(ctx, models.ScopePortfolio, "portfolio")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCodebaseReportRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	report := &models.CodebaseReport{
		Repository:         "demo",
		TotalFiles:         10,
		CodeLines:          900,
		LanguageFiles:      map[string]int{"Go": 8, "Bash": 2},
		LanguageCodeLines:  map[string]int{"Go": 850, "Bash": 50},
		DependencyWarnings: []string{"package.json without a lockfile"},
		OverallScore:       77.5,
		GeneratedAt:        time.Now().UTC(),
	}
	require.NoError(t, store.SaveCodebaseReport(ctx, report))

	got, err := store.GetCodebaseReport(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 8, got.LanguageFiles["Go"])
	assert.Equal(t, report.DependencyWarnings, got.DependencyWarnings)
	assert.Equal(t, 77.5, got.OverallScore)
}

func TestRunLifecyclePersisted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &models.AnalysisRun{
		ID: "run-1", Repository: "demo", State: models.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveRun(ctx, run))

	run.State = models.RunCompleted
	run.Progress = 120
	run.Warnings = []string{"history truncated at 10000 commits"}
	run.CompletedAt = time.Now().UTC()
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.State)
	assert.Equal(t, 120, got.Progress)
	assert.Len(t, got.Warnings, 1)

	runs, err := store.ListRuns(ctx, "demo", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	all, err := store.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
