package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitpulse/gitpulse-go/internal/config"
	"github.com/gitpulse/gitpulse-go/internal/git"
	"github.com/gitpulse/gitpulse-go/internal/identity"
	"github.com/gitpulse/gitpulse-go/internal/inference"
	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/gitpulse/gitpulse-go/internal/quality"
	"github.com/gitpulse/gitpulse-go/internal/scoring"
	"github.com/gitpulse/gitpulse-go/internal/storage"
)

type fakeSource struct {
	results map[string]*git.Result // keyed by repo name
	err     error
	block   chan struct{} // when set, Extract waits until closed

	mu        sync.Mutex
	diffCalls int
}

func (f *fakeSource) Extract(ctx context.Context, path string) (*git.Result, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	result, ok := f.results[filepath.Base(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", git.ErrRepositoryUnreadable, path)
	}
	return result, nil
}

func (f *fakeSource) Diff(ctx context.Context, path, sha string) (string, error) {
	f.mu.Lock()
	f.diffCalls++
	f.mu.Unlock()
	return "+added line\n", nil
}

func (f *fakeSource) diffCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.diffCalls
}

type fakeTree struct{}

func (fakeTree) Analyze(repoPath, repository string) (*models.CodebaseReport, error) {
	return &models.CodebaseReport{Repository: repository, OverallScore: 75, GeneratedAt: time.Now().UTC()}, nil
}

func day(n int) time.Time {
	return time.Date(2024, 4, n, 0, 0, 0, 0, time.UTC)
}

func commit(sha, name, email string, at time.Time, added int, parents ...string) *models.Commit {
	return &models.Commit{
		SHA:         sha,
		Repository:  "demo",
		ParentSHAs:  parents,
		AuthorName:  name,
		AuthorEmail: email,
		Message:     "feat: change " + sha,
		CommittedAt: at,
		Branches:    []string{"main"},
		LinesAdded:  added,
	}
}

// demoHistory is the three-branch scenario: mainline work by a, a feature
// branch by b merged back with a PR message.
func demoHistory() *git.Result {
	commits := []*models.Commit{
		commit("root", "A", "a@x.com", day(1), 5),
		commit("m1", "A", "a@x.com", day(2), 5, "root"),
		commit("f1", "B", "b@x.com", day(3), 10, "root"),
		commit("f2", "B", "b@x.com", day(4), 20, "f1"),
		{
			SHA: "merge", Repository: "demo", ParentSHAs: []string{"m1", "f2"},
			AuthorName: "A", AuthorEmail: "a@x.com",
			Message:     "Merge pull request #5 from feature",
			CommittedAt: day(5), Branches: []string{"main"},
		},
	}
	return &git.Result{
		Commits:       commits,
		Branches:      []models.Branch{{Name: "main", IsDefault: true, CommitCount: 5}},
		DefaultBranch: "main",
	}
}

func newTestEngine(t *testing.T, source HistorySource) (*Engine, storage.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := config.Default()
	cfg.RepositoriesDir = t.TempDir()
	cfg.Inference.Enabled = false

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	qual := quality.NewAnalyzer(inference.Disabled{}, cfg.Scoring, cfg.Inference, logger)
	eng := New(cfg, store, source, fakeTree{}, qual,
		identity.NewResolver(logger), scoring.NewScorer(cfg.Scoring), logger)
	return eng, store
}

func TestAnalyzeSyncEndToEnd(t *testing.T) {
	source := &fakeSource{results: map[string]*git.Result{"demo": demoHistory()}}
	eng, store := newTestEngine(t, source)
	ctx := context.Background()

	run, err := eng.AnalyzeSync(ctx, "/repos/demo")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.State)
	assert.Equal(t, 5, run.Progress)
	assert.Empty(t, run.Error)
	assert.NotContains(t, run.Warnings, "history truncated")

	repo, err := store.GetRepository(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 5, repo.TotalCommits)
	assert.Equal(t, 2, repo.TotalContributors)

	prs, err := store.GetPullRequests(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.ElementsMatch(t, []string{"f1", "f2"}, prs[0].CommitSHAs)

	contributors, err := store.GetContributors(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, contributors, 2)
	byEmail := map[string]*models.Contributor{}
	for _, c := range contributors {
		byEmail[c.Email] = c
	}
	assert.Equal(t, 3, byEmail["a@x.com"].Commits)
	assert.Equal(t, 2, byEmail["b@x.com"].Commits)
	assert.Equal(t, 1, byEmail["b@x.com"].PullRequests, "PR credit goes to the feature author")
	assert.Greater(t, byEmail["b@x.com"].QualityScore, 0.0)
	assert.True(t, byEmail["b@x.com"].LLMUnavailable, "disabled judge leaves the heuristic flag set")

	score, err := store.GetScore(ctx, models.ScopeRepository, "demo")
	require.NoError(t, err)
	assert.NotEmpty(t, score.Grade)

	report, err := store.GetCodebaseReport(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 75.0, report.OverallScore)

	global, err := store.GetContributors(ctx, "")
	require.NoError(t, err)
	assert.Len(t, global, 2, "global aggregate mirrors the single repository")

	assert.Contains(t, run.Warnings, "inference endpoint unavailable, quality scores are heuristic only")
}

func TestAnalyzeRejectsConcurrentRunForSameRepo(t *testing.T) {
	source := &fakeSource{
		results: map[string]*git.Result{"demo": demoHistory()},
		block:   make(chan struct{}),
	}
	eng, _ := newTestEngine(t, source)
	ctx := context.Background()

	run, err := eng.AnalyzeRepository(ctx, "/repos/demo")
	require.NoError(t, err)
	require.NotNil(t, run)

	_, err = eng.AnalyzeRepository(ctx, "/repos/demo")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, 1, eng.ActiveRuns())

	close(source.block)
	require.Eventually(t, func() bool { return eng.ActiveRuns() == 0 },
		5*time.Second, 10*time.Millisecond)

	got, err := eng.Run(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.State)

	// The slot is free again.
	_, err = eng.AnalyzeSync(ctx, "/repos/demo")
	assert.NoError(t, err)
}

func TestIdentityMutationsRejectedWhileRunning(t *testing.T) {
	source := &fakeSource{
		results: map[string]*git.Result{"demo": demoHistory()},
		block:   make(chan struct{}),
	}
	eng, _ := newTestEngine(t, source)
	ctx := context.Background()

	_, err := eng.AnalyzeRepository(ctx, "/repos/demo")
	require.NoError(t, err)

	err = eng.MergeContributors(ctx, "a@x.com", []string{"b@x.com"})
	assert.ErrorIs(t, err, ErrAnalysisActive)
	err = eng.UnmergeContributors(ctx, []string{"b@x.com"})
	assert.ErrorIs(t, err, ErrAnalysisActive)

	close(source.block)
	require.Eventually(t, func() bool { return eng.ActiveRuns() == 0 },
		5*time.Second, 10*time.Millisecond)
}

// Ten commits split 6/4 between two emails; merging the second into the
// first yields one contributor with all ten commits and one merged email,
// and unmerging restores the original split.
func TestMergeRecomputesAggregatesAndUnmergeRestores(t *testing.T) {
	commits := make([]*models.Commit, 0, 10)
	for i := 0; i < 6; i++ {
		commits = append(commits, commit(fmt.Sprintf("a%d", i), "A", "a@x.com", day(i+1), 10))
	}
	for i := 0; i < 4; i++ {
		commits = append(commits, commit(fmt.Sprintf("b%d", i), "B", "b@x.com", day(i+10), 10))
	}
	source := &fakeSource{results: map[string]*git.Result{"demo": {
		Commits:       commits,
		Branches:      []models.Branch{{Name: "main", IsDefault: true}},
		DefaultBranch: "main",
	}}}
	eng, store := newTestEngine(t, source)
	ctx := context.Background()

	_, err := eng.AnalyzeSync(ctx, "/repos/demo")
	require.NoError(t, err)

	require.NoError(t, eng.MergeContributors(ctx, "a@x.com", []string{"b@x.com"}))

	contributors, err := store.GetContributors(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, contributors, 1)
	merged := contributors[0]
	assert.Equal(t, "a@x.com", merged.Email)
	assert.Equal(t, 10, merged.Commits)
	assert.Equal(t, 1, merged.MergedCount())
	assert.Equal(t, []string{"b@x.com"}, merged.MergedEmails)
	assert.ElementsMatch(t, []string{"a@x.com", "b@x.com"}, merged.Aliases)

	// Merge records survive for replay.
	records, err := store.GetMerges(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, eng.UnmergeContributors(ctx, []string{"b@x.com"}))

	contributors, err = store.GetContributors(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, contributors, 2)
	byEmail := map[string]*models.Contributor{}
	for _, c := range contributors {
		byEmail[c.Email] = c
	}
	assert.Equal(t, 6, byEmail["a@x.com"].Commits)
	assert.Equal(t, 4, byEmail["b@x.com"].Commits)
	assert.Zero(t, byEmail["a@x.com"].MergedCount())

	records, err = store.GetMerges(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func historyFor(repo string) *git.Result {
	mk := func(sha, name, email string, n, added int) *models.Commit {
		c := commit(repo+"-"+sha, name, email, day(n), added)
		c.Repository = repo
		return c
	}
	return &git.Result{
		Commits: []*models.Commit{
			mk("1", "A", "a@x.com", 1, 5),
			mk("2", "A", "a@x.com", 2, 5),
			mk("3", "B", "b@x.com", 3, 10),
		},
		Branches:      []models.Branch{{Name: "main", IsDefault: true, CommitCount: 3}},
		DefaultBranch: "main",
	}
}

// The fan-out workers share one resolver: each run replays the persisted
// identity merges while the others keep resolving authors.
func TestAnalyzeAllFansOutAndReplaysMerges(t *testing.T) {
	source := &fakeSource{results: map[string]*git.Result{
		"alpha": historyFor("alpha"),
		"beta":  historyFor("beta"),
	}}
	eng, store := newTestEngine(t, source)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta"} {
		require.NoError(t, os.MkdirAll(filepath.Join(eng.cfg.RepositoriesDir, name, ".git"), 0o755))
	}
	require.NoError(t, store.SaveMerges(ctx, []identity.MergeRecord{
		{MergedEmail: "b@x.com", PrimaryEmail: "a@x.com"},
	}))

	runs, err := eng.AnalyzeAll(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		got, err := eng.Run(run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunCompleted, got.State, run.Repository)
	}
	assert.Equal(t, 0, eng.ActiveRuns())

	for _, name := range []string{"alpha", "beta"} {
		contributors, err := store.GetContributors(ctx, name)
		require.NoError(t, err)
		require.Len(t, contributors, 1, name)
		assert.Equal(t, "a@x.com", contributors[0].Email)
		assert.Equal(t, 3, contributors[0].Commits)
		assert.Equal(t, []string{"b@x.com"}, contributors[0].MergedEmails)
	}

	score, err := store.GetScore(ctx, models.ScopePortfolio, "portfolio")
	require.NoError(t, err)
	assert.NotEmpty(t, score.Grade)
}

func TestDisableInferenceStillSamplesDiffs(t *testing.T) {
	source := &fakeSource{results: map[string]*git.Result{"demo": demoHistory()}}
	eng, _ := newTestEngine(t, source)

	run, err := eng.AnalyzeSyncOpts(context.Background(), "/repos/demo", RunOptions{DisableInference: true})
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.State)
	assert.NotContains(t, run.Warnings, "inference endpoint unavailable, quality scores are heuristic only")
	assert.Equal(t, 5, source.diffCount(), "heuristics still see the sampled diffs")
}

func TestMergeUnknownContributorSurfaces(t *testing.T) {
	source := &fakeSource{results: map[string]*git.Result{"demo": demoHistory()}}
	eng, _ := newTestEngine(t, source)
	ctx := context.Background()

	_, err := eng.AnalyzeSync(ctx, "/repos/demo")
	require.NoError(t, err)

	err = eng.MergeContributors(ctx, "a@x.com", []string{"ghost@x.com"})
	assert.ErrorIs(t, err, identity.ErrUnknownContributor)
}

func TestTruncatedHistoryRecordsWarning(t *testing.T) {
	result := demoHistory()
	result.Truncated = true
	source := &fakeSource{results: map[string]*git.Result{"demo": result}}
	eng, _ := newTestEngine(t, source)

	run, err := eng.AnalyzeSync(context.Background(), "/repos/demo")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.State, "truncation warns, it does not fail")
	assert.Contains(t, run.Warnings, "history truncated at 10000 commits")
}

func TestExtractFailureFailsRunAndFreesSlot(t *testing.T) {
	source := &fakeSource{err: fmt.Errorf("%w: /repos/demo", git.ErrRepositoryUnreadable)}
	eng, store := newTestEngine(t, source)
	ctx := context.Background()

	run, err := eng.AnalyzeSync(ctx, "/repos/demo")
	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.State)
	assert.Contains(t, run.Error, "repository unreadable")
	assert.Equal(t, 0, eng.ActiveRuns())

	persisted, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, persisted.State)

	// Identity mutations are allowed again after the failure.
	err = eng.MergeContributors(ctx, "a@x.com", []string{"b@x.com"})
	assert.ErrorIs(t, err, identity.ErrUnknownContributor, "gate is open, validation takes over")
}

func TestRestoreIdentitiesReplaysMerges(t *testing.T) {
	source := &fakeSource{results: map[string]*git.Result{"demo": demoHistory()}}
	eng, store := newTestEngine(t, source)
	ctx := context.Background()

	_, err := eng.AnalyzeSync(ctx, "/repos/demo")
	require.NoError(t, err)
	require.NoError(t, eng.MergeContributors(ctx, "a@x.com", []string{"b@x.com"}))

	// A fresh engine over the same store sees the merge after restore.
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := config.Default()
	qual := quality.NewAnalyzer(inference.Disabled{}, cfg.Scoring, cfg.Inference, logger)
	fresh := New(cfg, store, source, fakeTree{}, qual,
		identity.NewResolver(logger), scoring.NewScorer(cfg.Scoring), logger)

	require.NoError(t, fresh.RestoreIdentities(ctx))

	_, err = fresh.AnalyzeSync(ctx, "/repos/demo")
	require.NoError(t, err)

	contributors, err := store.GetContributors(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, contributors, 1)
	assert.Equal(t, 5, contributors[0].Commits)
}