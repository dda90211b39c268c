// Package engine orchestrates analysis runs: history extraction, identity
// resolution, PR inference, quality scoring, static analysis and persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gitpulse/gitpulse-go/internal/config"
	"github.com/gitpulse/gitpulse-go/internal/git"
	"github.com/gitpulse/gitpulse-go/internal/identity"
	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/gitpulse/gitpulse-go/internal/pullreq"
	"github.com/gitpulse/gitpulse-go/internal/quality"
	"github.com/gitpulse/gitpulse-go/internal/scoring"
	"github.com/gitpulse/gitpulse-go/internal/storage"
)

var (
	// ErrAlreadyRunning is returned when a run is requested for a
	// repository that already has one in flight.
	ErrAlreadyRunning = errors.New("analysis already running for repository")
	// ErrAnalysisActive rejects identity mutations while any run is active.
	ErrAnalysisActive = errors.New("analysis in progress, retry when it completes")
)

// Engine coordinates analysis runs. One Engine serves the CLI and the HTTP
// API concurrently; per-repository exclusivity and the identity mutation
// gate are enforced here.
type Engine struct {
	cfg      *config.Config
	store    storage.Store
	source   HistorySource
	tree     TreeAnalyzer
	quality  *quality.Analyzer
	detector *pullreq.Detector
	resolver *identity.Resolver
	scorer   *scoring.Scorer
	logger   *logrus.Logger

	mu     sync.Mutex
	active map[string]string             // repository -> run id
	runs   map[string]*models.AnalysisRun // run id -> latest snapshot
}

// New creates an engine.
func New(
	cfg *config.Config,
	store storage.Store,
	source HistorySource,
	tree TreeAnalyzer,
	qual *quality.Analyzer,
	resolver *identity.Resolver,
	scorer *scoring.Scorer,
	logger *logrus.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		source:   source,
		tree:     tree,
		quality:  qual,
		detector: pullreq.NewDetector(cfg.Analysis.PRPatterns, logger),
		resolver: resolver,
		scorer:   scorer,
		logger:   logger,
		active:   make(map[string]string),
		runs:     make(map[string]*models.AnalysisRun),
	}
}

// RestoreIdentities replays persisted merge records into the resolver. Call
// once at startup after the store is open; aliases unknown until the next
// run are replayed then instead.
func (e *Engine) RestoreIdentities(ctx context.Context) error {
	records, err := e.store.GetMerges(ctx)
	if err != nil {
		return fmt.Errorf("load contributor merges: %w", err)
	}

	// Seed the resolver with known contributors so the replay has aliases
	// to act on.
	repos, err := e.store.ListRepositories(ctx)
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}
	for _, repo := range repos {
		commits, err := e.store.GetCommits(ctx, repo.Name, 0)
		if err != nil {
			return fmt.Errorf("load commits for %s: %w", repo.Name, err)
		}
		for _, c := range commits {
			e.resolver.Resolve(c.AuthorName, c.AuthorEmail, c.CommittedAt)
		}
	}

	e.resolver.Restore(records)
	return nil
}

// RunOptions tweaks a single run without touching configuration.
type RunOptions struct {
	// DisableInference skips the collaborator for this run. The sample
	// still gets diff-based heuristics; no unavailability warning is
	// raised.
	DisableInference bool
}

// AnalyzeRepository starts a run for one repository and returns immediately
// with the pending run. Fails with ErrAlreadyRunning when the repository
// already has a run in flight.
func (e *Engine) AnalyzeRepository(ctx context.Context, path string) (*models.AnalysisRun, error) {
	return e.AnalyzeRepositoryOpts(ctx, path, RunOptions{})
}

// AnalyzeRepositoryOpts is AnalyzeRepository with per-run options.
func (e *Engine) AnalyzeRepositoryOpts(ctx context.Context, path string, opts RunOptions) (*models.AnalysisRun, error) {
	name := filepath.Base(path)

	e.mu.Lock()
	if runID, busy := e.active[name]; busy {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (run %s)", ErrAlreadyRunning, name, runID)
	}
	run := &models.AnalysisRun{
		ID:         uuid.New().String(),
		Repository: name,
		State:      models.RunPending,
		StartedAt:  time.Now().UTC(),
	}
	e.active[name] = run.ID
	e.runs[run.ID] = run
	snap := snapshot(run)
	e.mu.Unlock()

	if err := e.store.SaveRun(ctx, snap); err != nil {
		e.finishRun(ctx, run, err)
		return nil, err
	}

	go e.execute(context.WithoutCancel(ctx), run, path, opts)
	return snap, nil
}

// AnalyzeAll runs every repository under the repositories directory with a
// bounded worker pool. Per-repository failures are recorded on their own
// runs and do not stop the others.
func (e *Engine) AnalyzeAll(ctx context.Context) ([]*models.AnalysisRun, error) {
	paths, err := git.DiscoverRepositories(e.cfg.RepositoriesDir)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		runs []*models.AnalysisRun
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Analysis.Workers)
	for _, path := range paths {
		g.Go(func() error {
			run, err := e.analyzeSync(gctx, path, RunOptions{})
			if err != nil && !errors.Is(err, ErrAlreadyRunning) {
				e.logger.WithError(err).WithField("repository", filepath.Base(path)).
					Warn("repository analysis failed")
			}
			if run != nil {
				mu.Lock()
				runs = append(runs, run)
				mu.Unlock()
			}
			return nil // skip and continue
		})
	}
	g.Wait()

	if err := e.RecomputePortfolio(ctx); err != nil {
		e.logger.WithError(err).Warn("portfolio recompute failed")
	}
	return runs, nil
}

// analyzeSync is AnalyzeRepository without the goroutine hand-off, used by
// the fan-out and the CLI.
func (e *Engine) analyzeSync(ctx context.Context, path string, opts RunOptions) (*models.AnalysisRun, error) {
	name := filepath.Base(path)

	e.mu.Lock()
	if runID, busy := e.active[name]; busy {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (run %s)", ErrAlreadyRunning, name, runID)
	}
	run := &models.AnalysisRun{
		ID:         uuid.New().String(),
		Repository: name,
		State:      models.RunPending,
		StartedAt:  time.Now().UTC(),
	}
	e.active[name] = run.ID
	e.runs[run.ID] = run
	snap := snapshot(run)
	e.mu.Unlock()

	if err := e.store.SaveRun(ctx, snap); err != nil {
		e.finishRun(ctx, run, err)
		return e.mustSnapshot(run), err
	}

	e.execute(ctx, run, path, opts)
	snap = e.mustSnapshot(run)
	if snap.State == models.RunFailed {
		return snap, errors.New(snap.Error)
	}
	return snap, nil
}

// AnalyzeSync runs one repository to completion and returns the finished run.
func (e *Engine) AnalyzeSync(ctx context.Context, path string) (*models.AnalysisRun, error) {
	return e.analyzeSync(ctx, path, RunOptions{})
}

// AnalyzeSyncOpts is AnalyzeSync with per-run options.
func (e *Engine) AnalyzeSyncOpts(ctx context.Context, path string, opts RunOptions) (*models.AnalysisRun, error) {
	return e.analyzeSync(ctx, path, opts)
}

// execute performs the run and always releases the repository slot.
func (e *Engine) execute(ctx context.Context, run *models.AnalysisRun, path string, opts RunOptions) {
	e.setState(ctx, run, models.RunRunning)

	err := e.analyze(ctx, run, path, opts)
	e.finishRun(ctx, run, err)

	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"run":        run.ID,
			"repository": run.Repository,
		}).Error("analysis run failed")
	} else {
		e.logger.WithFields(logrus.Fields{
			"run":        run.ID,
			"repository": run.Repository,
			"commits":    run.Progress,
		}).Info("analysis run completed")
	}
}

func (e *Engine) analyze(ctx context.Context, run *models.AnalysisRun, path string, opts RunOptions) error {
	name := run.Repository

	// History extraction and the static tree walk are independent.
	var (
		result *git.Result
		report *models.CodebaseReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		result, err = e.source.Extract(gctx, path)
		return err
	})
	g.Go(func() error {
		var err error
		report, err = e.tree.Analyze(path, name)
		if err != nil {
			e.logger.WithError(err).WithField("repository", name).
				Warn("static analysis failed")
			report = nil
		}
		return nil // a missing report does not fail the run
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if result.Truncated {
		e.addWarning(ctx, run, fmt.Sprintf("history truncated at %d commits", e.cfg.Analysis.MaxCommits))
	}

	// Canonical attribution before anything reads author identities.
	for _, c := range result.Commits {
		e.resolver.Resolve(c.AuthorName, c.AuthorEmail, c.CommittedAt)
	}
	if records, err := e.store.GetMerges(ctx); err == nil {
		e.resolver.Restore(records)
	}

	graph := git.BuildGraph(result.Commits)
	prs := e.detector.Infer(graph, name)

	reports, llmAvailable := e.quality.ScoreCommits(ctx, result.Commits, e.cfg.Analysis.SampleSize, !opts.DisableInference,
		func(ctx context.Context, sha string) (string, error) {
			return e.source.Diff(ctx, path, sha)
		})
	if !llmAvailable && !opts.DisableInference {
		e.addWarning(ctx, run, "inference endpoint unavailable, quality scores are heuristic only")
	}
	applyQuality(result.Commits, reports)
	e.setProgress(ctx, run, len(result.Commits))

	contributors := aggregateContributors(result.Commits, prs, e.resolver, e.scorer)

	repo := &models.Repository{
		Name:              name,
		Path:              path,
		URL:               result.URL,
		DefaultBranch:     result.DefaultBranch,
		TotalCommits:      len(result.Commits),
		TotalContributors: len(contributors),
		TotalBranches:     len(result.Branches),
		LastAnalyzed:      time.Now().UTC(),
		CreatedAt:         time.Now().UTC(),
	}

	stats := scoring.CollectRepoStats(name, result.Commits, contributors,
		len(result.Branches), len(prs), time.Now().UTC())
	score := e.scorer.Repository(stats)

	if err := e.store.SaveRepository(ctx, repo); err != nil {
		return fmt.Errorf("save repository: %w", err)
	}
	if err := e.store.SaveCommits(ctx, result.Commits); err != nil {
		return fmt.Errorf("save commits: %w", err)
	}
	if err := e.store.SavePullRequests(ctx, prs); err != nil {
		return fmt.Errorf("save pull requests: %w", err)
	}
	if err := e.store.SaveContributors(ctx, name, contributors); err != nil {
		return fmt.Errorf("save contributors: %w", err)
	}
	if err := e.store.SaveScore(ctx, &score); err != nil {
		return fmt.Errorf("save score: %w", err)
	}
	if report != nil {
		if err := e.store.SaveCodebaseReport(ctx, report); err != nil {
			return fmt.Errorf("save codebase report: %w", err)
		}
	}

	return e.recomputeGlobalContributors(ctx)
}

// RecomputePortfolio rebuilds the portfolio score from the stored
// repositories.
func (e *Engine) RecomputePortfolio(ctx context.Context) error {
	repos, err := e.store.ListRepositories(ctx)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		return nil
	}

	var (
		statsList  []scoring.RepoStats
		repoScores []models.Score
	)
	now := time.Now().UTC()
	for _, repo := range repos {
		commits, err := e.store.GetCommits(ctx, repo.Name, 0)
		if err != nil {
			return err
		}
		contributors, err := e.store.GetContributors(ctx, repo.Name)
		if err != nil {
			return err
		}
		prs, err := e.store.GetPullRequests(ctx, repo.Name)
		if err != nil {
			return err
		}
		stats := scoring.CollectRepoStats(repo.Name, commits, contributors,
			repo.TotalBranches, len(prs), now)
		statsList = append(statsList, stats)

		if score, err := e.store.GetScore(ctx, models.ScopeRepository, repo.Name); err == nil {
			repoScores = append(repoScores, *score)
		}
	}

	portfolio := e.scorer.Portfolio(statsList, repoScores)
	return e.store.SaveScore(ctx, &portfolio)
}

// recomputeGlobalContributors rebuilds the cross-repository contributor
// aggregate (repository "").
func (e *Engine) recomputeGlobalContributors(ctx context.Context) error {
	repos, err := e.store.ListRepositories(ctx)
	if err != nil {
		return err
	}

	var perRepo [][]*models.Contributor
	for _, repo := range repos {
		contributors, err := e.store.GetContributors(ctx, repo.Name)
		if err != nil {
			return err
		}
		perRepo = append(perRepo, contributors)
	}

	return e.store.SaveContributors(ctx, "", mergeGlobal(perRepo, e.scorer))
}

// MergeContributors merges the listed identities into primary and recomputes
// every stored aggregate under the new attribution. Rejected while any run
// is active.
func (e *Engine) MergeContributors(ctx context.Context, primary string, others []string) error {
	e.mu.Lock()
	if len(e.active) > 0 {
		e.mu.Unlock()
		return ErrAnalysisActive
	}
	e.mu.Unlock()

	if err := e.resolver.Merge(primary, others); err != nil {
		return err
	}
	if err := e.store.SaveMerges(ctx, e.resolver.Merges()); err != nil {
		return fmt.Errorf("persist merges: %w", err)
	}
	return e.recomputeAggregates(ctx)
}

// UnmergeContributors restores the listed identities to standalone
// contributors and recomputes aggregates. Rejected while any run is active.
func (e *Engine) UnmergeContributors(ctx context.Context, emails []string) error {
	e.mu.Lock()
	if len(e.active) > 0 {
		e.mu.Unlock()
		return ErrAnalysisActive
	}
	e.mu.Unlock()

	if err := e.resolver.Unmerge(emails); err != nil {
		return err
	}
	if err := e.store.DeleteMerges(ctx, emails); err != nil {
		return fmt.Errorf("delete merge records: %w", err)
	}
	return e.recomputeAggregates(ctx)
}

// recomputeAggregates re-derives contributor records and scores for every
// stored repository from the persisted commits, without re-reading git.
func (e *Engine) recomputeAggregates(ctx context.Context) error {
	repos, err := e.store.ListRepositories(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, repo := range repos {
		commits, err := e.store.GetCommits(ctx, repo.Name, 0)
		if err != nil {
			return err
		}
		prs, err := e.store.GetPullRequests(ctx, repo.Name)
		if err != nil {
			return err
		}

		contributors := aggregateContributors(commits, prs, e.resolver, e.scorer)
		if err := e.store.SaveContributors(ctx, repo.Name, contributors); err != nil {
			return err
		}

		repo.TotalContributors = len(contributors)
		if err := e.store.SaveRepository(ctx, repo); err != nil {
			return err
		}

		stats := scoring.CollectRepoStats(repo.Name, commits, contributors,
			repo.TotalBranches, len(prs), now)
		score := e.scorer.Repository(stats)
		if err := e.store.SaveScore(ctx, &score); err != nil {
			return err
		}
	}

	if err := e.recomputeGlobalContributors(ctx); err != nil {
		return err
	}
	return e.RecomputePortfolio(ctx)
}

// Run returns the latest snapshot of a run, preferring the in-memory
// registry over storage.
func (e *Engine) Run(id string) (*models.AnalysisRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return snapshot(run), nil
}

func (e *Engine) mustSnapshot(run *models.AnalysisRun) *models.AnalysisRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(run)
}

// ActiveRuns reports how many runs are currently in flight.
func (e *Engine) ActiveRuns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Engine) setState(ctx context.Context, run *models.AnalysisRun, state models.RunState) {
	e.mu.Lock()
	run.State = state
	e.mu.Unlock()
	e.persistRun(ctx, run)
}

func (e *Engine) setProgress(ctx context.Context, run *models.AnalysisRun, progress int) {
	e.mu.Lock()
	if progress > run.Progress {
		run.Progress = progress
	}
	e.mu.Unlock()
	e.persistRun(ctx, run)
}

func (e *Engine) addWarning(ctx context.Context, run *models.AnalysisRun, warning string) {
	e.mu.Lock()
	run.Warnings = append(run.Warnings, warning)
	e.mu.Unlock()
	e.persistRun(ctx, run)
}

// finishRun moves the run to its terminal state and frees the repository.
// Progress and warnings survive a failure.
func (e *Engine) finishRun(ctx context.Context, run *models.AnalysisRun, err error) {
	e.mu.Lock()
	if err != nil {
		run.State = models.RunFailed
		run.Error = err.Error()
	} else {
		run.State = models.RunCompleted
	}
	run.CompletedAt = time.Now().UTC()
	delete(e.active, run.Repository)
	e.mu.Unlock()
	e.persistRun(ctx, run)
}

func (e *Engine) persistRun(ctx context.Context, run *models.AnalysisRun) {
	e.mu.Lock()
	snap := snapshot(run)
	e.mu.Unlock()
	if err := e.store.SaveRun(ctx, snap); err != nil {
		e.logger.WithError(err).WithField("run", run.ID).Warn("could not persist run state")
	}
}

func snapshot(run *models.AnalysisRun) *models.AnalysisRun {
	copied := *run
	copied.Warnings = append([]string(nil), run.Warnings...)
	return &copied
}
