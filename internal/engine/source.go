package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/gitpulse/gitpulse-go/internal/codebase"
	"github.com/gitpulse/gitpulse-go/internal/config"
	"github.com/gitpulse/gitpulse-go/internal/git"
	"github.com/gitpulse/gitpulse-go/internal/models"
)

// HistorySource is the slice of git access the engine needs. Tests drive
// runs with canned histories.
type HistorySource interface {
	Extract(ctx context.Context, path string) (*git.Result, error)
	Diff(ctx context.Context, path, sha string) (string, error)
}

// TreeAnalyzer produces a static report for a working tree.
type TreeAnalyzer interface {
	Analyze(repoPath, repository string) (*models.CodebaseReport, error)
}

// gitSource is the production HistorySource backed by the git binary.
type gitSource struct {
	extractor    *git.Extractor
	maxDiffBytes int
}

// NewGitSource wires the history extractor to analysis configuration.
func NewGitSource(cfg config.AnalysisConfig, logger *logrus.Logger) HistorySource {
	return &gitSource{
		extractor: git.NewExtractor(git.Options{
			Depth:        cfg.Depth,
			RecentDays:   cfg.RecentDays,
			ShallowCount: cfg.ShallowCount,
			MaxCommits:   cfg.MaxCommits,
		}, logger),
		maxDiffBytes: cfg.MaxDiffBytes,
	}
}

func (s *gitSource) Extract(ctx context.Context, path string) (*git.Result, error) {
	repo, err := git.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.extractor.Extract(ctx, repo)
}

func (s *gitSource) Diff(ctx context.Context, path, sha string) (string, error) {
	repo, err := git.Open(ctx, path)
	if err != nil {
		return "", err
	}
	return repo.Diff(ctx, sha, s.maxDiffBytes)
}

var _ TreeAnalyzer = (*codebase.Analyzer)(nil)
