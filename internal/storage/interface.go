// Package storage persists analysis results. Two implementations share one
// interface: SQLite for local use and PostgreSQL for deployments backing the
// dashboard.
package storage

import (
	"context"
	"errors"

	"github.com/gitpulse/gitpulse-go/internal/identity"
	"github.com/gitpulse/gitpulse-go/internal/models"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Repository operations
	SaveRepository(ctx context.Context, repo *models.Repository) error
	GetRepository(ctx context.Context, name string) (*models.Repository, error)
	ListRepositories(ctx context.Context) ([]*models.Repository, error)

	// Commit operations
	SaveCommits(ctx context.Context, commits []*models.Commit) error
	GetCommits(ctx context.Context, repository string, limit int) ([]*models.Commit, error)

	// Contributor operations. Repository "" addresses the cross-repository
	// aggregate used by the global leaderboard.
	SaveContributors(ctx context.Context, repository string, contributors []*models.Contributor) error
	GetContributors(ctx context.Context, repository string) ([]*models.Contributor, error)

	// Pull request operations
	SavePullRequests(ctx context.Context, prs []*models.PullRequest) error
	GetPullRequests(ctx context.Context, repository string) ([]*models.PullRequest, error)

	// Identity merge records, replayed into the resolver on startup.
	SaveMerges(ctx context.Context, records []identity.MergeRecord) error
	GetMerges(ctx context.Context) ([]identity.MergeRecord, error)
	DeleteMerges(ctx context.Context, mergedEmails []string) error

	// Score operations
	SaveScore(ctx context.Context, score *models.Score) error
	GetScore(ctx context.Context, scope models.ScoreScope, subject string) (*models.Score, error)

	// Codebase report operations
	SaveCodebaseReport(ctx context.Context, report *models.CodebaseReport) error
	GetCodebaseReport(ctx context.Context, repository string) (*models.CodebaseReport, error)

	// Analysis run operations
	SaveRun(ctx context.Context, run *models.AnalysisRun) error
	GetRun(ctx context.Context, id string) (*models.AnalysisRun, error)
	ListRuns(ctx context.Context, repository string, limit int) ([]*models.AnalysisRun, error)

	// Close connection
	Close() error
}
