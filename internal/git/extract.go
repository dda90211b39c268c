package git

import (
	"context"
	"fmt"
	"time"

	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Options controls how deep a history walk goes.
type Options struct {
	Depth        string // "full", "recent" or "shallow"
	RecentDays   int
	ShallowCount int
	MaxCommits   int
}

// Result is a materialized commit history for one repository. Commits are
// deduplicated by hash across branches; a commit reachable from several
// branches appears once with every containing branch recorded on it.
type Result struct {
	Commits       []*models.Commit
	Branches      []models.Branch
	DefaultBranch string
	URL           string
	// Truncated is set when the walk hit MaxCommits. Downstream stages
	// operate on the partial set; callers record a run warning.
	Truncated bool
}

// Extractor walks all local branches of repositories and materializes their
// commit graphs with first-parent diff statistics.
type Extractor struct {
	opts   Options
	logger *logrus.Logger
}

// NewExtractor creates a history extractor.
func NewExtractor(opts Options, logger *logrus.Logger) *Extractor {
	if opts.MaxCommits <= 0 {
		opts.MaxCommits = 10000
	}
	return &Extractor{opts: opts, logger: logger}
}

// Extract walks every local branch of the repository and returns the
// deduplicated commit set. A branch that fails to walk is skipped with a
// warning; an unreadable repository fails the whole extraction.
func (e *Extractor) Extract(ctx context.Context, repo *Repo) (*Result, error) {
	branches, err := repo.Branches(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRepositoryUnreadable, repo.Path, err)
	}

	result := &Result{
		DefaultBranch: repo.DefaultBranch(ctx),
		URL:           repo.OriginURL(ctx),
	}

	seen := make(map[string]*models.Commit)

	for _, branch := range branches {
		output, err := repo.runLog(ctx, branch, e.opts.Depth, e.opts.RecentDays, e.opts.ShallowCount)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"repository": repo.Name,
				"branch":     branch,
			}).WithError(err).Warn("skipping branch that failed to walk")
			continue
		}

		commits := ParseLog(output, repo.Name, branch, e.logger)
		result.Branches = append(result.Branches, collectBranch(result, seen, branch, commits, e.opts.MaxCommits))

		if result.Truncated {
			e.logger.WithFields(logrus.Fields{
				"repository": repo.Name,
				"cap":        e.opts.MaxCommits,
			}).Warn("history truncated at commit cap")
			break
		}
	}

	return result, nil
}

// collectBranch folds one branch's parsed commits into the shared result and
// returns the branch record. A commit already seen on another branch still
// counts toward this branch; a commit rejected by the cap counts toward
// nothing.
func collectBranch(result *Result, seen map[string]*models.Commit, branch string, commits []*models.Commit, max int) models.Branch {
	var count int
	var lastCommit time.Time

	for _, commit := range commits {
		if existing, ok := seen[commit.SHA]; ok {
			existing.Branches = append(existing.Branches, branch)
		} else {
			if len(result.Commits) >= max {
				result.Truncated = true
				break
			}
			seen[commit.SHA] = commit
			result.Commits = append(result.Commits, commit)
		}

		count++
		if commit.CommittedAt.After(lastCommit) {
			lastCommit = commit.CommittedAt
		}
	}

	return models.Branch{
		Name:        branch,
		CommitCount: count,
		LastCommit:  lastCommit,
		IsDefault:   branch == result.DefaultBranch,
	}
}
