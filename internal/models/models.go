package models

import (
	"time"
)

// Repository represents one analyzed working copy under the repositories
// directory.
type Repository struct {
	Name              string    `json:"name" db:"name"`
	Path              string    `json:"path" db:"path"`
	URL               string    `json:"url,omitempty" db:"url"`
	DefaultBranch     string    `json:"default_branch" db:"default_branch"`
	TotalCommits      int       `json:"total_commits" db:"total_commits"`
	TotalContributors int       `json:"total_contributors" db:"total_contributors"`
	TotalBranches     int       `json:"total_branches" db:"total_branches"`
	LastAnalyzed      time.Time `json:"last_analyzed" db:"last_analyzed"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Branch summarizes one local branch of a repository.
type Branch struct {
	Name        string    `json:"name"`
	CommitCount int       `json:"commit_count"`
	LastCommit  time.Time `json:"last_commit"`
	IsDefault   bool      `json:"is_default"`
}

// FileChange is one file's diff stats within a commit, measured against the
// commit's first parent.
type FileChange struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Commit is an immutable record of one commit reached during a history walk.
// A commit reachable from several branches is materialized once; Branches
// holds every local branch that contains it.
type Commit struct {
	SHA          string       `json:"sha" db:"sha"`
	Repository   string       `json:"repository" db:"repository"`
	ParentSHAs   []string     `json:"parent_shas"`
	AuthorName   string       `json:"author_name" db:"author_name"`
	AuthorEmail  string       `json:"author_email" db:"author_email"`
	Message      string       `json:"message" db:"message"`
	CommittedAt  time.Time    `json:"committed_at" db:"committed_at"`
	Branches     []string     `json:"branches"`
	Files        []FileChange `json:"files,omitempty"`
	LinesAdded   int          `json:"lines_added" db:"lines_added"`
	LinesRemoved int          `json:"lines_removed" db:"lines_removed"`
	FilesChanged int          `json:"files_changed" db:"files_changed"`
	// QualityScore is filled in by the quality pass; QualityByLLM marks
	// scores the inference collaborator contributed to. Persisting them per
	// commit lets identity merges recompute contributor aggregates exactly.
	QualityScore float64 `json:"quality_score,omitempty" db:"quality_score"`
	QualityByLLM bool    `json:"quality_by_llm,omitempty" db:"quality_by_llm"`
}

// IsMerge reports whether the commit has more than one parent.
func (c *Commit) IsMerge() bool {
	return len(c.ParentSHAs) > 1
}

// PullRequest is a merge commit that looks like a forge pull request plus the
// commits it introduced. It is inferred from history, never fetched from a
// forge API, so it is an approximation.
type PullRequest struct {
	MergeSHA     string    `json:"merge_sha" db:"merge_sha"`
	Repository   string    `json:"repository" db:"repository"`
	MainlineSHA  string    `json:"mainline_sha" db:"mainline_sha"`
	FeatureSHA   string    `json:"feature_sha" db:"feature_sha"`
	Pattern      string    `json:"pattern" db:"pattern"`
	CommitSHAs   []string  `json:"commit_shas"`
	Contributors []string  `json:"contributors"`
	LinesAdded   int       `json:"lines_added" db:"lines_added"`
	LinesRemoved int       `json:"lines_removed" db:"lines_removed"`
	FilesChanged int       `json:"files_changed" db:"files_changed"`
	MergedAt     time.Time `json:"merged_at" db:"merged_at"`
}

// Contributor is one canonical identity with its aggregated metrics for a
// single analysis run. Aliases lists every raw email currently resolving to
// this identity; MergedEmails lists the ones that arrived through an explicit
// merge.
type Contributor struct {
	Email           string    `json:"email" db:"email"`
	Name            string    `json:"name" db:"name"`
	Aliases         []string  `json:"aliases"`
	MergedEmails    []string  `json:"merged_emails,omitempty"`
	Commits         int       `json:"commits" db:"commits"`
	LinesAdded      int       `json:"lines_added" db:"lines_added"`
	LinesRemoved    int       `json:"lines_removed" db:"lines_removed"`
	FilesChanged    int       `json:"files_changed" db:"files_changed"`
	PullRequests    int       `json:"pull_requests" db:"pull_requests"`
	Branches        []string  `json:"branches"`
	FirstCommit     time.Time `json:"first_commit" db:"first_commit"`
	LastCommit      time.Time `json:"last_commit" db:"last_commit"`
	QualityScore    float64   `json:"quality_score" db:"quality_score"`
	ImpactScore     float64   `json:"impact_score" db:"impact_score"`
	PRQualityScore  float64   `json:"pr_quality_score" db:"pr_quality_score"`
	PRsAnalyzed     int       `json:"prs_analyzed" db:"prs_analyzed"`
	CommitFrequency float64   `json:"commit_frequency" db:"commit_frequency"`
	LLMUnavailable  bool      `json:"llm_unavailable,omitempty" db:"llm_unavailable"`
}

// MergedCount is the number of foreign emails explicitly merged into this
// contributor.
func (c *Contributor) MergedCount() int {
	return len(c.MergedEmails)
}

// LeaderboardRow is one ranked leaderboard entry as exposed to callers.
type LeaderboardRow struct {
	Rank           int      `json:"rank"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Commits        int      `json:"commits"`
	LinesChanged   int      `json:"lines_changed"`
	PullRequests   int      `json:"pull_requests"`
	QualityScore   float64  `json:"quality_score"`
	ImpactScore    float64  `json:"impact_score"`
	PRQualityScore *float64 `json:"pr_quality_score"` // nil when no PRs were analyzed
	MergedCount    int      `json:"merged_count"`
	MergedEmails   []string `json:"merged_emails,omitempty"`
}

// ScoreScope identifies what a Score describes.
type ScoreScope string

const (
	ScopeContributor ScoreScope = "contributor"
	ScopeRepository  ScoreScope = "repository"
	ScopePortfolio   ScoreScope = "portfolio"
)

// Dimensions holds the four normalized scoring dimensions plus the weighted
// overall value, all in [0,100].
type Dimensions struct {
	Activity  float64 `json:"activity" db:"activity"`
	Health    float64 `json:"health" db:"health"`
	Quality   float64 `json:"quality" db:"quality"`
	Diversity float64 `json:"diversity" db:"diversity"`
	Overall   float64 `json:"overall" db:"overall"`
}

// Score is one scored entity: a repository or the whole portfolio.
type Score struct {
	Scope      ScoreScope `json:"scope" db:"scope"`
	Subject    string     `json:"subject" db:"subject"`
	Dimensions Dimensions `json:"dimensions"`
	Grade      string     `json:"grade" db:"grade"`
	ComputedAt time.Time  `json:"computed_at" db:"computed_at"`
}

// RunState is the lifecycle state of an AnalysisRun.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

// AnalysisRun tracks one execution of the engine against a repository (or
// the "all" fan-out parent). Progress counts commits processed so far and
// only ever grows.
type AnalysisRun struct {
	ID          string    `json:"id" db:"id"`
	Repository  string    `json:"repository" db:"repository"`
	State       RunState  `json:"state" db:"state"`
	Progress    int       `json:"progress" db:"progress"`
	Warnings    []string  `json:"warnings,omitempty"`
	Error       string    `json:"error,omitempty" db:"error"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// CodebaseReport is the output of the static working-tree analyzer.
type CodebaseReport struct {
	Repository         string         `json:"repository" db:"repository"`
	TotalFiles         int            `json:"total_files" db:"total_files"`
	TotalLines         int            `json:"total_lines" db:"total_lines"`
	CodeLines          int            `json:"code_lines" db:"code_lines"`
	CommentLines       int            `json:"comment_lines" db:"comment_lines"`
	BlankLines         int            `json:"blank_lines" db:"blank_lines"`
	TestFiles          int            `json:"test_files" db:"test_files"`
	LanguageFiles      map[string]int `json:"language_files"`
	LanguageCodeLines  map[string]int `json:"language_code_lines"`
	Complexity         int            `json:"complexity" db:"complexity"`
	ComplexityScore    float64        `json:"complexity_score" db:"complexity_score"`
	CommentScore       float64        `json:"comment_score" db:"comment_score"`
	TestScore          float64        `json:"test_score" db:"test_score"`
	DependencyScore    float64        `json:"dependency_score" db:"dependency_score"`
	DependencyWarnings []string       `json:"dependency_warnings,omitempty"`
	OverallScore       float64        `json:"overall_score" db:"overall_score"`
	GeneratedAt        time.Time      `json:"generated_at" db:"generated_at"`
}
