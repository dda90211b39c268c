package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/gitpulse/gitpulse-go/internal/identity"
	"github.com/gitpulse/gitpulse-go/internal/models"
)

// SQLiteStore implements storage using SQLite (for local use)
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore creates a new SQLite storage
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// WAL lets the HTTP API read while a run writes.
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		name TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		url TEXT,
		default_branch TEXT,
		total_commits INTEGER,
		total_contributors INTEGER,
		total_branches INTEGER,
		last_analyzed DATETIME,
		created_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS commits (
		sha TEXT NOT NULL,
		repository TEXT NOT NULL,
		parent_shas TEXT,
		author_name TEXT,
		author_email TEXT,
		message TEXT,
		committed_at DATETIME,
		branches TEXT,
		lines_added INTEGER,
		lines_removed INTEGER,
		files_changed INTEGER,
		quality_score REAL,
		quality_by_llm INTEGER,
		PRIMARY KEY (repository, sha)
	);

	CREATE TABLE IF NOT EXISTS contributors (
		repository TEXT NOT NULL,
		email TEXT NOT NULL,
		name TEXT,
		aliases TEXT,
		merged_emails TEXT,
		commits INTEGER,
		lines_added INTEGER,
		lines_removed INTEGER,
		files_changed INTEGER,
		pull_requests INTEGER,
		branches TEXT,
		first_commit DATETIME,
		last_commit DATETIME,
		quality_score REAL,
		impact_score REAL,
		pr_quality_score REAL,
		prs_analyzed INTEGER,
		commit_frequency REAL,
		llm_unavailable INTEGER,
		PRIMARY KEY (repository, email)
	);

	CREATE TABLE IF NOT EXISTS pull_requests (
		merge_sha TEXT NOT NULL,
		repository TEXT NOT NULL,
		mainline_sha TEXT,
		feature_sha TEXT,
		pattern TEXT,
		commit_shas TEXT,
		contributors TEXT,
		lines_added INTEGER,
		lines_removed INTEGER,
		files_changed INTEGER,
		merged_at DATETIME,
		PRIMARY KEY (repository, merge_sha)
	);

	CREATE TABLE IF NOT EXISTS contributor_merges (
		merged_email TEXT PRIMARY KEY,
		primary_email TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scores (
		scope TEXT NOT NULL,
		subject TEXT NOT NULL,
		activity REAL,
		health REAL,
		quality REAL,
		diversity REAL,
		overall REAL,
		grade TEXT,
		computed_at DATETIME,
		PRIMARY KEY (scope, subject)
	);

	CREATE TABLE IF NOT EXISTS codebase_reports (
		repository TEXT PRIMARY KEY,
		total_files INTEGER,
		total_lines INTEGER,
		code_lines INTEGER,
		comment_lines INTEGER,
		blank_lines INTEGER,
		test_files INTEGER,
		language_files TEXT,
		language_code_lines TEXT,
		complexity INTEGER,
		complexity_score REAL,
		comment_score REAL,
		test_score REAL,
		dependency_score REAL,
		dependency_warnings TEXT,
		overall_score REAL,
		generated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		id TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		state TEXT NOT NULL,
		progress INTEGER,
		warnings TEXT,
		error TEXT,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commits_repository ON commits(repository);
	CREATE INDEX IF NOT EXISTS idx_commits_email ON commits(author_email);
	CREATE INDEX IF NOT EXISTS idx_contributors_repository ON contributors(repository);
	CREATE INDEX IF NOT EXISTS idx_runs_repository ON analysis_runs(repository);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Repository operations

func (s *SQLiteStore) SaveRepository(ctx context.Context, repo *models.Repository) error {
	query := `
		INSERT OR REPLACE INTO repositories
		(name, path, url, default_branch, total_commits, total_contributors,
		 total_branches, last_analyzed, created_at)
		VALUES (:name, :path, :url, :default_branch, :total_commits,
		 :total_contributors, :total_branches, :last_analyzed, :created_at)
	`
	_, err := s.db.NamedExecContext(ctx, query, repo)
	return err
}

func (s *SQLiteStore) GetRepository(ctx context.Context, name string) (*models.Repository, error) {
	var repo models.Repository
	err := s.db.GetContext(ctx, &repo, `SELECT * FROM repositories WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &repo, nil
}

func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	var repos []*models.Repository
	err := s.db.SelectContext(ctx, &repos, `SELECT * FROM repositories ORDER BY name`)
	return repos, err
}

// Commit operations

func (s *SQLiteStore) SaveCommits(ctx context.Context, commits []*models.Commit) error {
	if len(commits) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO commits
		(sha, repository, parent_shas, author_name, author_email, message,
		 committed_at, branches, lines_added, lines_removed, files_changed,
		 quality_score, quality_by_llm)
		VALUES (:sha, :repository, :parent_shas, :author_name, :author_email,
		 :message, :committed_at, :branches, :lines_added, :lines_removed,
		 :files_changed, :quality_score, :quality_by_llm)
	`
	for _, commit := range commits {
		if _, err := tx.NamedExecContext(ctx, query, toCommitRow(commit)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetCommits(ctx context.Context, repository string, limit int) ([]*models.Commit, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	var rows []commitRow
	query := `SELECT * FROM commits WHERE repository = ? ORDER BY committed_at DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, repository, limit); err != nil {
		return nil, err
	}

	commits := make([]*models.Commit, 0, len(rows))
	for _, row := range rows {
		commits = append(commits, row.model())
	}
	return commits, nil
}

// Contributor operations

func (s *SQLiteStore) SaveContributors(ctx context.Context, repository string, contributors []*models.Contributor) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Replace the scope wholesale: identity merges can shrink the set.
	if _, err := tx.ExecContext(ctx, `DELETE FROM contributors WHERE repository = ?`, repository); err != nil {
		return err
	}

	query := `
		INSERT INTO contributors
		(repository, email, name, aliases, merged_emails, commits, lines_added,
		 lines_removed, files_changed, pull_requests, branches, first_commit,
		 last_commit, quality_score, impact_score, pr_quality_score,
		 prs_analyzed, commit_frequency, llm_unavailable)
		VALUES (:repository, :email, :name, :aliases, :merged_emails, :commits,
		 :lines_added, :lines_removed, :files_changed, :pull_requests, :branches,
		 :first_commit, :last_commit, :quality_score, :impact_score,
		 :pr_quality_score, :prs_analyzed, :commit_frequency, :llm_unavailable)
	`
	for _, c := range contributors {
		if _, err := tx.NamedExecContext(ctx, query, toContributorRow(repository, c)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetContributors(ctx context.Context, repository string) ([]*models.Contributor, error) {
	var rows []contributorRow
	query := `SELECT * FROM contributors WHERE repository = ? ORDER BY impact_score DESC`
	if err := s.db.SelectContext(ctx, &rows, query, repository); err != nil {
		return nil, err
	}

	contributors := make([]*models.Contributor, 0, len(rows))
	for _, row := range rows {
		contributors = append(contributors, row.model())
	}
	return contributors, nil
}

// Pull request operations

func (s *SQLiteStore) SavePullRequests(ctx context.Context, prs []*models.PullRequest) error {
	if len(prs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO pull_requests
		(merge_sha, repository, mainline_sha, feature_sha, pattern, commit_shas,
		 contributors, lines_added, lines_removed, files_changed, merged_at)
		VALUES (:merge_sha, :repository, :mainline_sha, :feature_sha, :pattern,
		 :commit_shas, :contributors, :lines_added, :lines_removed,
		 :files_changed, :merged_at)
	`
	for _, pr := range prs {
		if _, err := tx.NamedExecContext(ctx, query, toPullRequestRow(pr)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetPullRequests(ctx context.Context, repository string) ([]*models.PullRequest, error) {
	var rows []pullRequestRow
	query := `SELECT * FROM pull_requests WHERE repository = ? ORDER BY merged_at DESC`
	if err := s.db.SelectContext(ctx, &rows, query, repository); err != nil {
		return nil, err
	}

	prs := make([]*models.PullRequest, 0, len(rows))
	for _, row := range rows {
		prs = append(prs, row.model())
	}
	return prs, nil
}

// Identity merge operations

func (s *SQLiteStore) SaveMerges(ctx context.Context, records []identity.MergeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO contributor_merges (merged_email, primary_email)
		VALUES (:merged_email, :primary_email)
	`
	for _, record := range records {
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetMerges(ctx context.Context) ([]identity.MergeRecord, error) {
	var records []identity.MergeRecord
	err := s.db.SelectContext(ctx, &records,
		`SELECT * FROM contributor_merges ORDER BY merged_email`)
	return records, err
}

func (s *SQLiteStore) DeleteMerges(ctx context.Context, mergedEmails []string) error {
	if len(mergedEmails) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM contributor_merges WHERE merged_email IN (?)`, mergedEmails)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return err
}

// Score operations

func (s *SQLiteStore) SaveScore(ctx context.Context, score *models.Score) error {
	query := `
		INSERT OR REPLACE INTO scores
		(scope, subject, activity, health, quality, diversity, overall, grade, computed_at)
		VALUES (:scope, :subject, :activity, :health, :quality, :diversity,
		 :overall, :grade, :computed_at)
	`
	_, err := s.db.NamedExecContext(ctx, query, toScoreRow(score))
	return err
}

func (s *SQLiteStore) GetScore(ctx context.Context, scope models.ScoreScope, subject string) (*models.Score, error) {
	var row scoreRow
	query := `SELECT * FROM scores WHERE scope = ? AND subject = ?`
	err := s.db.GetContext(ctx, &row, query, string(scope), subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.model(), nil
}

// Codebase report operations

func (s *SQLiteStore) SaveCodebaseReport(ctx context.Context, report *models.CodebaseReport) error {
	query := `
		INSERT OR REPLACE INTO codebase_reports
		(repository, total_files, total_lines, code_lines, comment_lines,
		 blank_lines, test_files, language_files, language_code_lines,
		 complexity, complexity_score, comment_score, test_score,
		 dependency_score, dependency_warnings, overall_score, generated_at)
		VALUES (:repository, :total_files, :total_lines, :code_lines,
		 :comment_lines, :blank_lines, :test_files, :language_files,
		 :language_code_lines, :complexity, :complexity_score, :comment_score,
		 :test_score, :dependency_score, :dependency_warnings, :overall_score,
		 :generated_at)
	`
	_, err := s.db.NamedExecContext(ctx, query, toCodebaseReportRow(report))
	return err
}

func (s *SQLiteStore) GetCodebaseReport(ctx context.Context, repository string) (*models.CodebaseReport, error) {
	var row codebaseReportRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM codebase_reports WHERE repository = ?`, repository)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.model(), nil
}

// Analysis run operations

func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.AnalysisRun) error {
	query := `
		INSERT OR REPLACE INTO analysis_runs
		(id, repository, state, progress, warnings, error, started_at, completed_at)
		VALUES (:id, :repository, :state, :progress, :warnings, :error,
		 :started_at, :completed_at)
	`
	_, err := s.db.NamedExecContext(ctx, query, toRunRow(run))
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM analysis_runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.model(), nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, repository string, limit int) ([]*models.AnalysisRun, error) {
	if limit <= 0 {
		limit = -1
	}

	var rows []runRow
	var err error
	if repository == "" {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM analysis_runs ORDER BY started_at DESC LIMIT ?`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM analysis_runs WHERE repository = ? ORDER BY started_at DESC LIMIT ?`,
			repository, limit)
	}
	if err != nil {
		return nil, err
	}

	runs := make([]*models.AnalysisRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.model())
	}
	return runs, nil
}
