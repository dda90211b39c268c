package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/gitpulse/gitpulse-go/internal/identity"
	"github.com/gitpulse/gitpulse-go/internal/models"
)

// PostgresStore implements storage using PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// NewPostgresStore creates a new PostgreSQL storage
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		name TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		url TEXT,
		default_branch TEXT,
		total_commits INTEGER,
		total_contributors INTEGER,
		total_branches INTEGER,
		last_analyzed TIMESTAMPTZ,
		created_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS commits (
		sha TEXT NOT NULL,
		repository TEXT NOT NULL,
		parent_shas TEXT,
		author_name TEXT,
		author_email TEXT,
		message TEXT,
		committed_at TIMESTAMPTZ,
		branches TEXT,
		lines_added INTEGER,
		lines_removed INTEGER,
		files_changed INTEGER,
		quality_score DOUBLE PRECISION,
		quality_by_llm BOOLEAN,
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
		first_commit TIMESTAMPTZ,
		last_commit TIMESTAMPTZ,
		quality_score DOUBLE PRECISION,
		impact_score DOUBLE PRECISION,
		pr_quality_score DOUBLE PRECISION,
		prs_analyzed INTEGER,
		commit_frequency DOUBLE PRECISION,
		llm_unavailable BOOLEAN,
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
		merged_at TIMESTAMPTZ,
		PRIMARY KEY (repository, merge_sha)
	);

	CREATE TABLE IF NOT EXISTS contributor_merges (
		merged_email TEXT PRIMARY KEY,
		primary_email TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scores (
		scope TEXT NOT NULL,
		subject TEXT NOT NULL,
		activity DOUBLE PRECISION,
		health DOUBLE PRECISION,
		quality DOUBLE PRECISION,
		diversity DOUBLE PRECISION,
		overall DOUBLE PRECISION,
		grade TEXT,
		computed_at TIMESTAMPTZ,
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
		complexity_score DOUBLE PRECISION,
		comment_score DOUBLE PRECISION,
		test_score DOUBLE PRECISION,
		dependency_score DOUBLE PRECISION,
		dependency_warnings TEXT,
		overall_score DOUBLE PRECISION,
		generated_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		id TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		state TEXT NOT NULL,
		progress INTEGER,
		warnings TEXT,
		error TEXT,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Repository operations

func (s *PostgresStore) SaveRepository(ctx context.Context, repo *models.Repository) error {
	query := `
		INSERT INTO repositories
		(name, path, url, default_branch, total_commits, total_contributors,
		 total_branches, last_analyzed, created_at)
		VALUES (:name, :path, :url, :default_branch, :total_commits,
		 :total_contributors, :total_branches, :last_analyzed, :created_at)
		ON CONFLICT (name) DO UPDATE SET
			path = EXCLUDED.path,
			url = EXCLUDED.url,
			default_branch = EXCLUDED.default_branch,
			total_commits = EXCLUDED.total_commits,
			total_contributors = EXCLUDED.total_contributors,
			total_branches = EXCLUDED.total_branches,
			last_analyzed = EXCLUDED.last_analyzed
	`
	_, err := s.db.NamedExecContext(ctx, query, repo)
	return err
}

func (s *PostgresStore) GetRepository(ctx context.Context, name string) (*models.Repository, error) {
	var repo models.Repository
	err := s.db.GetContext(ctx, &repo, `SELECT * FROM repositories WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &repo, nil
}

func (s *PostgresStore) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	var repos []*models.Repository
	err := s.db.SelectContext(ctx, &repos, `SELECT * FROM repositories ORDER BY name`)
	return repos, err
}

// Commit operations

func (s *PostgresStore) SaveCommits(ctx context.Context, commits []*models.Commit) error {
	if len(commits) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO commits
		(sha, repository, parent_shas, author_name, author_email, message,
		 committed_at, branches, lines_added, lines_removed, files_changed,
		 quality_score, quality_by_llm)
		VALUES (:sha, :repository, :parent_shas, :author_name, :author_email,
		 :message, :committed_at, :branches, :lines_added, :lines_removed,
		 :files_changed, :quality_score, :quality_by_llm)
		ON CONFLICT (repository, sha) DO UPDATE SET
			branches = EXCLUDED.branches,
			lines_added = EXCLUDED.lines_added,
			lines_removed = EXCLUDED.lines_removed,
			files_changed = EXCLUDED.files_changed,
			quality_score = EXCLUDED.quality_score,
			quality_by_llm = EXCLUDED.quality_by_llm
	`
	for _, commit := range commits {
		if _, err := tx.NamedExecContext(ctx, query, toCommitRow(commit)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetCommits(ctx context.Context, repository string, limit int) ([]*models.Commit, error) {
	var rows []commitRow
	var err error
	if limit > 0 {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM commits WHERE repository = $1 ORDER BY committed_at DESC LIMIT $2`,
			repository, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM commits WHERE repository = $1 ORDER BY committed_at DESC`, repository)
	}
	if err != nil {
		return nil, err
	}

	commits := make([]*models.Commit, 0, len(rows))
	for _, row := range rows {
		commits = append(commits, row.model())
	}
	return commits, nil
}

// Contributor operations

func (s *PostgresStore) SaveContributors(ctx context.Context, repository string, contributors []*models.Contributor) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contributors WHERE repository = $1`, repository); err != nil {
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

func (s *PostgresStore) GetContributors(ctx context.Context, repository string) ([]*models.Contributor, error) {
	var rows []contributorRow
	query := `SELECT * FROM contributors WHERE repository = $1 ORDER BY impact_score DESC`
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

func (s *PostgresStore) SavePullRequests(ctx context.Context, prs []*models.PullRequest) error {
	if len(prs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO pull_requests
		(merge_sha, repository, mainline_sha, feature_sha, pattern, commit_shas,
		 contributors, lines_added, lines_removed, files_changed, merged_at)
		VALUES (:merge_sha, :repository, :mainline_sha, :feature_sha, :pattern,
		 :commit_shas, :contributors, :lines_added, :lines_removed,
		 :files_changed, :merged_at)
		ON CONFLICT (repository, merge_sha) DO UPDATE SET
			commit_shas = EXCLUDED.commit_shas,
			contributors = EXCLUDED.contributors,
			lines_added = EXCLUDED.lines_added,
			lines_removed = EXCLUDED.lines_removed,
			files_changed = EXCLUDED.files_changed
	`
	for _, pr := range prs {
		if _, err := tx.NamedExecContext(ctx, query, toPullRequestRow(pr)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetPullRequests(ctx context.Context, repository string) ([]*models.PullRequest, error) {
	var rows []pullRequestRow
	query := `SELECT * FROM pull_requests WHERE repository = $1 ORDER BY merged_at DESC`
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

func (s *PostgresStore) SaveMerges(ctx context.Context, records []identity.MergeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO contributor_merges (merged_email, primary_email)
		VALUES (:merged_email, :primary_email)
		ON CONFLICT (merged_email) DO UPDATE SET primary_email = EXCLUDED.primary_email
	`
	for _, record := range records {
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetMerges(ctx context.Context) ([]identity.MergeRecord, error) {
	var records []identity.MergeRecord
	err := s.db.SelectContext(ctx, &records,
		`SELECT * FROM contributor_merges ORDER BY merged_email`)
	return records, err
}

func (s *PostgresStore) DeleteMerges(ctx context.Context, mergedEmails []string) error {
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

func (s *PostgresStore) SaveScore(ctx context.Context, score *models.Score) error {
	query := `
		INSERT INTO scores
		(scope, subject, activity, health, quality, diversity, overall, grade, computed_at)
		VALUES (:scope, :subject, :activity, :health, :quality, :diversity,
		 :overall, :grade, :computed_at)
		ON CONFLICT (scope, subject) DO UPDATE SET
			activity = EXCLUDED.activity,
			health = EXCLUDED.health,
			quality = EXCLUDED.quality,
			diversity = EXCLUDED.diversity,
			overall = EXCLUDED.overall,
			grade = EXCLUDED.grade,
			computed_at = EXCLUDED.computed_at
	`
	_, err := s.db.NamedExecContext(ctx, query, toScoreRow(score))
	return err
}

func (s *PostgresStore) GetScore(ctx context.Context, scope models.ScoreScope, subject string) (*models.Score, error) {
	var row scoreRow
	query := `SELECT * FROM scores WHERE scope = $1 AND subject = $2`
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

func (s *PostgresStore) SaveCodebaseReport(ctx context.Context, report *models.CodebaseReport) error {
	query := `
		INSERT INTO codebase_reports
		(repository, total_files, total_lines, code_lines, comment_lines,
		 blank_lines, test_files, language_files, language_code_lines,
		 complexity, complexity_score, comment_score, test_score,
		 dependency_score, dependency_warnings, overall_score, generated_at)
		VALUES (:repository, :total_files, :total_lines, :code_lines,
		 :comment_lines, :blank_lines, :test_files, :language_files,
		 :language_code_lines, :complexity, :complexity_score, :comment_score,
		 :test_score, :dependency_score, :dependency_warnings, :overall_score,
		 :generated_at)
		ON CONFLICT (repository) DO UPDATE SET
			total_files = EXCLUDED.total_files,
			total_lines = EXCLUDED.total_lines,
			code_lines = EXCLUDED.code_lines,
			comment_lines = EXCLUDED.comment_lines,
			blank_lines = EXCLUDED.blank_lines,
			test_files = EXCLUDED.test_files,
			language_files = EXCLUDED.language_files,
			language_code_lines = EXCLUDED.language_code_lines,
			complexity = EXCLUDED.complexity,
			complexity_score = EXCLUDED.complexity_score,
			comment_score = EXCLUDED.comment_score,
			test_score = EXCLUDED.test_score,
			dependency_score = EXCLUDED.dependency_score,
			dependency_warnings = EXCLUDED.dependency_warnings,
			overall_score = EXCLUDED.overall_score,
			generated_at = EXCLUDED.generated_at
	`
	_, err := s.db.NamedExecContext(ctx, query, toCodebaseReportRow(report))
	return err
}

func (s *PostgresStore) GetCodebaseReport(ctx context.Context, repository string) (*models.CodebaseReport, error) {
	var row codebaseReportRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM codebase_reports WHERE repository = $1`, repository)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.model(), nil
}

// Analysis run operations

func (s *PostgresStore) SaveRun(ctx context.Context, run *models.AnalysisRun) error {
	query := `
		INSERT INTO analysis_runs
		(id, repository, state, progress, warnings, error, started_at, completed_at)
		VALUES (:id, :repository, :state, :progress, :warnings, :error,
		 :started_at, :completed_at)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			progress = EXCLUDED.progress,
			warnings = EXCLUDED.warnings,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`
	_, err := s.db.NamedExecContext(ctx, query, toRunRow(run))
	return err
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM analysis_runs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.model(), nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, repository string, limit int) ([]*models.AnalysisRun, error) {
	var rows []runRow
	var err error
	switch {
	case repository == "" && limit > 0:
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM analysis_runs ORDER BY started_at DESC LIMIT $1`, limit)
	case repository == "":
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM analysis_runs ORDER BY started_at DESC`)
	case limit > 0:
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM analysis_runs WHERE repository = $1 ORDER BY started_at DESC LIMIT $2`,
			repository, limit)
	default:
		err = s.db.SelectContext(ctx, &rows,
			`SELECT * FROM analysis_runs WHERE repository = $1 ORDER BY started_at DESC`, repository)
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
