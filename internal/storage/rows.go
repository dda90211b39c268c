package storage

import (
	"encoding/json"
	"time"

	"github.com/gitpulse/gitpulse-go/internal/models"
)

// Row types flatten the model structs for sqlx. Slice and map fields travel
// as JSON text so the same mapping works on SQLite and PostgreSQL.

type commitRow struct {
	SHA          string    `db:"sha"`
	Repository   string    `db:"repository"`
	ParentSHAs   string    `db:"parent_shas"`
	AuthorName   string    `db:"author_name"`
	AuthorEmail  string    `db:"author_email"`
	Message      string    `db:"message"`
	CommittedAt  time.Time `db:"committed_at"`
	Branches     string    `db:"branches"`
	LinesAdded   int       `db:"lines_added"`
	LinesRemoved int       `db:"lines_removed"`
	FilesChanged int       `db:"files_changed"`
	QualityScore float64   `db:"quality_score"`
	QualityByLLM bool      `db:"quality_by_llm"`
}

func toCommitRow(c *models.Commit) commitRow {
	return commitRow{
		SHA:          c.SHA,
		Repository:   c.Repository,
		ParentSHAs:   marshalStrings(c.ParentSHAs),
		AuthorName:   c.AuthorName,
		AuthorEmail:  c.AuthorEmail,
		Message:      c.Message,
		CommittedAt:  c.CommittedAt,
		Branches:     marshalStrings(c.Branches),
		LinesAdded:   c.LinesAdded,
		LinesRemoved: c.LinesRemoved,
		FilesChanged: c.FilesChanged,
		QualityScore: c.QualityScore,
		QualityByLLM: c.QualityByLLM,
	}
}

func (r commitRow) model() *models.Commit {
	return &models.Commit{
		SHA:          r.SHA,
		Repository:   r.Repository,
		ParentSHAs:   unmarshalStrings(r.ParentSHAs),
		AuthorName:   r.AuthorName,
		AuthorEmail:  r.AuthorEmail,
		Message:      r.Message,
		CommittedAt:  r.CommittedAt,
		Branches:     unmarshalStrings(r.Branches),
		LinesAdded:   r.LinesAdded,
		LinesRemoved: r.LinesRemoved,
		FilesChanged: r.FilesChanged,
		QualityScore: r.QualityScore,
		QualityByLLM: r.QualityByLLM,
	}
}

type contributorRow struct {
	Repository      string    `db:"repository"`
	Email           string    `db:"email"`
	Name            string    `db:"name"`
	Aliases         string    `db:"aliases"`
	MergedEmails    string    `db:"merged_emails"`
	Commits         int       `db:"commits"`
	LinesAdded      int       `db:"lines_added"`
	LinesRemoved    int       `db:"lines_removed"`
	FilesChanged    int       `db:"files_changed"`
	PullRequests    int       `db:"pull_requests"`
	Branches        string    `db:"branches"`
	FirstCommit     time.Time `db:"first_commit"`
	LastCommit      time.Time `db:"last_commit"`
	QualityScore    float64   `db:"quality_score"`
	ImpactScore     float64   `db:"impact_score"`
	PRQualityScore  float64   `db:"pr_quality_score"`
	PRsAnalyzed     int       `db:"prs_analyzed"`
	CommitFrequency float64   `db:"commit_frequency"`
	LLMUnavailable  bool      `db:"llm_unavailable"`
}

func toContributorRow(repository string, c *models.Contributor) contributorRow {
	return contributorRow{
		Repository:      repository,
		Email:           c.Email,
		Name:            c.Name,
		Aliases:         marshalStrings(c.Aliases),
		MergedEmails:    marshalStrings(c.MergedEmails),
		Commits:         c.Commits,
		LinesAdded:      c.LinesAdded,
		LinesRemoved:    c.LinesRemoved,
		FilesChanged:    c.FilesChanged,
		PullRequests:    c.PullRequests,
		Branches:        marshalStrings(c.Branches),
		FirstCommit:     c.FirstCommit,
		LastCommit:      c.LastCommit,
		QualityScore:    c.QualityScore,
		ImpactScore:     c.ImpactScore,
		PRQualityScore:  c.PRQualityScore,
		PRsAnalyzed:     c.PRsAnalyzed,
		CommitFrequency: c.CommitFrequency,
		LLMUnavailable:  c.LLMUnavailable,
	}
}

func (r contributorRow) model() *models.Contributor {
	return &models.Contributor{
		Email:           r.Email,
		Name:            r.Name,
		Aliases:         unmarshalStrings(r.Aliases),
		MergedEmails:    unmarshalStrings(r.MergedEmails),
		Commits:         r.Commits,
		LinesAdded:      r.LinesAdded,
		LinesRemoved:    r.LinesRemoved,
		FilesChanged:    r.FilesChanged,
		PullRequests:    r.PullRequests,
		Branches:        unmarshalStrings(r.Branches),
		FirstCommit:     r.FirstCommit,
		LastCommit:      r.LastCommit,
		QualityScore:    r.QualityScore,
		ImpactScore:     r.ImpactScore,
		PRQualityScore:  r.PRQualityScore,
		PRsAnalyzed:     r.PRsAnalyzed,
		CommitFrequency: r.CommitFrequency,
		LLMUnavailable:  r.LLMUnavailable,
	}
}

type pullRequestRow struct {
	MergeSHA     string    `db:"merge_sha"`
	Repository   string    `db:"repository"`
	MainlineSHA  string    `db:"mainline_sha"`
	FeatureSHA   string    `db:"feature_sha"`
	Pattern      string    `db:"pattern"`
	CommitSHAs   string    `db:"commit_shas"`
	Contributors string    `db:"contributors"`
	LinesAdded   int       `db:"lines_added"`
	LinesRemoved int       `db:"lines_removed"`
	FilesChanged int       `db:"files_changed"`
	MergedAt     time.Time `db:"merged_at"`
}

func toPullRequestRow(pr *models.PullRequest) pullRequestRow {
	return pullRequestRow{
		MergeSHA:     pr.MergeSHA,
		Repository:   pr.Repository,
		MainlineSHA:  pr.MainlineSHA,
		FeatureSHA:   pr.FeatureSHA,
		Pattern:      pr.Pattern,
		CommitSHAs:   marshalStrings(pr.CommitSHAs),
		Contributors: marshalStrings(pr.Contributors),
		LinesAdded:   pr.LinesAdded,
		LinesRemoved: pr.LinesRemoved,
		FilesChanged: pr.FilesChanged,
		MergedAt:     pr.MergedAt,
	}
}

func (r pullRequestRow) model() *models.PullRequest {
	return &models.PullRequest{
		MergeSHA:     r.MergeSHA,
		Repository:   r.Repository,
		MainlineSHA:  r.MainlineSHA,
		FeatureSHA:   r.FeatureSHA,
		Pattern:      r.Pattern,
		CommitSHAs:   unmarshalStrings(r.CommitSHAs),
		Contributors: unmarshalStrings(r.Contributors),
		LinesAdded:   r.LinesAdded,
		LinesRemoved: r.LinesRemoved,
		FilesChanged: r.FilesChanged,
		MergedAt:     r.MergedAt,
	}
}

type scoreRow struct {
	Scope      string    `db:"scope"`
	Subject    string    `db:"subject"`
	Activity   float64   `db:"activity"`
	Health     float64   `db:"health"`
	Quality    float64   `db:"quality"`
	Diversity  float64   `db:"diversity"`
	Overall    float64   `db:"overall"`
	Grade      string    `db:"grade"`
	ComputedAt time.Time `db:"computed_at"`
}

func toScoreRow(s *models.Score) scoreRow {
	return scoreRow{
		Scope:      string(s.Scope),
		Subject:    s.Subject,
		Activity:   s.Dimensions.Activity,
		Health:     s.Dimensions.Health,
		Quality:    s.Dimensions.Quality,
		Diversity:  s.Dimensions.Diversity,
		Overall:    s.Dimensions.Overall,
		Grade:      s.Grade,
		ComputedAt: s.ComputedAt,
	}
}

func (r scoreRow) model() *models.Score {
	return &models.Score{
		Scope:   models.ScoreScope(r.Scope),
		Subject: r.Subject,
		Dimensions: models.Dimensions{
			Activity:  r.Activity,
			Health:    r.Health,
			Quality:   r.Quality,
			Diversity: r.Diversity,
			Overall:   r.Overall,
		},
		Grade:      r.Grade,
		ComputedAt: r.ComputedAt,
	}
}

type codebaseReportRow struct {
	Repository         string    `db:"repository"`
	TotalFiles         int       `db:"total_files"`
	TotalLines         int       `db:"total_lines"`
	CodeLines          int       `db:"code_lines"`
	CommentLines       int       `db:"comment_lines"`
	BlankLines         int       `db:"blank_lines"`
	TestFiles          int       `db:"test_files"`
	LanguageFiles      string    `db:"language_files"`
	LanguageCodeLines  string    `db:"language_code_lines"`
	Complexity         int       `db:"complexity"`
	ComplexityScore    float64   `db:"complexity_score"`
	CommentScore       float64   `db:"comment_score"`
	TestScore          float64   `db:"test_score"`
	DependencyScore    float64   `db:"dependency_score"`
	DependencyWarnings string    `db:"dependency_warnings"`
	OverallScore       float64   `db:"overall_score"`
	GeneratedAt        time.Time `db:"generated_at"`
}

func toCodebaseReportRow(report *models.CodebaseReport) codebaseReportRow {
	return codebaseReportRow{
		Repository:         report.Repository,
		TotalFiles:         report.TotalFiles,
		TotalLines:         report.TotalLines,
		CodeLines:          report.CodeLines,
		CommentLines:       report.CommentLines,
		BlankLines:         report.BlankLines,
		TestFiles:          report.TestFiles,
		LanguageFiles:      marshalJSON(report.LanguageFiles),
		LanguageCodeLines:  marshalJSON(report.LanguageCodeLines),
		Complexity:         report.Complexity,
		ComplexityScore:    report.ComplexityScore,
		CommentScore:       report.CommentScore,
		TestScore:          report.TestScore,
		DependencyScore:    report.DependencyScore,
		DependencyWarnings: marshalStrings(report.DependencyWarnings),
		OverallScore:       report.OverallScore,
		GeneratedAt:        report.GeneratedAt,
	}
}

func (r codebaseReportRow) model() *models.CodebaseReport {
	report := &models.CodebaseReport{
		Repository:         r.Repository,
		TotalFiles:         r.TotalFiles,
		TotalLines:         r.TotalLines,
		CodeLines:          r.CodeLines,
		CommentLines:       r.CommentLines,
		BlankLines:         r.BlankLines,
		TestFiles:          r.TestFiles,
		LanguageFiles:      make(map[string]int),
		LanguageCodeLines:  make(map[string]int),
		Complexity:         r.Complexity,
		ComplexityScore:    r.ComplexityScore,
		CommentScore:       r.CommentScore,
		TestScore:          r.TestScore,
		DependencyScore:    r.DependencyScore,
		DependencyWarnings: unmarshalStrings(r.DependencyWarnings),
		OverallScore:       r.OverallScore,
		GeneratedAt:        r.GeneratedAt,
	}
	json.Unmarshal([]byte(r.LanguageFiles), &report.LanguageFiles)
	json.Unmarshal([]byte(r.LanguageCodeLines), &report.LanguageCodeLines)
	return report
}

type runRow struct {
	ID          string    `db:"id"`
	Repository  string    `db:"repository"`
	State       string    `db:"state"`
	Progress    int       `db:"progress"`
	Warnings    string    `db:"warnings"`
	Error       string    `db:"error"`
	StartedAt   time.Time `db:"started_at"`
	CompletedAt time.Time `db:"completed_at"`
}

func toRunRow(run *models.AnalysisRun) runRow {
	return runRow{
		ID:          run.ID,
		Repository:  run.Repository,
		State:       string(run.State),
		Progress:    run.Progress,
		Warnings:    marshalStrings(run.Warnings),
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}

func (r runRow) model() *models.AnalysisRun {
	return &models.AnalysisRun{
		ID:          r.ID,
		Repository:  r.Repository,
		State:       models.RunState(r.State),
		Progress:    r.Progress,
		Warnings:    unmarshalStrings(r.Warnings),
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

func marshalStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalStrings(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
