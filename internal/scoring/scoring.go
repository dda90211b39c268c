// Package scoring turns raw history metrics into graded 0-100 scores for
// contributors, repositories and the whole portfolio.
package scoring

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/gitpulse/gitpulse-go/internal/config"
	"github.com/gitpulse/gitpulse-go/internal/models"
)

// Scorer applies the configured weighting policy. The clock is injectable so
// the recency curves are testable.
type Scorer struct {
	cfg config.ScoringConfig
	now func() time.Time
}

// NewScorer creates a scorer using the wall clock.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg, now: time.Now}
}

// NewScorerAt creates a scorer with a fixed clock.
func NewScorerAt(cfg config.ScoringConfig, now time.Time) *Scorer {
	return &Scorer{cfg: cfg, now: func() time.Time { return now }}
}

// Grade converts an overall score to a letter grade.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 85:
		return "A"
	case score >= 80:
		return "A-"
	case score >= 75:
		return "B+"
	case score >= 70:
		return "B"
	case score >= 65:
		return "B-"
	case score >= 60:
		return "C+"
	case score >= 55:
		return "C"
	case score >= 50:
		return "C-"
	case score >= 45:
		return "D+"
	case score >= 40:
		return "D"
	default:
		return "F"
	}
}

// CommitFrequency is commits per week over the contributor's active span. A
// single-day span returns the raw commit count.
func CommitFrequency(commits int, first, last time.Time) float64 {
	if commits == 0 || first.IsZero() || last.IsZero() {
		return 0
	}
	days := last.Sub(first).Hours() / 24
	if days <= 0 {
		return float64(commits)
	}
	weeks := math.Max(1, days/7)
	return float64(commits) / weeks
}

// ImpactScore rates one contributor in [0,100]. Commit and line volume are
// log-scaled so prolific authors do not dominate linearly; quality,
// consistency and PR participation carry the rest.
func (s *Scorer) ImpactScore(c *models.Contributor) float64 {
	commitScore := math.Min(100, math.Log10(math.Max(1, float64(c.Commits)))*33)

	totalLines := float64(c.LinesAdded + c.LinesRemoved)
	linesScore := math.Min(100, math.Log10(math.Max(1, totalLines))*20)

	qualityScore := c.QualityScore
	if qualityScore == 0 {
		qualityScore = s.cfg.Baseline
	}

	consistency := 0.0
	if !c.FirstCommit.IsZero() && !c.LastCommit.IsZero() {
		activeDays := c.LastCommit.Sub(c.FirstCommit).Hours() / 24
		frequency := CommitFrequency(c.Commits, c.FirstCommit, c.LastCommit)
		consistency = math.Min(100, (activeDays/30)*10+frequency*5)
	}

	prScore := math.Min(100, float64(c.PullRequests)*10)

	impact := commitScore*0.25 +
		linesScore*0.20 +
		qualityScore*0.25 +
		consistency*0.15 +
		prScore*0.15

	return math.Round(math.Max(0, math.Min(100, impact))*100) / 100
}

// RepoStats are the raw per-repository counters the dimension curves read.
type RepoStats struct {
	Name                 string
	TotalCommits         int
	TotalContributors    int
	TotalBranches        int
	TotalPRs             int
	LinesAdded           int
	LinesRemoved         int
	FirstCommit          time.Time
	LastCommit           time.Time
	CommitsLast30        int
	CommitsLast90        int
	ActiveContributors30 int
	AvgQuality           float64
}

// CollectRepoStats derives RepoStats from an extracted history.
func CollectRepoStats(name string, commits []*models.Commit, contributors []*models.Contributor, branches, prs int, now time.Time) RepoStats {
	rs := RepoStats{
		Name:              name,
		TotalCommits:      len(commits),
		TotalContributors: len(contributors),
		TotalBranches:     branches,
		TotalPRs:          prs,
	}

	cutoff30 := now.AddDate(0, 0, -30)
	cutoff90 := now.AddDate(0, 0, -90)
	active30 := make(map[string]bool)

	for _, c := range commits {
		rs.LinesAdded += c.LinesAdded
		rs.LinesRemoved += c.LinesRemoved

		if rs.FirstCommit.IsZero() || c.CommittedAt.Before(rs.FirstCommit) {
			rs.FirstCommit = c.CommittedAt
		}
		if c.CommittedAt.After(rs.LastCommit) {
			rs.LastCommit = c.CommittedAt
		}
		if c.CommittedAt.After(cutoff30) {
			rs.CommitsLast30++
			active30[c.AuthorEmail] = true
		}
		if c.CommittedAt.After(cutoff90) {
			rs.CommitsLast90++
		}
	}
	rs.ActiveContributors30 = len(active30)

	var qualities []float64
	for _, c := range contributors {
		if c.QualityScore > 0 {
			qualities = append(qualities, c.QualityScore)
		}
	}
	if len(qualities) > 0 {
		if mean, err := stats.Mean(qualities); err == nil {
			rs.AvgQuality = mean
		}
	}

	return rs
}

// Repository computes the four dimensions and the weighted overall for one
// repository.
func (s *Scorer) Repository(rs RepoStats) models.Score {
	dims := models.Dimensions{
		Activity:  s.activity(rs),
		Health:    s.health(rs),
		Quality:   s.quality(rs),
		Diversity: s.collaboration(rs),
	}
	dims.Overall = s.overall(dims)

	return models.Score{
		Scope:      models.ScopeRepository,
		Subject:    rs.Name,
		Dimensions: dims,
		Grade:      Grade(dims.Overall),
		ComputedAt: s.now().UTC(),
	}
}

// Portfolio aggregates repository scores into one portfolio score. Activity,
// health and quality average across repositories; diversity rewards breadth.
func (s *Scorer) Portfolio(repoStats []RepoStats, repoScores []models.Score) models.Score {
	dims := models.Dimensions{}

	if len(repoScores) > 0 {
		var activity, health, quality []float64
		for _, score := range repoScores {
			activity = append(activity, score.Dimensions.Activity)
			health = append(health, score.Dimensions.Health)
			quality = append(quality, score.Dimensions.Quality)
		}
		dims.Activity, _ = stats.Mean(activity)
		dims.Health, _ = stats.Mean(health)
		dims.Quality, _ = stats.Mean(quality)
	}

	dims.Diversity = portfolioDiversity(repoStats)
	dims.Overall = s.overall(dims)

	return models.Score{
		Scope:      models.ScopePortfolio,
		Subject:    "portfolio",
		Dimensions: dims,
		Grade:      Grade(dims.Overall),
		ComputedAt: s.now().UTC(),
	}
}

func (s *Scorer) overall(d models.Dimensions) float64 {
	return d.Activity*s.cfg.ActivityWeight +
		d.Health*s.cfg.HealthWeight +
		d.Quality*s.cfg.QualityWeight +
		d.Diversity*s.cfg.DiversityWeight
}

func (s *Scorer) activity(rs RepoStats) float64 {
	score := 0.0
	if rs.CommitsLast30 > 0 {
		score += math.Min(40, float64(rs.CommitsLast30)*2)
	}
	if rs.CommitsLast90 > 0 {
		score += math.Min(30, float64(rs.CommitsLast90)*0.5)
	}
	if rs.TotalCommits > 0 {
		score += math.Min(30, math.Log10(float64(rs.TotalCommits))*15)
	}
	return math.Min(100, score)
}

func (s *Scorer) health(rs RepoStats) float64 {
	score := 50.0

	if !rs.LastCommit.IsZero() {
		days := s.now().Sub(rs.LastCommit).Hours() / 24
		switch {
		case days <= 7:
			score += 25
		case days <= 30:
			score += 15
		case days <= 90:
			score += 5
		default:
			score -= 15
		}
	}

	if rs.TotalBranches > 1 {
		score += math.Min(15, float64(rs.TotalBranches)*3)
	}

	if rs.TotalPRs > 0 && rs.TotalCommits > 0 {
		ratio := float64(rs.TotalPRs) / float64(rs.TotalCommits)
		score += math.Min(10, ratio*100)
	}

	return math.Max(0, math.Min(100, score))
}

func (s *Scorer) quality(rs RepoStats) float64 {
	if rs.AvgQuality > 0 {
		return rs.AvgQuality
	}
	return s.cfg.Baseline
}

func (s *Scorer) collaboration(rs RepoStats) float64 {
	score := 0.0

	switch {
	case rs.TotalContributors >= 10:
		score += 40
	case rs.TotalContributors >= 5:
		score += 30
	case rs.TotalContributors >= 2:
		score += 20
	default:
		score += 10
	}

	if rs.ActiveContributors30 > 0 {
		score += math.Min(30, float64(rs.ActiveContributors30)*10)
	}

	if rs.TotalPRs > 0 {
		score += math.Min(30, float64(rs.TotalPRs)*2)
	}

	return math.Min(100, score)
}

func portfolioDiversity(repoStats []RepoStats) float64 {
	if len(repoStats) == 0 {
		return 0
	}

	score := 0.0
	switch {
	case len(repoStats) >= 10:
		score += 40
	case len(repoStats) >= 5:
		score += 30
	case len(repoStats) >= 2:
		score += 20
	default:
		score += 10
	}

	active := 0
	totalContributors := 0
	for _, rs := range repoStats {
		if rs.CommitsLast30 > 0 {
			active++
		}
		totalContributors += rs.TotalContributors
	}
	score += float64(active) / float64(len(repoStats)) * 40

	avgContributors := float64(totalContributors) / float64(len(repoStats))
	if avgContributors >= 5 {
		score += 20
	} else if avgContributors >= 2 {
		score += 10
	}

	return math.Min(100, score)
}
