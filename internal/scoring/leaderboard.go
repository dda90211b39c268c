package scoring

import (
	"fmt"
	"sort"

	"github.com/gitpulse/gitpulse-go/internal/models"
)

// Metric selects the value a leaderboard is ranked by.
type Metric string

const (
	MetricImpact  Metric = "impact"
	MetricQuality Metric = "quality"
	MetricCommits Metric = "commits"
	MetricLines   Metric = "lines"
	MetricPRs     Metric = "prs"
)

// ParseMetric validates a metric name; the empty string means impact.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricImpact:
		return MetricImpact, nil
	case MetricQuality, MetricCommits, MetricLines, MetricPRs:
		return Metric(s), nil
	}
	return "", fmt.Errorf("unknown leaderboard metric %q", s)
}

func metricValue(c *models.Contributor, metric Metric) float64 {
	switch metric {
	case MetricQuality:
		return c.QualityScore
	case MetricCommits:
		return float64(c.Commits)
	case MetricLines:
		return float64(c.LinesAdded + c.LinesRemoved)
	case MetricPRs:
		return float64(c.PullRequests)
	default:
		return c.ImpactScore
	}
}

// Leaderboard ranks contributors by impact score, descending, with email as
// the tiebreaker for stable output.
func Leaderboard(contributors []*models.Contributor, limit int) []models.LeaderboardRow {
	return RankBy(contributors, MetricImpact, limit)
}

// RankBy ranks contributors by the chosen metric, descending, email as the
// tiebreaker. A non-positive limit returns everyone. PRQualityScore stays nil
// for contributors with no analyzed PRs so callers can tell "no signal" from
// "scored zero".
func RankBy(contributors []*models.Contributor, metric Metric, limit int) []models.LeaderboardRow {
	ranked := make([]*models.Contributor, len(contributors))
	copy(ranked, contributors)
	sort.SliceStable(ranked, func(i, j int) bool {
		vi, vj := metricValue(ranked[i], metric), metricValue(ranked[j], metric)
		if vi != vj {
			return vi > vj
		}
		return ranked[i].Email < ranked[j].Email
	})

	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}

	rows := make([]models.LeaderboardRow, 0, len(ranked))
	for i, c := range ranked {
		row := models.LeaderboardRow{
			Rank:         i + 1,
			Name:         c.Name,
			Email:        c.Email,
			Commits:      c.Commits,
			LinesChanged: c.LinesAdded + c.LinesRemoved,
			PullRequests: c.PullRequests,
			QualityScore: c.QualityScore,
			ImpactScore:  c.ImpactScore,
			MergedCount:  c.MergedCount(),
			MergedEmails: c.MergedEmails,
		}
		if c.PRsAnalyzed > 0 {
			prQuality := c.PRQualityScore
			row.PRQualityScore = &prQuality
		}
		rows = append(rows, row)
	}
	return rows
}
