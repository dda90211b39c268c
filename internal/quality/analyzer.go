// Package quality scores commits. Every commit gets a cheap heuristic pass;
// a deterministic sample additionally goes to the inference collaborator and
// the two ratings are blended. When the collaborator is down the heuristic
// score stands alone and the result is flagged.
package quality

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/gitpulse/gitpulse-go/internal/config"
	"github.com/gitpulse/gitpulse-go/internal/inference"
	"github.com/gitpulse/gitpulse-go/internal/models"
)

// Report is the quality verdict for one commit.
type Report struct {
	SHA         string           `json:"sha"`
	AuthorEmail string           `json:"author_email"`
	Scores      inference.Scores `json:"scores"`
	Overall     float64          `json:"overall"`
	ByLLM       bool             `json:"by_llm"`
}

// DiffFunc fetches the truncated first-parent diff for a commit.
type DiffFunc func(ctx context.Context, sha string) (string, error)

// Analyzer blends heuristic and LLM quality scores.
type Analyzer struct {
	judge   inference.Judge
	weights config.QualityWeights
	blend   float64
	limiter *rate.Limiter
	timeout time.Duration
	logger  *logrus.Logger
}

// NewAnalyzer builds a quality analyzer. The rate limiter serializes calls to
// the collaborator; a local model serves one request at a time.
func NewAnalyzer(judge inference.Judge, scoring config.ScoringConfig, inf config.InferenceConfig, logger *logrus.Logger) *Analyzer {
	perSecond := inf.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Analyzer{
		judge:   judge,
		weights: scoring.QualityWeights,
		blend:   scoring.LLMBlend,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		timeout: inf.Timeout,
		logger:  logger,
	}
}

// Sample picks up to n commits, evenly spaced over the history ordered by
// (timestamp, hash). The same history always yields the same sample, so two
// runs over an unchanged repository score the same commits.
func Sample(commits []*models.Commit, n int) []*models.Commit {
	if n <= 0 || len(commits) == 0 {
		return nil
	}

	ordered := make([]*models.Commit, len(commits))
	copy(ordered, commits)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CommittedAt.Equal(ordered[j].CommittedAt) {
			return ordered[i].CommittedAt.Before(ordered[j].CommittedAt)
		}
		return ordered[i].SHA < ordered[j].SHA
	})

	if len(ordered) <= n {
		return ordered
	}

	sample := make([]*models.Commit, 0, n)
	step := float64(len(ordered)) / float64(n)
	for i := 0; i < n; i++ {
		sample = append(sample, ordered[int(float64(i)*step)])
	}
	return sample
}

// ScoreCommit rates one commit. Heuristics always apply; when useLLM is set
// and the collaborator answers within its timeout, the two score sets are
// blended with the configured LLM share. A collaborator failure downgrades
// to heuristics, never fails the commit.
func (a *Analyzer) ScoreCommit(ctx context.Context, c *models.Commit, diff string, useLLM bool) Report {
	heuristic := Heuristics(c, diff)
	scores := heuristic
	byLLM := false

	if useLLM {
		llm, err := a.askJudge(ctx, c.Message, diff)
		if err != nil {
			if a.logger != nil {
				a.logger.WithError(err).WithField("sha", c.SHA).Warn("inference failed, keeping heuristic score")
			}
		} else {
			scores = blend(heuristic, llm, a.blend)
			byLLM = true
		}
	}

	return Report{
		SHA:         c.SHA,
		AuthorEmail: c.AuthorEmail,
		Scores:      scores,
		Overall:     a.overall(scores),
		ByLLM:       byLLM,
	}
}

// ScoreCommits rates a set of commits, consulting the collaborator only for
// the deterministic sample. Diffs are fetched for the whole sample either
// way; useJudge only gates the collaborator calls, so the diff-based
// heuristic sub-scores survive a judge-disabled run. Returns reports keyed
// by SHA plus whether the collaborator was reachable at the start of the
// pass.
func (a *Analyzer) ScoreCommits(ctx context.Context, commits []*models.Commit, sampleSize int, useJudge bool, diffFn DiffFunc) (map[string]Report, bool) {
	available := useJudge && a.judge != nil && a.judge.Available(ctx)

	sampled := make(map[string]bool)
	for _, c := range Sample(commits, sampleSize) {
		sampled[c.SHA] = true
	}

	reports := make(map[string]Report, len(commits))
	for _, c := range commits {
		if ctx.Err() != nil {
			break
		}

		var diff string
		if sampled[c.SHA] && diffFn != nil {
			fetched, err := diffFn(ctx, c.SHA)
			if err != nil {
				if a.logger != nil {
					a.logger.WithError(err).WithField("sha", c.SHA).Warn("could not fetch diff")
				}
			} else {
				diff = fetched
			}
		}

		reports[c.SHA] = a.ScoreCommit(ctx, c, diff, available && sampled[c.SHA])
	}
	return reports, available
}

// PRQuality averages the quality of a PR's introduced commits over those
// that carry a score. The second return is false when none do, in which case
// the PR is counted but carries no quality signal.
func PRQuality(pr *models.PullRequest, scores map[string]float64) (float64, bool) {
	sum, n := 0.0, 0
	for _, sha := range pr.CommitSHAs {
		if score, ok := scores[sha]; ok && score > 0 {
			sum += score
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func (a *Analyzer) askJudge(ctx context.Context, message, diff string) (inference.Scores, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return inference.Scores{}, err
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.judge.ScoreDiff(callCtx, message, diff)
}

func (a *Analyzer) overall(s inference.Scores) float64 {
	w := a.weights
	return s.Weighted(w.CommitMessage, w.Complexity, w.Documentation,
		w.TestCoverage, w.Consistency, w.BestPractices)
}

func blend(heuristic, llm inference.Scores, llmWeight float64) inference.Scores {
	h := 1 - llmWeight
	return inference.Scores{
		CommitMessage: heuristic.CommitMessage*h + llm.CommitMessage*llmWeight,
		Complexity:    heuristic.Complexity*h + llm.Complexity*llmWeight,
		Documentation: heuristic.Documentation*h + llm.Documentation*llmWeight,
		TestCoverage:  heuristic.TestCoverage*h + llm.TestCoverage*llmWeight,
		Consistency:   heuristic.Consistency*h + llm.Consistency*llmWeight,
		BestPractices: heuristic.BestPractices*h + llm.BestPractices*llmWeight,
	}
}
