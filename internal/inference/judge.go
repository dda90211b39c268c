// Package inference scores commit diffs with a local LLM served through an
// OpenAI-compatible endpoint (Ollama by default). The engine treats it as an
// optional collaborator: when it is down, callers fall back to neutral scores
// and flag the result.
package inference

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the inference endpoint cannot be reached
// or does not answer in time.
var ErrUnavailable = errors.New("inference endpoint unavailable")

// Scores are the six quality sub-scores produced for one commit, each in
// [0,100].
type Scores struct {
	CommitMessage float64 `json:"commit_message_score"`
	Complexity    float64 `json:"complexity_score"`
	Documentation float64 `json:"documentation_score"`
	TestCoverage  float64 `json:"test_coverage_score"`
	Consistency   float64 `json:"consistency_score"`
	BestPractices float64 `json:"best_practices_score"`
}

// Weighted collapses the sub-scores with the given weights.
func (s Scores) Weighted(msg, cpx, doc, test, cons, best float64) float64 {
	return s.CommitMessage*msg +
		s.Complexity*cpx +
		s.Documentation*doc +
		s.TestCoverage*test +
		s.Consistency*cons +
		s.BestPractices*best
}

// Judge scores commits. Implementations must be safe for concurrent use.
type Judge interface {
	// Available probes the endpoint. A false return means ScoreDiff would
	// fail with ErrUnavailable.
	Available(ctx context.Context) bool
	// ScoreDiff rates one commit's message and truncated diff.
	ScoreDiff(ctx context.Context, message, diff string) (Scores, error)
}

// Disabled is a Judge that always reports unavailable. Used when inference
// is switched off in configuration.
type Disabled struct{}

func (Disabled) Available(context.Context) bool { return false }

func (Disabled) ScoreDiff(context.Context, string, string) (Scores, error) {
	return Scores{}, ErrUnavailable
}
