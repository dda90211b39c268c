// Package pullreq infers pull requests from merge commits. The engine never
// talks to a forge API; a PR here is an approximation derived from a merge
// commit whose message matches a known pattern.
package pullreq

import (
	"strings"

	"github.com/gitpulse/gitpulse-go/internal/git"
	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultPatterns are case-insensitive substrings that mark a merge commit
// as a likely pull request. Kept as data so deployments can extend the set
// without touching the graph walk.
var DefaultPatterns = []string{
	"merge pull request",
	"merged pr",
	"pull request #",
}

// Detector scans a commit graph for inferred pull requests.
type Detector struct {
	patterns []string
	logger   *logrus.Logger
}

// NewDetector creates a detector. A nil or empty pattern set falls back to
// DefaultPatterns.
func NewDetector(patterns []string, logger *logrus.Logger) *Detector {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Detector{patterns: patterns, logger: logger}
}

// Match reports whether a commit message looks like a PR merge, returning
// the matched pattern.
func (d *Detector) Match(message string) (string, bool) {
	lowered := strings.ToLower(message)
	for _, pattern := range d.patterns {
		if strings.Contains(lowered, pattern) {
			return pattern, true
		}
	}
	return "", false
}

// Infer walks the graph and returns one inferred PR per matching merge
// commit. The introduced commit set is everything reachable from the second
// parent and not from the first (merge-base exclusion); the PR's aggregate
// diff is the sum over that set, not the merge commit's own (empty) diff.
//
// A merge whose introduced set is empty (fast-forward-like) is kept only
// when its message carries a real body; such a PR counts toward PR totals
// but is excluded from quality scoring. Squash and rebase merges leave no
// merge commit and are not detected.
func (d *Detector) Infer(g *git.Graph, repository string) []*models.PullRequest {
	var prs []*models.PullRequest

	for _, c := range g.Commits() {
		if !c.IsMerge() {
			continue
		}
		pattern, ok := d.Match(c.Message)
		if !ok {
			continue
		}

		mainline := c.ParentSHAs[0]
		feature := c.ParentSHAs[1]
		introduced := g.Exclusive(feature, mainline)

		if len(introduced) == 0 && !hasBody(c.Message) {
			if d.logger != nil {
				d.logger.WithField("sha", c.SHA).Debug("dropping empty merge without a body")
			}
			continue
		}

		pr := &models.PullRequest{
			MergeSHA:    c.SHA,
			Repository:  repository,
			MainlineSHA: mainline,
			FeatureSHA:  feature,
			Pattern:     pattern,
			MergedAt:    c.CommittedAt,
		}

		seen := make(map[string]bool)
		for _, ic := range introduced {
			pr.CommitSHAs = append(pr.CommitSHAs, ic.SHA)
			pr.LinesAdded += ic.LinesAdded
			pr.LinesRemoved += ic.LinesRemoved
			pr.FilesChanged += ic.FilesChanged
			if !seen[ic.AuthorEmail] {
				seen[ic.AuthorEmail] = true
				pr.Contributors = append(pr.Contributors, ic.AuthorEmail)
			}
		}

		prs = append(prs, pr)
	}

	return prs
}

// hasBody reports whether a commit message has content beyond its subject
// line.
func hasBody(message string) bool {
	idx := strings.IndexByte(message, '\n')
	if idx < 0 {
		return false
	}
	return strings.TrimSpace(message[idx:]) != ""
}
