package engine

import (
	"sort"

	"github.com/gitpulse/gitpulse-go/internal/identity"
	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/gitpulse/gitpulse-go/internal/quality"
	"github.com/gitpulse/gitpulse-go/internal/scoring"
)

// aggregateContributors folds scored commits and inferred PRs into canonical
// contributor records. Commits keep their raw author email; attribution goes
// through the resolver, so the same function serves both a fresh run and a
// recompute after an identity merge or unmerge.
func aggregateContributors(
	commits []*models.Commit,
	prs []*models.PullRequest,
	resolver *identity.Resolver,
	scorer *scoring.Scorer,
) []*models.Contributor {
	byEmail := make(map[string]*models.Contributor)

	get := func(canonical string) *models.Contributor {
		c, ok := byEmail[canonical]
		if !ok {
			c = &models.Contributor{Email: canonical}
			byEmail[canonical] = c
		}
		return c
	}

	branchSets := make(map[string]map[string]bool)
	qualitySums := make(map[string]float64)
	qualityCounts := make(map[string]int)
	llmSeen := make(map[string]bool)

	for _, commit := range commits {
		canonical := resolver.Resolve(commit.AuthorName, commit.AuthorEmail, commit.CommittedAt)
		c := get(canonical)

		c.Commits++
		c.LinesAdded += commit.LinesAdded
		c.LinesRemoved += commit.LinesRemoved
		c.FilesChanged += commit.FilesChanged

		if c.FirstCommit.IsZero() || commit.CommittedAt.Before(c.FirstCommit) {
			c.FirstCommit = commit.CommittedAt
		}
		if commit.CommittedAt.After(c.LastCommit) {
			c.LastCommit = commit.CommittedAt
		}

		if branchSets[canonical] == nil {
			branchSets[canonical] = make(map[string]bool)
		}
		for _, branch := range commit.Branches {
			branchSets[canonical][branch] = true
		}

		if commit.QualityScore > 0 {
			qualitySums[canonical] += commit.QualityScore
			qualityCounts[canonical]++
		}
		if commit.QualityByLLM {
			llmSeen[canonical] = true
		}
	}

	// PR participation and PR quality, attributed to every contributor of
	// the PR's introduced commits.
	commitQuality := make(map[string]float64, len(commits))
	for _, commit := range commits {
		commitQuality[commit.SHA] = commit.QualityScore
	}

	prQualitySums := make(map[string]float64)
	prQualityCounts := make(map[string]int)
	for _, pr := range prs {
		prScore, scored := quality.PRQuality(pr, commitQuality)
		for _, raw := range pr.Contributors {
			canonical := resolver.Resolve("", raw, pr.MergedAt)
			c := get(canonical)
			c.PullRequests++
			if scored {
				prQualitySums[canonical] += prScore
				prQualityCounts[canonical]++
			}
		}
	}

	out := make([]*models.Contributor, 0, len(byEmail))
	for canonical, c := range byEmail {
		c.Name = resolver.DisplayName(canonical)
		c.Aliases = resolver.Aliases(canonical)
		c.MergedEmails = resolver.MergedEmails(canonical)

		for branch := range branchSets[canonical] {
			c.Branches = append(c.Branches, branch)
		}
		sort.Strings(c.Branches)

		if n := qualityCounts[canonical]; n > 0 {
			c.QualityScore = qualitySums[canonical] / float64(n)
			c.LLMUnavailable = !llmSeen[canonical]
		}
		if n := prQualityCounts[canonical]; n > 0 {
			c.PRQualityScore = prQualitySums[canonical] / float64(n)
			c.PRsAnalyzed = n
		}

		c.CommitFrequency = scoring.CommitFrequency(c.Commits, c.FirstCommit, c.LastCommit)
		c.ImpactScore = scorer.ImpactScore(c)
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ImpactScore != out[j].ImpactScore {
			return out[i].ImpactScore > out[j].ImpactScore
		}
		return out[i].Email < out[j].Email
	})
	return out
}

// applyQuality writes the quality reports back onto the commit records.
func applyQuality(commits []*models.Commit, reports map[string]quality.Report) {
	for _, commit := range commits {
		if report, ok := reports[commit.SHA]; ok {
			commit.QualityScore = report.Overall
			commit.QualityByLLM = report.ByLLM
		}
	}
}

// mergeGlobal folds per-repository contributor snapshots into one
// cross-repository aggregate. Quality and PR quality are weighted by the
// underlying sample counts.
func mergeGlobal(perRepo [][]*models.Contributor, scorer *scoring.Scorer) []*models.Contributor {
	byEmail := make(map[string]*models.Contributor)
	qualityWeight := make(map[string]float64)
	prWeight := make(map[string]int)

	for _, contributors := range perRepo {
		for _, c := range contributors {
			g, ok := byEmail[c.Email]
			if !ok {
				g = &models.Contributor{Email: c.Email, Name: c.Name}
				byEmail[c.Email] = g
			}

			g.Commits += c.Commits
			g.LinesAdded += c.LinesAdded
			g.LinesRemoved += c.LinesRemoved
			g.FilesChanged += c.FilesChanged
			g.PullRequests += c.PullRequests
			g.Aliases = unionSorted(g.Aliases, c.Aliases)
			g.MergedEmails = unionSorted(g.MergedEmails, c.MergedEmails)
			g.Branches = unionSorted(g.Branches, c.Branches)

			if g.FirstCommit.IsZero() || (!c.FirstCommit.IsZero() && c.FirstCommit.Before(g.FirstCommit)) {
				g.FirstCommit = c.FirstCommit
			}
			if c.LastCommit.After(g.LastCommit) {
				g.LastCommit = c.LastCommit
			}

			if c.QualityScore > 0 {
				weight := float64(c.Commits)
				g.QualityScore = (g.QualityScore*qualityWeight[c.Email] + c.QualityScore*weight) /
					(qualityWeight[c.Email] + weight)
				qualityWeight[c.Email] += weight
			}
			if c.PRsAnalyzed > 0 {
				g.PRQualityScore = (g.PRQualityScore*float64(prWeight[c.Email]) + c.PRQualityScore*float64(c.PRsAnalyzed)) /
					float64(prWeight[c.Email]+c.PRsAnalyzed)
				prWeight[c.Email] += c.PRsAnalyzed
				g.PRsAnalyzed += c.PRsAnalyzed
			}
			if c.LLMUnavailable {
				g.LLMUnavailable = true
			}
		}
	}

	out := make([]*models.Contributor, 0, len(byEmail))
	for _, g := range byEmail {
		g.CommitFrequency = scoring.CommitFrequency(g.Commits, g.FirstCommit, g.LastCommit)
		g.ImpactScore = scorer.ImpactScore(g)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ImpactScore != out[j].ImpactScore {
			return out[i].ImpactScore > out[j].ImpactScore
		}
		return out[i].Email < out[j].Email
	})
	return out
}

func unionSorted(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		seen[v] = true
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
