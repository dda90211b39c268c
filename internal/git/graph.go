package git

import (
	"github.com/gitpulse/gitpulse-go/internal/models"
)

// Graph is an in-memory commit DAG built from an extracted history. Parents
// missing from the graph (beyond a truncation point) are treated as absent
// rather than errors.
type Graph struct {
	commits map[string]*models.Commit
	order   []string
}

// BuildGraph indexes extracted commits by hash, preserving extraction order.
func BuildGraph(commits []*models.Commit) *Graph {
	g := &Graph{commits: make(map[string]*models.Commit, len(commits))}
	for _, c := range commits {
		if _, ok := g.commits[c.SHA]; ok {
			continue
		}
		g.commits[c.SHA] = c
		g.order = append(g.order, c.SHA)
	}
	return g
}

// Get returns the commit with the given hash, if extracted.
func (g *Graph) Get(sha string) (*models.Commit, bool) {
	c, ok := g.commits[sha]
	return c, ok
}

// Len is the number of distinct commits in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

// Commits returns all commits in extraction order.
func (g *Graph) Commits() []*models.Commit {
	out := make([]*models.Commit, 0, len(g.order))
	for _, sha := range g.order {
		out = append(out, g.commits[sha])
	}
	return out
}

// Reachable returns the set of commits reachable from start by following
// parent edges, including start itself when present.
func (g *Graph) Reachable(start string) map[string]bool {
	reached := make(map[string]bool)
	stack := []string{start}

	for len(stack) > 0 {
		sha := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if reached[sha] {
			continue
		}
		commit, ok := g.commits[sha]
		if !ok {
			continue
		}
		reached[sha] = true

		stack = append(stack, commit.ParentSHAs...)
	}

	return reached
}

// Exclusive returns the commits reachable from `from` but not from `base`,
// in extraction order. This is the standard merge-base exclusion used to
// find what a merge introduced.
func (g *Graph) Exclusive(from, base string) []*models.Commit {
	reached := g.Reachable(from)
	excluded := g.Reachable(base)

	var out []*models.Commit
	for _, sha := range g.order {
		if reached[sha] && !excluded[sha] {
			out = append(out, g.commits[sha])
		}
	}
	return out
}
