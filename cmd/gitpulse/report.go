package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/gitpulse/gitpulse-go/internal/storage"
)

var reportCmd = &cobra.Command{
	Use:   "report [repository]",
	Short: "Show a repository report, or the portfolio summary without arguments",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		return portfolioReport(ctx, store)
	}
	return repositoryReport(ctx, store, args[0])
}

func portfolioReport(ctx context.Context, store storage.Store) error {
	repos, err := store.ListRepositories(ctx)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		fmt.Println("Nothing analyzed yet. Run 'gitpulse analyze --all' first.")
		return nil
	}

	if score, err := store.GetScore(ctx, models.ScopePortfolio, "portfolio"); err == nil {
		fmt.Printf("Portfolio grade: %s (%.1f)\n\n", gradeString(score.Grade), score.Dimensions.Overall)
	}

	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })

	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Repository", "Commits", "Contributors", "Branches", "Grade", "Overall"})

	var data [][]string
	for _, repo := range repos {
		grade, overall := "-", "-"
		if score, err := store.GetScore(ctx, models.ScopeRepository, repo.Name); err == nil {
			grade = gradeString(score.Grade)
			overall = fmt.Sprintf("%.1f", score.Dimensions.Overall)
		}
		data = append(data, []string{
			repo.Name,
			strconv.Itoa(repo.TotalCommits),
			strconv.Itoa(repo.TotalContributors),
			strconv.Itoa(repo.TotalBranches),
			grade,
			overall,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func repositoryReport(ctx context.Context, store storage.Store, name string) error {
	repo, err := store.GetRepository(ctx, name)
	if err != nil {
		return fmt.Errorf("repository %q: %w", name, err)
	}

	fmt.Printf("Repository: %s\n", repo.Name)
	fmt.Printf("  Default branch: %s\n", repo.DefaultBranch)
	fmt.Printf("  Commits: %d  Contributors: %d  Branches: %d\n",
		repo.TotalCommits, repo.TotalContributors, repo.TotalBranches)
	fmt.Printf("  Last analyzed: %s\n", repo.LastAnalyzed.Format("2006-01-02 15:04:05"))

	if score, err := store.GetScore(ctx, models.ScopeRepository, name); err == nil {
		d := score.Dimensions
		fmt.Printf("\nScore: %s (%.1f)\n", gradeString(score.Grade), d.Overall)
		fmt.Printf("  Activity: %.1f  Health: %.1f  Quality: %.1f  Diversity: %.1f\n",
			d.Activity, d.Health, d.Quality, d.Diversity)
	}

	if report, err := store.GetCodebaseReport(ctx, name); err == nil {
		fmt.Printf("\nCodebase: %.1f overall\n", report.OverallScore)
		fmt.Printf("  Files: %d (%d test)  Lines: %d code / %d comment / %d blank\n",
			report.TotalFiles, report.TestFiles, report.CodeLines, report.CommentLines, report.BlankLines)
		fmt.Printf("  Complexity: %.1f  Comments: %.1f  Tests: %.1f  Dependencies: %.1f\n",
			report.ComplexityScore, report.CommentScore, report.TestScore, report.DependencyScore)
		for _, warning := range report.DependencyWarnings {
			fmt.Printf("  %s %s\n", color.YellowString("dependency:"), warning)
		}
	}

	prs, err := store.GetPullRequests(ctx, name)
	if err == nil && len(prs) > 0 {
		fmt.Printf("\nInferred pull requests: %d\n", len(prs))
	}
	return nil
}

func gradeString(grade string) string {
	switch grade[0] {
	case 'A':
		return color.GreenString(grade)
	case 'B', 'C':
		return color.YellowString(grade)
	default:
		return color.RedString(grade)
	}
}
