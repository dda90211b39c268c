package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gitpulse/gitpulse-go/internal/scoring"
)

var (
	leaderboardRepo   string
	leaderboardMetric string
	leaderboardLimit  int
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the contributor leaderboard",
	Long: `Rank contributors by impact (default), quality, commits, lines or prs.
Without --repo the cross-repository aggregate is shown.`,
	RunE: runLeaderboard,
}

func init() {
	leaderboardCmd.Flags().StringVar(&leaderboardRepo, "repo", "", "restrict to one repository")
	leaderboardCmd.Flags().StringVar(&leaderboardMetric, "metric", "impact", "ranking metric: impact, quality, commits, lines, prs")
	leaderboardCmd.Flags().IntVar(&leaderboardLimit, "limit", 20, "number of rows (0 for all)")
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	metric, err := scoring.ParseMetric(leaderboardMetric)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	contributors, err := store.GetContributors(ctx, leaderboardRepo)
	if err != nil {
		return err
	}
	if len(contributors) == 0 {
		fmt.Println("No contributors yet. Run 'gitpulse analyze' first.")
		return nil
	}

	rows := scoring.RankBy(contributors, metric, leaderboardLimit)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Rank", "Name", "Email", "Commits", "Lines", "PRs", "Quality", "Impact", "PR Quality", "Merged"})

	var data [][]string
	for _, row := range rows {
		prQuality := "-"
		if row.PRQualityScore != nil {
			prQuality = fmt.Sprintf("%.1f", *row.PRQualityScore)
		}
		merged := ""
		if row.MergedCount > 0 {
			merged = color.CyanString("+%d", row.MergedCount)
		}
		data = append(data, []string{
			strconv.Itoa(row.Rank),
			row.Name,
			row.Email,
			strconv.Itoa(row.Commits),
			strconv.Itoa(row.LinesChanged),
			strconv.Itoa(row.PullRequests),
			fmt.Sprintf("%.1f", row.QualityScore),
			fmt.Sprintf("%.1f", row.ImpactScore),
			prQuality,
			merged,
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
