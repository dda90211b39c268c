package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gitpulse/gitpulse-go/internal/git"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, storage and inference status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	fmt.Println("GitPulse Status")
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Repositories dir: %s\n", cfg.RepositoriesDir)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Type)
	fmt.Printf("  Analysis depth: %s (max %d commits)\n", cfg.Analysis.Depth, cfg.Analysis.MaxCommits)
	fmt.Printf("  Quality sample size: %d\n", cfg.Analysis.SampleSize)

	fmt.Println("\nRepositories:")
	paths, err := git.DiscoverRepositories(cfg.RepositoriesDir)
	if err != nil {
		fmt.Printf("  %s %v\n", color.RedString("unreadable:"), err)
	} else {
		fmt.Printf("  Discovered: %d\n", len(paths))
	}

	fmt.Println("\nStorage:")
	store, err := openStore()
	if err != nil {
		fmt.Printf("  %s %v\n", color.RedString("unavailable:"), err)
	} else {
		defer store.Close()
		repos, err := store.ListRepositories(ctx)
		if err != nil {
			fmt.Printf("  %s %v\n", color.RedString("unreadable:"), err)
		} else {
			fmt.Printf("  Analyzed repositories: %d\n", len(repos))
		}
	}

	fmt.Println("\nInference:")
	if !cfg.Inference.Enabled {
		fmt.Println("  Disabled in configuration")
		return nil
	}
	fmt.Printf("  Endpoint: %s (model %s)\n", cfg.Inference.Host, cfg.Inference.Model)
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if newJudge().Available(probeCtx) {
		fmt.Printf("  %s\n", color.GreenString("Reachable"))
	} else {
		fmt.Printf("  %s quality scores will be heuristic only\n", color.YellowString("Unreachable:"))
	}
	return nil
}
