package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gitpulse/gitpulse-go/internal/engine"
	"github.com/gitpulse/gitpulse-go/internal/models"
)

var (
	analyzeAll   bool
	analyzeNoLLM bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [repository]",
	Short: "Analyze one repository, or all of them with --all",
	Long: `Extract the git history of a repository under the repositories directory,
infer pull requests, score commit quality and persist the results. With --all
every discovered repository is analyzed with a bounded worker pool.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeAll, "all", false, "analyze every discovered repository")
	analyzeCmd.Flags().BoolVar(&analyzeNoLLM, "no-llm", false, "skip the inference collaborator for this run")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if !analyzeAll && len(args) == 0 {
		return fmt.Errorf("repository name required (or use --all)")
	}

	ctx := context.Background()
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	eng, err := newEngine(ctx, store, newJudge())
	if err != nil {
		return err
	}

	if analyzeAll {
		runs, err := eng.AnalyzeAll(ctx)
		if err != nil {
			return err
		}
		for _, run := range runs {
			printRun(run)
		}
		return nil
	}

	path := filepath.Join(cfg.RepositoriesDir, args[0])
	run, err := eng.AnalyzeSyncOpts(ctx, path, engine.RunOptions{DisableInference: analyzeNoLLM})
	if run != nil {
		printRun(run)
	}
	return err
}

func printRun(run *models.AnalysisRun) {
	state := color.GreenString(string(run.State))
	if run.State == models.RunFailed {
		state = color.RedString("%s (%s)", run.State, run.Error)
	}
	fmt.Printf("%-30s %s  %d commits\n", run.Repository, state, run.Progress)
	for _, warning := range run.Warnings {
		fmt.Printf("  %s %s\n", color.YellowString("warning:"), warning)
	}
}
