package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gitpulse/gitpulse-go/internal/git"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List git repositories under the repositories directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := git.DiscoverRepositories(cfg.RepositoriesDir)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Printf("No repositories found under %s\n", cfg.RepositoriesDir)
			return nil
		}
		for _, path := range paths {
			fmt.Printf("%-30s %s\n", filepath.Base(path), path)
		}
		return nil
	},
}
