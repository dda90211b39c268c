package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage contributor identity merges",
}

var identityMergeCmd = &cobra.Command{
	Use:   "merge <primary-email> <email>...",
	Short: "Merge contributor identities into a primary email",
	Long: `Attribute the work of the listed emails to the primary one. Every stored
aggregate is recomputed; raw commits keep their original author and an
unmerge restores the previous attribution exactly.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, deps engineDeps) error {
			if err := deps.eng.MergeContributors(ctx, args[0], args[1:]); err != nil {
				return err
			}
			fmt.Printf("Merged %v into %s\n", args[1:], args[0])
			return nil
		})
	},
}

var identityUnmergeCmd = &cobra.Command{
	Use:   "unmerge <email>...",
	Short: "Restore merged identities to standalone contributors",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, deps engineDeps) error {
			if err := deps.eng.UnmergeContributors(ctx, args); err != nil {
				return err
			}
			fmt.Printf("Unmerged %v\n", args)
			return nil
		})
	},
}

func init() {
	identityCmd.AddCommand(identityMergeCmd)
	identityCmd.AddCommand(identityUnmergeCmd)
}
