package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gitpulse/gitpulse-go/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long:  `Start the HTTP API that backs the dashboard. Stops cleanly on SIGINT/SIGTERM.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	judge := newJudge()
	eng, err := newEngine(ctx, store, judge)
	if err != nil {
		return err
	}

	srv := server.NewServer(cfg, store, eng, judge, logger)
	return srv.ListenAndServe(ctx)
}
