package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gitpulse/gitpulse-go/internal/codebase"
	"github.com/gitpulse/gitpulse-go/internal/engine"
	"github.com/gitpulse/gitpulse-go/internal/identity"
	"github.com/gitpulse/gitpulse-go/internal/inference"
	"github.com/gitpulse/gitpulse-go/internal/quality"
	"github.com/gitpulse/gitpulse-go/internal/scoring"
	"github.com/gitpulse/gitpulse-go/internal/storage"
)

func openStore() (storage.Store, error) {
	switch cfg.Storage.Type {
	case "postgres":
		return storage.NewPostgresStore(cfg.Storage.PostgresDSN, logger)
	case "sqlite", "":
		return storage.NewSQLiteStore(cfg.Storage.LocalPath, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func newJudge() inference.Judge {
	if !cfg.Inference.Enabled {
		return inference.Disabled{}
	}
	cache, err := inference.OpenCache(filepath.Join(cfg.DataDir, "inference-cache.db"))
	if err != nil {
		logger.WithError(err).Warn("inference cache unavailable, scoring without it")
		cache = nil
	}
	return inference.NewClient(cfg.Inference, cache, logger)
}

// newEngine assembles the full pipeline and replays persisted identity merges.
func newEngine(ctx context.Context, store storage.Store, judge inference.Judge) (*engine.Engine, error) {
	qual := quality.NewAnalyzer(judge, cfg.Scoring, cfg.Inference, logger)
	eng := engine.New(
		cfg,
		store,
		engine.NewGitSource(cfg.Analysis, logger),
		codebase.NewAnalyzer(logger),
		qual,
		identity.NewResolver(logger),
		scoring.NewScorer(cfg.Scoring),
		logger,
	)
	if err := eng.RestoreIdentities(ctx); err != nil {
		return nil, fmt.Errorf("restore identity merges: %w", err)
	}
	return eng, nil
}

type engineDeps struct {
	store storage.Store
	judge inference.Judge
	eng   *engine.Engine
}

// withEngine opens the store, builds the engine and tears both down after fn.
func withEngine(fn func(ctx context.Context, deps engineDeps) error) error {
	ctx := context.Background()
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
	return fn(ctx, engineDeps{store: store, judge: judge, eng: eng})
}
