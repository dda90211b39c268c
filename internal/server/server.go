// Package server exposes the analysis engine and its stored results over an
// HTTP API. It serves the dashboard; the CLI talks to the engine directly.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/gitpulse/gitpulse-go/internal/config"
	"github.com/gitpulse/gitpulse-go/internal/engine"
	"github.com/gitpulse/gitpulse-go/internal/inference"
	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/gitpulse/gitpulse-go/internal/storage"
)

// Runner is the slice of the engine the API needs. Tests substitute a fake.
type Runner interface {
	AnalyzeRepositoryOpts(ctx context.Context, path string, opts engine.RunOptions) (*models.AnalysisRun, error)
	AnalyzeAll(ctx context.Context) ([]*models.AnalysisRun, error)
	MergeContributors(ctx context.Context, primary string, others []string) error
	UnmergeContributors(ctx context.Context, emails []string) error
	Run(id string) (*models.AnalysisRun, error)
	ActiveRuns() int
}

// Server is the HTTP API server.
type Server struct {
	cfg    *config.Config
	store  storage.Store
	runner Runner
	judge  inference.Judge
	logger *logrus.Logger
}

// NewServer creates an API server around an engine and its store.
func NewServer(cfg *config.Config, store storage.Store, runner Runner, judge inference.Judge, logger *logrus.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		runner: runner,
		judge:  judge,
		logger: logger,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/repositories", s.handleListRepositories)
		r.Post("/repositories/discover", s.handleDiscover)
		r.Get("/repositories/{name}", s.handleRepository)
		r.Post("/repositories/{name}/analyze", s.handleAnalyze)
		r.Get("/repositories/{name}/codebase", s.handleCodebase)

		r.Post("/analyze/all", s.handleAnalyzeAll)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleRun)

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/leaderboard/{repo}", s.handleLeaderboard)
		r.Get("/contributors/{email}", s.handleContributor)
		r.Post("/contributors/merge", s.handleMerge)
		r.Post("/contributors/unmerge", s.handleUnmerge)

		r.Get("/scores/repository/{name}", s.handleRepositoryScore)
		r.Get("/scores/portfolio", s.handlePortfolioScore)
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then drains
// connections.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Debug("http request")
	})
}
