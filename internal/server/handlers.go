package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gitpulse/gitpulse-go/internal/engine"
	"github.com/gitpulse/gitpulse-go/internal/git"
	"github.com/gitpulse/gitpulse-go/internal/identity"
	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/gitpulse/gitpulse-go/internal/scoring"
	"github.com/gitpulse/gitpulse-go/internal/storage"
)

func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Warn("could not encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respond(w, status, map[string]string{"error": err.Error()})
}

// mapError translates domain errors into HTTP statuses.
func (s *Server) mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning), errors.Is(err, engine.ErrAnalysisActive):
		s.respondError(w, http.StatusConflict, err)
	case errors.Is(err, identity.ErrUnknownContributor),
		errors.Is(err, identity.ErrNotMerged),
		errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err)
	case errors.Is(err, git.ErrRepositoryUnreadable):
		s.respondError(w, http.StatusBadRequest, err)
	default:
		s.respondError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	storageOK := true
	if _, err := s.store.ListRepositories(ctx); err != nil {
		storageOK = false
	}

	status := http.StatusOK
	if !storageOK {
		status = http.StatusServiceUnavailable
	}
	s.respond(w, status, map[string]any{
		"status":      http.StatusText(status),
		"storage":     storageOK,
		"inference":   s.judge != nil && s.judge.Available(ctx),
		"active_runs": s.runner.ActiveRuns(),
	})
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.ListRepositories(r.Context())
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"repositories": repos})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	paths, err := git.DiscoverRepositories(s.cfg.RepositoriesDir)
	if err != nil {
		s.mapError(w, err)
		return
	}

	type discovered struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	out := make([]discovered, 0, len(paths))
	for _, path := range paths {
		out = append(out, discovered{Name: filepath.Base(path), Path: path})
	}
	s.respond(w, http.StatusOK, map[string]any{"repositories": out})
}

func (s *Server) handleRepository(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	repo, err := s.store.GetRepository(r.Context(), name)
	if err != nil {
		s.mapError(w, err)
		return
	}

	payload := map[string]any{"repository": repo}
	if score, err := s.store.GetScore(r.Context(), models.ScopeRepository, name); err == nil {
		payload["score"] = score
	}
	s.respond(w, http.StatusOK, payload)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path := filepath.Join(s.cfg.RepositoriesDir, name)

	opts := engine.RunOptions{
		DisableInference: r.URL.Query().Get("llm") == "false",
	}
	run, err := s.runner.AnalyzeRepositoryOpts(r.Context(), path, opts)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.respond(w, http.StatusAccepted, run)
}

func (s *Server) handleAnalyzeAll(w http.ResponseWriter, r *http.Request) {
	// The fan-out outlives the request; progress is visible under /runs.
	go func() {
		if _, err := s.runner.AnalyzeAll(context.WithoutCancel(r.Context())); err != nil {
			s.logger.WithError(err).Error("analyze all failed")
		}
	}()
	s.respond(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), r.URL.Query().Get("repository"), limit)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// The in-memory registry is fresher than storage for in-flight runs.
	if run, err := s.runner.Run(id); err == nil {
		s.respond(w, http.StatusOK, run)
		return
	}
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.respond(w, http.StatusOK, run)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	metric, err := scoring.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	repo := chi.URLParam(r, "repo")
	if repo != "" {
		if _, err := s.store.GetRepository(r.Context(), repo); err != nil {
			s.mapError(w, err)
			return
		}
	}

	contributors, err := s.store.GetContributors(r.Context(), repo)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"metric":      metric,
		"repository":  repo,
		"leaderboard": scoring.RankBy(contributors, metric, limit),
	})
}

func (s *Server) handleContributor(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	contributors, err := s.store.GetContributors(r.Context(), "")
	if err != nil {
		s.mapError(w, err)
		return
	}

	for _, c := range contributors {
		if c.Email == email {
			s.respond(w, http.StatusOK, c)
			return
		}
	}
	s.mapError(w, storage.ErrNotFound)
}

type mergeRequest struct {
	Primary string   `json:"primary"`
	Others  []string `json:"others"`
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Primary == "" || len(req.Others) == 0 {
		s.respondError(w, http.StatusBadRequest, errors.New("primary and others are required"))
		return
	}

	if err := s.runner.MergeContributors(r.Context(), req.Primary, req.Others); err != nil {
		s.mapError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"merged": req.Others, "into": req.Primary})
}

type unmergeRequest struct {
	Emails []string `json:"emails"`
}

func (s *Server) handleUnmerge(w http.ResponseWriter, r *http.Request) {
	var req unmergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Emails) == 0 {
		s.respondError(w, http.StatusBadRequest, errors.New("emails are required"))
		return
	}

	if err := s.runner.UnmergeContributors(r.Context(), req.Emails); err != nil {
		s.mapError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"unmerged": req.Emails})
}

func (s *Server) handleCodebase(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.GetCodebaseReport(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.respond(w, http.StatusOK, report)
}

func (s *Server) handleRepositoryScore(w http.ResponseWriter, r *http.Request) {
	score, err := s.store.GetScore(r.Context(), models.ScopeRepository, chi.URLParam(r, "name"))
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.respond(w, http.StatusOK, score)
}

func (s *Server) handlePortfolioScore(w http.ResponseWriter, r *http.Request) {
	score, err := s.store.GetScore(r.Context(), models.ScopePortfolio, "portfolio")
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.respond(w, http.StatusOK, score)
}
