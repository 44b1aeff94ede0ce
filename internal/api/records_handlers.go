package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

const recordsTimeout = 3 * time.Second

// RecordsHandler exposes read-only source and run endpoints.
type RecordsHandler struct {
	repo    crawler.Repository
	timeout time.Duration
	logger  *zap.Logger
}

// NewRecordsHandler wires the repository and logger.
func NewRecordsHandler(repo crawler.Repository, logger *zap.Logger) *RecordsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordsHandler{
		repo:    repo,
		timeout: recordsTimeout,
		logger:  logger,
	}
}

// ListSources handles GET /v1/sources?id=a,b. It returns {"sources": [...]} with
// the active sources, optionally restricted to the given ids.
func (h *RecordsHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sources, err := h.repo.ListActiveSources(ctx, parseIDs(r.URL.Query()["id"]))
	if err != nil {
		h.logger.Error("list sources failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": toSourceDTOs(sources)})
}

// GetRun handles GET /v1/runs/{run_id}. It returns {"run": {...}}, or 404 when the
// repository reports crawler.ErrNotFound.
func (h *RecordsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}
	runID := strings.TrimSpace(chi.URLParam(r, "run_id"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

// parseIDs accepts repeated and comma-separated id parameters.
func parseIDs(values []string) []string {
	var out []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

type sourceDTO struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Type                   string     `json:"type"`
	BaseURL                string     `json:"base_url"`
	LastScrapedAt          *time.Time `json:"last_scraped_at,omitempty"`
	ScrapingFrequencyHours int        `json:"scraping_frequency_hours"`
	Keywords               []string   `json:"keywords"`
}

type runDTO struct {
	ID            string     `json:"id"`
	SourceID      string     `json:"source_id"`
	RunType       string     `json:"run_type"`
	Status        string     `json:"status"`
	JobsFound     int        `json:"jobs_found"`
	PagesScraped  int        `json:"pages_scraped"`
	JobsProcessed int        `json:"jobs_processed"`
	JobsSaved     int        `json:"jobs_saved"`
	ErrorsCount   int        `json:"errors_count"`
	ErrorDetails  []string   `json:"error_details,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toSourceDTOs(in []crawler.Source) []sourceDTO {
	out := make([]sourceDTO, 0, len(in))
	for _, s := range in {
		out = append(out, sourceDTO{
			ID:                     s.ID,
			Name:                   s.Name,
			Type:                   s.Type,
			BaseURL:                s.BaseURL,
			LastScrapedAt:          s.LastScrapedAt,
			ScrapingFrequencyHours: s.ScrapingFrequencyHours,
			Keywords:               s.Keywords,
		})
	}
	return out
}

func toRunDTO(run crawler.RunRecord) runDTO {
	return runDTO{
		ID:            run.ID,
		SourceID:      run.SourceID,
		RunType:       string(run.RunType),
		Status:        string(run.Status),
		JobsFound:     run.JobsFound,
		PagesScraped:  run.PagesScraped,
		JobsProcessed: run.JobsProcessed,
		JobsSaved:     run.JobsSaved,
		ErrorsCount:   run.ErrorsCount,
		ErrorDetails:  run.ErrorDetails,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
	}
}
