package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/samims/notifier/internal/model"
)

// JobRunner runs named jobs on demand and lists past runs.
type JobRunner interface {
	Run(ctx context.Context, name string, limit int) (model.Summary, error)
	Runs(ctx context.Context, job string, limit int) ([]model.JobRun, error)
}

type JobHandler struct {
	runner JobRunner
	logger *slog.Logger
}

func NewJobHandler(runner JobRunner, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		runner: runner,
		logger: logger.With("layer", "handler", "component", "jobs"),
	}
}

// Run triggers one invocation, for an external scheduler. A job that ran but
// reported an error still returns its summary, with status 502.
func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, h.logger, "RunJob", err)
		return
	}
	name := chi.URLParam(r, "job")

	summary, err := h.runner.Run(r.Context(), name, limit)
	if err != nil {
		if summary == (model.Summary{}) {
			writeError(w, h.logger, "RunJob", err)
			return
		}
		h.logger.Warn("job finished with errors", "job", name, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"summary": summary, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *JobHandler) Runs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, h.logger, "ListRuns", err)
		return
	}
	runs, err := h.runner.Runs(r.Context(), r.URL.Query().Get("job"), limit)
	if err != nil {
		writeError(w, h.logger, "ListRuns", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
