package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/jobs"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

type JobHandler struct {
	Jobs *jobs.Repo
}

// Get handles GET /api/ext/jobs/{id}. Callers poll this after a 202 to watch
// an async write settle.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusForbidden, "tenant required")
		return
	}

	job, err := h.Jobs.Get(scope, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":           job.ID,
		"type":         job.Type,
		"status":       job.Status,
		"attempts":     job.Attempts,
		"max_attempts": job.MaxAttempts,
		"last_error":   job.LastError,
		"run_at":       job.RunAt,
		"updated_at":   job.UpdatedAt,
	})
}
