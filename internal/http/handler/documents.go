package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/documents"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/jobs"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/orders"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

type DocumentHandler struct {
	DB     *gorm.DB
	Orders *orders.Service
	Jobs   *jobs.Repo
	Docs   *documents.Pipeline
}

type createDocumentReq struct {
	Type string `json:"type"`
}

// Create handles POST /api/ext/orders/{id}/documents. The document row and
// the job that renders it are created in one transaction keyed by the
// idempotency key, so a redelivered request finds the job instead of minting
// a second artifact.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusForbidden, "tenant required")
		return
	}
	orderID := chi.URLParam(r, "id")

	key := idempotencyKey(r)
	if key == "" {
		writeError(w, http.StatusBadRequest, "Idempotency-Key header required")
		return
	}

	if existing, err := h.Jobs.FindByDedupeKey(scope, key); err == nil {
		h.replayCreate(w, r, scope, existing)
		return
	} else if !errors.Is(err, tenant.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	if _, err := h.Orders.Get(r.Context(), scope, orderID); err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	var req createDocumentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	docType := documents.Type(strings.ToUpper(strings.TrimSpace(req.Type)))
	if !documents.ValidType(docType) {
		writeError(w, http.StatusBadRequest, "type must be QUOTE or INVOICE")
		return
	}

	var (
		job *jobs.Job
		doc *documents.Document
	)
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		d, err := h.Docs.Create(tx, scope, orderID, docType)
		if err != nil {
			return err
		}
		doc = d

		j, err := jobs.New(scope, jobs.TypeGenerateDocument, &key, jobs.GenerateDocumentPayload{
			OrderID:    orderID,
			Type:       string(docType),
			DocumentID: d.ID,
		})
		if err != nil {
			return err
		}
		if err := h.Jobs.Enqueue(tx, j); err != nil {
			return err
		}
		job = j
		return nil
	})

	switch {
	case txErr == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id":      job.ID,
			"document_id": doc.ID,
			"status":      jobs.StatusQueued,
		})
	case errors.Is(txErr, jobs.ErrDuplicateKey):
		existing, err := h.Jobs.FindByDedupeKey(scope, key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		h.replayCreate(w, r, scope, existing)
	default:
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

func (h *DocumentHandler) replayCreate(w http.ResponseWriter, r *http.Request, scope tenant.Scope, job *jobs.Job) {
	if job.Type != jobs.TypeGenerateDocument {
		writeError(w, http.StatusConflict, "Idempotency-Key already used for a different operation")
		return
	}

	var payload jobs.GenerateDocumentPayload
	_ = json.Unmarshal(job.Payload, &payload)

	switch job.Status {
	case jobs.StatusSucceeded:
		status := job.Status
		if doc, err := h.Docs.Get(r.Context(), scope, payload.DocumentID); err == nil {
			status = jobs.Status(doc.Status)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":      job.ID,
			"document_id": payload.DocumentID,
			"status":      status,
		})
	case jobs.StatusQueued, jobs.StatusRunning:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id":      job.ID,
			"document_id": payload.DocumentID,
			"status":      job.Status,
		})
	default:
		writeJSON(w, http.StatusConflict, map[string]any{
			"detail": "Job failed; use a new Idempotency-Key to retry",
			"job_id": job.ID,
			"status": job.Status,
			"error":  job.LastError,
		})
	}
}

// Download handles GET /api/ext/documents/{id}/pdf. Bytes only once the
// document is ready; anything earlier is a conflict.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusForbidden, "tenant required")
		return
	}

	doc, data, err := h.Docs.Download(r.Context(), scope, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, documents.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
		return
	case errors.Is(err, documents.ErrNotReady):
		writeError(w, http.StatusConflict, "document not ready")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	number := doc.ID
	if doc.Number != nil {
		number = *doc.Number
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+strings.ToLower(string(doc.Type))+"-"+number+`.pdf"`)
	_, _ = w.Write(data)
}
