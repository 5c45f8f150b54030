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

type OrderHandler struct {
	DB     *gorm.DB
	Orders *orders.Service
	Jobs   *jobs.Repo
	Docs   *documents.Pipeline
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

// orderState is the synchronous view of an order and its documents.
func (h *OrderHandler) orderState(r *http.Request, scope tenant.Scope, o *orders.Order) map[string]any {
	docs := []map[string]any{}
	if list, err := h.Docs.ListForOrder(r.Context(), scope, o.ID); err == nil {
		for _, d := range list {
			docs = append(docs, map[string]any{
				"id":      d.ID,
				"type":    d.Type,
				"status":  d.Status,
				"number":  d.Number,
				"pdf_url": "/api/ext/documents/" + d.ID + "/pdf",
			})
		}
	}
	return map[string]any{
		"order_id":   o.ID,
		"status":     o.Status,
		"version":    o.Version,
		"documents":  docs,
		"updated_at": o.UpdatedAt,
	}
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusForbidden, "tenant required")
		return
	}

	o, err := h.Orders.Get(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, h.orderState(r, scope, o))
}

// Upsert handles PUT /api/ext/orders/{id}. Repeated delivery of the same
// logical write must neither duplicate the side effect nor lose it; the
// decision table over the existing job with the same idempotency key is what
// guarantees that.
func (h *OrderHandler) Upsert(w http.ResponseWriter, r *http.Request) {
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
		h.replayUpsert(w, r, scope, orderID, existing)
		return
	} else if !errors.Is(err, tenant.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	var payload orders.UpsertPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}

	var job *jobs.Job
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := h.Orders.Upsert(tx, scope, orderID, payload, raw); err != nil {
			return err
		}

		j, err := jobs.New(scope, jobs.TypeUpsertOrder, &key, jobs.UpsertOrderPayload{
			OrderID: orderID,
			Version: payload.Version,
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
			"ok":       true,
			"job_id":   job.ID,
			"order_id": orderID,
			"status":   jobs.StatusQueued,
		})
	case errors.Is(txErr, orders.ErrStaleVersion):
		writeError(w, http.StatusConflict, "stale version")
	case errors.Is(txErr, jobs.ErrDuplicateKey):
		// lost the enqueue race; replay against the winner
		existing, err := h.Jobs.FindByDedupeKey(scope, key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		h.replayUpsert(w, r, scope, orderID, existing)
	default:
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

// replayUpsert answers a repeated delivery based on the state of the job the
// first delivery created.
func (h *OrderHandler) replayUpsert(w http.ResponseWriter, r *http.Request, scope tenant.Scope, orderID string, job *jobs.Job) {
	if job.Type != jobs.TypeUpsertOrder {
		writeError(w, http.StatusConflict, "Idempotency-Key already used for a different operation")
		return
	}

	var payload jobs.UpsertOrderPayload
	if err := json.Unmarshal(job.Payload, &payload); err == nil {
		if payload.OrderID != "" && payload.OrderID != orderID {
			writeError(w, http.StatusConflict, "Idempotency-Key already used for a different order_id")
			return
		}
	}

	switch job.Status {
	case jobs.StatusSucceeded:
		o, err := h.Orders.Get(r.Context(), scope, orderID)
		if err != nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, http.StatusOK, h.orderState(r, scope, o))
	case jobs.StatusQueued, jobs.StatusRunning:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"ok":       true,
			"job_id":   job.ID,
			"order_id": orderID,
			"status":   job.Status,
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
