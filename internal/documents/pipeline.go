package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/jobs"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/orders"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

var ErrNotFound = errors.New("document not found")
var ErrNotReady = errors.New("document not ready")

// Pipeline is the generate-document job handler plus the read/write surface
// the API uses.
type Pipeline struct {
	DB       *gorm.DB
	Renderer Renderer
	Blobs    BlobStore
	Events   EventSink
}

// Create inserts a creating-status document for an order on the given
// transaction handle.
func (p *Pipeline) Create(tx *gorm.DB, scope tenant.Scope, orderID string, typ Type) (*Document, error) {
	doc := Document{
		ID:       uuid.NewString(),
		TenantID: scope.TenantID,
		OrderID:  orderID,
		Type:     typ,
		Status:   StatusCreating,
	}
	if err := tx.Create(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (p *Pipeline) Get(ctx context.Context, scope tenant.Scope, id string) (*Document, error) {
	var doc Document
	err := scope.DB(p.DB.WithContext(ctx)).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (p *Pipeline) ListForOrder(ctx context.Context, scope tenant.Scope, orderID string) ([]Document, error) {
	var docs []Document
	err := scope.DB(p.DB.WithContext(ctx)).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&docs).Error
	return docs, err
}

// Download returns the rendered bytes once the document is ready; anything
// earlier (or failed) is a conflict, never a partial body.
func (p *Pipeline) Download(ctx context.Context, scope tenant.Scope, id string) (*Document, []byte, error) {
	doc, err := p.Get(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	if doc.Status != StatusReady || doc.FileKey == nil {
		return doc, nil, ErrNotReady
	}
	data, err := p.Blobs.Load(ctx, *doc.FileKey)
	if err != nil {
		return doc, nil, err
	}
	return doc, data, nil
}

// Generate is the handler body for jobs.TypeGenerateDocument. It is safe to
// re-run: a document already ready short-circuits, and the number is only
// issued once.
func (p *Pipeline) Generate(ctx context.Context, scope tenant.Scope, raw json.RawMessage) error {
	var payload jobs.GenerateDocumentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return jobs.NonRetryable(fmt.Errorf("bad payload: %w", err))
	}
	if payload.DocumentID == "" {
		return jobs.NonRetryable(errors.New("payload missing document_id"))
	}

	doc, err := p.Get(ctx, scope, payload.DocumentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return jobs.NonRetryable(err)
		}
		return err
	}
	if doc.Status == StatusReady && doc.FileKey != nil {
		return nil
	}

	now := time.Now()
	if err := scope.DB(p.DB).Model(&Document{}).Where("id = ?", doc.ID).
		Update("last_attempt_at", now).Error; err != nil {
		return err
	}

	var order orders.Order
	if err := scope.DB(p.DB.WithContext(ctx)).Where("id = ?", doc.OrderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jobs.NonRetryable(fmt.Errorf("order not found: %s", doc.OrderID))
		}
		return err
	}

	if doc.Number == nil {
		if err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			series, prefix := SeriesFor(doc.Type)
			n, nErr := NextNumber(tx, scope, series, prefix, true)
			if nErr != nil {
				return nErr
			}
			doc.Number = &n
			return scope.DB(tx).Model(&Document{}).Where("id = ?", doc.ID).
				Update("number", n).Error
		}); err != nil {
			return err
		}
	}

	data, err := p.Renderer.Render(ctx, renderInput(doc, &order))
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s/%s-%s.pdf", scope.TenantID, strings.ToLower(string(doc.Type)), *doc.Number)
	if err := p.Blobs.Save(ctx, key, data); err != nil {
		return err
	}

	err = scope.DB(p.DB).Model(&Document{}).Where("id = ?", doc.ID).
		Updates(map[string]any{
			"status":     StatusReady,
			"file_key":   key,
			"error":      "",
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return err
	}

	p.Events.Notify(ctx, "document.ready", map[string]string{
		"tenant_id":   scope.TenantID,
		"document_id": doc.ID,
		"order_id":    doc.OrderID,
		"type":        string(doc.Type),
		"number":      *doc.Number,
	})
	return nil
}

// RecordFailure mirrors a job attempt outcome onto the document: retries
// keep it creating, a terminal failure marks it failed.
func (p *Pipeline) RecordFailure(scope tenant.Scope, raw json.RawMessage, terminal bool, msg string) {
	var payload jobs.GenerateDocumentPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.DocumentID == "" {
		return
	}

	status := StatusCreating
	if terminal {
		status = StatusFailed
	}
	scope.DB(p.DB).Model(&Document{}).
		Where("id = ?", payload.DocumentID).
		Updates(map[string]any{
			"status":     status,
			"error":      msg,
			"updated_at": time.Now(),
		})

	if terminal {
		p.Events.Notify(context.Background(), "document.failed", map[string]string{
			"tenant_id":   scope.TenantID,
			"document_id": payload.DocumentID,
			"error":       msg,
		})
	}
}

// SweepStuck flips documents wedged in creating past the threshold to
// failed. Companion to the job sweeper for crashes that died between the
// document write and the job writeback. A document whose generate job is
// still alive (queued, or running on a fresh lock) is left alone: retries
// keep the document in creating and only a terminal job failure may mark it
// failed.
func (p *Pipeline) SweepStuck(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := p.DB.Exec(`
update documents as d
set status = 'failed',
    error = ?,
    updated_at = now()
where d.status = 'creating'
  and d.updated_at < ?
  and not exists (
    select 1 from jobs j
    where j.tenant_id = d.tenant_id
      and j.type = ?
      and j.payload->>'document_id' = d.id::text
      and (j.status = 'queued'
           or (j.status = 'running' and j.locked_at >= ?))
  )`,
		fmt.Sprintf("stuck in creating > %s", olderThan),
		cutoff,
		string(jobs.TypeGenerateDocument),
		cutoff,
	)
	return res.RowsAffected, res.Error
}

func renderInput(doc *Document, order *orders.Order) RenderInput {
	number := ""
	if doc.Number != nil {
		number = *doc.Number
	}

	var payload orders.UpsertPayload
	_ = json.Unmarshal(order.Payload, &payload)

	in := RenderInput{
		DocType: doc.Type,
		Number:  number,
		OrderID: order.ID,
	}
	if payload.Customer != nil {
		in.Customer = RenderCustomer{
			Name:  payload.Customer.Name,
			Phone: payload.Customer.Phone,
			Email: payload.Customer.Email,
		}
	}
	for _, l := range payload.Lines {
		in.Lines = append(in.Lines, RenderLine{
			SKU:       l.SKU,
			Name:      l.Name,
			Qty:       l.Qty,
			UnitPrice: l.UnitPrice,
		})
	}
	return in
}
