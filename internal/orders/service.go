package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/jobs"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

var ErrNotFound = errors.New("order not found")
var ErrStaleVersion = errors.New("stale version")

type Service struct {
	DB *gorm.DB
}

// Upsert writes the order inside tx, rejecting out-of-order deliveries: an
// incoming version lower than the stored one is a conflict, never a silent
// last-writer-wins. The row is locked so a concurrent upsert for the same
// order serializes on the version check.
func (s *Service) Upsert(tx *gorm.DB, scope tenant.Scope, orderID string, in UpsertPayload, raw json.RawMessage) (*Order, error) {
	version := in.Version
	if version < 1 {
		version = 1
	}

	var existing Order
	err := scope.DB(tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&existing).Error

	switch {
	case err == nil:
		if version < existing.Version {
			return nil, ErrStaleVersion
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		existing = Order{ID: orderID, TenantID: scope.TenantID}
	default:
		return nil, err
	}

	if in.Status != "" {
		existing.Status = in.Status
	}
	existing.Version = version
	existing.Payload = raw
	existing.SKUs = pq.StringArray(NormalizeSKUs(in.Lines))
	existing.UpdatedAt = time.Now()

	if err := tx.Save(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *Service) Get(ctx context.Context, scope tenant.Scope, orderID string) (*Order, error) {
	var o Order
	err := scope.DB(s.DB.WithContext(ctx)).Where("id = ?", orderID).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// HandleUpsert is the handler body for jobs.TypeUpsertOrder. The domain
// write happens synchronously at the API boundary; the job is the durable
// record that the write fully propagated, so the handler verifies the order
// landed and treats a missing row as permanently fatal.
func (s *Service) HandleUpsert(ctx context.Context, scope tenant.Scope, raw json.RawMessage) error {
	var p jobs.UpsertOrderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return jobs.NonRetryable(fmt.Errorf("bad payload: %w", err))
	}
	if p.OrderID == "" {
		return jobs.NonRetryable(errors.New("payload missing order_id"))
	}

	if _, err := s.Get(ctx, scope, p.OrderID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return jobs.NonRetryable(err)
		}
		return err
	}
	return nil
}
