package orders

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Order is the order payload received from the dashboard. The primary key is
// the dashboard's stable external id, scoped by tenant.
type Order struct {
	ID       string `gorm:"primaryKey"`
	TenantID string `gorm:"type:uuid;primaryKey"`

	Status  string          `gorm:"type:text;not null;default:''"`
	Version int             `gorm:"not null;default:1"`
	Payload json.RawMessage `gorm:"type:jsonb;not null;default:'{}'::jsonb"`

	// SKUs is a denormalized projection of the line items for listing and
	// search.
	SKUs pq.StringArray `gorm:"type:text[];not null;default:'{}'"`

	WWSOrderNo *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"index;not null;default:now()"`
}

// Payload shape as sent by the dashboard. Only the fields the backend cares
// about are typed; the full payload is stored verbatim.
type UpsertPayload struct {
	Status   string     `json:"status"`
	Version  int        `json:"version"`
	Customer *Customer  `json:"customer"`
	Lines    []LineItem `json:"lines"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type LineItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Qty       float64 `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}
