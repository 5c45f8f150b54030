package documents

import "time"

type Type string

const (
	TypeQuote   Type = "QUOTE"
	TypeInvoice Type = "INVOICE"
)

func ValidType(t Type) bool {
	return t == TypeQuote || t == TypeInvoice
}

type Status string

const (
	StatusCreating Status = "creating"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
)

// Document is a rendered artifact (quote/invoice PDF) for an order. Its
// status is distinct from the job's: retries keep it in creating, only a
// terminal job failure marks it failed.
type Document struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	TenantID string `gorm:"type:uuid;index;not null"`
	OrderID  string `gorm:"index;not null"`

	Type   Type   `gorm:"type:text;not null"`
	Status Status `gorm:"type:text;index;not null;default:'creating'"`

	Number  *string `gorm:"type:text"`
	FileKey *string `gorm:"type:text"`
	Error   string  `gorm:"type:text;not null;default:''"`

	LastAttemptAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt     time.Time  `gorm:"not null;default:now()"`
	UpdatedAt     time.Time  `gorm:"not null;default:now()"`
}

// NumberSequence is a per-tenant, per-series counter for externally visible
// document numbers. Incremented only under a row lock.
type NumberSequence struct {
	ID       uint64 `gorm:"primaryKey"`
	TenantID string `gorm:"type:uuid;not null"`
	Name     string `gorm:"not null"`

	Current     int  `gorm:"not null;default:0"`
	YearlyReset bool `gorm:"not null;default:false"`
	Year        int  `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"not null;default:now()"`
}
