package jobs

import (
	"encoding/json"
	"time"
)

type Type string

const (
	TypeUpsertOrder      Type = "UPSERT_ORDER"
	TypeGenerateDocument Type = "GENERATE_DOCUMENT"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusDead      Status = "dead"
)

// Terminal reports whether no further automatic transition applies.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusDead
}

const DefaultMaxAttempts = 8

// Job is one unit of asynchronous work. The (tenant_id, dedupe_key) pair is
// unique where dedupe_key is set; that constraint is what makes enqueue
// idempotent under concurrent delivery.
type Job struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	TenantID string `gorm:"type:uuid;index;not null"`

	Type      Type            `gorm:"type:text;not null"`
	DedupeKey *string         `gorm:"type:text"`
	Payload   json.RawMessage `gorm:"type:jsonb;not null;default:'{}'::jsonb"`

	Status      Status `gorm:"type:text;index;not null;default:'queued'"`
	Attempts    int    `gorm:"not null;default:0"`
	MaxAttempts int    `gorm:"not null;default:8"`

	RunAt    time.Time  `gorm:"index;not null"`
	LockedBy *string    `gorm:"type:text"`
	LockedAt *time.Time `gorm:"type:timestamptz"`

	LastError string `gorm:"type:text;not null;default:''"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// UpsertOrderPayload is the payload for TypeUpsertOrder.
type UpsertOrderPayload struct {
	OrderID string `json:"order_id"`
	Version int    `json:"version"`
}

// GenerateDocumentPayload is the payload for TypeGenerateDocument.
type GenerateDocumentPayload struct {
	OrderID    string `json:"order_id"`
	Type       string `json:"type"`
	DocumentID string `json:"document_id"`
}
