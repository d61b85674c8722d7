package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Setting is a single persisted key-value row. The integration keeps its
// runtime-editable configuration and OAuth tokens here, one row per key,
// mirroring the option-per-key layout the admin UI edits.
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey;size:64"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }

// Sync record statuses.
const (
	SyncStatusCreated  = "created"
	SyncStatusRejected = "rejected"
	SyncStatusFailed   = "failed"
)

// SyncRecord captures one attempted order-to-invoice sync. Failures are never
// retried automatically; these rows are what an operator inspects to find and
// re-trigger them.
type SyncRecord struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID  int64     `json:"order_id" gorm:"not null;index"`
	Status   string    `json:"status" gorm:"not null"`
	Payload  datatypes.JSON `json:"payload"`
	Response datatypes.JSON `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (SyncRecord) TableName() string { return "sync_records" }

func (r *SyncRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
