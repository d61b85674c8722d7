package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// SyncRecords persists the outcome of order-to-invoice sync attempts.
type SyncRecords struct {
	db *gorm.DB
}

func NewSyncRecords(db *gorm.DB) *SyncRecords {
	return &SyncRecords{db: db}
}

func (s *SyncRecords) Create(ctx context.Context, record *SyncRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create sync record: %w", err)
	}
	return nil
}

// List returns the most recent records, newest first.
func (s *SyncRecords) List(ctx context.Context, limit int) ([]SyncRecord, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	var records []SyncRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sync records: %w", err)
	}
	return records, nil
}

// ListByOrder returns all attempts for one order, newest first.
func (s *SyncRecords) ListByOrder(ctx context.Context, orderID int64) ([]SyncRecord, error) {
	var records []SyncRecord
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sync records for order %d: %w", orderID, err)
	}
	return records, nil
}
