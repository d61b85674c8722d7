package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting keys for the token set.
const (
	KeyAccessToken  = "kledo_access_token"
	KeyRefreshToken = "kledo_refresh_token"
	KeyTokenExpiry  = "kledo_token_expiry"
)

// TokenSet is the persisted OAuth token state. A zero ExpiresAt means the
// access token never expires, not that it is expired.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenStore persists the OAuth token set as settings rows. Save and Clear
// write all three fields in one transaction so a reader never observes a
// half-updated token set.
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Tokens loads the stored token set. Missing rows read as zero values.
func (s *TokenStore) Tokens(ctx context.Context) (TokenSet, error) {
	var rows []Setting
	err := s.db.WithContext(ctx).
		Where("key IN ?", []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpiry}).
		Find(&rows).Error
	if err != nil {
		return TokenSet{}, fmt.Errorf("failed to load tokens: %w", err)
	}

	var ts TokenSet
	for _, row := range rows {
		switch row.Key {
		case KeyAccessToken:
			ts.AccessToken = row.Value
		case KeyRefreshToken:
			ts.RefreshToken = row.Value
		case KeyTokenExpiry:
			if row.Value == "" {
				continue
			}
			epoch, err := strconv.ParseInt(row.Value, 10, 64)
			if err != nil {
				return TokenSet{}, fmt.Errorf("corrupt token expiry %q: %w", row.Value, err)
			}
			ts.ExpiresAt = time.Unix(epoch, 0)
		}
	}
	return ts, nil
}

// Save overwrites the full token set.
func (s *TokenStore) Save(ctx context.Context, ts TokenSet) error {
	expiry := ""
	if !ts.ExpiresAt.IsZero() {
		expiry = strconv.FormatInt(ts.ExpiresAt.Unix(), 10)
	}

	values := map[string]string{
		KeyAccessToken:  ts.AccessToken,
		KeyRefreshToken: ts.RefreshToken,
		KeyTokenExpiry:  expiry,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			row := Setting{Key: key, Value: value}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to save token field %s: %w", key, err)
			}
		}
		return nil
	})
}

// Clear deletes all three token fields in one transaction.
func (s *TokenStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("key IN ?", []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpiry}).
			Delete(&Setting{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear tokens: %w", err)
		}
		return nil
	})
}
