package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storeledger/kledo-sync/internal/config"
)

// Setting keys for the connection screen.
const (
	KeySyncEnabled  = "kledo_enable_sync"
	KeyClientID     = "kledo_client_id"
	KeyClientSecret = "kledo_client_secret"
	KeyAPIEndpoint  = "kledo_api_endpoint"
)

// Setting keys for the invoice screen.
const (
	KeyInvoicePrefix  = "kledo_invoice_prefix"
	KeyInvoiceStatus  = "kledo_invoice_status"
	KeyPaymentAccount = "kledo_payment_account"
	KeyWarehouse      = "kledo_warehouse"
	KeyTags           = "kledo_tags"
)

// ErrInvalidSetting reports a settings value rejected at save time.
var ErrInvalidSetting = errors.New("invalid setting value")

// ConnectionSettings is the typed view of the connection screen: the OAuth
// client credentials, the Kledo API base URL, and the sync enable flag.
type ConnectionSettings struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	APIEndpoint  string `json:"api_endpoint"`
	SyncEnabled  bool   `json:"sync_enabled"`
}

// IsConfigured reports whether all three OAuth credentials are present.
func (s ConnectionSettings) IsConfigured() bool {
	return s.ClientID != "" && s.ClientSecret != "" && s.APIEndpoint != ""
}

// BaseURL returns the API endpoint without a trailing slash.
func (s ConnectionSettings) BaseURL() string {
	return strings.TrimRight(s.APIEndpoint, "/")
}

// InvoiceSettings is the typed view of the invoice screen.
type InvoiceSettings struct {
	Prefix string `json:"prefix"`
	// Status is the invoice status applied on creation; "paid" marks the
	// invoice paid against PaymentAccount.
	Status string `json:"status"`
	// PaymentAccount is stored as "code | name", the value shape the account
	// lookup emits.
	PaymentAccount string `json:"payment_account"`
	Warehouse      string `json:"warehouse"`
	// Tags is a single comma-separated string.
	Tags string `json:"tags"`
}

// Paid reports whether invoices should be created already marked paid.
func (s InvoiceSettings) Paid() bool {
	return strings.EqualFold(strings.TrimSpace(s.Status), "paid")
}

// PaymentAccountCode extracts the account code from the stored
// "code | name" value. An empty or delimiter-less value yields an empty
// string rather than an out-of-range failure; save-time validation keeps
// malformed values out in the first place.
func (s InvoiceSettings) PaymentAccountCode() string {
	account := strings.TrimSpace(s.PaymentAccount)
	if account == "" {
		return ""
	}
	parts := strings.Split(account, "|")
	return strings.TrimSpace(parts[0])
}

// TagList splits the configured tags string into a list. A single untagged
// string yields a one-element list; an empty string yields nil.
func (s InvoiceSettings) TagList() []string {
	if strings.TrimSpace(s.Tags) == "" {
		return nil
	}
	parts := strings.Split(s.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		tags = append(tags, strings.TrimSpace(p))
	}
	return tags
}

// SettingsStore reads and writes the integration settings rows. Credential
// overrides sourced from Vault, when present, shadow the stored client
// credentials on read.
type SettingsStore struct {
	db        *gorm.DB
	overrides *config.CredentialOverrides
}

// NewSettingsStore creates a settings store. overrides may be nil.
func NewSettingsStore(db *gorm.DB, overrides *config.CredentialOverrides) *SettingsStore {
	return &SettingsStore{db: db, overrides: overrides}
}

// ConnectionSettings loads the connection screen values.
func (s *SettingsStore) ConnectionSettings(ctx context.Context) (ConnectionSettings, error) {
	values, err := s.getAll(ctx, KeyClientID, KeyClientSecret, KeyAPIEndpoint, KeySyncEnabled)
	if err != nil {
		return ConnectionSettings{}, err
	}

	cs := ConnectionSettings{
		ClientID:     values[KeyClientID],
		ClientSecret: values[KeyClientSecret],
		APIEndpoint:  values[KeyAPIEndpoint],
		SyncEnabled:  values[KeySyncEnabled] == "yes",
	}

	if s.overrides != nil {
		if s.overrides.ClientID != "" {
			cs.ClientID = s.overrides.ClientID
		}
		if s.overrides.ClientSecret != "" {
			cs.ClientSecret = s.overrides.ClientSecret
		}
	}

	return cs, nil
}

// SaveConnectionSettings validates and persists the connection screen values.
func (s *SettingsStore) SaveConnectionSettings(ctx context.Context, cs ConnectionSettings) error {
	if cs.APIEndpoint != "" {
		u, err := url.Parse(cs.APIEndpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: api_endpoint must be an absolute URL", ErrInvalidSetting)
		}
	}

	enabled := "no"
	if cs.SyncEnabled {
		enabled = "yes"
	}

	return s.setAll(ctx, map[string]string{
		KeyClientID:     strings.TrimSpace(cs.ClientID),
		KeyClientSecret: strings.TrimSpace(cs.ClientSecret),
		KeyAPIEndpoint:  strings.TrimSpace(cs.APIEndpoint),
		KeySyncEnabled:  enabled,
	})
}

// InvoiceSettings loads the invoice screen values.
func (s *SettingsStore) InvoiceSettings(ctx context.Context) (InvoiceSettings, error) {
	values, err := s.getAll(ctx, KeyInvoicePrefix, KeyInvoiceStatus, KeyPaymentAccount, KeyWarehouse, KeyTags)
	if err != nil {
		return InvoiceSettings{}, err
	}

	return InvoiceSettings{
		Prefix:         values[KeyInvoicePrefix],
		Status:         values[KeyInvoiceStatus],
		PaymentAccount: values[KeyPaymentAccount],
		Warehouse:      values[KeyWarehouse],
		Tags:           values[KeyTags],
	}, nil
}

// SaveInvoiceSettings validates and persists the invoice screen values.
// A payment account without the "code | name" delimiter is rejected here so
// the mapper never sees a malformed value.
func (s *SettingsStore) SaveInvoiceSettings(ctx context.Context, is InvoiceSettings) error {
	if account := strings.TrimSpace(is.PaymentAccount); account != "" && !strings.Contains(account, "|") {
		return fmt.Errorf("%w: payment_account must be in \"code | name\" form", ErrInvalidSetting)
	}

	return s.setAll(ctx, map[string]string{
		KeyInvoicePrefix:  strings.TrimSpace(is.Prefix),
		KeyInvoiceStatus:  strings.TrimSpace(is.Status),
		KeyPaymentAccount: strings.TrimSpace(is.PaymentAccount),
		KeyWarehouse:      strings.TrimSpace(is.Warehouse),
		KeyTags:           strings.TrimSpace(is.Tags),
	})
}

func (s *SettingsStore) getAll(ctx context.Context, keys ...string) (map[string]string, error) {
	var rows []Setting
	if err := s.db.WithContext(ctx).Where("key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	values := make(map[string]string, len(keys))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return values, nil
}

func (s *SettingsStore) setAll(ctx context.Context, values map[string]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			row := Setting{Key: key, Value: value}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to save setting %s: %w", key, err)
			}
		}
		return nil
	})
}
