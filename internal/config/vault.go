package config

import (
	"fmt"
	"net/http"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// CredentialOverrides carries OAuth client credentials sourced from Vault.
// Values present here take precedence over the ones in the settings store.
type CredentialOverrides struct {
	ClientID     string
	ClientSecret string
}

// LoadVaultOverrides reads the Kledo OAuth client credentials from Vault when
// a Vault address, token, and secret path are configured. Returns nil when
// Vault is not configured, so the database-backed settings are used as-is.
func LoadVaultOverrides(cfg *Config, logger *zap.Logger) (*CredentialOverrides, error) {
	if cfg.Vault.Addr == "" || cfg.Vault.Token == "" || cfg.Vault.SecretPath == "" {
		return nil, nil
	}

	client, err := vault.NewClient(&vault.Config{
		Address: cfg.Vault.Addr,
		HttpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(cfg.Vault.Token)

	secret, err := client.Logical().Read(cfg.Vault.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", cfg.Vault.SecretPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret data found at %s", cfg.Vault.SecretPath)
	}

	overrides := &CredentialOverrides{}
	if id, ok := secret.Data["client_id"].(string); ok {
		overrides.ClientID = id
	}
	if sec, ok := secret.Data["client_secret"].(string); ok {
		overrides.ClientSecret = sec
	}

	logger.Info("Loaded OAuth client credentials from Vault",
		zap.String("path", cfg.Vault.SecretPath))

	return overrides, nil
}
