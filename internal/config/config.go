package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kledo    KledoConfig    `mapstructure:"kledo"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

// RedisConfig holds Redis configuration (CSRF state store and event bus)
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KledoConfig holds Kledo integration configuration.
//
// The OAuth client credentials and API endpoint themselves live in the
// settings store (they are edited at runtime from the admin UI); this block
// only carries deployment-level knobs.
type KledoConfig struct {
	// RedirectURI is the public URL of this service's /oauth/callback route,
	// registered with Kledo as the OAuth redirect.
	RedirectURI string `mapstructure:"redirect_uri"`

	// SettingsURL is where the admin browser is sent back to after the OAuth
	// round trip, carrying a connected/error query parameter. When empty the
	// callback answers with JSON instead of redirecting.
	SettingsURL string `mapstructure:"settings_url"`

	// InsecureSkipVerify disables TLS verification on outbound Kledo calls.
	// Off unless explicitly enabled.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// VaultConfig holds optional HashiCorp Vault configuration for sourcing the
// OAuth client credentials outside the database.
type VaultConfig struct {
	Addr       string `mapstructure:"addr"`
	Token      string `mapstructure:"token"`
	SecretPath string `mapstructure:"secret_path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8090")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "kledo_sync")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("kledo.insecure_skip_verify", false)
	viper.SetDefault("log.level", "info")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.AutomaticEnv()

	binds := map[string]string{
		"server.host":                "SERVER_HOST",
		"server.port":                "SERVER_PORT",
		"database.host":              "DATABASE_HOST",
		"database.port":              "DATABASE_PORT",
		"database.name":              "DATABASE_NAME",
		"database.user":              "DATABASE_USER",
		"database.password":          "DATABASE_PASSWORD",
		"database.ssl_mode":          "DATABASE_SSL_MODE",
		"redis.addr":                 "REDIS_ADDR",
		"redis.password":             "REDIS_PASSWORD",
		"redis.db":                   "REDIS_DB",
		"kledo.redirect_uri":         "KLEDO_REDIRECT_URI",
		"kledo.settings_url":         "KLEDO_SETTINGS_URL",
		"kledo.insecure_skip_verify": "KLEDO_INSECURE_SKIP_VERIFY",
		"vault.addr":                 "VAULT_ADDR",
		"vault.token":                "VAULT_TOKEN",
		"vault.secret_path":          "VAULT_SECRET_PATH",
		"log.level":                  "LOG_LEVEL",
	}
	for key, env := range binds {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
