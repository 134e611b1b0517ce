package core

import (
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultExpiryBufferSeconds = 300
	DefaultKDFIterations       = 100000
	DefaultRequestTimeoutMS    = 30000
	DefaultRequestRetries      = 3
	DefaultRetryDelayMS        = 1000
)

type EncryptionConfig struct {
	// MasterKey is the only source for the cipher key. It is never derived
	// from other service secrets.
	MasterKey     string `koanf:"master_key" mapstructure:"master_key"`
	KDFIterations int    `koanf:"kdf_iterations" mapstructure:"kdf_iterations"`
}

type CredentialsConfig struct {
	ExpiryBufferSeconds int `koanf:"expiry_buffer_seconds" mapstructure:"expiry_buffer_seconds"`
}

type TransportConfig struct {
	TimeoutMS    int `koanf:"timeout_ms" mapstructure:"timeout_ms"`
	Retries      int `koanf:"retries" mapstructure:"retries"`
	RetryDelayMS int `koanf:"retry_delay_ms" mapstructure:"retry_delay_ms"`
}

type ProviderConfig struct {
	ClientID          string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret      string   `koanf:"client_secret" mapstructure:"client_secret"`
	AuthURL           string   `koanf:"auth_url" mapstructure:"auth_url"`
	TokenURL          string   `koanf:"token_url" mapstructure:"token_url"`
	RedirectURL       string   `koanf:"redirect_url" mapstructure:"redirect_url"`
	Scopes            []string `koanf:"scopes" mapstructure:"scopes"`
	BaseURL           string   `koanf:"base_url" mapstructure:"base_url"`
	Concurrency       int      `koanf:"concurrency" mapstructure:"concurrency"`
	RequestsPerSecond float64  `koanf:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int      `koanf:"burst" mapstructure:"burst"`
}

func (p ProviderConfig) HasOAuthClient() bool {
	return strings.TrimSpace(p.ClientID) != "" &&
		strings.TrimSpace(p.ClientSecret) != "" &&
		strings.TrimSpace(p.TokenURL) != ""
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type Config struct {
	ServiceName string                    `koanf:"service_name" mapstructure:"service_name"`
	Encryption  EncryptionConfig          `koanf:"encryption" mapstructure:"encryption"`
	Credentials CredentialsConfig         `koanf:"credentials" mapstructure:"credentials"`
	Transport   TransportConfig           `koanf:"transport" mapstructure:"transport"`
	Providers   map[string]ProviderConfig `koanf:"providers" mapstructure:"providers"`
	Database    DatabaseConfig            `koanf:"database" mapstructure:"database"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "integrations",
		Encryption: EncryptionConfig{
			KDFIterations: DefaultKDFIterations,
		},
		Credentials: CredentialsConfig{
			ExpiryBufferSeconds: DefaultExpiryBufferSeconds,
		},
		Transport: TransportConfig{
			TimeoutMS:    DefaultRequestTimeoutMS,
			Retries:      DefaultRequestRetries,
			RetryDelayMS: DefaultRetryDelayMS,
		},
		Providers: map[string]ProviderConfig{},
		Database: DatabaseConfig{
			Driver: "sqlite3",
		},
	}
}

// Validate checks structural settings. A missing master key is not reported
// here; the cipher constructor fails fast on first use instead.
func (c Config) Validate() error {
	var fields []goerrors.FieldError
	if strings.TrimSpace(c.ServiceName) == "" {
		fields = append(fields, goerrors.FieldError{Field: "service_name", Message: "is required"})
	}
	if c.Encryption.KDFIterations < 0 {
		fields = append(fields, goerrors.FieldError{Field: "encryption.kdf_iterations", Message: "must not be negative"})
	}
	if c.Credentials.ExpiryBufferSeconds < 0 {
		fields = append(fields, goerrors.FieldError{Field: "credentials.expiry_buffer_seconds", Message: "must not be negative"})
	}
	if c.Transport.Retries < 0 {
		fields = append(fields, goerrors.FieldError{Field: "transport.retries", Message: "must not be negative"})
	}
	if c.Transport.TimeoutMS < 0 || c.Transport.RetryDelayMS < 0 {
		fields = append(fields, goerrors.FieldError{Field: "transport", Message: "durations must not be negative"})
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			fields = append(fields, goerrors.FieldError{Field: "providers", Message: "provider name is required"})
			continue
		}
		if provider.Concurrency < 0 {
			fields = append(fields, goerrors.FieldError{
				Field:   fmt.Sprintf("providers.%s.concurrency", name),
				Message: "must not be negative",
			})
		}
	}
	switch strings.TrimSpace(c.Database.Driver) {
	case "", "sqlite3", "postgres":
	default:
		fields = append(fields, goerrors.FieldError{Field: "database.driver", Message: "must be sqlite3 or postgres"})
	}
	if len(fields) > 0 {
		return goerrors.NewValidation("invalid integrations config", fields...).
			WithTextCode(ErrorBadInput)
	}
	return nil
}

func (c Config) ExpiryBuffer() time.Duration {
	if c.Credentials.ExpiryBufferSeconds <= 0 {
		return DefaultExpiryBuffer
	}
	return time.Duration(c.Credentials.ExpiryBufferSeconds) * time.Second
}

// Provider returns the settings for a provider, matched case-insensitively.
func (c Config) Provider(provider Provider) (ProviderConfig, bool) {
	name := string(NormalizeProvider(string(provider)))
	if cfg, ok := c.Providers[name]; ok {
		return cfg, true
	}
	for key, cfg := range c.Providers {
		if string(NormalizeProvider(key)) == name {
			return cfg, true
		}
	}
	return ProviderConfig{}, false
}

// ProviderConcurrency is the batch pool size for a provider. Unconfigured
// providers run sequentially.
func (c Config) ProviderConcurrency(provider Provider) int {
	cfg, ok := c.Provider(provider)
	if !ok || cfg.Concurrency < 1 {
		return 1
	}
	return cfg.Concurrency
}
