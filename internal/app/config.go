package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/walkabout/corebe/internal/oauth2client"
	"github.com/walkabout/corebe/internal/secretstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// SecretStorageType represents the backends the client secret can be read from.
type SecretStorageType string

const (
	SecretStorageTypeFile    SecretStorageType = "file"
	SecretStorageTypeEnv     SecretStorageType = "env"
	SecretStorageTypeKeyring SecretStorageType = "keyring"
)

// AuthStyle selects how client credentials are sent to the token endpoint.
type AuthStyle string

const (
	AuthStyleHeader AuthStyle = "header"
	AuthStyleParams AuthStyle = "params"
)

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigTelemetryExporter = "none"
	DefaultConfigServerHost        = "127.0.0.1"
	DefaultConfigServerPort        = 4100
	DefaultConfigShutdownTimeout   = 5 * time.Second
	DefaultConfigUpstreamBaseURL   = "https://api.cert.platform.sabre.com"
	DefaultConfigResourceID        = "sabre"
	DefaultConfigTokenURL          = "https://api.cert.platform.sabre.com/v2/auth/token"
	DefaultConfigGrantType         = oauth2client.GrantTypeClientCredentials
	DefaultConfigAuthStyle         = AuthStyleHeader
	DefaultConfigTokenTimeout      = 30 * time.Second
	DefaultConfigSecretStorage     = SecretStorageTypeFile
	DefaultConfigSecretEnvKey      = "COREBE_CLIENT_SECRET"
)

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	Exporter string `json:"exporter" validate:"oneof=none stdout otlp-grpc otlp-http"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// UpstreamConfig holds upstream API configuration.
type UpstreamConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

// ResourceConfig describes the protected resource and how tokens for it are
// obtained and attached.
type ResourceConfig struct {
	ID        string                 `json:"id" validate:"required"`
	TokenURL  string                 `json:"token_url" validate:"required,url"`
	ClientID  string                 `json:"client_id" validate:"required"`
	GrantType oauth2client.GrantType `json:"grant_type" validate:"required,oneof=client_credentials password"`
	Scopes    []string               `json:"scopes,omitempty"`
	AuthStyle AuthStyle              `json:"auth_style" validate:"oneof=header params"`

	// Username and Password are used by the password grant only.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Header and TokenType shape the header attached to outbound requests.
	Header    string `json:"header"`
	TokenType string `json:"token_type"`

	// ExpiryLeeway refreshes tokens this long before they expire.
	ExpiryLeeway time.Duration `json:"expiry_leeway" validate:"gte=0"`

	// Timeout bounds each token endpoint request.
	Timeout time.Duration `json:"timeout" validate:"gte=0"`
}

// Descriptor converts the configuration into a resource descriptor. The
// client secret is resolved separately from the secret store.
func (r *ResourceConfig) Descriptor() oauth2client.ResourceDescriptor {
	style := oauth2.AuthStyleInHeader
	if r.AuthStyle == AuthStyleParams {
		style = oauth2.AuthStyleInParams
	}
	return oauth2client.ResourceDescriptor{
		ID:        r.ID,
		TokenURL:  r.TokenURL,
		ClientID:  r.ClientID,
		GrantType: r.GrantType,
		Scopes:    r.Scopes,
		AuthStyle: style,
		Username:  r.Username,
		Password:  r.Password,
	}
}

// SecretConfig describes where the client secret is stored.
type SecretConfig struct {
	Storage SecretStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to secret file
	EnvKey      string `json:"env_key,omitempty"`      // For env storage: environment variable name
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewSecretStore creates the configured SecretStore.
func (s *SecretConfig) NewSecretStore() (secretstore.SecretStore, error) {
	switch s.Storage {
	case SecretStorageTypeFile:
		return secretstore.NewFileStore(s.File)
	case SecretStorageTypeEnv:
		return secretstore.NewEnvStore(s.EnvKey)
	case SecretStorageTypeKeyring:
		return secretstore.NewKeyringStore(secretstore.KeyringService, s.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported secret storage type: %s", s.Storage)
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Server    ServerConfig    `json:"server"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
	Upstream  UpstreamConfig  `json:"upstream"`
	Resource  ResourceConfig  `json:"resource"`
	Secret    SecretConfig    `json:"secret"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultConfigUpstreamBaseURL
	}
	if c.Resource.ID == "" {
		c.Resource.ID = DefaultConfigResourceID
	}
	if c.Resource.TokenURL == "" {
		c.Resource.TokenURL = DefaultConfigTokenURL
	}
	if c.Resource.GrantType == "" {
		c.Resource.GrantType = DefaultConfigGrantType
	}
	if c.Resource.AuthStyle == "" {
		c.Resource.AuthStyle = DefaultConfigAuthStyle
	}
	if c.Resource.Header == "" {
		c.Resource.Header = oauth2client.DefaultHeader
	}
	if c.Resource.TokenType == "" {
		c.Resource.TokenType = oauth2client.DefaultTokenType
	}
	if c.Resource.Timeout == 0 {
		c.Resource.Timeout = DefaultConfigTokenTimeout
	}
	if c.Secret.Storage == "" {
		c.Secret.Storage = DefaultConfigSecretStorage
	}

	// Dynamic defaults based on storage type
	switch c.Secret.Storage {
	case SecretStorageTypeFile:
		if c.Secret.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("secret.file required (auto-detect failed: %w)", err)
			}
			c.Secret.File = filepath.Join(configDir, "corebe", "client_secret")
		}
	case SecretStorageTypeEnv:
		if c.Secret.EnvKey == "" {
			c.Secret.EnvKey = DefaultConfigSecretEnvKey
		}
	case SecretStorageTypeKeyring:
		if c.Secret.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("secret.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Secret.KeyringUser = currentUser.Username
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Resource.GrantType == oauth2client.GrantTypePassword && c.Resource.Username == "" {
		return errors.New("resource.username required for password grant")
	}

	switch c.Secret.Storage {
	case SecretStorageTypeFile:
		if c.Secret.File == "" {
			return errors.New("file path required for file storage")
		}
	case SecretStorageTypeEnv:
		if c.Secret.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case SecretStorageTypeKeyring:
		if c.Secret.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}
