// Package config defines the global configuration for the BeaconRelay
// service. Configuration is loaded once at process start and is immutable
// thereafter; components receive the specific subsets they require rather
// than reading ambient global state.
package config

import (
	"time"

	"beaconrelay/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Populated once during
// process initialization and never modified afterwards.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"beaconrelay"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Geo      GeoConfig
	Sink     SinkConfig
	Ingest   IngestConfig
	Security SecurityConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds the persistence sink connection settings. When URL is
// unset the service runs without persistence; reports are still delivered.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	ConnectTimeout  time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"10s"`

	// CompressThreshold is the raw payload size in bytes above which the
	// persisted copy is stored gzip-compressed.
	CompressThreshold int `envconfig:"DB_COMPRESS_THRESHOLD" default:"4096"`
}

// GeoConfig holds settings for the IP geolocation collaborator.
type GeoConfig struct {
	Enabled bool          `envconfig:"GEO_ENABLED" default:"true"`
	BaseURL string        `envconfig:"GEO_BASE_URL" default:"http://ip-api.com" validate:"url"`
	Timeout time.Duration `envconfig:"GEO_TIMEOUT" default:"4s"`
}

// SinkConfig holds settings for the outbound notification webhook. An empty
// WebhookURL disables delivery: the pipeline reports "skipped", not failure.
type SinkConfig struct {
	WebhookURL    SecretString  `envconfig:"SINK_WEBHOOK_URL"`
	Username      string        `envconfig:"SINK_USERNAME" default:"BeaconRelay"`
	UserAgent     string        `envconfig:"SINK_USER_AGENT" default:"BeaconRelay-Webhook/1.0"`
	Timeout       time.Duration `envconfig:"SINK_TIMEOUT" default:"5s"`
	UploadTimeout time.Duration `envconfig:"SINK_UPLOAD_TIMEOUT" default:"30s"`
}

// IngestConfig holds settings for the inbound ingestion endpoint.
type IngestConfig struct {
	// MaxBodyBytes bounds POST bodies. Must admit image attachments, so the
	// default is well above typical JSON payload limits.
	MaxBodyBytes int64 `envconfig:"INGEST_MAX_BODY_BYTES" default:"16777216"`

	// MaxAttachmentBytes bounds a single decoded attachment.
	MaxAttachmentBytes int `envconfig:"INGEST_MAX_ATTACHMENT_BYTES" default:"10485760"`
}

// SecurityConfig holds CORS settings for the browser-facing endpoint.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}
