// Package config defines the configuration structure for the post office.
// Configuration is loaded once at process initialization (Lambda cold start
// or API boot) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"postoffice/internal/types"
)

// SecretString is an alias for types.SecretString so DSNs never reach logs.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"postoffice"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Mailbox       MailboxConfig
	Maintenance   MaintenanceConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"45s"` // must exceed ContentRequestTimeout by more than 1s
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	ApplySchema       bool          `envconfig:"DB_APPLY_SCHEMA" default:"false"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-west-1"`

	// QueueURLPrefix is joined with a queue name (e.g. sbq-timeseries) to
	// form the SQS queue URL.
	QueueURLPrefix string `envconfig:"SQS_QUEUE_URL_PREFIX" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// MailboxConfig holds the bundling, content and dequeue tunables.
type MailboxConfig struct {
	MaxBundleWeight       int32         `envconfig:"MAX_BUNDLE_WEIGHT" default:"50" validate:"gt=0"`
	ContentRequestTimeout time.Duration `envconfig:"CONTENT_REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`
	PeekConflictRetries   int           `envconfig:"PEEK_CONFLICT_RETRIES" default:"3" validate:"gt=0"`
	DequeueChunkSize      int           `envconfig:"DEQUEUE_CHUNK_SIZE" default:"500" validate:"gt=0"`
	DequeueConcurrency    int           `envconfig:"DEQUEUE_CONCURRENCY" default:"4" validate:"gt=0"`
	PublishDequeueNotices bool          `envconfig:"PUBLISH_DEQUEUE_NOTICES" default:"true"`
	CompressAboveBytes    int           `envconfig:"BUS_COMPRESS_ABOVE_BYTES" default:"65536"`

	// ContentEndpoints routes origins to an HTTP content API instead of the
	// bus, as Origin=URL pairs, e.g. "Charges=https://charges.internal".
	ContentEndpoints []string `envconfig:"CONTENT_HTTP_ENDPOINTS"`
}

// MaintenanceConfig holds retention windows for scheduled cleanup.
type MaintenanceConfig struct {
	StaleBundleAge       time.Duration `envconfig:"STALE_BUNDLE_AGE" default:"168h"`
	IdempotencyRetention time.Duration `envconfig:"IDEMPOTENCY_RETENTION" default:"720h"`
	DequeuedRetention    time.Duration `envconfig:"DEQUEUED_RETENTION" default:"2160h"`
	BatchLimit           int           `envconfig:"MAINTENANCE_BATCH_LIMIT" default:"100"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"PostOffice"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
