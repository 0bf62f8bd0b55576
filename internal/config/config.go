// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Upload    UploadConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Reconcile ReconcileConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Archive   ArchiveConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, downloads stream)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining uploads and
	// row count reconciliation (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies embedded migrations on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// UploadConfig holds tabular upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// PreviewRows caps the number of data rows kept as preview (default: 100)
	PreviewRows int `env:"UPLOAD_PREVIEW_ROWS" default:"100"`

	// AllowedExtensions is the upload allow-list, matched case-insensitively
	AllowedExtensions []string `env:"UPLOAD_ALLOWED_EXTENSIONS" default:".csv,.xlsx,.xls"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single upload operation (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// StorageConfig selects where raw uploaded artifacts are kept.
type StorageConfig struct {
	// Backend is "local" or "gcs" (default: local)
	Backend string `env:"STORAGE_BACKEND" default:"local"`

	// Dir is the artifact directory for the local backend (default: ./uploads)
	Dir string `env:"STORAGE_DIR" envAlt:"UPLOAD_DIR" default:"./uploads"`

	// GCSBucket is the bucket name for the gcs backend
	GCSBucket string `env:"STORAGE_GCS_BUCKET"`
}

// AuthConfig holds token and password settings.
type AuthConfig struct {
	// JWTSecret signs access tokens (required)
	JWTSecret string `env:"JWT_SECRET" required:"true"`

	// TokenTTL is the access token lifetime (default: 7 days)
	TokenTTL time.Duration `env:"JWT_TTL" default:"168h"`

	Issuer     string `env:"JWT_ISSUER" default:"tablestore"`
	BcryptCost int    `env:"BCRYPT_COST" default:"12"`
}

// RedisConfig configures the token revocation list.
// An empty Addr keeps revocations in process memory.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" default:"0"`
}

// CacheConfig sizes the per-request actor cache.
type CacheConfig struct {
	ActorSize int           `env:"ACTOR_CACHE_SIZE" default:"1024"`
	ActorTTL  time.Duration `env:"ACTOR_CACHE_TTL" default:"30s"`
}

// ReconcileConfig holds background row count reconciliation settings.
type ReconcileConfig struct {
	// Workers is the number of concurrent recount jobs (default: 2)
	Workers int `env:"RECONCILE_WORKERS" default:"2"`

	// QueueSize bounds pending jobs; overflow is left to the sweeper (default: 256)
	QueueSize int `env:"RECONCILE_QUEUE_SIZE" default:"256"`

	// SweepInterval is how often inexact row counts are re-queued (default: 10m)
	SweepInterval time.Duration `env:"RECONCILE_SWEEP_INTERVAL" default:"10m"`

	// SweepBatch is the maximum number of files re-queued per sweep (default: 100)
	SweepBatch int `env:"RECONCILE_SWEEP_BATCH" default:"100"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// CORSOrigins lists browser origins allowed to call the API
	CORSOrigins []string `env:"CORS_ORIGINS" envAlt:"CORS_ORIGIN" default:"http://localhost:4200"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File, when set, receives a rotated copy of every log line
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB" default:"100"`
	MaxBackups int    `env:"LOG_FILE_MAX_BACKUPS" default:"5"`
}

// ArchiveConfig holds audit log archiving settings.
type ArchiveConfig struct {
	// HotRetentionDays is days to keep entries in the hot table (default: 90)
	HotRetentionDays int `env:"ARCHIVE_HOT_RETENTION_DAYS" default:"90"`

	// ArchiveRetentionYears is years to keep archived entries (default: 7)
	ArchiveRetentionYears int `env:"ARCHIVE_RETENTION_YEARS" default:"7"`

	// BatchSize is rows to process per archive batch (default: 5000)
	BatchSize int `env:"ARCHIVE_BATCH_SIZE" default:"5000"`

	// CheckInterval is how often to run the archive job (default: 24h)
	CheckInterval time.Duration `env:"ARCHIVE_CHECK_INTERVAL" default:"24h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
