// Package config provides centralized configuration management for the importer.
// Settings come from environment variables with sensible defaults and are
// validated on startup so a bad deployment fails before touching the warehouse.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Warehouse WarehouseConfig
	Import    ImportConfig
	Snapshot  SnapshotConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, result endpoints block)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds warehouse connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// ConnectTimeout bounds the initial ping (default: 10s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"10s"`
}

// WarehouseConfig names the warehouse objects the synchronizer writes to.
type WarehouseConfig struct {
	// Schema is the PostgreSQL schema holding the tables (default: public)
	Schema string `env:"WAREHOUSE_SCHEMA" default:"public"`

	// Table is the budget fact table (default: orcado)
	Table string `env:"WAREHOUSE_TABLE" default:"orcado"`

	// AuditTable is the append-only import metadata table (default: orcado_metadata)
	AuditTable string `env:"WAREHOUSE_AUDIT_TABLE" default:"orcado_metadata"`

	// StagingPrefix prefixes every per-call staging table (default: orcado_staging)
	StagingPrefix string `env:"WAREHOUSE_STAGING_PREFIX" default:"orcado_staging"`
}

// ImportConfig holds import processing settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of parallel imports (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single sync (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`

	// ValidationWorkers is the row validation pool size, 0 means one per CPU
	ValidationWorkers int `env:"IMPORT_VALIDATION_WORKERS" default:"0"`

	// JobRetention is how long finished jobs stay queryable (default: 30m)
	JobRetention time.Duration `env:"IMPORT_JOB_RETENTION" default:"30m"`

	// JanitorInterval is how often finished jobs are swept (default: 1m)
	JanitorInterval time.Duration `env:"IMPORT_JANITOR_INTERVAL" default:"1m"`

	// SystemVersion is recorded in every audit record (default: dev)
	SystemVersion string `env:"IMPORT_SYSTEM_VERSION" default:"dev"`
}

// SnapshotConfig holds the local durable store used when the warehouse is unreachable.
type SnapshotConfig struct {
	// Enabled turns the local snapshot store on (default: true)
	Enabled bool `env:"SNAPSHOT_ENABLED" default:"true"`

	// Path is the SQLite database file (default: data/snapshots.db)
	Path string `env:"SNAPSHOT_PATH" default:"data/snapshots.db"`

	// KeepRejected also stores rejected datasets with their errors (default: true)
	KeepRejected bool `env:"SNAPSHOT_KEEP_REJECTED" default:"true"`

	// Retention is how long synced and rejected snapshots are kept, 0 keeps
	// them forever (default: 720h)
	Retention time.Duration `env:"SNAPSHOT_RETENTION" default:"720h"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
