// Package config provides centralized configuration management for the import
// pipeline. It loads configuration from environment variables with sensible
// defaults and validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Store     StoreConfig
	Storage   StorageConfig
	Queue     QueueConfig
	Notify    NotifyConfig
	Processor ProcessorConfig
	Rate      RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds one request, including a synchronous parse (default: 5m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`

	// MaxConcurrentParses bounds files parsed at once by the event hook (default: 4)
	MaxConcurrentParses int `env:"SERVER_MAX_CONCURRENT_PARSES" default:"4"`

	// ParseWait is how long an event waits for a parse slot (default: 30s)
	ParseWait time.Duration `env:"SERVER_PARSE_WAIT" default:"30s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required with STORE_DRIVER=postgres.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StoreConfig selects the product store backend.
type StoreConfig struct {
	// Driver is postgres, mongo or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// MongoURI is the MongoDB connection string for the mongo driver
	MongoURI string `env:"MONGO_URI" default:"mongodb://localhost:27017"`

	// MongoDatabase is the database holding products and stocks (default: catalog)
	MongoDatabase string `env:"MONGO_DATABASE" default:"catalog"`
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	// Bucket receives uploads and holds processed files
	Bucket string `env:"S3_BUCKET" envAlt:"BUCKET_NAME"`

	// Region is the AWS region (default: us-east-1)
	Region string `env:"S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`

	// Endpoint overrides the S3 endpoint for MinIO or LocalStack
	Endpoint string `env:"S3_ENDPOINT"`

	// UploadPrefix is the namespace new files land in (default: uploaded)
	UploadPrefix string `env:"UPLOAD_PREFIX" default:"uploaded"`

	// ProcessedPrefix is the namespace parsed files move to (default: parsed)
	ProcessedPrefix string `env:"PROCESSED_PREFIX" default:"parsed"`

	// PresignTTL is how long an upload URL stays valid (default: 1h)
	PresignTTL time.Duration `env:"PRESIGN_TTL" default:"1h"`
}

// QueueConfig holds unit-of-work queue settings.
type QueueConfig struct {
	// Driver is redis or memory (default: redis)
	Driver string `env:"QUEUE_DRIVER" default:"redis"`

	// RedisAddr is host:port of the Redis server (default: localhost:6379)
	RedisAddr string `env:"REDIS_ADDR" default:"localhost:6379"`

	// RedisPassword authenticates to Redis
	RedisPassword string `env:"REDIS_PASSWORD"`

	// RedisDB selects the Redis logical database (default: 0)
	RedisDB int `env:"REDIS_DB" default:"0"`

	// Stream is the Redis stream carrying units (default: catalog:units)
	Stream string `env:"QUEUE_STREAM" default:"catalog:units"`

	// Group is the consumer group of the processors (default: catalog-processors)
	Group string `env:"QUEUE_GROUP" default:"catalog-processors"`

	// Consumer names this process inside the group; defaults to the host name
	Consumer string `env:"QUEUE_CONSUMER"`

	// DeadLetterStream receives units that will not be retried (default: <stream>:dead)
	DeadLetterStream string `env:"QUEUE_DEAD_LETTER_STREAM"`

	// BatchSize is the maximum number of units per batch (default: 5)
	BatchSize int `env:"QUEUE_BATCH_SIZE" default:"5"`

	// VisibilityTimeout is how long a received unit stays hidden before it is
	// redelivered (default: 30s)
	VisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT" default:"30s"`

	// MaxDeliveries is how often a failing unit is tried before it is
	// dead-lettered (default: 5)
	MaxDeliveries int64 `env:"QUEUE_MAX_DELIVERIES" default:"5"`

	// PollInterval is how long a receive blocks waiting for units (default: 2s)
	PollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" default:"2s"`

	// Consumers is the number of concurrent receive loops (default: 1)
	Consumers int `env:"QUEUE_CONSUMERS" default:"1"`
}

// NotifyConfig holds notification settings.
type NotifyConfig struct {
	// Driver is redis or log (default: redis)
	Driver string `env:"NOTIFY_DRIVER" default:"redis"`

	// Channel is the Redis pub/sub channel (default: catalog:product-created)
	Channel string `env:"NOTIFY_CHANNEL" default:"catalog:product-created"`
}

// ProcessorConfig holds batch commit settings.
type ProcessorConfig struct {
	// Concurrency is how many units of one batch commit at once (default: 1)
	Concurrency int `env:"PROCESSOR_CONCURRENCY" default:"1"`

	// DefaultCount is the stock count for units without one (default: 0)
	DefaultCount int `env:"STOCK_DEFAULT_COUNT" default:"0"`

	// RandomCount draws missing counts from [0, RandomMax) instead (default: false)
	RandomCount bool `env:"STOCK_RANDOM_COUNT" default:"false"`

	// RandomMax is the exclusive upper bound for random counts (default: 100)
	RandomMax int `env:"STOCK_RANDOM_MAX" default:"100"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
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
	return c.Host + ":" + strconv.Itoa(c.Port)
}
