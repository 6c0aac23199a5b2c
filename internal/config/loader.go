package config

import (
	"fmt"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc returns the value of an environment variable and whether it is set.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from the process environment.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadWith(os.LookupEnv)
}

// LoadWith reads configuration through lookup instead of the process
// environment.
func LoadWith(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if cfg.Queue.Consumer == "" {
		cfg.Queue.Consumer = defaultConsumerName()
	}
	if cfg.Queue.DeadLetterStream == "" {
		cfg.Queue.DeadLetterStream = cfg.Queue.Stream + ":dead"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "consumer"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		// Try primary env var, then alternate
		value, _ := lookup(envName)
		if value == "" && envAlt != "" {
			value, _ = lookup(envAlt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(strings.TrimSpace(value))

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return true
		}
	}
	return false
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxConcurrentParses < 0 {
		errs = append(errs, "SERVER_MAX_CONCURRENT_PARSES must be non-negative")
	}

	// Store validation
	switch strings.ToLower(c.Store.Driver) {
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required when STORE_DRIVER is postgres")
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			errs = append(errs, "MONGO_URI is required when STORE_DRIVER is mongo")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER (%q) must be one of: postgres, mongo, memory", c.Store.Driver))
	}

	// Storage validation
	if c.Storage.UploadPrefix == "" || c.Storage.ProcessedPrefix == "" {
		errs = append(errs, "UPLOAD_PREFIX and PROCESSED_PREFIX must be set")
	} else if strings.Trim(c.Storage.UploadPrefix, "/") == strings.Trim(c.Storage.ProcessedPrefix, "/") {
		errs = append(errs, "UPLOAD_PREFIX and PROCESSED_PREFIX must differ")
	}
	if c.Storage.PresignTTL <= 0 {
		errs = append(errs, "PRESIGN_TTL must be positive")
	}

	// Queue validation
	if !oneOf(c.Queue.Driver, "redis", "memory") {
		errs = append(errs, fmt.Sprintf("QUEUE_DRIVER (%q) must be one of: redis, memory", c.Queue.Driver))
	}
	if c.Queue.BatchSize <= 0 {
		errs = append(errs, "QUEUE_BATCH_SIZE must be positive")
	}
	if c.Queue.PollInterval <= 0 {
		errs = append(errs, "QUEUE_POLL_INTERVAL must be positive")
	}
	if c.Queue.VisibilityTimeout <= 0 {
		errs = append(errs, "QUEUE_VISIBILITY_TIMEOUT must be positive")
	}
	if c.Queue.MaxDeliveries <= 0 {
		errs = append(errs, "QUEUE_MAX_DELIVERIES must be positive")
	}
	if c.Queue.Consumers <= 0 {
		errs = append(errs, "QUEUE_CONSUMERS must be positive")
	}
	if c.Queue.Stream == "" || c.Queue.Group == "" {
		errs = append(errs, "QUEUE_STREAM and QUEUE_GROUP must be set")
	}

	// Notify validation
	if !oneOf(c.Notify.Driver, "redis", "log") {
		errs = append(errs, fmt.Sprintf("NOTIFY_DRIVER (%q) must be one of: redis, log", c.Notify.Driver))
	}

	// Processor validation
	if c.Processor.Concurrency <= 0 {
		errs = append(errs, "PROCESSOR_CONCURRENCY must be positive")
	}
	if c.Processor.DefaultCount < 0 {
		errs = append(errs, "STOCK_DEFAULT_COUNT must be non-negative")
	}
	if c.Processor.DefaultCount > math.MaxInt32 || c.Processor.RandomMax > math.MaxInt32 {
		errs = append(errs, "STOCK_DEFAULT_COUNT and STOCK_RANDOM_MAX must fit a 32-bit count")
	}
	if c.Processor.RandomCount && c.Processor.RandomMax <= 0 {
		errs = append(errs, "STOCK_RANDOM_MAX must be positive when STOCK_RANDOM_COUNT is true")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	// Logging validation
	if !oneOf(c.Logging.Level, "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	if !oneOf(c.Logging.Format, "text", "json") {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// RequireBucket reports an error when no bucket is configured. Only the
// commands that touch object storage need one.
func (c *Config) RequireBucket() error {
	if c.Storage.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	return nil
}

// String returns a safe string representation of the config for logging.
// Connection strings and passwords are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Store: {Driver: %q, URL: [MASKED]}, ", c.Store.Driver)
	fmt.Fprintf(&b, "Storage: {Bucket: %q, Region: %q, UploadPrefix: %q, ProcessedPrefix: %q}, ",
		c.Storage.Bucket, c.Storage.Region, c.Storage.UploadPrefix, c.Storage.ProcessedPrefix)
	fmt.Fprintf(&b, "Queue: {Driver: %q, RedisAddr: %q, Password: [MASKED], Stream: %q, Group: %q, BatchSize: %d}, ",
		c.Queue.Driver, c.Queue.RedisAddr, c.Queue.Stream, c.Queue.Group, c.Queue.BatchSize)
	fmt.Fprintf(&b, "Notify: {Driver: %q, Channel: %q}, ", c.Notify.Driver, c.Notify.Channel)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
