package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all worker configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	S3       S3Config       `yaml:"s3"`
	Worker   WorkerConfig   `yaml:"worker"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Purge    PurgeConfig    `yaml:"purge"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string `yaml:"name"`
	Env   string `yaml:"env"`
	Debug bool   `yaml:"debug"`
}

// ServerConfig holds the health/metrics listener configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	PoolSize      int           `yaml:"pool_size"`
	MinIdleConns  int           `yaml:"min_idle_conns"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	TLSEnabled    bool          `yaml:"tls_enabled"`
	TLSSkipVerify bool          `yaml:"tls_skip_verify"`
	MaxRetries    int           `yaml:"max_retries"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// S3Config holds object storage configuration for report artifacts.
type S3Config struct {
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	Bucket         string `yaml:"bucket"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// IsConfigured returns true if object storage is usable.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.Region != ""
}

// WorkerConfig holds background worker configuration.
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	SearchSyncPerSec  float64       `yaml:"search_sync_per_sec"`
	SearchSyncBurst   int           `yaml:"search_sync_burst"`
}

// IngestConfig holds report ingestion configuration.
type IngestConfig struct {
	// FindingsBatchSize is the number of findings persisted per statement.
	FindingsBatchSize int `yaml:"findings_batch_size"`
	// LeaseTTL bounds how long a pipeline/report-type group stays locked.
	LeaseTTL time.Duration `yaml:"lease_ttl"`
	// LeaseRetryDelay is the sleep between lease acquisition attempts.
	LeaseRetryDelay time.Duration `yaml:"lease_retry_delay"`
	// LeaseRetryLimit is the number of acquisition attempts before giving up.
	LeaseRetryLimit int `yaml:"lease_retry_limit"`
}

// PurgeConfig holds stale scan purge configuration.
type PurgeConfig struct {
	Schedule      string        `yaml:"schedule"`
	MaxAge        time.Duration `yaml:"max_age"`
	BatchSize     int           `yaml:"batch_size"`
	MaxPerRun     int           `yaml:"max_per_run"`
	CheckpointTTL time.Duration `yaml:"checkpoint_ttl"`
}

// TracingConfig holds OpenTelemetry exporter configuration.
type TracingConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Endpoint string  `yaml:"endpoint"`
	Insecure bool    `yaml:"insecure"`
	Sample   float64 `yaml:"sample"`
}

// Load loads configuration from environment variables, optionally overlaid
// by a YAML file named in CONFIG_FILE. File values win over env values so a
// deployment can pin a full config while developers rely on env defaults.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "ingest"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "ingest"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "ingest"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TLSEnabled:    getEnvBool("REDIS_TLS_ENABLED", false),
			TLSSkipVerify: getEnvBool("REDIS_TLS_SKIP_VERIFY", false),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		S3: S3Config{
			Endpoint:       getEnv("S3_ENDPOINT", ""),
			Region:         getEnv("S3_REGION", "us-east-1"),
			Bucket:         getEnv("S3_BUCKET", "security-reports"),
			AccessKey:      getEnv("S3_ACCESS_KEY", ""),
			SecretKey:      getEnv("S3_SECRET_KEY", ""),
			ForcePathStyle: getEnvBool("S3_FORCE_PATH_STYLE", false),
		},
		Worker: WorkerConfig{
			Concurrency:      getEnvInt("WORKER_CONCURRENCY", 10),
			ShutdownTimeout:  getEnvDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
			SearchSyncPerSec: getEnvFloat("WORKER_SEARCH_SYNC_PER_SEC", 20),
			SearchSyncBurst:  getEnvInt("WORKER_SEARCH_SYNC_BURST", 40),
		},
		Ingest: IngestConfig{
			FindingsBatchSize: getEnvInt("INGEST_FINDINGS_BATCH_SIZE", 50),
			LeaseTTL:          getEnvDuration("INGEST_LEASE_TTL", 30*time.Minute),
			LeaseRetryDelay:   getEnvDuration("INGEST_LEASE_RETRY_DELAY", 3*time.Second),
			LeaseRetryLimit:   getEnvInt("INGEST_LEASE_RETRY_LIMIT", 10),
		},
		Purge: PurgeConfig{
			Schedule:      getEnv("PURGE_SCHEDULE", "0 3 * * *"),
			MaxAge:        getEnvDuration("PURGE_MAX_AGE", 90*24*time.Hour),
			BatchSize:     getEnvInt("PURGE_BATCH_SIZE", 100),
			MaxPerRun:     getEnvInt("PURGE_MAX_PER_RUN", 200000),
			CheckpointTTL: getEnvDuration("PURGE_CHECKPOINT_TTL", 24*time.Hour),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvBool("TRACING_ENABLED", false),
			Endpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
			Insecure: getEnvBool("TRACING_INSECURE", true),
			Sample:   getEnvFloat("TRACING_SAMPLE", 0.1),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateBasic(); err != nil {
		return err
	}
	if c.App.Env == EnvProduction {
		return c.validateProduction()
	}
	return nil
}

func (c *Config) validateBasic() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if c.Ingest.FindingsBatchSize < 1 {
		return fmt.Errorf("INGEST_FINDINGS_BATCH_SIZE must be at least 1, got %d", c.Ingest.FindingsBatchSize)
	}
	if c.Ingest.LeaseTTL < time.Minute {
		return fmt.Errorf("INGEST_LEASE_TTL too short: %v (min 1m)", c.Ingest.LeaseTTL)
	}
	if c.Ingest.LeaseRetryLimit < 1 {
		return fmt.Errorf("INGEST_LEASE_RETRY_LIMIT must be at least 1, got %d", c.Ingest.LeaseRetryLimit)
	}
	if c.Purge.BatchSize < 1 {
		return fmt.Errorf("PURGE_BATCH_SIZE must be at least 1, got %d", c.Purge.BatchSize)
	}
	if c.Purge.MaxPerRun < c.Purge.BatchSize {
		return fmt.Errorf("PURGE_MAX_PER_RUN must be at least PURGE_BATCH_SIZE, got %d", c.Purge.MaxPerRun)
	}
	if c.Tracing.Sample < 0.0 || c.Tracing.Sample > 1.0 {
		return fmt.Errorf("TRACING_SAMPLE must be between 0.0 and 1.0, got %f", c.Tracing.Sample)
	}
	return nil
}

func (c *Config) validateLog() error {
	validLevels := map[string]bool{
		"debug": true, "DEBUG": true,
		"info": true, "INFO": true,
		"warn": true, "WARN": true,
		"error": true, "ERROR": true,
	}
	if c.Log.Level != "" && !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	validFormats := map[string]bool{
		"json": true, "JSON": true,
		"text": true, "TEXT": true,
		"": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}
	return nil
}

func (c *Config) validateProduction() error {
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("database SSL must be enabled in production (use 'require' or 'verify-full')")
	}
	if c.App.Debug {
		return fmt.Errorf("debug mode must be disabled in production")
	}
	if c.Log.Level == "debug" {
		return fmt.Errorf("log level should not be 'debug' in production")
	}
	if c.Redis.Password == "" {
		return fmt.Errorf("redis password must be set in production")
	}
	if !c.Redis.TLSEnabled {
		return fmt.Errorf("redis TLS must be enabled in production")
	}
	if c.Redis.TLSSkipVerify {
		return fmt.Errorf("redis TLS skip verify must be false in production")
	}
	if !c.S3.IsConfigured() {
		return fmt.Errorf("S3_BUCKET and S3_REGION must be set in production")
	}
	return nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the health/metrics listener address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Hash returns a stable fingerprint of the object storage settings. Client
// caches key on it so a config change produces a fresh client.
func (c *S3Config) Hash() string {
	return strings.Join([]string{
		c.Endpoint, c.Region, c.Bucket, c.AccessKey, c.SecretKey,
		strconv.FormatBool(c.ForcePathStyle),
	}, "|")
}

// IsDevelopment returns true if the application is in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction returns true if the application is in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
