package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable
const EnvPrefix = "HSBC"

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Processing ProcessingConfig `yaml:"processing" envconfig:"PROCESSING"`
	Ingestion  IngestionConfig  `yaml:"ingestion" envconfig:"INGESTION"`
	RuleStore  RuleStoreConfig  `yaml:"rule_store" envconfig:"RULESTORE"`
	Events     EventsConfig     `yaml:"events" envconfig:"EVENTS"`
	Security   SecurityConfig   `yaml:"security" envconfig:"SECURITY"`
	Jobs       JobsConfig       `yaml:"jobs" envconfig:"JOBS"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Address returns host:port for net/http
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"` // stdout, file or both
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// ProcessingConfig bounds uploads and previews
type ProcessingConfig struct {
	MaxFileSize    int64  `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE"`
	MaxRowsPreview int    `yaml:"max_rows_preview" envconfig:"MAX_ROWS_PREVIEW"`
	MaxDatasets    int    `yaml:"max_datasets" envconfig:"MAX_DATASETS"` // oldest evicted first, 0 keeps all
	UploadDir      string `yaml:"upload_dir" envconfig:"UPLOAD_DIR"`
}

// IngestionConfig configures outbound fetches
type IngestionConfig struct {
	HTTPTimeout           time.Duration `yaml:"http_timeout" envconfig:"HTTP_TIMEOUT"`
	RateLimit             float64       `yaml:"rate_limit" envconfig:"RATE_LIMIT"` // requests per second, 0 disables
	RateBurst             int           `yaml:"rate_burst" envconfig:"RATE_BURST"`
	SheetsCredentialsFile string        `yaml:"sheets_credentials_file" envconfig:"SHEETS_CREDENTIALS_FILE"`
	SheetsAPIKey          string        `yaml:"sheets_api_key" envconfig:"SHEETS_API_KEY"`
}

// RuleStoreConfig selects where rule snapshots live
type RuleStoreConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER"` // memory, file, sqlite, postgres, redis
	DSN    string `yaml:"dsn" envconfig:"DSN"`
	Key    string `yaml:"key" envconfig:"KEY"`
	// Passphrase encrypts snapshots at rest when set
	Passphrase string `yaml:"passphrase" envconfig:"PASSPHRASE"`
}

// EventsConfig selects the event publisher
type EventsConfig struct {
	Driver  string   `yaml:"driver" envconfig:"DRIVER"` // none, log, kafka
	Brokers []string `yaml:"brokers" envconfig:"BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"TOPIC"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	RateLimit      float64  `yaml:"rate_limit" envconfig:"RATE_LIMIT"` // requests per second per client
	RateBurst      int      `yaml:"rate_burst" envconfig:"RATE_BURST"`
}

// JobsConfig sizes the background job queue
type JobsConfig struct {
	Workers   int           `yaml:"workers" envconfig:"WORKERS"`
	QueueSize int           `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
	Retention time.Duration `yaml:"retention" envconfig:"RETENTION"`
}

// TelemetryConfig configures tracing and metrics
type TelemetryConfig struct {
	ServiceName   string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment   string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	StdoutTraces  bool    `yaml:"stdout_traces" envconfig:"STDOUT_TRACES"`
	EnableMetrics bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	SampleRatio   float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// Load reads .env, the config file and the environment, then validates
func Load() (*Config, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()
	return LoadFrom(configFilePath())
}

// LoadFrom is Load with an explicit YAML file. An empty path skips the file.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file on cfg. Keys absent from the file keep
// their current values.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// configFilePath returns the first config file found, or ""
func configFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}
	for _, location := range []string{"config.yaml", "configs/config.yaml"} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port <= 65535, "invalid server port: %d", c.Server.Port)
	check(c.Server.ReadTimeout > 0, "server read timeout must be positive")
	check(c.Server.WriteTimeout > 0, "server write timeout must be positive")

	check(oneOf(c.Logging.Level, "debug", "info", "warn", "warning", "error"), "invalid log level: %q", c.Logging.Level)
	check(oneOf(c.Logging.Format, "json", "text"), "invalid log format: %q", c.Logging.Format)
	check(oneOf(c.Logging.Output, "stdout", "console", "file", "both"), "invalid log output: %q", c.Logging.Output)
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		check(c.Logging.FilePath != "", "log file path is required for output %q", c.Logging.Output)
	}

	check(c.Processing.MaxFileSize > 0, "max file size must be positive")
	check(c.Processing.MaxRowsPreview > 0, "max preview rows must be positive")
	check(c.Processing.MaxDatasets >= 0, "max datasets must not be negative")
	check(c.Processing.UploadDir != "", "upload directory is required")

	check(c.Ingestion.HTTPTimeout > 0, "ingestion http timeout must be positive")
	check(c.Ingestion.RateLimit >= 0, "ingestion rate limit must not be negative")

	check(oneOf(c.RuleStore.Driver, "memory", "file", "sqlite", "postgres", "redis"), "unsupported rule store driver: %q", c.RuleStore.Driver)
	if c.RuleStore.Driver != "memory" {
		check(c.RuleStore.DSN != "", "rule store dsn is required for driver %q", c.RuleStore.Driver)
	}

	check(oneOf(c.Events.Driver, "none", "log", "kafka"), "unsupported events driver: %q", c.Events.Driver)
	if c.Events.Driver == "kafka" {
		check(len(c.Events.Brokers) > 0, "at least one kafka broker is required")
	}

	check(c.Security.RateLimit >= 0, "rate limit must not be negative")
	check(c.Jobs.Workers > 0, "job workers must be positive")
	check(c.Jobs.QueueSize > 0, "job queue size must be positive")
	check(c.Telemetry.SampleRatio >= 0 && c.Telemetry.SampleRatio <= 1, "sample ratio must be within [0, 1]")

	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/engine.log",
		},
		Processing: ProcessingConfig{
			MaxFileSize:    100 << 20,
			MaxRowsPreview: 1000,
			MaxDatasets:    100,
			UploadDir:      "./uploads",
		},
		Ingestion: IngestionConfig{
			HTTPTimeout: 30 * time.Second,
			RateLimit:   5,
			RateBurst:   5,
		},
		RuleStore: RuleStoreConfig{
			Driver: "memory",
			Key:    "rules",
		},
		Events: EventsConfig{
			Driver: "none",
			Topic:  "hsbc.engine.events",
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:8080"},
			RateLimit:      100,
			RateBurst:      50,
		},
		Jobs: JobsConfig{
			Workers:   4,
			QueueSize: 64,
			Retention: 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "hsbc-data-engine",
			Environment:   "development",
			EnableMetrics: true,
			SampleRatio:   1.0,
		},
	}
}
