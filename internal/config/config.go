// Package config provides the configuration of the drilldown service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DRILLDOWN_"

// View store backends.
const (
	ViewsSQLite = "sqlite"
	ViewsBadger = "badger"
	ViewsMemory = "memory"
)

// Config holds the configuration of the drilldown service.
type Config struct {
	// DataDir is the base directory for local state
	DataDir string `json:"data_dir" yaml:"data_dir"`

	HTTP       HTTPConfig       `json:"http" yaml:"http"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Partitions PartitionsConfig `json:"partitions" yaml:"partitions"`
	Events     EventsConfig     `json:"events" yaml:"events"`
	Views      ViewsConfig      `json:"views" yaml:"views"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout bounds the graceful drain of in-flight requests
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Metrics exposes /metrics when true
	Metrics bool `json:"metrics" yaml:"metrics"`

	// UsageWindow is how long predicate and JSONPath usage is remembered
	UsageWindow time.Duration `json:"usage_window" yaml:"usage_window"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Prefix string `json:"prefix" yaml:"prefix"`
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
	MaxRetries   int    `json:"max_retries" yaml:"max_retries"`
}

// PartitionsConfig controls how ads month shards are fetched.
type PartitionsConfig struct {
	// AdsPrefix is the object prefix of shards and metadata.json
	AdsPrefix string `json:"ads_prefix" yaml:"ads_prefix"`

	// Concurrency is the number of parallel shard downloads
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// CacheDir holds downloaded shards
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// InitialMonths is how many of the latest months load at startup
	InitialMonths int `json:"initial_months" yaml:"initial_months"`
}

// EventsConfig controls the event log.
type EventsConfig struct {
	Object string `json:"object" yaml:"object"`

	// RowLimit caps the rows kept from the event log (0 keeps all)
	RowLimit int `json:"row_limit" yaml:"row_limit"`

	// LoadOnStart loads the event log during startup
	LoadOnStart bool `json:"load_on_start" yaml:"load_on_start"`
}

// ViewsConfig selects the saved view backend.
type ViewsConfig struct {
	// Backend is one of sqlite, badger, memory
	Backend string `json:"backend" yaml:"backend"`

	// Path is the SQLite file or Badger directory
	Path string `json:"path" yaml:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/drilldown",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			Metrics:         true,
			UsageWindow:     24 * time.Hour,
		},
		Storage: StorageConfig{
			Type: "local",
			S3: S3Config{
				Region:     "us-east-1",
				MaxRetries: 3,
			},
		},
		Partitions: PartitionsConfig{
			AdsPrefix:     "ads",
			Concurrency:   4,
			InitialMonths: 1,
		},
		Events: EventsConfig{
			Object:      "events/user_sku_logs.arrow",
			RowLimit:    50000,
			LoadOnStart: true,
		},
		Views: ViewsConfig{
			Backend: ViewsSQLite,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/drilldown"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Partitions.CacheDir == "" {
		c.Partitions.CacheDir = filepath.Join(c.DataDir, "cache")
	}
	if c.Views.Path == "" {
		switch c.Views.Backend {
		case ViewsSQLite:
			c.Views.Path = filepath.Join(c.DataDir, "views.db")
		case ViewsBadger:
			c.Views.Path = filepath.Join(c.DataDir, "views")
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Partitions.AdsPrefix == "" {
		return fmt.Errorf("partitions.ads_prefix is required")
	}
	if c.Partitions.Concurrency < 1 || c.Partitions.Concurrency > 64 {
		return fmt.Errorf("partitions.concurrency must be between 1 and 64, got %d", c.Partitions.Concurrency)
	}
	if c.Partitions.InitialMonths < 0 {
		return fmt.Errorf("partitions.initial_months must not be negative, got %d", c.Partitions.InitialMonths)
	}

	if c.Events.Object == "" {
		return fmt.Errorf("events.object is required")
	}
	if c.Events.RowLimit < 0 {
		return fmt.Errorf("events.row_limit must not be negative, got %d", c.Events.RowLimit)
	}

	switch c.Views.Backend {
	case ViewsSQLite, ViewsBadger, ViewsMemory:
	default:
		return fmt.Errorf("invalid views backend: %s (must be sqlite, badger, or memory)", c.Views.Backend)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies environment overrides, e.g. DRILLDOWN_HTTP_ADDR.
// Values that fail to parse are reported and leave the field unchanged.
func LoadFromEnv(cfg *Config) error {
	var errs []string
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q", EnvPrefix, name, v))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q", EnvPrefix, name, v))
				return
			}
			*dst = b
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q", EnvPrefix, name, v))
				return
			}
			*dst = d
		}
	}

	str("DATA_DIR", &cfg.DataDir)

	str("HTTP_ADDR", &cfg.HTTP.Addr)
	dur("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	dur("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	dur("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)
	flag("HTTP_METRICS", &cfg.HTTP.Metrics)
	dur("HTTP_USAGE_WINDOW", &cfg.HTTP.UsageWindow)

	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("S3_BUCKET", &cfg.Storage.S3.Bucket)
	str("S3_PREFIX", &cfg.Storage.S3.Prefix)
	str("S3_REGION", &cfg.Storage.S3.Region)
	str("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	flag("S3_USE_PATH_STYLE", &cfg.Storage.S3.UsePathStyle)
	num("S3_MAX_RETRIES", &cfg.Storage.S3.MaxRetries)

	str("PARTITIONS_ADS_PREFIX", &cfg.Partitions.AdsPrefix)
	num("PARTITIONS_CONCURRENCY", &cfg.Partitions.Concurrency)
	str("PARTITIONS_CACHE_DIR", &cfg.Partitions.CacheDir)
	num("PARTITIONS_INITIAL_MONTHS", &cfg.Partitions.InitialMonths)

	str("EVENTS_OBJECT", &cfg.Events.Object)
	num("EVENTS_ROW_LIMIT", &cfg.Events.RowLimit)
	flag("EVENTS_LOAD_ON_START", &cfg.Events.LoadOnStart)

	str("VIEWS_BACKEND", &cfg.Views.Backend)
	str("VIEWS_PATH", &cfg.Views.Path)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, ", "))
	}
	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.Partitions.CacheDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	switch c.Views.Backend {
	case ViewsSQLite:
		dirs = append(dirs, filepath.Dir(c.Views.Path))
	case ViewsBadger:
		dirs = append(dirs, c.Views.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
