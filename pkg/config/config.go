package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/tagscan/internal/storage"
)

// Output formats accepted by commands that print tag records.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Config holds application configuration
type Config struct {
	LogLevel     string        `yaml:"log_level" default:"info"`
	OutputFormat string        `yaml:"output_format" default:"table"`
	Storage      StorageConfig `yaml:"storage"`
	Scan         ScanConfig    `yaml:"scan"`
	Server       ServerConfig  `yaml:"server"`
	Export       ExportConfig  `yaml:"export"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver" default:"sqlite"`
	// Path is the SQLite file or the Badger directory.
	Path string `yaml:"path" default:"tagscan.db"`
	DSN  string `yaml:"dsn"`
	// SaveRetries is how many extra attempts a failed save gets.
	SaveRetries int `yaml:"save_retries" default:"2"`
}

// ScanConfig drives the simulated reader and the trigger loop.
type ScanConfig struct {
	Interval     time.Duration `yaml:"interval" default:"5s"`
	ConnectDelay time.Duration `yaml:"connect_delay" default:"1500ms"`
	MinTags      int           `yaml:"min_tags" default:"2"`
	MaxTags      int           `yaml:"max_tags" default:"6"`
	RSSIMin      int           `yaml:"rssi_min" default:"-65"`
	RSSIMax      int           `yaml:"rssi_max" default:"-45"`
	RepeatRatio  float64       `yaml:"repeat_ratio" default:"0.3"`
	Seed         uint64        `yaml:"seed"`
	Device       string        `yaml:"device"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// ExportConfig targets an S3-compatible bucket.
type ExportConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix" default:"tagscan"`
	Region          string `yaml:"region" default:"us-east-1"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns the defaults overlaid with the YAML file at path.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	return logrus.ParseLevel(c.LogLevel)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Level(); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch strings.ToLower(c.OutputFormat) {
	case FormatTable, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("output_format: %q (must be %s or %s)", c.OutputFormat, FormatTable, FormatJSON))
	}
	if _, err := storage.ParseDriver(c.Storage.Driver); err != nil {
		errs = append(errs, fmt.Errorf("storage.driver: %w", err))
	}
	if c.Storage.SaveRetries < 0 {
		errs = append(errs, fmt.Errorf("storage.save_retries: must not be negative, got %d", c.Storage.SaveRetries))
	}
	if c.Scan.Interval <= 0 {
		errs = append(errs, fmt.Errorf("scan.interval: must be positive, got %s", c.Scan.Interval))
	}
	if c.Scan.ConnectDelay < 0 {
		errs = append(errs, fmt.Errorf("scan.connect_delay: must not be negative, got %s", c.Scan.ConnectDelay))
	}
	if c.Scan.MinTags < 1 || c.Scan.MaxTags < c.Scan.MinTags {
		errs = append(errs, fmt.Errorf("scan.min_tags/max_tags: need 1 <= min <= max, got %d..%d", c.Scan.MinTags, c.Scan.MaxTags))
	}
	if c.Scan.RSSIMax < c.Scan.RSSIMin {
		errs = append(errs, fmt.Errorf("scan.rssi_min/rssi_max: need min <= max, got %d..%d", c.Scan.RSSIMin, c.Scan.RSSIMax))
	}
	if c.Scan.RepeatRatio < 0 || c.Scan.RepeatRatio > 1 {
		errs = append(errs, fmt.Errorf("scan.repeat_ratio: must be within [0, 1], got %g", c.Scan.RepeatRatio))
	}
	return errors.Join(errs...)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
