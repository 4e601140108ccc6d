// Package config reads tool settings from the environment, an optional .env
// file and an optional config file. Environment variables use the NPPES_
// prefix, e.g. NPPES_DATA_DIR.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"nppestool/export"
	"nppestool/npdata"
)

// Validation levels. "none" turns off header validation and "strict" makes
// every bad row fatal regardless of SkipInvalid.
const (
	ValidationNone     = "none"
	ValidationBasic    = "basic"
	ValidationStandard = "standard"
	ValidationStrict   = "strict"
)

type Config struct {
	DataDir          string        `mapstructure:"DATA_DIR"`
	SkipInvalid      bool          `mapstructure:"SKIP_INVALID"`
	IndexOnLoad      bool          `mapstructure:"INDEX_ON_LOAD"`
	ValidateHeaders  bool          `mapstructure:"VALIDATE_HEADERS"`
	MemoryLimit      int64         `mapstructure:"-"`
	BatchSize        int           `mapstructure:"BATCH_SIZE"`
	Progress         bool          `mapstructure:"PROGRESS"`
	ExportFormat     string        `mapstructure:"EXPORT_FORMAT"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	LogDev           bool          `mapstructure:"LOG_DEV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	KafkaBrokers     []string      `mapstructure:"-"`
	KafkaTopic       string        `mapstructure:"KAFKA_TOPIC"`
	HTTPAddr         string        `mapstructure:"HTTP_ADDR"`
	OTLPEndpoint     string        `mapstructure:"OTLP_ENDPOINT"`
	DownloadDir      string        `mapstructure:"DOWNLOAD_DIR"`
	DownloadTimeout  time.Duration `mapstructure:"DOWNLOAD_TIMEOUT"`
	MaxDownloadBytes int64         `mapstructure:"-"`
	TempDir          string        `mapstructure:"TEMP_DIR"`
	ValidationLevel  string        `mapstructure:"VALIDATION_LEVEL"`
}

var keys = []string{
	"DATA_DIR", "SKIP_INVALID", "INDEX_ON_LOAD", "VALIDATE_HEADERS", "MEMORY_LIMIT",
	"BATCH_SIZE", "PROGRESS", "EXPORT_FORMAT", "LOG_LEVEL", "LOG_DEV",
	"DATABASE_URL", "KAFKA_BROKERS", "KAFKA_TOPIC", "HTTP_ADDR", "OTLP_ENDPOINT",
	"DOWNLOAD_DIR", "DOWNLOAD_TIMEOUT", "MAX_DOWNLOAD_BYTES", "TEMP_DIR", "VALIDATION_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATA_DIR", ".")
	v.SetDefault("SKIP_INVALID", false)
	v.SetDefault("INDEX_ON_LOAD", true)
	v.SetDefault("VALIDATE_HEADERS", true)
	v.SetDefault("MEMORY_LIMIT", "0")
	v.SetDefault("BATCH_SIZE", 10000)
	v.SetDefault("PROGRESS", false)
	v.SetDefault("EXPORT_FORMAT", "json")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEV", false)
	v.SetDefault("KAFKA_TOPIC", "nppes.providers")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DOWNLOAD_DIR", "nppes_data")
	v.SetDefault("DOWNLOAD_TIMEOUT", "300s")
	v.SetDefault("MAX_DOWNLOAD_BYTES", "20GiB")
	v.SetDefault("VALIDATION_LEVEL", ValidationStandard)
}

// Load reads .env from the working directory if present, then the
// environment, then path when non-empty. Environment values win over the
// file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, configError("load .env", err)
	}

	v := viper.New()
	v.SetEnvPrefix("NPPES")
	v.AutomaticEnv()
	setDefaults(v)
	for _, k := range keys {
		v.BindEnv(k)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, configError("read config "+path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, configError("unmarshal config", err)
	}
	var err error
	if cfg.MemoryLimit, err = parseSize(v.GetString("MEMORY_LIMIT")); err != nil {
		return nil, configError("NPPES_MEMORY_LIMIT", err)
	}
	if cfg.MaxDownloadBytes, err = parseSize(v.GetString("MAX_DOWNLOAD_BYTES")); err != nil {
		return nil, configError("NPPES_MAX_DOWNLOAD_BYTES", err)
	}
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.ValidationLevel = strings.ToLower(strings.TrimSpace(cfg.ValidationLevel))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configError(msg string, err error) error {
	return &npdata.Error{Kind: npdata.KindConfiguration, Message: msg, Err: err}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseSize accepts plain byte counts and sizes such as "8GB" or "512MiB".
// Decimal and binary suffixes are both read as powers of 1024.
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "0" {
		return 0, nil
	}
	units := []struct {
		suffix string
		mult   int64
	}{
		{"TIB", 1 << 40}, {"GIB", 1 << 30}, {"MIB", 1 << 20}, {"KIB", 1 << 10},
		{"TB", 1 << 40}, {"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10},
		{"T", 1 << 40}, {"G", 1 << 30}, {"M", 1 << 20}, {"K", 1 << 10},
		{"B", 1},
	}
	mult := int64(1)
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(n * float64(mult)), nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return configError(fmt.Sprintf("NPPES_BATCH_SIZE must be positive, got %d", c.BatchSize), nil)
	}
	switch c.ValidationLevel {
	case ValidationNone, ValidationBasic, ValidationStandard, ValidationStrict:
	default:
		return configError(fmt.Sprintf("NPPES_VALIDATION_LEVEL must be none, basic, standard or strict, got %q", c.ValidationLevel), nil)
	}
	if _, err := export.ParseFormat(c.ExportFormat); err != nil {
		return err
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return configError("NPPES_LOG_LEVEL", err)
	}
	if c.DownloadTimeout <= 0 {
		return configError("NPPES_DOWNLOAD_TIMEOUT must be positive", nil)
	}
	return nil
}

// LoadOptions converts the config into loader options.
func (c *Config) LoadOptions(logger *zap.Logger) npdata.LoadOptions {
	opts := npdata.DefaultLoadOptions()
	opts.SkipInvalidRecords = c.SkipInvalid
	opts.BuildIndexes = c.IndexOnLoad
	opts.ValidateHeaders = c.ValidateHeaders
	opts.MemoryLimitBytes = c.MemoryLimit
	opts.Logger = logger
	switch c.ValidationLevel {
	case ValidationNone:
		opts.ValidateHeaders = false
	case ValidationStrict:
		opts.ValidateHeaders = true
		opts.SkipInvalidRecords = false
	}
	return opts
}

// ExportOptions converts the config into exporter options. BatchSize sizes
// SQL INSERT statements, PostgreSQL COPY transactions and Kafka batches.
func (c *Config) ExportOptions(logger *zap.Logger) export.Options {
	opts := export.DefaultOptions()
	opts.BatchSize = c.BatchSize
	opts.Logger = logger
	return opts
}
