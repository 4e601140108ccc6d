package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"nppestool/npdata"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BatchSize != 10000 {
		t.Errorf("BatchSize = %d, want 10000", cfg.BatchSize)
	}
	if cfg.ExportFormat != "json" || cfg.ValidationLevel != ValidationStandard {
		t.Errorf("format %q level %q", cfg.ExportFormat, cfg.ValidationLevel)
	}
	if !cfg.IndexOnLoad || !cfg.ValidateHeaders || cfg.SkipInvalid {
		t.Errorf("flags = index %v headers %v skip %v", cfg.IndexOnLoad, cfg.ValidateHeaders, cfg.SkipInvalid)
	}
	if cfg.DownloadTimeout != 300*time.Second {
		t.Errorf("DownloadTimeout = %v, want 5m0s", cfg.DownloadTimeout)
	}
	if cfg.MaxDownloadBytes != 20<<30 {
		t.Errorf("MaxDownloadBytes = %d, want %d", cfg.MaxDownloadBytes, int64(20<<30))
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NPPES_DATA_DIR", "/data/nppes")
	t.Setenv("NPPES_SKIP_INVALID", "true")
	t.Setenv("NPPES_BATCH_SIZE", "500")
	t.Setenv("NPPES_MEMORY_LIMIT", "8GB")
	t.Setenv("NPPES_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("NPPES_DOWNLOAD_TIMEOUT", "90s")
	t.Setenv("NPPES_VALIDATION_LEVEL", "STRICT")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/data/nppes" || !cfg.SkipInvalid || cfg.BatchSize != 500 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MemoryLimit != 8<<30 {
		t.Errorf("MemoryLimit = %d", cfg.MemoryLimit)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %q", cfg.KafkaBrokers)
	}
	if cfg.DownloadTimeout != 90*time.Second || cfg.ValidationLevel != ValidationStrict {
		t.Errorf("timeout %v level %q", cfg.DownloadTimeout, cfg.ValidationLevel)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nppes.yaml")
	if err := os.WriteFile(path, []byte("data_dir: /srv/nppes\nexport_format: parquet\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NPPES_EXPORT_FORMAT", "sql")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/srv/nppes" {
		t.Errorf("DataDir = %q, want value from file", cfg.DataDir)
	}
	if cfg.ExportFormat != "sql" {
		t.Errorf("ExportFormat = %q, want environment to win", cfg.ExportFormat)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if npdata.ErrorKindOf(err) != npdata.KindConfiguration {
		t.Errorf("got %v, want Configuration error", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct{ key, value string }{
		{"NPPES_BATCH_SIZE", "0"},
		{"NPPES_VALIDATION_LEVEL", "paranoid"},
		{"NPPES_EXPORT_FORMAT", "xml"},
		{"NPPES_LOG_LEVEL", "loud"},
		{"NPPES_MEMORY_LIMIT", "lots"},
		{"NPPES_DOWNLOAD_TIMEOUT", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			if npdata.ErrorKindOf(err) != npdata.KindConfiguration {
				t.Errorf("%s=%s: got %v, want Configuration error", tt.key, tt.value, err)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"1024", 1024},
		{"512MiB", 512 << 20},
		{"1.5g", 3 << 29},
		{"2 KB", 2048},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in)
		if err != nil {
			t.Errorf("parseSize(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLoadOptionsValidationLevel(t *testing.T) {
	cfg := &Config{SkipInvalid: true, ValidateHeaders: true, IndexOnLoad: true, ValidationLevel: ValidationNone}
	opts := cfg.LoadOptions(nil)
	if opts.ValidateHeaders || !opts.SkipInvalidRecords {
		t.Errorf("none: headers %v skip %v", opts.ValidateHeaders, opts.SkipInvalidRecords)
	}

	cfg.ValidationLevel = ValidationStrict
	cfg.ValidateHeaders = false
	opts = cfg.LoadOptions(nil)
	if !opts.ValidateHeaders || opts.SkipInvalidRecords {
		t.Errorf("strict: headers %v skip %v", opts.ValidateHeaders, opts.SkipInvalidRecords)
	}

	cfg.ValidationLevel = ValidationStandard
	cfg.MemoryLimit = 1 << 30
	opts = cfg.LoadOptions(nil)
	if !opts.SkipInvalidRecords || opts.MemoryLimitBytes != 1<<30 || !opts.BuildIndexes {
		t.Errorf("standard: %+v", opts)
	}
}
