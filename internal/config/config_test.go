package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{"archive_dir": "/data/warc"}`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.DBDriver != "postgres" || cfg.BatchSize != 1000 || cfg.EnrichWorkers != 4 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.CaptureDir != "/data/warc" {
		t.Errorf("CaptureDir = %q, want archive_dir", cfg.CaptureDir)
	}
	if !reflect.DeepEqual(cfg.ReportPartitions, []string{"date"}) || !reflect.DeepEqual(cfg.ReportFormats, []string{"json"}) {
		t.Errorf("report defaults = %v %v", cfg.ReportPartitions, cfg.ReportFormats)
	}
	if cfg.RequestTimeout() != 10*time.Second || cfg.ProgressInterval() != 10*time.Second {
		t.Errorf("durations = %v %v", cfg.RequestTimeout(), cfg.ProgressInterval())
	}
	if cfg.CategorizeAPIKey != "" {
		t.Error("categorization must be disabled by default")
	}
}

func TestLoadConfigFileValues(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{
		"archive_dir": "warc",
		"db_driver": "SQLite3",
		"db_dsn": "links.db",
		"enrich_workers": 1,
		"report_partitions": ["date", "hour"],
		"report_formats": ["json", "xlsx", "parquet"],
		"capture_dir": "captures"
	}`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.DBDriver != "sqlite3" || cfg.DBDSN != "links.db" || cfg.EnrichWorkers != 1 || cfg.CaptureDir != "captures" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.ReportFormats, []string{"json", "xlsx", "parquet"}) {
		t.Errorf("ReportFormats = %v", cfg.ReportFormats)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("LINKSCOPE_CATEGORIZE_API_KEY", "secret")
	t.Setenv("LINKSCOPE_ENRICH_WORKERS", "8")

	cfg, err := LoadConfig(writeConfig(t, `{"enrich_workers": 2}`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CategorizeAPIKey != "secret" || cfg.EnrichWorkers != 8 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"driver", `{"db_driver": "mysql"}`, "db_driver"},
		{"timeout", `{"request_timeout_ms": 500}`, "request_timeout_ms"},
		{"workers", `{"enrich_workers": -1}`, "enrich_workers"},
		{"batch", `{"batch_size": -5}`, "batch_size"},
		{"batch over bind limit", `{"batch_size": 9363}`, "batch_size"},
		{"partition", `{"report_partitions": ["minute"]}`, "report_partitions"},
		{"format", `{"report_formats": ["csv"]}`, "report_formats"},
		{"log level", `{"log_level": "loud"}`, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %s error, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, `{"archive_dir": `)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestRequireArchiveDir(t *testing.T) {
	cfg := &Config{}
	if !errors.Is(cfg.RequireArchiveDir(), ErrArchiveDirRequired) {
		t.Error("expected ErrArchiveDirRequired")
	}
	cfg.ArchiveDir = "warc"
	if cfg.RequireArchiveDir() != nil {
		t.Error("configured archive_dir must pass")
	}
}
