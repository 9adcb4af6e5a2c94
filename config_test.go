package iotanomaly

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kandarlubis31/iot-anomaly-detector/internal/testutil"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTP.Addr != ":5000" {
		t.Errorf("expected addr :5000, got %s", cfg.HTTP.Addr)
	}
	if cfg.Detection.Contamination != 0.03 {
		t.Errorf("default contamination should be 0.03, got %v", cfg.Detection.Contamination)
	}
	if cfg.Detection.Model != "isolation_forest" {
		t.Errorf("default model should be isolation_forest, got %s", cfg.Detection.Model)
	}
	if cfg.Dashboard.MaxChartPoints != MaxChartPoints {
		t.Errorf("default max chart points should be %d", MaxChartPoints)
	}
	if cfg.Dashboard.AnomalyLimit != AnomalyPageSize {
		t.Errorf("default anomaly limit should be %d", AnomalyPageSize)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("default backend should be memory, got %s", cfg.Storage.Backend)
	}
	if cfg.Ingest.Resolution != time.Second {
		t.Error("default ingest resolution should be 1 second")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"zero contamination", func(c *Config) { c.Detection.Contamination = 0 }, "detection.contamination"},
		{"high contamination", func(c *Config) { c.Detection.Contamination = 0.6 }, "detection.contamination"},
		{"unknown model", func(c *Config) { c.Detection.Model = "kmeans" }, "detection.model"},
		{"file without path", func(c *Config) { c.Storage.Backend = "file" }, "storage.path"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, "storage.s3.bucket"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "tape" }, "not supported"},
		{"encryption without key", func(c *Config) { c.Storage.Encryption.Enabled = true }, "storage.encryption"},
		{"auth without keys", func(c *Config) { c.Auth.Enabled = true }, "auth.api_keys"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero chart points", func(c *Config) { c.Dashboard.MaxChartPoints = 0 }, "dashboard.max_chart_points"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTP.Addr = ""
	cfg.Detection.Contamination = 1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "http.addr") || !strings.Contains(err.Error(), "detection.contamination") {
		t.Errorf("expected both problems reported, got %v", err)
	}
	if !errors.Is(err, ErrInvalidContamination) {
		t.Error("expected joined error to match ErrInvalidContamination")
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	env := map[string]string{
		"IOTANOMALY_HTTP_ADDR":               ":9000",
		"IOTANOMALY_DETECTION_CONTAMINATION": "0.1",
		"IOTANOMALY_STORAGE_MAX_RUNS":        "7",
		"IOTANOMALY_STREAM_ENABLED":          "false",
		"IOTANOMALY_HTTP_READ_TIMEOUT":       "5s",
		"IOTANOMALY_AUTH_API_KEYS":           "a, b,,c",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("addr = %s", cfg.HTTP.Addr)
	}
	if cfg.Detection.Contamination != 0.1 {
		t.Errorf("contamination = %v", cfg.Detection.Contamination)
	}
	if cfg.Storage.MaxRuns != 7 {
		t.Errorf("max runs = %d", cfg.Storage.MaxRuns)
	}
	if cfg.Stream.Enabled {
		t.Error("expected stream disabled")
	}
	if cfg.HTTP.ReadTimeout != 5*time.Second {
		t.Errorf("read timeout = %v", cfg.HTTP.ReadTimeout)
	}
	if len(cfg.Auth.APIKeys) != 3 || cfg.Auth.APIKeys[1] != "b" {
		t.Errorf("api keys = %v", cfg.Auth.APIKeys)
	}
}

func TestConfig_ApplyEnvInvalid(t *testing.T) {
	lookup := func(k string) (string, bool) {
		switch k {
		case "IOTANOMALY_STORAGE_MAX_RUNS":
			return "many", true
		case "IOTANOMALY_STREAM_ENABLED":
			return "perhaps", true
		}
		return "", false
	}
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(lookup)
	if err == nil {
		t.Fatal("expected parse errors")
	}
	if !strings.Contains(err.Error(), "IOTANOMALY_STORAGE_MAX_RUNS") || !strings.Contains(err.Error(), "IOTANOMALY_STREAM_ENABLED") {
		t.Errorf("expected both keys reported, got %v", err)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	_, path := testutil.TempPath(t, "config.yaml")
	data := `
http:
  addr: ":7000"
detection:
  contamination: 0.05
dashboard:
  max_chart_points: 500
storage:
  backend: memory
  max_runs: 3
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Errorf("addr = %s", cfg.HTTP.Addr)
	}
	if cfg.Detection.Contamination != 0.05 {
		t.Errorf("contamination = %v", cfg.Detection.Contamination)
	}
	if cfg.Dashboard.MaxChartPoints != 500 {
		t.Errorf("max chart points = %d", cfg.Dashboard.MaxChartPoints)
	}
	// Unset fields keep their defaults.
	if cfg.Detection.NumTrees != 100 {
		t.Errorf("num trees = %d", cfg.Detection.NumTrees)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir, path := testutil.TempPath(t, "bad.yaml")

	if _, err := LoadConfig(dir + "/missing.yaml"); err == nil {
		t.Error("expected error for missing file")
	}

	if err := os.WriteFile(path, []byte("detection: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected parse error")
	}

	if err := os.WriteFile(path, []byte("detection:\n  contamination: 0.9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); !errors.Is(err, ErrInvalidContamination) {
		t.Errorf("expected ErrInvalidContamination, got %v", err)
	}
}
