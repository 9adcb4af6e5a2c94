package iotanomaly

import (
	"errors"
	"fmt"
	"time"
)

// Config defines service configuration.
type Config struct {
	// HTTP configures the HTTP API server.
	HTTP HTTPConfig `yaml:"http"`

	// Detection configures the anomaly detector.
	Detection DetectionConfig `yaml:"detection"`

	// Dashboard configures the derived dashboard views.
	Dashboard DashboardConfig `yaml:"dashboard"`

	// Storage configures where analysis runs are persisted.
	Storage StorageConfig `yaml:"storage"`

	// Ingest configures the Prometheus remote-write ingest buffer.
	Ingest IngestConfig `yaml:"ingest"`

	// Stream configures the WebSocket event stream.
	Stream StreamConfig `yaml:"stream"`

	// Auth configures HTTP API authentication.
	// If Enabled is false, no authentication is required.
	Auth AuthConfig `yaml:"auth"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// HTTPConfig groups HTTP server settings.
type HTTPConfig struct {
	// Addr is the listen address.
	// Default: ":5000".
	Addr string `yaml:"addr"`

	// MaxUploadBytes caps the size of an uploaded CSV.
	// Default: 32MB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// RateLimitPerSecond is the maximum requests per second per IP.
	// Default: 100. Set to 0 to disable rate limiting.
	RateLimitPerSecond int `yaml:"rate_limit_per_second"`

	// ReadTimeout bounds reading a request including its body.
	// Default: 30 seconds.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response.
	// Default: 60 seconds.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DetectionConfig groups anomaly detector settings.
type DetectionConfig struct {
	// Model is "isolation_forest" or "statistical".
	// Default: "isolation_forest".
	Model string `yaml:"model"`

	// Contamination is the default expected share of anomalies, in (0, 0.5].
	// Default: 0.03.
	Contamination float64 `yaml:"contamination"`

	// NumTrees is the number of isolation trees.
	// Default: 100.
	NumTrees int `yaml:"num_trees"`

	// SampleSize is the per-tree subsample size.
	// Default: 256.
	SampleSize int `yaml:"sample_size"`

	// Seed makes detection reproducible.
	// Default: 42.
	Seed int64 `yaml:"seed"`

	// MaxRows rejects inputs with more rows. 0 means unlimited.
	// Default: 200,000.
	MaxRows int `yaml:"max_rows"`

	// SamplePoints is the default row count of generated sample data.
	// Default: 1000.
	SamplePoints int `yaml:"sample_points"`
}

// DashboardConfig groups dashboard view settings.
type DashboardConfig struct {
	// MaxChartPoints caps the rows stored for charting. Every anomaly is kept.
	// Default: 2000.
	MaxChartPoints int `yaml:"max_chart_points"`

	// AnomalyLimit is the default number of ranked anomalies returned by a view.
	// Default: 50.
	AnomalyLimit int `yaml:"anomaly_limit"`

	// ContextRows is the number of rows on each side of an anomaly in the detail view.
	// Default: 10.
	ContextRows int `yaml:"context_rows"`
}

// StorageConfig groups run persistence settings.
type StorageConfig struct {
	// Backend is one of "memory", "file", "sqlite" or "s3".
	// Default: "memory".
	Backend string `yaml:"backend"`

	// Path is the directory for the file backend or the database file for SQLite.
	Path string `yaml:"path"`

	// S3 configures the S3 backend.
	S3 S3BackendConfig `yaml:"s3"`

	// Encryption configures encryption of stored runs.
	// If Enabled is false, runs are stored unencrypted.
	Encryption EncryptionConfig `yaml:"encryption"`

	// MaxRuns evicts the oldest runs above this count. 0 means unlimited.
	// Default: 100.
	MaxRuns int `yaml:"max_runs"`
}

// IngestConfig groups live ingest settings.
type IngestConfig struct {
	// Enabled enables the Prometheus remote write endpoint.
	// Default: true.
	Enabled bool `yaml:"enabled"`

	// MaxRows bounds the ingest buffer; the oldest timestamps are evicted.
	// Default: 50,000.
	MaxRows int `yaml:"max_rows"`

	// Resolution rounds sample timestamps so metrics written together share a row.
	// Default: 1 second.
	Resolution time.Duration `yaml:"resolution"`
}

// StreamConfig groups event stream settings.
type StreamConfig struct {
	// Enabled enables the /ws endpoint.
	// Default: true.
	Enabled bool `yaml:"enabled"`

	// BufferSize is the per-client event buffer; events are dropped when full.
	// Default: 64.
	BufferSize int `yaml:"buffer_size"`

	// PingInterval is how often idle clients are pinged.
	// Default: 30 seconds.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// AuthConfig configures HTTP API authentication.
type AuthConfig struct {
	// Enabled enables authentication on HTTP endpoints.
	Enabled bool `yaml:"enabled"`

	// APIKeys is a list of valid API keys. At least one must be provided if Enabled is true.
	APIKeys []string `yaml:"api_keys"`

	// ReadOnlyKeys is a list of API keys that only allow read operations.
	// These keys cannot upload, ingest or delete.
	ReadOnlyKeys []string `yaml:"read_only_keys"`

	// ExcludePaths are paths that don't require authentication (e.g., /health).
	ExcludePaths []string `yaml:"exclude_paths"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	// Default: text.
	Format string `yaml:"format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:               ":5000",
			MaxUploadBytes:     32 << 20,
			RateLimitPerSecond: 100,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       60 * time.Second,
			ShutdownTimeout:    10 * time.Second,
		},
		Detection: DetectionConfig{
			Model:         "isolation_forest",
			Contamination: 0.03,
			NumTrees:      100,
			SampleSize:    256,
			Seed:          42,
			MaxRows:       200_000,
			SamplePoints:  1000,
		},
		Dashboard: DashboardConfig{
			MaxChartPoints: MaxChartPoints,
			AnomalyLimit:   AnomalyPageSize,
			ContextRows:    DetailContextRows,
		},
		Storage: StorageConfig{
			Backend: "memory",
			MaxRuns: 100,
		},
		Ingest: IngestConfig{
			Enabled:    true,
			MaxRows:    50_000,
			Resolution: time.Second,
		},
		Stream: StreamConfig{
			Enabled:      true,
			BufferSize:   64,
			PingInterval: 30 * time.Second,
		},
		Auth: AuthConfig{
			ExcludePaths: []string{"/health", "/metrics"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("http.max_upload_bytes must be positive"))
	}
	if c.HTTP.RateLimitPerSecond < 0 {
		errs = append(errs, errors.New("http.rate_limit_per_second must not be negative"))
	}
	if err := validateContamination(c.Detection.Contamination); err != nil {
		errs = append(errs, fmt.Errorf("detection.contamination: %w", err))
	}
	if _, err := detectorModel(c.Detection.Model); err != nil {
		errs = append(errs, fmt.Errorf("detection.model: %w", err))
	}
	if c.Detection.MaxRows < 0 {
		errs = append(errs, errors.New("detection.max_rows must not be negative"))
	}
	if c.Dashboard.MaxChartPoints <= 0 {
		errs = append(errs, errors.New("dashboard.max_chart_points must be positive"))
	}
	if c.Dashboard.AnomalyLimit <= 0 {
		errs = append(errs, errors.New("dashboard.anomaly_limit must be positive"))
	}
	if c.Dashboard.ContextRows < 0 {
		errs = append(errs, errors.New("dashboard.context_rows must not be negative"))
	}
	switch c.Storage.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend))
	}
	if c.Storage.Encryption.Enabled && len(c.Storage.Encryption.Key) == 0 && c.Storage.Encryption.KeyPassword == "" {
		errs = append(errs, errors.New("storage.encryption requires key or key_password"))
	}
	if c.Ingest.MaxRows <= 0 {
		errs = append(errs, errors.New("ingest.max_rows must be positive"))
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 && len(c.Auth.ReadOnlyKeys) == 0 {
		errs = append(errs, errors.New("auth.api_keys must not be empty when auth is enabled"))
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

func validateContamination(c float64) error {
	if !(c > 0 && c <= 0.5) {
		return fmt.Errorf("%w: got %v", ErrInvalidContamination, c)
	}
	return nil
}
