package iotanomaly

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IOTANOMALY_"

// LoadConfig builds the effective configuration: defaults, then the YAML file at path
// (skipped when path is empty), then a .env file in the working directory if present,
// then IOTANOMALY_* environment variables. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			var out []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			*dst = out
		}
	}

	str("HTTP_ADDR", &c.HTTP.Addr)
	integer("HTTP_RATE_LIMIT", &c.HTTP.RateLimitPerSecond)
	duration("HTTP_READ_TIMEOUT", &c.HTTP.ReadTimeout)
	duration("HTTP_WRITE_TIMEOUT", &c.HTTP.WriteTimeout)

	str("DETECTION_MODEL", &c.Detection.Model)
	float("DETECTION_CONTAMINATION", &c.Detection.Contamination)
	integer("DETECTION_MAX_ROWS", &c.Detection.MaxRows)

	integer("DASHBOARD_MAX_CHART_POINTS", &c.Dashboard.MaxChartPoints)

	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("STORAGE_PATH", &c.Storage.Path)
	integer("STORAGE_MAX_RUNS", &c.Storage.MaxRuns)
	str("S3_BUCKET", &c.Storage.S3.Bucket)
	str("S3_PREFIX", &c.Storage.S3.Prefix)
	str("S3_REGION", &c.Storage.S3.Region)
	str("S3_ENDPOINT", &c.Storage.S3.Endpoint)
	str("S3_ACCESS_KEY_ID", &c.Storage.S3.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &c.Storage.S3.SecretAccessKey)
	boolean("ENCRYPTION_ENABLED", &c.Storage.Encryption.Enabled)
	str("ENCRYPTION_PASSWORD", &c.Storage.Encryption.KeyPassword)

	boolean("INGEST_ENABLED", &c.Ingest.Enabled)
	integer("INGEST_MAX_ROWS", &c.Ingest.MaxRows)

	boolean("STREAM_ENABLED", &c.Stream.Enabled)

	boolean("AUTH_ENABLED", &c.Auth.Enabled)
	list("AUTH_API_KEYS", &c.Auth.APIKeys)
	list("AUTH_READ_ONLY_KEYS", &c.Auth.ReadOnlyKeys)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}
