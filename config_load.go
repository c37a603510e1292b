package hexprox

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// ValidateConfig validates a Config for correctness. It does not mutate cfg;
// call ApplyDefaults first if zero values should be filled in.
func ValidateConfig(cfg Config) error {
	if cfg.ExternalBaseURL == "" {
		return fmt.Errorf("external_base_url is required")
	}
	u, err := url.Parse(cfg.ExternalBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("external_base_url %q is not an absolute URL", cfg.ExternalBaseURL)
	}
	if strings.HasSuffix(cfg.ExternalBaseURL, "/") {
		return fmt.Errorf("external_base_url must not end with a slash")
	}

	if cfg.RefreshIntervalMinutes < 0 {
		return fmt.Errorf("refresh_interval_minutes must not be negative")
	}

	switch cfg.SecretStore.Driver {
	case "", "memory", "sqlite", "dynamodb":
	case "postgres":
		if cfg.SecretStore.DSN == "" {
			return fmt.Errorf("secret_store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown secret_store.driver %q", cfg.SecretStore.Driver)
	}
	if cfg.SecretStore.Driver == "dynamodb" && cfg.SecretStore.Table == "" {
		return fmt.Errorf("secret_store.table is required for the dynamodb driver")
	}

	if cfg.RateLimit.PerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	for _, o := range cfg.Origins {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("origins must not contain empty entries")
		}
	}
	return nil
}
