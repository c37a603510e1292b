package hexprox

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_YAML(t *testing.T) {
	data := `
listen: ":9090"
external_base_url: https://tiles.example.gov
origins:
  - https://maps.conservation.ca.gov
  - https://*.ca.gov
refresh_interval_minutes: 15
secret_store:
  driver: sqlite
  dsn: /var/lib/hexprox/secrets.db
rate_limit:
  per_second: 20
  burst: 40
`
	path := writeTempFile(t, "config.yaml", data)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q, want %q", cfg.Listen, ":9090")
	}
	if cfg.ExternalBaseURL != "https://tiles.example.gov" {
		t.Errorf("external_base_url = %q", cfg.ExternalBaseURL)
	}
	if len(cfg.Origins) != 2 {
		t.Errorf("expected 2 origins, got %d", len(cfg.Origins))
	}
	if cfg.RefreshIntervalMinutes != 15 {
		t.Errorf("refresh_interval_minutes = %d, want 15", cfg.RefreshIntervalMinutes)
	}
	if cfg.SecretStore.Driver != "sqlite" {
		t.Errorf("secret_store.driver = %q", cfg.SecretStore.Driver)
	}
	if cfg.RateLimit.PerSecond != 20 {
		t.Errorf("rate_limit.per_second = %v, want 20", cfg.RateLimit.PerSecond)
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	data := `{
		"external_base_url": "https://tiles.example.gov",
		"secret_store": {"driver": "dynamodb", "table": "hexprox-secrets", "region": "us-west-2"}
	}`
	path := writeTempFile(t, "config.json", data)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SecretStore.Table != "hexprox-secrets" {
		t.Errorf("secret_store.table = %q", cfg.SecretStore.Table)
	}
	if cfg.SecretStore.Region != "us-west-2" {
		t.Errorf("secret_store.region = %q", cfg.SecretStore.Region)
	}
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig("/tmp/does-not-exist-config-12345.yaml")
	if err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeTempFile(t, "bad.json", `{invalid`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoadConfig_UnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "config.toml", `listen = ":8080"`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{ExternalBaseURL: "https://tiles.example.gov"}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(*Config) {}, false},
		{"missing external base url", func(c *Config) { c.ExternalBaseURL = "" }, true},
		{"relative external base url", func(c *Config) { c.ExternalBaseURL = "tiles.example.gov" }, true},
		{"trailing slash", func(c *Config) { c.ExternalBaseURL = "https://tiles.example.gov/" }, true},
		{"negative refresh interval", func(c *Config) { c.RefreshIntervalMinutes = -1 }, true},
		{"postgres without dsn", func(c *Config) { c.SecretStore.Driver = "postgres" }, true},
		{"postgres with dsn", func(c *Config) {
			c.SecretStore.Driver = "postgres"
			c.SecretStore.DSN = "postgres://localhost/hexprox"
		}, false},
		{"dynamodb without table", func(c *Config) { c.SecretStore.Driver = "dynamodb" }, true},
		{"unknown driver", func(c *Config) { c.SecretStore.Driver = "etcd" }, true},
		{"negative rate limit", func(c *Config) { c.RateLimit.PerSecond = -1 }, true},
		{"empty origin entry", func(c *Config) { c.Origins = []string{"https://a.example", " "} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr && err == nil {
				t.Fatal("expected a validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Listen != ":8080" {
		t.Errorf("listen = %q, want %q", cfg.Listen, ":8080")
	}
	if cfg.RefreshIntervalMinutes != 30 {
		t.Errorf("refresh_interval_minutes = %d, want 30", cfg.RefreshIntervalMinutes)
	}
	if len(cfg.Origins) != len(DefaultOrigins) {
		t.Errorf("default origins not applied")
	}

	// Explicit values survive.
	cfg = Config{Listen: ":9999", RefreshIntervalMinutes: 5, Origins: []string{"https://a.example"}}
	cfg.ApplyDefaults()
	if cfg.Listen != ":9999" || cfg.RefreshIntervalMinutes != 5 || len(cfg.Origins) != 1 {
		t.Error("ApplyDefaults overwrote explicit values")
	}
}
