package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.OutputDir != "vsix_files" {
		t.Errorf("Expected default output dir vsix_files, got %q", cfg.OutputDir)
	}
	if cfg.MaxWorkers != 3 || cfg.MaxRetries != 3 {
		t.Errorf("Expected 3 workers and 3 retries, got %d and %d", cfg.MaxWorkers, cfg.MaxRetries)
	}
	if cfg.Portal.PollInterval != 2*time.Second || cfg.Portal.PollChecks != 30 {
		t.Errorf("Expected 30 polls every 2s, got %d every %s", cfg.Portal.PollChecks, cfg.Portal.PollInterval)
	}
	if cfg.Portal.NavTimeout != 30*time.Second || cfg.Portal.ProbeTimeout != 15*time.Second {
		t.Errorf("Expected 30s navigation and 15s probe timeouts, got %s and %s", cfg.Portal.NavTimeout, cfg.Portal.ProbeTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestApplyEnv_Timeouts(t *testing.T) {
	cfg := GetDefaultConfig()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"VSIX_NAV_TIMEOUT":   "45s",
		"VSIX_PROBE_TIMEOUT": "3s",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() unexpected error: %v", err)
	}
	if cfg.Portal.NavTimeout != 45*time.Second || cfg.Portal.ProbeTimeout != 3*time.Second {
		t.Errorf("Unexpected timeouts: %s, %s", cfg.Portal.NavTimeout, cfg.Portal.ProbeTimeout)
	}
	if cfg.Portal.ElementTimeout != 10*time.Second {
		t.Errorf("Expected element timeout untouched, got %s", cfg.Portal.ElementTimeout)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
output_dir: /srv/vsix
max_workers: 6
retry_base_delay: 250ms
portal:
  poll_checks: 10
  skip_existing: true
browser:
  headless: false
report:
  telegram_chat_id: 12345
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() unexpected error: %v", err)
	}

	if cfg.OutputDir != "/srv/vsix" || cfg.MaxWorkers != 6 {
		t.Errorf("Unexpected top level values: %q, %d", cfg.OutputDir, cfg.MaxWorkers)
	}
	if cfg.RetryBaseDelay != 250*time.Millisecond {
		t.Errorf("Expected 250ms base delay, got %s", cfg.RetryBaseDelay)
	}
	if cfg.Portal.PollChecks != 10 || !cfg.Portal.SkipExisting {
		t.Errorf("Unexpected portal values: %d, %v", cfg.Portal.PollChecks, cfg.Portal.SkipExisting)
	}
	if cfg.Browser.Headless {
		t.Error("Expected headless to be disabled")
	}
	if cfg.Report.TelegramChatID != 12345 {
		t.Errorf("Expected chat id 12345, got %d", cfg.Report.TelegramChatID)
	}
	// untouched keys keep their defaults
	if cfg.MaxRetries != 3 || cfg.Portal.URL != "https://vsix.2i.gs/" {
		t.Errorf("Expected defaults to survive, got retries %d url %q", cfg.MaxRetries, cfg.Portal.URL)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("max_workers: [oops"), 0644)
	if _, err := LoadConfig(bad); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := GetDefaultConfig()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"VSIX_DOWNLOAD_PATH":    "out",
		"VSIX_MAX_WORKERS":      "8",
		"VSIX_RETRY_BASE_DELAY": "1s",
		"VSIX_SKIP_EXISTING":    "true",
		"VSIX_NAV_RATE":         "0.5",
		"VSIX_TELEGRAM_CHAT_ID": "-100200300",
		"VSIX_PORTAL_URL":       "",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() unexpected error: %v", err)
	}

	if cfg.OutputDir != "out" || cfg.MaxWorkers != 8 {
		t.Errorf("Unexpected values: %q, %d", cfg.OutputDir, cfg.MaxWorkers)
	}
	if cfg.RetryBaseDelay != time.Second || !cfg.Portal.SkipExisting || cfg.Portal.NavRate != 0.5 {
		t.Errorf("Unexpected values: %s, %v, %v", cfg.RetryBaseDelay, cfg.Portal.SkipExisting, cfg.Portal.NavRate)
	}
	if cfg.Report.TelegramChatID != -100200300 {
		t.Errorf("Expected negative chat id, got %d", cfg.Report.TelegramChatID)
	}
	if cfg.Portal.URL != "https://vsix.2i.gs/" {
		t.Errorf("Expected empty variable to keep default, got %q", cfg.Portal.URL)
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"VSIX_MAX_WORKERS", "three"},
		{"VSIX_RETRY_BASE_DELAY", "5"},
		{"VSIX_SKIP_EXISTING", "maybe"},
		{"VSIX_NAV_RATE", "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := GetDefaultConfig()
			err := cfg.ApplyEnv(mapLookup(map[string]string{tt.key: tt.value}))
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Expected error naming %s, got %v", tt.key, err)
			}
		})
	}
}

func TestApplyEnv_DatabaseFromParts(t *testing.T) {
	cfg := GetDefaultConfig()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"DB_HOST": "db.internal",
		"DB_USER": "runner",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() unexpected error: %v", err)
	}

	want := "host=db.internal port=5432 user=runner password= dbname=vsix_downloader sslmode=disable"
	if cfg.Report.DatabaseURL != want {
		t.Errorf("DatabaseURL = %q, want %q", cfg.Report.DatabaseURL, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.MaxWorkers = 0 }},
		{"negative workers", func(c *Config) { c.MaxWorkers = -2 }},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"empty output", func(c *Config) { c.OutputDir = "" }},
		{"zero poll checks", func(c *Config) { c.Portal.PollChecks = 0 }},
		{"zero poll interval", func(c *Config) { c.Portal.PollInterval = 0 }},
		{"negative delay", func(c *Config) { c.RetryBaseDelay = -time.Second }},
		{"zero delay", func(c *Config) { c.RetryBaseDelay = 0 }},
		{"zero nav timeout", func(c *Config) { c.Portal.NavTimeout = 0 }},
		{"zero probe timeout", func(c *Config) { c.Portal.ProbeTimeout = 0 }},
		{"empty session dir", func(c *Config) { c.Browser.SessionDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("Expected missing .env to be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("VSIX_TEST_ONLY_VALUE=from-file\n"), 0644)
	t.Setenv("VSIX_TEST_ONLY_VALUE", "")
	os.Unsetenv("VSIX_TEST_ONLY_VALUE")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() unexpected error: %v", err)
	}
	if got := os.Getenv("VSIX_TEST_ONLY_VALUE"); got != "from-file" {
		t.Errorf("Expected value from .env, got %q", got)
	}
}
