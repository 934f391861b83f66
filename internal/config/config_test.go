// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "cloudworker.yaml", `
provider: jules
jules:
  api_key: "test-key"
  base_url: "https://jules.example.com"
  api_version: "v1beta"
  timeout: "5s"
  requests_per_second: 2.5
store:
  driver: sqlite
  path: "/tmp/cw.db"
poll:
  interval: "45s"
  failure_log_window: "2m"
sessions:
  max_review_rounds: 5
notify:
  sink: log
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Jules.APIKey != "test-key" {
		t.Errorf("Jules.APIKey = %q, want %q", cfg.Jules.APIKey, "test-key")
	}
	if cfg.Jules.BaseURL != "https://jules.example.com" {
		t.Errorf("Jules.BaseURL = %q", cfg.Jules.BaseURL)
	}
	if cfg.Jules.APIVersion != "v1beta" {
		t.Errorf("Jules.APIVersion = %q", cfg.Jules.APIVersion)
	}
	if cfg.Jules.Timeout != 5*time.Second {
		t.Errorf("Jules.Timeout = %v, want 5s", cfg.Jules.Timeout)
	}
	if cfg.Jules.RequestsPerSecond != 2.5 {
		t.Errorf("Jules.RequestsPerSecond = %v, want 2.5", cfg.Jules.RequestsPerSecond)
	}
	if cfg.Store.Path != "/tmp/cw.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Poll.Interval != 45*time.Second {
		t.Errorf("Poll.Interval = %v, want 45s", cfg.Poll.Interval)
	}
	if cfg.Poll.FailureLogWindow != 2*time.Minute {
		t.Errorf("Poll.FailureLogWindow = %v, want 2m", cfg.Poll.FailureLogWindow)
	}
	if cfg.Sessions.MaxReviewRounds != 5 {
		t.Errorf("Sessions.MaxReviewRounds = %d, want 5", cfg.Sessions.MaxReviewRounds)
	}
	if cfg.Notify.Sink != SinkLog {
		t.Errorf("Notify.Sink = %q, want log", cfg.Notify.Sink)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "cloudworker.toml", `
provider = "jules"

[jules]
api_key = "toml-key"
timeout = "10s"

[store]
driver = "memory"

[poll]
interval = "1m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Jules.APIKey != "toml-key" {
		t.Errorf("Jules.APIKey = %q", cfg.Jules.APIKey)
	}
	if cfg.Jules.Timeout != 10*time.Second {
		t.Errorf("Jules.Timeout = %v", cfg.Jules.Timeout)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("Store.Driver = %q", cfg.Store.Driver)
	}
	if cfg.Poll.Interval != time.Minute {
		t.Errorf("Poll.Interval = %v", cfg.Poll.Interval)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "cloudworker.yaml", `
jules:
  api_key: "k"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Provider != "jules" {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.Jules.BaseURL != "https://jules.googleapis.com" {
		t.Errorf("Jules.BaseURL = %q", cfg.Jules.BaseURL)
	}
	if cfg.Jules.APIVersion != "v1alpha" {
		t.Errorf("Jules.APIVersion = %q", cfg.Jules.APIVersion)
	}
	if cfg.Jules.Timeout != 30*time.Second {
		t.Errorf("Jules.Timeout = %v", cfg.Jules.Timeout)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("Store.Driver = %q", cfg.Store.Driver)
	}
	if !strings.HasSuffix(cfg.Store.Path, filepath.Join("coven", "cloudworker.db")) {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Poll.Interval != 30*time.Second {
		t.Errorf("Poll.Interval = %v", cfg.Poll.Interval)
	}
	if cfg.Poll.FailureLogWindow != 10*time.Minute {
		t.Errorf("Poll.FailureLogWindow = %v", cfg.Poll.FailureLogWindow)
	}
	if cfg.Sessions.MaxReviewRounds != 3 {
		t.Errorf("Sessions.MaxReviewRounds = %d", cfg.Sessions.MaxReviewRounds)
	}
	if cfg.Notify.Sink != SinkTerminal {
		t.Errorf("Notify.Sink = %q", cfg.Notify.Sink)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("CW_TEST_KEY", "from-env")

	path := writeConfig(t, "cloudworker.yaml", `
jules:
  api_key: "${CW_TEST_KEY}"
store:
  driver: memory
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Jules.APIKey != "from-env" {
		t.Errorf("Jules.APIKey = %q, want from-env", cfg.Jules.APIKey)
	}
}

func TestLoad_APIKeyFromEnvironment(t *testing.T) {
	t.Setenv("JULES_API_KEY", "ambient")

	path := writeConfig(t, "cloudworker.yaml", "store:\n  driver: memory\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Jules.APIKey != "ambient" {
		t.Errorf("Jules.APIKey = %q, want ambient", cfg.Jules.APIKey)
	}
}

func TestLoad_ExpandsHomeInStorePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, "cloudworker.yaml", "jules:\n  api_key: k\nstore:\n  path: \"~/data/cw.db\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(home, "data", "cw.db"); cfg.Store.Path != want {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, want)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("JULES_API_KEY", "")

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing api key", "store:\n  driver: memory\n", "jules.api_key is required"},
		{"unknown provider", "provider: codex\njules:\n  api_key: k\n", "provider \"codex\" is not supported"},
		{"bad driver", "jules:\n  api_key: k\nstore:\n  driver: postgres\n", "store.driver"},
		{"bad duration", "jules:\n  api_key: k\npoll:\n  interval: soon\n", "parsing poll.interval"},
		{"interval too short", "jules:\n  api_key: k\npoll:\n  interval: 10ms\n", "poll.interval must be at least 1s"},
		{"bad sink", "jules:\n  api_key: k\nnotify:\n  sink: pager\n", "notify.sink"},
		{"bad level", "jules:\n  api_key: k\nlogging:\n  level: loud\n", "logging.level"},
		{"bad format", "jules:\n  api_key: k\nlogging:\n  format: xml\n", "logging.format"},
		{"invalid yaml", "jules: [unclosed\n", "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "cloudworker.yaml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("Load() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoadOrDefault_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("JULES_API_KEY", "ambient")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Jules.APIKey != "ambient" {
		t.Errorf("Jules.APIKey = %q", cfg.Jules.APIKey)
	}
	if cfg.Poll.Interval != 30*time.Second {
		t.Errorf("Poll.Interval = %v", cfg.Poll.Interval)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("CLOUDWORKER_CONFIG", "/etc/cw.yaml")
	if got := DefaultPath(); got != "/etc/cw.yaml" {
		t.Errorf("DefaultPath() = %q, want /etc/cw.yaml", got)
	}

	t.Setenv("CLOUDWORKER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got, want := DefaultPath(), filepath.Join("/xdg", "coven", "cloudworker.yaml"); got != want {
		t.Errorf("DefaultPath() = %q, want %q", got, want)
	}
}

func TestDefaultDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got, want := DefaultDataPath(), filepath.Join("/data", "coven", "cloudworker.db"); got != want {
		t.Errorf("DefaultDataPath() = %q, want %q", got, want)
	}
}
