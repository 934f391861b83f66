// ABOUTME: Configuration loading and parsing for coven-cloudworker
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete cloudworker configuration
type Config struct {
	Provider string         `yaml:"provider" toml:"provider"`
	Jules    JulesConfig    `yaml:"jules" toml:"jules"`
	Store    StoreConfig    `yaml:"store" toml:"store"`
	Poll     PollConfig     `yaml:"poll" toml:"poll"`
	Sessions SessionsConfig `yaml:"sessions" toml:"sessions"`
	Notify   NotifyConfig   `yaml:"notify" toml:"notify"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// JulesConfig holds Jules API client configuration
type JulesConfig struct {
	APIKey            string  `yaml:"api_key" toml:"api_key"`
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	APIVersion        string  `yaml:"api_version" toml:"api_version"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// StoreConfig selects the session store
type StoreConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// PollConfig holds background reconciliation timing
type PollConfig struct {
	Interval         time.Duration `yaml:"-" toml:"-"`
	FailureLogWindow time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	IntervalRaw         string `yaml:"interval" toml:"interval"`
	FailureLogWindowRaw string `yaml:"failure_log_window" toml:"failure_log_window"`
}

// SessionsConfig holds defaults for new sessions
type SessionsConfig struct {
	MaxReviewRounds int `yaml:"max_review_rounds" toml:"max_review_rounds"`
}

// NotifyConfig selects where notifications go
type NotifyConfig struct {
	Sink string `yaml:"sink" toml:"sink"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Notification sinks.
const (
	SinkTerminal = "terminal"
	SinkLog      = "log"
)

// Default returns a Config with every default applied and no API key.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(string(data), strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise.
// JULES_API_KEY fills in a missing API key either way.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
		cfg := Default()
		cfg.applyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// Parse decodes configuration text, applies defaults, and validates it.
func Parse(content string, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(content)

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "jules"
	}
	if c.Jules.BaseURL == "" {
		c.Jules.BaseURL = "https://jules.googleapis.com"
	}
	if c.Jules.APIVersion == "" {
		c.Jules.APIVersion = "v1alpha"
	}
	if c.Jules.Timeout == 0 {
		c.Jules.Timeout = 30 * time.Second
	}
	if c.Jules.RequestsPerSecond == 0 {
		c.Jules.RequestsPerSecond = 2
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultDataPath()
	}
	c.Store.Path = expandHome(c.Store.Path)
	if c.Poll.Interval == 0 {
		c.Poll.Interval = 30 * time.Second
	}
	if c.Poll.FailureLogWindow == 0 {
		c.Poll.FailureLogWindow = 10 * time.Minute
	}
	if c.Sessions.MaxReviewRounds == 0 {
		c.Sessions.MaxReviewRounds = 3
	}
	if c.Notify.Sink == "" {
		c.Notify.Sink = SinkTerminal
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) applyEnv() {
	if c.Jules.APIKey == "" {
		c.Jules.APIKey = os.Getenv("JULES_API_KEY")
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Provider != "jules" {
		return fmt.Errorf("provider %q is not supported (want jules)", c.Provider)
	}
	if c.Jules.APIKey == "" {
		return fmt.Errorf("jules.api_key is required (or set JULES_API_KEY)")
	}
	if c.Jules.Timeout < 0 {
		return fmt.Errorf("jules.timeout must not be negative")
	}
	if c.Jules.RequestsPerSecond < 0 {
		return fmt.Errorf("jules.requests_per_second must not be negative")
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not supported (want sqlite or memory)", c.Store.Driver)
	}

	if c.Poll.Interval < time.Second {
		return fmt.Errorf("poll.interval must be at least 1s")
	}
	if c.Poll.FailureLogWindow < 0 {
		return fmt.Errorf("poll.failure_log_window must not be negative")
	}
	if c.Sessions.MaxReviewRounds < 0 {
		return fmt.Errorf("sessions.max_review_rounds must not be negative")
	}

	switch c.Notify.Sink {
	case SinkTerminal, SinkLog:
	default:
		return fmt.Errorf("notify.sink %q is not supported (want terminal or log)", c.Notify.Sink)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not valid", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not valid (want text or json)", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Jules.TimeoutRaw != "" {
		cfg.Jules.Timeout, err = time.ParseDuration(cfg.Jules.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing jules.timeout %q: %w", cfg.Jules.TimeoutRaw, err)
		}
	}

	if cfg.Poll.IntervalRaw != "" {
		cfg.Poll.Interval, err = time.ParseDuration(cfg.Poll.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll.interval %q: %w", cfg.Poll.IntervalRaw, err)
		}
	}

	if cfg.Poll.FailureLogWindowRaw != "" {
		cfg.Poll.FailureLogWindow, err = time.ParseDuration(cfg.Poll.FailureLogWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing poll.failure_log_window %q: %w", cfg.Poll.FailureLogWindowRaw, err)
		}
	}

	return nil
}

// DefaultPath returns the config file location.
// Priority: CLOUDWORKER_CONFIG env var > XDG_CONFIG_HOME/coven/cloudworker.yaml > ~/.config/coven/cloudworker.yaml
func DefaultPath() string {
	if envPath := os.Getenv("CLOUDWORKER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "cloudworker.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "cloudworker.yaml")
}

// DefaultDataPath returns the SQLite database location.
// Priority: XDG_DATA_HOME/coven/cloudworker.db > ~/.local/share/coven/cloudworker.db
func DefaultDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "cloudworker.db"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven", "cloudworker.db")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
