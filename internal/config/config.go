package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when --config is not given.
const DefaultFile = "qr-gate.yaml"

const (
	defaultPort   = 5053
	defaultDBPath = "qr_scans.db"
	hostedDBPath  = "/tmp/qr_scans.db"
)

// Config holds all qr-gate configuration.
type Config struct {
	// Env is "production" or "development"; it selects the log encoder.
	Env string `yaml:"env"`

	HTTP    HTTPConfig    `yaml:"http"`
	Store   StoreConfig   `yaml:"store"`
	Scan    ScanConfig    `yaml:"scan"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig configures the web server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig selects the database.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql
	// Path is the SQLite file. Ignored for mysql.
	Path string `yaml:"path"`
	// DSN overrides Path for sqlite and is required for mysql.
	DSN string `yaml:"dsn"`
}

// ScanConfig tunes scan handling.
type ScanConfig struct {
	// Door2Timeout is the limit between door 1 and door 2 of a two-door gate
	// before the completed action is flagged as a red card.
	Door2Timeout string `yaml:"door2_timeout"`
	// DedupeWindow drops a resubmitted identical scan inside the window. "0" disables.
	DedupeWindow string `yaml:"dedupe_window"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Env:  "development",
		HTTP: HTTPConfig{Addr: fmt.Sprintf("0.0.0.0:%d", defaultPort)},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   defaultDBPath,
		},
		Scan: ScanConfig{
			Door2Timeout: "20s",
			DedupeWindow: "1600ms",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error. Callers apply their own overrides and then
// call Validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyEnvOverrides() {
	// Hosted runtimes (Render and similar) inject PORT and may mount the app
	// directory read-only, so the SQLite file moves to /tmp.
	_, hosted := os.LookupEnv("PORT")
	if strings.EqualFold(os.Getenv("RENDER"), "true") {
		hosted = true
	}
	if p := strings.TrimSpace(os.Getenv("DB_PATH")); p != "" {
		c.Store.Path = p
	} else if hosted && c.Store.Path == defaultDBPath {
		c.Store.Path = hostedDBPath
	}

	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			port = defaultPort
		}
		c.HTTP.Addr = fmt.Sprintf("0.0.0.0:%d", port)
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		c.HTTP.Addr = v
	}

	if v := strings.TrimSpace(os.Getenv("STORE_DRIVER")); v != "" {
		c.Store.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("STORE_DSN")); v != "" {
		c.Store.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_ENV")); v != "" {
		c.Env = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("DOOR2_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.Door2Timeout = (time.Duration(n) * time.Second).String()
		}
	}
	if v := strings.TrimSpace(os.Getenv("SCAN_DEDUPE_WINDOW")); v != "" {
		c.Scan.DedupeWindow = v
	}
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" && c.Store.DSN == "" {
			return fmt.Errorf("store.path or store.dsn is required for sqlite")
		}
	case "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if _, err := c.Scan.Door2TimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Scan.DedupeWindowDuration(); err != nil {
		return err
	}
	return nil
}

// Door2TimeoutDuration parses Door2Timeout.
func (s ScanConfig) Door2TimeoutDuration() (time.Duration, error) {
	return parseDuration("scan.door2_timeout", s.Door2Timeout, 20*time.Second)
}

// DedupeWindowDuration parses DedupeWindow.
func (s ScanConfig) DedupeWindowDuration() (time.Duration, error) {
	return parseDuration("scan.dedupe_window", s.DedupeWindow, 0)
}

func parseDuration(name, v string, def time.Duration) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	if v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", name, v)
	}
	return d, nil
}
