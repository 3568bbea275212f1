package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddress        = "127.0.0.1:8123"
	DefaultBufferCapacity = 1000
	DefaultQueryLimit     = 100
	DefaultLookupTimeout  = 2 * time.Second
	DefaultContentTimeout = 3 * time.Second
	DefaultGracePeriod    = 500 * time.Millisecond
	DefaultAdapterRate    = 20.0
	DefaultAdapterBurst   = 10
	DefaultLogLevel       = "info"
)

type Config struct {
	Address        string        `yaml:"address"`
	DatabasePath   string        `yaml:"database_path"`
	BufferCapacity int           `yaml:"buffer_capacity"`
	QueryLimit     int           `yaml:"query_limit"`
	AdapterURL     string        `yaml:"adapter_url,omitempty"`
	LookupTimeout  time.Duration `yaml:"lookup_timeout"`
	ContentTimeout time.Duration `yaml:"content_timeout"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	AdapterRate    float64       `yaml:"adapter_rate"`
	AdapterBurst   int           `yaml:"adapter_burst"`
	LogLevel       string        `yaml:"log_level"`
	LogFile        string        `yaml:"log_file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Address:        DefaultAddress,
		DatabasePath:   filepath.Join(DataDir(), "events.db"),
		BufferCapacity: DefaultBufferCapacity,
		QueryLimit:     DefaultQueryLimit,
		LookupTimeout:  DefaultLookupTimeout,
		ContentTimeout: DefaultContentTimeout,
		GracePeriod:    DefaultGracePeriod,
		AdapterRate:    DefaultAdapterRate,
		AdapterBurst:   DefaultAdapterBurst,
		LogLevel:       DefaultLogLevel,
	}
}

// DataDir is the platform-specific application data directory.
func DataDir() string {
	homeDirectory, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDirectory, "Library", "Application Support", "BrowserTrace")
	case "windows":
		return filepath.Join(homeDirectory, "AppData", "Roaming", "BrowserTrace")
	default: // linux and others
		return filepath.Join(homeDirectory, ".local", "share", "BrowserTrace")
	}
}

// Load reads the YAML file at path over the defaults, then applies environment
// overrides. A missing file is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if address := os.Getenv("BROWSETRACE_ADDRESS"); address != "" {
		cfg.Address = address
	}
	if databasePath := os.Getenv("BROWSETRACE_DB"); databasePath != "" {
		cfg.DatabasePath = databasePath
	}
	if adapterURL := os.Getenv("BROWSETRACE_ADAPTER_URL"); adapterURL != "" {
		cfg.AdapterURL = adapterURL
	}
	if level := os.Getenv("BROWSETRACE_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BufferCapacity <= 0 {
		return fmt.Errorf("buffer_capacity must be positive, got %d", c.BufferCapacity)
	}
	if c.QueryLimit <= 0 {
		return fmt.Errorf("query_limit must be positive, got %d", c.QueryLimit)
	}
	if c.QueryLimit > c.BufferCapacity {
		return fmt.Errorf("query_limit (%d) must not exceed buffer_capacity (%d)", c.QueryLimit, c.BufferCapacity)
	}
	if c.LookupTimeout < 0 || c.ContentTimeout < 0 || c.GracePeriod < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.AdapterRate <= 0 || c.AdapterBurst <= 0 {
		return fmt.Errorf("adapter_rate and adapter_burst must be positive")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must be set")
	}
	return nil
}
