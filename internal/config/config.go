// Package config handles configuration management for stoker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Registry driver names accepted in registry.driver.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Source   SourceConfig   `mapstructure:"source" yaml:"source"`
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// SourceConfig describes the tree being watched and how its paths are
// classified. Patterns are doublestar globs matched against slash-separated
// paths relative to the root.
type SourceConfig struct {
	Root            string   `mapstructure:"root" yaml:"root"`
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
	IgnorePatterns  []string `mapstructure:"ignore_patterns" yaml:"ignore_patterns"`
	RawPatterns     []string `mapstructure:"raw_patterns" yaml:"raw_patterns"`
	GranularityMS   int      `mapstructure:"granularity_ms" yaml:"granularity_ms"`
}

// Granularity returns the watermark comparison resolution.
func (c *SourceConfig) Granularity() time.Duration {
	return time.Duration(c.GranularityMS) * time.Millisecond
}

// RegistryConfig selects and locates the source registry backend.
type RegistryConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// WatchConfig holds polling loop configuration.
type WatchConfig struct {
	IntervalMS int `mapstructure:"interval_ms" yaml:"interval_ms"`
}

// Interval returns the delay between refresh cycles in watch mode.
func (c *WatchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        int    `mapstructure:"port" yaml:"port"`
	ExternalURL string `mapstructure:"external_url" yaml:"external_url"` // Optional: public URL clients connect through (e.g. a tunnel)
	ShowQR      bool   `mapstructure:"show_qr" yaml:"show_qr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default search paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.stoker")
		v.AddConfigPath("/etc/stoker")
	}

	// Environment variable prefix
	v.SetEnvPrefix("STOKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - not an error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Normalize derives dependent settings and validates the result. Load calls
// it automatically; commands call it again after applying flag overrides.
func Normalize(cfg *Config) error {
	if err := postProcess(cfg); err != nil {
		return err
	}
	return Validate(cfg)
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Source defaults - ignore patterns come from defaults.go
	v.SetDefault("source.root", "")
	v.SetDefault("source.exclude_patterns", []string{})
	v.SetDefault("source.ignore_patterns", DefaultIgnorePatterns)
	v.SetDefault("source.raw_patterns", []string{})
	v.SetDefault("source.granularity_ms", 1000)

	// Registry defaults
	v.SetDefault("registry.driver", DriverSQLite)
	v.SetDefault("registry.path", "")

	// Watch defaults
	v.SetDefault("watch.interval_ms", 2000)

	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8766)
	v.SetDefault("server.external_url", "")
	v.SetDefault("server.show_qr", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// postProcess applies post-processing to configuration.
func postProcess(cfg *Config) error {
	// If source root is empty, use current directory
	if cfg.Source.Root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		cfg.Source.Root = cwd
	}

	// Resolve to absolute path
	absRoot, err := filepath.Abs(cfg.Source.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve source root: %w", err)
	}
	cfg.Source.Root = absRoot

	cfg.Registry.Driver = strings.ToLower(strings.TrimSpace(cfg.Registry.Driver))

	// The sqlite registry lives inside the state directory under the root
	// unless the user points it elsewhere.
	if cfg.Registry.Driver == DriverSQLite && cfg.Registry.Path == "" {
		cfg.Registry.Path = filepath.Join(cfg.Source.Root, ".stoker", "registry.db")
	}

	return nil
}

// GetConfigDir returns the user config directory for stoker.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".stoker"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
