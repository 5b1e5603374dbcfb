package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stokerbuild/stoker/internal/config"
)

var (
	configInitLocal bool
	configInitForce bool
)

// configCmd displays or manages configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display and manage configuration",
	Long: `Display and manage stoker configuration.

Without subcommands, shows the current effective configuration.

Examples:
  stoker config              # Show current config
  stoker config init         # Create config file with defaults
  stoker config path         # Show config file location
  stoker config get <key>    # Get a config value
  stoker config set <key> <value>  # Set a config value`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

// configInitCmd creates a config file with defaults.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with default settings",
	Long: `Create a config file with default settings and documentation.

By default, creates ~/.stoker/config.yaml.
Use --local to create ./config.yaml in the current directory.

Examples:
  stoker config init          # Create ~/.stoker/config.yaml
  stoker config init --local  # Create ./config.yaml
  stoker config init --force  # Overwrite existing file`,
	RunE: runConfigInit,
}

// configPathCmd shows config file location.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file location",
	Run:   runConfigPath,
}

// configGetCmd gets a config value.
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a configuration value by key.

Keys use dot notation to access nested values.

Examples:
  stoker config get server.port
  stoker config get registry.driver
  stoker config get logging.level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configSetCmd sets a config value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value by key.

Creates the config file if it doesn't exist.
Keys use dot notation to access nested values.

Examples:
  stoker config set server.port 9000
  stoker config set registry.driver memory
  stoker config set logging.level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configInitLocal, "local", false, "create config in current directory instead of ~/.stoker/")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var configPath string

	if configInitLocal {
		configPath = "config.yaml"
	} else {
		configDir, err := config.EnsureConfigDir()
		if err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = filepath.Join(configDir, "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		if !configInitForce {
			return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
		}
	}

	if err := writeDefaultConfig(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("Edit this file to customize stoker behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) {
	configDir, err := config.GetConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting config dir: %v\n", err)
		os.Exit(1)
	}

	locations := []string{
		"./config.yaml",
		filepath.Join(configDir, "config.yaml"),
		"/etc/stoker/config.yaml",
	}

	fmt.Println("Config search paths (in order):")
	for i, loc := range locations {
		exists := "not found"
		if _, err := os.Stat(loc); err == nil {
			exists = "exists"
		}
		fmt.Printf("  %d. %s (%s)\n", i+1, loc, exists)
	}

	fmt.Printf("\nConfig directory: %s\n", configDir)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	value, err := getConfigValue(cfg, args[0])
	if err != nil {
		return err
	}

	fmt.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	configDir, err := config.EnsureConfigDir()
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")

	var data map[string]interface{}
	if content, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(content, &data); err != nil {
			return fmt.Errorf("failed to parse existing config: %w", err)
		}
	}
	if data == nil {
		data = make(map[string]interface{})
	}

	if err := setNestedValue(data, key, value); err != nil {
		return err
	}

	content, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Set %s = %s in %s\n", key, value, configPath)
	return nil
}

func getConfigValue(cfg *config.Config, key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid key: %s", key)
	}

	switch parts[0] {
	case "source":
		switch parts[1] {
		case "root":
			return cfg.Source.Root, nil
		case "exclude_patterns":
			return strings.Join(cfg.Source.ExcludePatterns, ","), nil
		case "ignore_patterns":
			return strings.Join(cfg.Source.IgnorePatterns, ","), nil
		case "raw_patterns":
			return strings.Join(cfg.Source.RawPatterns, ","), nil
		case "granularity_ms":
			return cfg.Source.GranularityMS, nil
		}
	case "registry":
		switch parts[1] {
		case "driver":
			return cfg.Registry.Driver, nil
		case "path":
			return cfg.Registry.Path, nil
		}
	case "watch":
		if parts[1] == "interval_ms" {
			return cfg.Watch.IntervalMS, nil
		}
	case "server":
		switch parts[1] {
		case "host":
			return cfg.Server.Host, nil
		case "port":
			return cfg.Server.Port, nil
		case "external_url":
			return cfg.Server.ExternalURL, nil
		case "show_qr":
			return cfg.Server.ShowQR, nil
		}
	case "logging":
		switch parts[1] {
		case "level":
			return cfg.Logging.Level, nil
		case "format":
			return cfg.Logging.Format, nil
		}
	}

	return nil, fmt.Errorf("unknown config key: %s", key)
}

func setNestedValue(data map[string]interface{}, key string, value string) error {
	parts := strings.Split(key, ".")

	current := data
	for i := 0; i < len(parts)-1; i++ {
		if _, ok := current[parts[i]]; !ok {
			current[parts[i]] = make(map[string]interface{})
		}
		if nested, ok := current[parts[i]].(map[string]interface{}); ok {
			current = nested
		} else {
			return fmt.Errorf("cannot set nested value: %s is not a map", parts[i])
		}
	}

	current[parts[len(parts)-1]] = parseValue(key, value)
	return nil
}

func parseValue(key string, value string) interface{} {
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}

	intKeys := []string{"port", "granularity_ms", "interval_ms"}
	for _, k := range intKeys {
		if strings.HasSuffix(key, k) {
			var i int
			if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
				return i
			}
		}
	}

	return value
}

func writeDefaultConfig(path string) error {
	content := `# stoker Configuration
# Copy this file to ~/.stoker/config.yaml and modify as needed

# Source tree settings
source:
  # Tree to watch (default: current directory)
  # root: "/path/to/site"

  # Shared files: a change to any of these invalidates every build input.
  # Patterns are doublestar globs matched against slash-separated paths
  # relative to the root.
  # exclude_patterns:
  #   - "layouts/**"
  #   - "includes/**"

  # Paths stoker never looks at
  ignore_patterns:
    - ".stoker/**"
    - "**/*.tmp"
    - "**/*.swp"
    - "**/*.swo"
    - "**/*~"
    - "**/.DS_Store"
    - "**/Thumbs.db"

  # Files copied through the build without processing
  # raw_patterns:
  #   - "static/**"

  # Watermark comparison resolution in milliseconds.
  # Keep at 1000 for filesystems that store whole-second mtimes.
  granularity_ms: 1000

# Source registry settings
registry:
  # Driver: sqlite (persistent) or memory (per-process)
  driver: "sqlite"

  # Database location (default: <root>/.stoker/registry.db)
  # path: "/path/to/registry.db"

# Watch mode settings
watch:
  # Delay between refresh cycles (milliseconds)
  interval_ms: 2000

# Server settings
server:
  # Unified port for HTTP API and WebSocket connections
  port: 8766

  # Bind address (use 0.0.0.0 to allow external connections)
  host: "127.0.0.1"

  # External URL for tunnels / forwarded ports.
  # When set, connection info and the QR code use this URL instead of localhost.
  # external_url: "https://your-tunnel.example.com"

  # Print a pairing QR code when the daemon starts
  show_qr: true

# Logging settings
logging:
  # Log level: trace, debug, info, warn, error
  level: "info"

  # Log format: console (human-readable) or json
  format: "console"
`

	return os.WriteFile(path, []byte(content), 0o644)
}
