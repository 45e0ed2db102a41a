package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	configData Config
	v          *viper.Viper
)

// Config holds all configuration settings.
type Config struct {
	// Engine pool configuration
	Pool struct {
		Size         int           `mapstructure:"size"`
		DebugPort    int           `mapstructure:"debug_port"`
		DebugHost    string        `mapstructure:"debug_host"`
		DebugEnabled bool          `mapstructure:"debug_enabled"`
		CacheSize    int           `mapstructure:"cache_size"`
		Timeout      time.Duration `mapstructure:"timeout"` // 0 waits without bound
	} `mapstructure:"pool"`
	// Script layout configuration
	Scripts struct {
		OutputRoot  string `mapstructure:"output_root"`
		RootSegment string `mapstructure:"root_segment"`
		HomeDir     string `mapstructure:"home_dir"`
		Main        string `mapstructure:"main"`
		SourceDir   string `mapstructure:"source_dir"`
	} `mapstructure:"scripts"`
	// File watching configuration
	Watch struct {
		Enabled  bool          `mapstructure:"enabled"`
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"watch"`
	// Logging configuration
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	// Widgets mounted by the serve command
	Widgets []Widget `mapstructure:"widgets"`
}

// Widget describes a script-driven widget mounted at startup.
type Widget struct {
	Name   string `mapstructure:"name"`
	Launch string `mapstructure:"launch"`
	Home   string `mapstructure:"home"`
}

// Initialize sets up the configuration system.
func Initialize() error {
	v = viper.New()

	// Set config name and paths
	v.SetConfigName("config")            // name of config file (without extension)
	v.SetConfigType("yaml")              // config file type
	v.AddConfigPath(".")                 // optionally look for config in working directory
	v.AddConfigPath("$HOME/.go_reactor") // look for config in .go_reactor directory in home
	v.AddConfigPath("/etc/go_reactor/")  // path to look for the config file in

	// Set default values
	setDefaults()

	// Environment variables
	v.SetEnvPrefix("GOREACTOR") // prefix for env vars
	v.AutomaticEnv()            // read in environment variables that match
	v.SetEnvKeyReplacer(        // replace dots with underscores in env vars
		strings.NewReplacer(".", "_"),
	)

	// Create config file if it doesn't exist
	if err := ensureConfig(); err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}

	// Read in config file
	if err := v.ReadInConfig(); err != nil {
		// It's okay if we can't find a config file, we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return Reload()
}

// SetConfigFile points the loader at an explicit file instead of the search paths.
func SetConfigFile(path string) {
	if v == nil || path == "" {
		return
	}
	v.SetConfigFile(path)
}

// Reload decodes the current viper state into the config struct and validates it.
func Reload() error {
	var next Config
	if err := v.Unmarshal(&next); err != nil {
		return fmt.Errorf("unable to decode into config struct: %w", err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	configData = next

	return nil
}

// setDefaults sets default values for all configuration options.
func setDefaults() {
	// Pool defaults
	v.SetDefault("pool.size", 1)
	v.SetDefault("pool.debug_port", 8086)
	v.SetDefault("pool.debug_host", "127.0.0.1")
	v.SetDefault("pool.debug_enabled", false)
	v.SetDefault("pool.cache_size", 256)
	v.SetDefault("pool.timeout", 5*time.Second)

	// Script defaults
	v.SetDefault("scripts.output_root", "Content")
	v.SetDefault("scripts.root_segment", "JavaScript")
	v.SetDefault("scripts.home_dir", "JavaScript")
	v.SetDefault("scripts.main", "JavaScript/main.js")
	v.SetDefault("scripts.source_dir", "TypeScript")

	// Watch defaults
	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.debounce", 300*time.Millisecond)

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "human")
}

// Validate checks values that the pool cannot run with.
func (c *Config) Validate() error {
	if c.Pool.Size < 1 {
		return fmt.Errorf("pool.size must be at least 1, got %d", c.Pool.Size)
	}
	if c.Pool.Timeout < 0 {
		return fmt.Errorf("pool.timeout must not be negative, got %v", c.Pool.Timeout)
	}
	last := c.Pool.DebugPort + c.Pool.Size - 1
	if c.Pool.DebugPort < 1 || last > 65535 {
		return fmt.Errorf("debug ports %d-%d out of range", c.Pool.DebugPort, last)
	}
	for i, w := range c.Widgets {
		if w.Name == "" {
			return fmt.Errorf("widgets[%d]: name is required", i)
		}
	}

	return nil
}

// ensureConfig creates a default config file if none exists.
func ensureConfig() error {
	dir := filepath.Join(os.Getenv("HOME"), ".go_reactor")
	// Check if config directory exists
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// Create directory
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		// Create default config file
		defaultConfig := `# GO Reactor Configuration File
pool:
  size: 1
  debug_port: 8086
  debug_host: 127.0.0.1
  debug_enabled: false
  cache_size: 256
  timeout: 5s # 0 disables the bound

scripts:
  output_root: Content
  root_segment: JavaScript
  home_dir: JavaScript
  main: JavaScript/main.js
  source_dir: TypeScript

watch:
  enabled: false
  debounce: 300ms

log:
  level: info
  format: human
`
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o644); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the current configuration.
func Get() *Config {
	return &configData
}

// GetViper returns the viper instance.
func GetViper() *viper.Viper {
	return v
}
