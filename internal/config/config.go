// Package config loads and validates garden configuration from
// .garden/config.yaml. Absent fields keep their defaults, so partial files
// are fine, and a missing file means a default garden.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// GardenDirName is the dot-directory the garden keeps its state in.
const GardenDirName = ".garden"

// Config holds all codegarden configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Pattern store
	Store StoreConfig `yaml:"store"`

	// Growth, recycler, and coherence parameters
	Evolution EvolutionConfig `yaml:"evolution"`

	// Embedding engine for similar-pattern search
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Seed directory watcher
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures the pattern store.
type StoreConfig struct {
	// DatabasePath is the SQLite file holding patterns, coherence snapshots,
	// and the audit trail. Relative paths resolve against the working
	// directory.
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "codegarden",
		Version: "0.9.0",

		Store: StoreConfig{
			DatabasePath: filepath.Join(GardenDirName, "garden.db"),
		},

		Evolution: DefaultEvolutionConfig(),

		Embedding: DefaultEmbeddingConfig(),

		Watch: WatchConfig{
			SeedDir:      filepath.Join(GardenDirName, "seeds"),
			Debounce:     "500ms",
			ScanExisting: true,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigPath returns the config file path under the given workspace root.
func ConfigPath(workspace string) string {
	return filepath.Join(workspace, GardenDirName, "config.yaml")
}

// DefaultConfigPath returns the config path for the current directory.
func DefaultConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Join(GardenDirName, "config.yaml")
	}
	return ConfigPath(cwd)
}

// Load loads configuration from a YAML file. File values overlay the
// defaults, and environment variables overlay the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No file yet. Defaults plus environment.
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides. The log
// directory override (GARDEN_LOG_DIR) is read by the logging package itself.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "genai"
		}
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaEndpoint = host
	}
	if path := os.Getenv("GARDEN_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// GetWatchDebounce returns the watcher settle window as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// ValidLogLevels lists the accepted logging levels. Empty means info.
var ValidLogLevels = []string{"", "debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store database_path must not be empty")
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	if err := c.ValidateEmbedding(); err != nil {
		return err
	}
	if err := c.ValidateEvolution(); err != nil {
		return err
	}

	return nil
}
