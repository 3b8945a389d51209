// Package config loads notesynth configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all notesynth configuration.
type Config struct {
	Vault     VaultConfig     `yaml:"vault"`
	Store     StoreConfig     `yaml:"store"`
	Index     IndexConfig     `yaml:"index"`
	Model     ModelConfig     `yaml:"model"`
	Log       LogConfig       `yaml:"log"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
}

// VaultConfig points at the markdown vault on disk.
type VaultConfig struct {
	Dir string `yaml:"dir"`
}

// StoreConfig selects the note store.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite, memory
	DSN    string `yaml:"dsn"`
}

// IndexConfig configures the similarity index.
type IndexConfig struct {
	Path      string `yaml:"path"` // relative to the vault dir
	Dimension int    `yaml:"dimension"`
}

// ModelConfig configures the language model boundary.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // openai (any OpenAI-compatible endpoint)
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Mode string `yaml:"mode"` // dev, prod
}

// SynthesisConfig tunes retrieval and prompt assembly.
type SynthesisConfig struct {
	MaxSourceTokens int `yaml:"max_source_tokens"`
	Concurrency     int `yaml:"concurrency"`

	// Query run when a source names a strategy but no query, keyed by
	// strategy name. A request's choice line relies on these.
	DefaultQueries map[string]string `yaml:"default_queries"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Vault: VaultConfig{Dir: "."},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "file:.notesynth/notes.db",
		},
		Index: IndexConfig{
			Path:      ".notesynth/similarity.gob",
			Dimension: 256,
		},
		Model: ModelConfig{
			Provider:    "openai",
			APIKeyEnv:   "OPENAI_API_KEY",
			Name:        "gpt-4o",
			Temperature: 0.3,
			Timeout:     "120s",
		},
		Log: LogConfig{Mode: "dev"},
		Synthesis: SynthesisConfig{
			MaxSourceTokens: 60000,
			Concurrency:     8,
			DefaultQueries: map[string]string{
				"RecentMentions": "LIST SORT file.mtime DESC LIMIT 10",
				"LongContent":    "LIST SORT file.mtime DESC LIMIT 3",
				"Basic":          "LIST SORT file.mtime DESC LIMIT 5",
			},
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults (with environment overrides applied).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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

func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("NOTESYNTH_VAULT"); dir != "" {
		c.Vault.Dir = dir
	}
	if dsn := os.Getenv("NOTESYNTH_DB"); dsn != "" {
		c.Store.DSN = dsn
	}
	if driver := os.Getenv("NOTESYNTH_STORE"); driver != "" {
		c.Store.Driver = driver
	}
	if model := os.Getenv("NOTESYNTH_MODEL"); model != "" {
		c.Model.Name = model
	}
	if url := os.Getenv("NOTESYNTH_BASE_URL"); url != "" {
		c.Model.BaseURL = url
	}
	if mode := os.Getenv("NOTESYNTH_LOG_MODE"); mode != "" {
		c.Log.Mode = mode
	}
	if n, err := strconv.Atoi(os.Getenv("NOTESYNTH_CONCURRENCY")); err == nil && n > 0 {
		c.Synthesis.Concurrency = n
	}
	if c.Model.APIKey == "" && c.Model.APIKeyEnv != "" {
		c.Model.APIKey = os.Getenv(c.Model.APIKeyEnv)
	}
}

// Validate checks the configuration for values the rest of the program
// cannot work with.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Store.Driver) {
	case "sqlite":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the sqlite driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Index.Dimension <= 0 {
		errs = append(errs, errors.New("index.dimension must be positive"))
	}
	if c.Synthesis.Concurrency <= 0 {
		errs = append(errs, errors.New("synthesis.concurrency must be positive"))
	}
	if c.Synthesis.MaxSourceTokens < 0 {
		errs = append(errs, errors.New("synthesis.max_source_tokens must not be negative"))
	}
	if _, err := time.ParseDuration(c.Model.Timeout); c.Model.Timeout != "" && err != nil {
		errs = append(errs, fmt.Errorf("model.timeout: %w", err))
	}
	return errors.Join(errs...)
}

// GetModelTimeout returns the model timeout as a duration.
func (c *Config) GetModelTimeout() time.Duration {
	d, err := time.ParseDuration(c.Model.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// IndexPath returns the similarity index location relative to the vault.
func (c *Config) IndexPath() string {
	return filepath.ToSlash(filepath.Clean(c.Index.Path))
}
