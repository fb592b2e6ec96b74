// Package config loads and validates sleuth configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sleuth configuration.
type Config struct {
	// Generative-language service
	Generation GenerationConfig `yaml:"generation"`

	// Web search service
	Search SearchConfig `yaml:"search"`

	// Orchestration engine limits
	Orchestration OrchestrationConfig `yaml:"orchestration"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// History store
	History HistoryConfig `yaml:"history"`
}

// GenerationConfig configures the generative-language client.
type GenerationConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url"`
	Timeout         string `yaml:"timeout"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// SearchConfig configures the web search client.
type SearchConfig struct {
	APIKey   string `yaml:"api_key"`
	EngineID string `yaml:"engine_id"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
	Language string `yaml:"language"`
	Region   string `yaml:"region"`
	SafeMode string `yaml:"safe_mode"` // off, medium, high
}

// OrchestrationConfig bounds the iterative search engine.
type OrchestrationConfig struct {
	MaxGeneratedQueries   int  `yaml:"max_generated_queries"`
	MaxFollowupQueries    int  `yaml:"max_followup_queries"`
	TotalResultBudget     int  `yaml:"total_result_budget"`
	MaxAggregatedResults  int  `yaml:"max_aggregated_results"`
	MaxIterations         int  `yaml:"max_iterations"`
	CompletenessThreshold int  `yaml:"completeness_threshold"`
	Iterative             bool `yaml:"iterative"`
}

// LoggingConfig configures the categorized debug logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Directory  string          `yaml:"directory"`
	Categories map[string]bool `yaml:"categories"`
}

// HistoryConfig configures the answer history store.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".sleuth")

	return &Config{
		Generation: GenerationConfig{
			Model:           "gemini-2.0-flash",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         "120s",
			MaxOutputTokens: 8192,
		},
		Search: SearchConfig{
			BaseURL:  "https://www.googleapis.com/customsearch/v1",
			Timeout:  "30s",
			SafeMode: "off",
		},
		Orchestration: OrchestrationConfig{
			MaxGeneratedQueries:   5,
			MaxFollowupQueries:    5,
			TotalResultBudget:     20,
			MaxAggregatedResults:  30,
			MaxIterations:         3,
			CompletenessThreshold: 80,
			Iterative:             true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Directory: filepath.Join(base, "logs"),
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(base, "history.db"),
		},
	}
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".sleuth", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
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

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. Keys from the
// environment win over file values so CI and containers never need a file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Generation.APIKey = key
	}
	if key := os.Getenv("SLEUTH_SEARCH_API_KEY"); key != "" {
		c.Search.APIKey = key
	}
	if id := os.Getenv("SLEUTH_SEARCH_ENGINE_ID"); id != "" {
		c.Search.EngineID = id
	}
	if url := os.Getenv("SLEUTH_GENERATION_URL"); url != "" {
		c.Generation.BaseURL = url
	}
	if url := os.Getenv("SLEUTH_SEARCH_URL"); url != "" {
		c.Search.BaseURL = url
	}
	if path := os.Getenv("SLEUTH_HISTORY_DB"); path != "" {
		c.History.DatabasePath = path
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Generation.APIKey == "" {
		return fmt.Errorf("generation.api_key is required (or set GEMINI_API_KEY)")
	}
	if c.Search.APIKey == "" {
		return fmt.Errorf("search.api_key is required (or set SLEUTH_SEARCH_API_KEY)")
	}
	if c.Search.EngineID == "" {
		return fmt.Errorf("search.engine_id is required (or set SLEUTH_SEARCH_ENGINE_ID)")
	}
	if c.Orchestration.MaxIterations < 1 {
		return fmt.Errorf("orchestration.max_iterations must be >= 1")
	}
	if c.Orchestration.CompletenessThreshold < 0 || c.Orchestration.CompletenessThreshold > 100 {
		return fmt.Errorf("orchestration.completeness_threshold must be within [0,100]")
	}
	return nil
}

// GetGenerationTimeout returns the generation timeout as a duration.
func (c *Config) GetGenerationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Generation.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetSearchTimeout returns the search timeout as a duration.
func (c *Config) GetSearchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Search.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
