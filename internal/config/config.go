package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration: defaults, then a project
// config file, then MEMEX_* environment variables, then CLI flags, each
// layer overriding the previous one.
type Config struct {
	Version         int             `yaml:"version" json:"version"`
	SourcePath      string          `yaml:"source_path" json:"source_path"`
	Provider        string          `yaml:"provider" json:"provider"`
	IndexName       string          `yaml:"index_name" json:"index_name"`
	DatabasePath    string          `yaml:"database_path" json:"database_path"`
	ModelPath       string          `yaml:"model_path" json:"model_path"`
	ExcludePatterns []string        `yaml:"exclude_patterns" json:"exclude_patterns"`
	BuildIndex      bool            `yaml:"build_index" json:"build_index"`
	Watch           bool            `yaml:"watch" json:"watch"`
	LogLevel        string          `yaml:"log_level" json:"log_level"`
	Submodules      SubmoduleConfig `yaml:"submodules" json:"submodules"`

	AzureEmbedderEndpoint string `yaml:"azure_embedder_endpoint" json:"azure_embedder_endpoint"`
	AzureEmbedderKey      string `yaml:"azure_embedder_key" json:"azure_embedder_key"`
	AzureSearchEndpoint   string `yaml:"azure_search_endpoint" json:"azure_search_endpoint"`
	AzureSearchKey        string `yaml:"azure_search_key" json:"azure_search_key"`
	AzureSearchIndex      string `yaml:"azure_search_index" json:"azure_search_index"`
}

// SubmoduleConfig configures git submodule discovery during scanning.
type SubmoduleConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Recursive bool     `yaml:"recursive" json:"recursive"`
	Include   []string `yaml:"include" json:"include"`
	Exclude   []string `yaml:"exclude" json:"exclude"`
}

const (
	ProviderLocal = "local"
	ProviderAzure = "azure"

	defaultIndexName   = "memory-exchange"
	defaultDatabaseFile = "memory_exchange.db"
	configFileNameYAML = ".memex.yaml"
	configFileNameYML  = ".memex.yml"
)

// NewConfig returns the hardcoded defaults.
func NewConfig() *Config {
	return &Config{
		Version:   1,
		Provider:  ProviderLocal,
		IndexName: defaultIndexName,
		LogLevel:  "info",
		Submodules: SubmoduleConfig{
			Enabled:   false,
			Recursive: true,
		},
	}
}

// Load builds a Config for sourcePath: defaults, then a project config file
// (.memex.yaml/.yml in sourcePath), then MEMEX_* environment overrides.
// CLI flags are applied by the caller afterward since cobra owns flag
// parsing; Config's fields are exported for that purpose.
func Load(sourcePath string) (*Config, error) {
	cfg := NewConfig()
	cfg.SourcePath = sourcePath

	if err := cfg.loadFromFile(sourcePath); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if cfg.DatabasePath == "" && cfg.SourcePath != "" {
		cfg.DatabasePath = filepath.Join(cfg.SourcePath, defaultDatabaseFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{configFileNameYAML, configFileNameYML} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.SourcePath != "" {
		c.SourcePath = other.SourcePath
	}
	if other.Provider != "" {
		c.Provider = other.Provider
	}
	if other.IndexName != "" {
		c.IndexName = other.IndexName
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.ModelPath != "" {
		c.ModelPath = other.ModelPath
	}
	if len(other.ExcludePatterns) > 0 {
		c.ExcludePatterns = other.ExcludePatterns
	}
	if other.BuildIndex {
		c.BuildIndex = other.BuildIndex
	}
	if other.Watch {
		c.Watch = other.Watch
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Submodules.Enabled || len(other.Submodules.Include) > 0 || len(other.Submodules.Exclude) > 0 {
		c.Submodules = other.Submodules
	}
	if other.AzureEmbedderEndpoint != "" {
		c.AzureEmbedderEndpoint = other.AzureEmbedderEndpoint
	}
	if other.AzureEmbedderKey != "" {
		c.AzureEmbedderKey = other.AzureEmbedderKey
	}
	if other.AzureSearchEndpoint != "" {
		c.AzureSearchEndpoint = other.AzureSearchEndpoint
	}
	if other.AzureSearchKey != "" {
		c.AzureSearchKey = other.AzureSearchKey
	}
	if other.AzureSearchIndex != "" {
		c.AzureSearchIndex = other.AzureSearchIndex
	}
}

// applyEnvOverrides applies MEMEX_* environment variable overrides, the
// third layer after defaults and the project config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEMEX_SOURCE_PATH"); v != "" {
		c.SourcePath = v
	}
	if v := os.Getenv("MEMEX_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("MEMEX_INDEX_NAME"); v != "" {
		c.IndexName = v
	}
	if v := os.Getenv("MEMEX_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("MEMEX_MODEL_PATH"); v != "" {
		c.ModelPath = v
	}
	if v := os.Getenv("MEMEX_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MEMEX_BUILD_INDEX"); v != "" {
		c.BuildIndex = parseBool(v)
	}
	if v := os.Getenv("MEMEX_WATCH"); v != "" {
		c.Watch = parseBool(v)
	}
	if v := os.Getenv("MEMEX_EXCLUDE_PATTERNS"); v != "" {
		c.ExcludePatterns = strings.Split(v, ",")
	}
	if v := os.Getenv("MEMEX_AZURE_EMBEDDER_ENDPOINT"); v != "" {
		c.AzureEmbedderEndpoint = v
	}
	if v := os.Getenv("MEMEX_AZURE_EMBEDDER_KEY"); v != "" {
		c.AzureEmbedderKey = v
	}
	if v := os.Getenv("MEMEX_AZURE_SEARCH_ENDPOINT"); v != "" {
		c.AzureSearchEndpoint = v
	}
	if v := os.Getenv("MEMEX_AZURE_SEARCH_KEY"); v != "" {
		c.AzureSearchKey = v
	}
	if v := os.Getenv("MEMEX_AZURE_SEARCH_INDEX"); v != "" {
		c.AzureSearchIndex = v
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// Validate rejects configurations that can never run correctly.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case ProviderLocal, ProviderAzure:
	default:
		return fmt.Errorf("provider must be %q or %q, got %q", ProviderLocal, ProviderAzure, c.Provider)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.LogLevel != "" && !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if strings.EqualFold(c.Provider, ProviderAzure) {
		if c.AzureEmbedderEndpoint == "" {
			return fmt.Errorf("provider azure requires azure_embedder_endpoint")
		}
		if c.AzureSearchEndpoint == "" {
			return fmt.Errorf("provider azure requires azure_search_endpoint")
		}
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
