// Package config provides configuration loading and management for driftwatch.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/driftwatch/embedding"
	"github.com/c360studio/driftwatch/llm"
	"github.com/c360studio/driftwatch/retrieval"
)

// Config represents the complete driftwatch configuration.
type Config struct {
	Manifest  string          `yaml:"manifest"`
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Stores    StoresConfig    `yaml:"stores"`
	Graph     GraphConfig     `yaml:"graph"`
	Reason    ReasonConfig    `yaml:"reason"`
}

// ModelConfig configures the completion endpoint.
type ModelConfig struct {
	// Provider selects the API dialect ("openai", "ollama", "anthropic").
	Provider string `yaml:"provider"`
	// URL is the completion API endpoint.
	URL string `yaml:"url"`
	// Model is the provider-side model name.
	Model string `yaml:"model"`
	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature"`
	// Timeout is the maximum time to wait for model responses.
	Timeout time.Duration `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding endpoint.
type EmbeddingConfig struct {
	URL        string        `yaml:"url"`
	Model      string        `yaml:"model"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Dimension  int           `yaml:"dimension"`
	CharBudget int           `yaml:"char_budget"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StoresConfig configures the three domain vector stores.
type StoresConfig struct {
	// Backend is "file" or "qdrant".
	Backend string `yaml:"backend"`
	// Dir holds the file-backend index files (chat.json, code.json, docs.json).
	Dir string `yaml:"dir"`
	// QdrantURL is the qdrant base URL; required for the qdrant backend.
	QdrantURL string `yaml:"qdrant_url"`
	// QdrantAPIKeyEnv names the env var holding the qdrant API key.
	QdrantAPIKeyEnv string `yaml:"qdrant_api_key_env"`
	// CollectionPrefix prefixes the per-domain collection names.
	CollectionPrefix string `yaml:"collection_prefix"`
}

// GraphConfig configures the neighborhood summarizer.
type GraphConfig struct {
	// NATSURL is the JetStream server URL; empty disables the live path.
	NATSURL string `yaml:"nats_url"`
	// Bucket is the KV bucket holding entity neighborhoods.
	Bucket string `yaml:"bucket"`
	// MappingFile is the static fallback mapping YAML.
	MappingFile string `yaml:"mapping_file"`
	// Timeout bounds each live lookup.
	Timeout time.Duration `yaml:"timeout"`
}

// ReasonConfig configures the reasoner.
type ReasonConfig struct {
	// TemplatePath points at the external prompt template; empty uses
	// the built-in prompt.
	TemplatePath string `yaml:"template_path"`
	// Limits bound retrieval per domain.
	Limits retrieval.Limits `yaml:",inline"`
	// MaxGraphEvents bounds recent events per source in the summary.
	MaxGraphEvents int `yaml:"max_graph_events"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Manifest: "manifest.yaml",
		Model: ModelConfig{
			Provider:    "ollama",
			URL:         "http://localhost:11434/v1/chat/completions",
			Model:       "qwen2.5-coder:32b",
			Temperature: 0.2,
			Timeout:     2 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			URL:        "http://localhost:11434/v1/embeddings",
			Model:      "nomic-embed-text",
			Dimension:  768,
			CharBudget: embedding.DefaultCharBudget,
			BatchSize:  16,
			Timeout:    time.Minute,
		},
		Stores: StoresConfig{
			Backend:          "file",
			Dir:              ".driftwatch",
			CollectionPrefix: "driftwatch",
		},
		Graph: GraphConfig{
			Bucket:  "drift-neighborhoods",
			Timeout: 3 * time.Second,
		},
		Reason: ReasonConfig{
			Limits:         retrieval.DefaultLimits(),
			MaxGraphEvents: 5,
		},
	}
}

// validBackends enumerates the store backends.
var validBackends = map[string]bool{"file": true, "qdrant": true}

// Validate checks that the configuration is usable. Missing backend
// addresses surface as ConfigurationError.
func (c *Config) Validate() error {
	if c.Manifest == "" {
		return &ConfigurationError{Field: "manifest", Reason: "path is required"}
	}
	if c.Model.URL == "" {
		return &ConfigurationError{Field: "model.url", Reason: "endpoint is required"}
	}
	if c.Model.Model == "" {
		return &ConfigurationError{Field: "model.model", Reason: "model name is required"}
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return &ConfigurationError{Field: "model.temperature", Reason: "must be between 0 and 1"}
	}
	if llm.GetProvider(c.Model.Provider) == nil {
		return &ConfigurationError{Field: "model.provider", Reason: fmt.Sprintf("unknown provider %q", c.Model.Provider)}
	}
	if c.Embedding.URL == "" {
		return &ConfigurationError{Field: "embedding.url", Reason: "endpoint is required"}
	}
	if !validBackends[c.Stores.Backend] {
		return &ConfigurationError{Field: "stores.backend", Reason: fmt.Sprintf("unknown backend %q", c.Stores.Backend)}
	}
	if c.Stores.Backend == "qdrant" && c.Stores.QdrantURL == "" {
		return &ConfigurationError{Field: "stores.qdrant_url", Reason: "required for the qdrant backend"}
	}
	if c.Stores.Backend == "file" && c.Stores.Dir == "" {
		return &ConfigurationError{Field: "stores.dir", Reason: "required for the file backend"}
	}
	return nil
}

// IndexPath returns the file-backend index path for a domain.
func (c *Config) IndexPath(domain string) string {
	return filepath.Join(c.Stores.Dir, domain+".json")
}

// CollectionName returns the qdrant collection name for a domain.
func (c *Config) CollectionName(domain string) string {
	return c.Stores.CollectionPrefix + "-" + domain
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence
// for non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Manifest != "" {
		c.Manifest = other.Manifest
	}

	if other.Model.Provider != "" {
		c.Model.Provider = other.Model.Provider
	}
	if other.Model.URL != "" {
		c.Model.URL = other.Model.URL
	}
	if other.Model.Model != "" {
		c.Model.Model = other.Model.Model
	}
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}

	if other.Embedding.URL != "" {
		c.Embedding.URL = other.Embedding.URL
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.APIKeyEnv != "" {
		c.Embedding.APIKeyEnv = other.Embedding.APIKeyEnv
	}
	if other.Embedding.Dimension != 0 {
		c.Embedding.Dimension = other.Embedding.Dimension
	}
	if other.Embedding.CharBudget != 0 {
		c.Embedding.CharBudget = other.Embedding.CharBudget
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.Timeout != 0 {
		c.Embedding.Timeout = other.Embedding.Timeout
	}

	if other.Stores.Backend != "" {
		c.Stores.Backend = other.Stores.Backend
	}
	if other.Stores.Dir != "" {
		c.Stores.Dir = other.Stores.Dir
	}
	if other.Stores.QdrantURL != "" {
		c.Stores.QdrantURL = other.Stores.QdrantURL
	}
	if other.Stores.QdrantAPIKeyEnv != "" {
		c.Stores.QdrantAPIKeyEnv = other.Stores.QdrantAPIKeyEnv
	}
	if other.Stores.CollectionPrefix != "" {
		c.Stores.CollectionPrefix = other.Stores.CollectionPrefix
	}

	if other.Graph.NATSURL != "" {
		c.Graph.NATSURL = other.Graph.NATSURL
	}
	if other.Graph.Bucket != "" {
		c.Graph.Bucket = other.Graph.Bucket
	}
	if other.Graph.MappingFile != "" {
		c.Graph.MappingFile = other.Graph.MappingFile
	}
	if other.Graph.Timeout != 0 {
		c.Graph.Timeout = other.Graph.Timeout
	}

	if other.Reason.TemplatePath != "" {
		c.Reason.TemplatePath = other.Reason.TemplatePath
	}
	if other.Reason.Limits.TopKChat != 0 {
		c.Reason.Limits.TopKChat = other.Reason.Limits.TopKChat
	}
	if other.Reason.Limits.TopKCode != 0 {
		c.Reason.Limits.TopKCode = other.Reason.Limits.TopKCode
	}
	if other.Reason.Limits.TopKDocs != 0 {
		c.Reason.Limits.TopKDocs = other.Reason.Limits.TopKDocs
	}
	if other.Reason.Limits.LookbackDays != 0 {
		c.Reason.Limits.LookbackDays = other.Reason.Limits.LookbackDays
	}
	if other.Reason.MaxGraphEvents != 0 {
		c.Reason.MaxGraphEvents = other.Reason.MaxGraphEvents
	}
}
