package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for ctxrank.
type Config struct {
	Dataset   DatasetConfig   `yaml:"dataset"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Evaluate  EvaluateConfig  `yaml:"evaluate"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatasetConfig holds the default dataset location.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig holds embedding cache configuration.
type CacheConfig struct {
	Dir     string `yaml:"dir"`
	Backend string `yaml:"backend"` // "file", "bolt" or "memory" (no persistence)
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`    // "openai", "ollama", "jina", "deepseek", "hashing"
	Model             string  `yaml:"model"`       // API providers only, e.g. "text-embedding-3-small"
	APIKeyEnv         string  `yaml:"api_key_env"` // Environment variable for API key
	BaseURL           string  `yaml:"base_url"`
	Dimension         int     `yaml:"dimension"` // 0 = model default
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
	QueryCacheSize    int     `yaml:"query_cache_size"`
}

// RetrieveConfig holds retrieval display configuration.
type RetrieveConfig struct {
	TopN int `yaml:"top_n"`
}

// EvaluateConfig holds evaluation configuration.
type EvaluateConfig struct {
	NumSamples int   `yaml:"num_samples"`
	Repeat     int   `yaml:"repeat"`
	Seed       int64 `yaml:"seed"`  // 0 = fresh seed per run
	TopK       int   `yaml:"top_k"` // hits@k reported next to strict accuracy
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Path: "squad1.1/dev-v1.1.json",
		},
		Cache: CacheConfig{
			Dir:     "cache",
			Backend: "file",
		},
		Embedding: EmbeddingConfig{
			Provider:       "hashing",
			APIKeyEnv:      "OPENAI_API_KEY",
			BatchSize:      100,
			QueryCacheSize: 1024,
		},
		Retrieve: RetrieveConfig{
			TopN: 5,
		},
		Evaluate: EvaluateConfig{
			NumSamples: 100,
			Repeat:     5,
			TopK:       5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for ctxrank.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "ctxrank.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".ctxrank", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays environment overrides on top of file values.
func (c *Config) applyEnv() {
	if dir := os.Getenv("CTXRANK_CACHE_DIR"); dir != "" {
		c.Cache.Dir = dir
	}
}

// Validate rejects settings the rest of the program cannot act on.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "file", "bolt", "memory":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	switch c.Embedding.Provider {
	case "openai", "ollama", "jina", "deepseek":
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for provider %s", c.Embedding.Provider)
		}
	case "hashing":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must not be negative, got %d", c.Embedding.Dimension)
	}
	if c.Retrieve.TopN <= 0 {
		return fmt.Errorf("retrieve.top_n must be positive, got %d", c.Retrieve.TopN)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// CacheKey derives the cache key for a dataset path.
func CacheKey(datasetPath string) string {
	return filepath.Base(datasetPath)
}

// CacheFilePath returns the path of the file-backend entry for a key.
func CacheFilePath(dir, key string) string {
	return filepath.Join(dir, key+".emb")
}

// CacheDBPath returns the path of the bolt-backend database.
func CacheDBPath(dir string) string {
	return filepath.Join(dir, "embeddings.db")
}

// EnsureCacheDir ensures the cache directory exists.
func EnsureCacheDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
