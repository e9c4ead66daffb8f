// Package config loads and validates the recall configuration. Settings
// come from hardcoded defaults, an optional YAML file, and RECALL_*
// environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the project configuration file looked up in the
// working directory.
const ConfigFileName = ".recall.yaml"

// Config is the complete recall configuration.
type Config struct {
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Reranker   RerankerConfig   `yaml:"reranker"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SearchConfig configures BM25 scoring and result fusion.
type SearchConfig struct {
	// K1 is the BM25 term frequency saturation parameter.
	K1 float64 `yaml:"k1"`

	// B is the BM25 length normalization parameter.
	B float64 `yaml:"b"`

	// MinScore filters sparse hits scoring at or below this value.
	MinScore float64 `yaml:"min_score"`

	// SparseBackend selects the keyword index: "memory" or "bleve".
	SparseBackend string `yaml:"sparse_backend"`

	// RRFConstant is the rank fusion smoothing parameter (k).
	// Default: 60, the industry standard.
	RRFConstant float64 `yaml:"rrf_constant"`

	// SparseWeight and SemanticWeight scale each retriever's RRF
	// contribution.
	SparseWeight   float64 `yaml:"sparse_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`

	// RerankWeight scales the cross-encoder contribution to the
	// combined score.
	RerankWeight float64 `yaml:"rerank_weight"`

	// RerankTopK is how many fused candidates get reranked.
	RerankTopK int `yaml:"rerank_top_k"`

	// DefaultLimit is used when the caller passes no limit.
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit caps requested limits.
	MaxLimit int `yaml:"max_limit"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the backend: "openai" (OpenAI-compatible server,
	// probed with static fallback) or "static" (deterministic local).
	Provider string `yaml:"provider"`

	// Model is the embedding model name (default: nomic-embed-text).
	Model string `yaml:"model"`

	// Endpoint is the OpenAI-compatible server URL
	// (default: http://localhost:11434/v1).
	Endpoint string `yaml:"endpoint"`

	// APIKey authenticates against hosted endpoints. Optional for
	// local servers.
	APIKey string `yaml:"api_key"`

	// Dimensions is the expected vector dimensionality.
	Dimensions int `yaml:"dimensions"`

	// Timeout bounds each embedding request.
	Timeout time.Duration `yaml:"timeout"`

	// CacheSize is the LRU embedding cache capacity.
	CacheSize int `yaml:"cache_size"`
}

// RerankerConfig configures the cross-encoder service.
type RerankerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	// Path is the SQLite database location. ":memory:" keeps
	// everything in-process.
	Path string `yaml:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			K1:             1.2,
			B:              0.75,
			MinScore:       0,
			SparseBackend:  "memory",
			RRFConstant:    60,
			SparseWeight:   1.0,
			SemanticWeight: 1.0,
			RerankWeight:   1.0,
			RerankTopK:     20,
			DefaultLimit:   10,
			MaxLimit:       100,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "openai",
			Model:      "nomic-embed-text",
			Endpoint:   "http://localhost:11434/v1",
			Dimensions: 768,
			Timeout:    10 * time.Second,
			CacheSize:  4096,
		},
		Reranker: RerankerConfig{
			Enabled:  false,
			Endpoint: "http://localhost:9659",
			Model:    "reranker-small",
			Timeout:  30 * time.Second,
		},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".recall", "recall.db")
	}
	return filepath.Join(home, ".recall", "recall.db")
}

// Load builds the configuration: defaults, then the project YAML file in
// dir (if present), then RECALL_* environment variables. The result is
// validated before returning.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies RECALL_* environment variables, the highest
// precedence configuration source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RECALL_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("RECALL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RECALL_SPARSE_BACKEND"); v != "" {
		c.Search.SparseBackend = v
	}
	if v := os.Getenv("RECALL_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("RECALL_EMBED_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("RECALL_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("RECALL_EMBED_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("RECALL_RERANK_ENDPOINT"); v != "" {
		c.Reranker.Endpoint = v
		c.Reranker.Enabled = true
	}
	if v := os.Getenv("RECALL_SPARSE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.SparseWeight = f
		}
	}
	if v := os.Getenv("RECALL_SEMANTIC_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.SemanticWeight = f
		}
	}
	if v := os.Getenv("RECALL_RRF_CONSTANT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.RRFConstant = f
		}
	}
}

// Validate checks the configuration for values that would break retrieval.
func (c *Config) Validate() error {
	if c.Search.K1 <= 0 {
		return fmt.Errorf("search.k1 must be > 0, got %v", c.Search.K1)
	}
	if c.Search.B < 0 || c.Search.B > 1 {
		return fmt.Errorf("search.b must be in [0, 1], got %v", c.Search.B)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be > 0, got %v", c.Search.RRFConstant)
	}
	if c.Search.SparseWeight < 0 {
		return fmt.Errorf("search.sparse_weight must be >= 0, got %v", c.Search.SparseWeight)
	}
	if c.Search.SemanticWeight < 0 {
		return fmt.Errorf("search.semantic_weight must be >= 0, got %v", c.Search.SemanticWeight)
	}
	if c.Search.RerankWeight < 0 {
		return fmt.Errorf("search.rerank_weight must be >= 0, got %v", c.Search.RerankWeight)
	}
	if c.Search.RerankTopK < 0 {
		return fmt.Errorf("search.rerank_top_k must be >= 0, got %d", c.Search.RerankTopK)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be > 0, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit must be >= default_limit, got %d", c.Search.MaxLimit)
	}
	switch c.Search.SparseBackend {
	case "memory", "bleve":
	default:
		return fmt.Errorf("search.sparse_backend must be memory or bleve, got %q", c.Search.SparseBackend)
	}
	switch c.Embeddings.Provider {
	case "openai", "static":
	default:
		return fmt.Errorf("embeddings.provider must be openai or static, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be > 0, got %d", c.Embeddings.Dimensions)
	}
	return nil
}
