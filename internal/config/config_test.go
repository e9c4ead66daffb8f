package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1.2, cfg.Search.K1)
	assert.Equal(t, 0.75, cfg.Search.B)
	assert.Equal(t, 60.0, cfg.Search.RRFConstant)
	assert.Equal(t, 20, cfg.Search.RerankTopK)
	assert.Equal(t, "memory", cfg.Search.SparseBackend)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Search, cfg.Search)
}

func TestLoad_YAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := `
search:
  sparse_backend: bleve
  rrf_constant: 90
  default_limit: 25
  max_limit: 50
embeddings:
  provider: static
  dimensions: 256
  timeout: 5s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "bleve", cfg.Search.SparseBackend)
	assert.Equal(t, 90.0, cfg.Search.RRFConstant)
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 256, cfg.Embeddings.Dimensions)
	assert.Equal(t, 5*time.Second, cfg.Embeddings.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched keys keep their defaults.
	assert.Equal(t, 1.2, cfg.Search.K1)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	yaml := "search:\n  sparse_backend: bleve\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	t.Setenv("RECALL_SPARSE_BACKEND", "memory")
	t.Setenv("RECALL_SPARSE_WEIGHT", "0.65")
	t.Setenv("RECALL_EMBED_PROVIDER", "static")
	t.Setenv("RECALL_DB_PATH", "/tmp/custom.db")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Search.SparseBackend)
	assert.Equal(t, 0.65, cfg.Search.SparseWeight)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, "/tmp/custom.db", cfg.Storage.Path)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("search: ["), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero k1", mutate: func(c *Config) { c.Search.K1 = 0 }},
		{name: "b above one", mutate: func(c *Config) { c.Search.B = 1.5 }},
		{name: "zero rrf constant", mutate: func(c *Config) { c.Search.RRFConstant = 0 }},
		{name: "negative sparse weight", mutate: func(c *Config) { c.Search.SparseWeight = -1 }},
		{name: "negative rerank top k", mutate: func(c *Config) { c.Search.RerankTopK = -1 }},
		{name: "zero default limit", mutate: func(c *Config) { c.Search.DefaultLimit = 0 }},
		{name: "max below default", mutate: func(c *Config) { c.Search.MaxLimit = 1 }},
		{name: "unknown backend", mutate: func(c *Config) { c.Search.SparseBackend = "solr" }},
		{name: "unknown provider", mutate: func(c *Config) { c.Embeddings.Provider = "hugot" }},
		{name: "zero dimensions", mutate: func(c *Config) { c.Embeddings.Dimensions = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
