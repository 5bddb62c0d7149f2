package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorstack/docproc/internal/core/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sentence", cfg.Chunking.Strategy)
	assert.Equal(t, 1000, cfg.Chunking.ChunkSize)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[chunking]
strategy = "paragraph"
chunk_size = 800
chunk_overlap = 100

[embedding]
model = "text-embedding-3-large"
dimensions = 1024

[parsing]
max_file_size_mb = 25
allowed_mime_types = ["application/pdf", "text/plain"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "paragraph", cfg.Chunking.Strategy)
	assert.Equal(t, 800, cfg.Chunking.ChunkSize)
	assert.Equal(t, 100, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	assert.Equal(t, int64(25*1024*1024), cfg.MaxFileSizeBytes())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, cfg.Chunking.ChunkSize)
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"chunk size too small", func(c *Config) { c.Chunking.ChunkSize = 50 }},
		{"chunk size too large", func(c *Config) { c.Chunking.ChunkSize = 5000 }},
		{"overlap negative", func(c *Config) { c.Chunking.ChunkOverlap = -1 }},
		{"overlap too large", func(c *Config) { c.Chunking.ChunkOverlap = 501 }},
		{"overlap equals size", func(c *Config) {
			c.Chunking.ChunkSize = 200
			c.Chunking.ChunkOverlap = 200
		}},
		{"unknown strategy", func(c *Config) { c.Chunking.Strategy = "semantic" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "dynamo" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DOCPROC_CHUNK_SIZE", "1500")
	t.Setenv("DOCPROC_CHUNKING_STRATEGY", "fixed_size")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, 1500, cfg.Chunking.ChunkSize)
	assert.Equal(t, "fixed_size", cfg.Chunking.Strategy)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
}

func TestAllowsMIME(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.AllowsMIME("application/pdf"), "empty allowlist permits everything")

	cfg.Parsing.AllowedMIMETypes = []string{"application/pdf"}
	assert.True(t, cfg.AllowsMIME("Application/PDF"))
	assert.False(t, cfg.AllowsMIME("text/html"))

	cfg.Parsing.AllowedMIMETypes = []string{"text/plain"}
	assert.True(t, cfg.AllowsMIME("text/plain; charset=utf-8"),
		"media type parameters do not defeat the allowlist")
}
