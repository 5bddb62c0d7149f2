// Package config loads pipeline configuration from a TOML file with
// environment overrides. Secrets (API keys, database URLs) come from
// the environment only, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/tutorstack/docproc/internal/core/domain"
)

// Defaults applied when the config file omits a value.
const (
	DefaultChunkSize       = 1000
	DefaultChunkOverlap    = 200
	DefaultStrategy        = "sentence"
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultDimensions      = 1536
	DefaultMaxFileSizeMB   = 50
	DefaultBatchSize       = 100
	DefaultStorageBackend  = "sqlite"
	DefaultMaxConcurrency  = 4
	DefaultRequestsPerMin  = 3000
)

// Chunking holds the text splitting parameters.
type Chunking struct {
	Strategy     string `toml:"strategy"`
	ChunkSize    int    `toml:"chunk_size"`
	ChunkOverlap int    `toml:"chunk_overlap"`
}

// Embedding holds the embedding model parameters.
type Embedding struct {
	Model          string `toml:"model"`
	Dimensions     int    `toml:"dimensions"`
	BatchSize      int    `toml:"batch_size"`
	MaxConcurrency int    `toml:"max_concurrency"`
	RequestsPerMin int    `toml:"requests_per_minute"`
}

// Parsing holds the document intake parameters.
type Parsing struct {
	MaxFileSizeMB    int      `toml:"max_file_size_mb"`
	AllowedMIMETypes []string `toml:"allowed_mime_types"`
}

// Storage selects and configures the persistence backend.
type Storage struct {
	Backend     string `toml:"backend"`  // memory, sqlite or postgres
	DataDir     string `toml:"data_dir"` // sqlite database directory
	DatabaseURL string `toml:"-"`        // env only, never in the file
}

// Watch configures the drop-directory ingestion source.
type Watch struct {
	Dir     string `toml:"dir"`
	OwnerID int64  `toml:"owner_id"`
}

// Config is the full pipeline configuration.
type Config struct {
	Chunking  Chunking  `toml:"chunking"`
	Embedding Embedding `toml:"embedding"`
	Parsing   Parsing   `toml:"parsing"`
	Storage   Storage   `toml:"storage"`
	Watch     Watch     `toml:"watch"`

	OpenAIAPIKey string `toml:"-"` // env only
}

// Default returns a configuration populated with defaults.
func Default() *Config {
	return &Config{
		Chunking: Chunking{
			Strategy:     DefaultStrategy,
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
		},
		Embedding: Embedding{
			Model:          DefaultEmbeddingModel,
			Dimensions:     DefaultDimensions,
			BatchSize:      DefaultBatchSize,
			MaxConcurrency: DefaultMaxConcurrency,
			RequestsPerMin: DefaultRequestsPerMin,
		},
		Parsing: Parsing{
			MaxFileSizeMB: DefaultMaxFileSizeMB,
		},
		Storage: Storage{
			Backend: DefaultStorageBackend,
			DataDir: defaultDataDir(),
		},
	}
}

// Load reads configuration from path (empty means ~/.docproc/config.toml),
// overlays environment variables, and validates the result. A missing
// config file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	// Best-effort .env load so local development does not need exports.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".docproc", "config.toml")
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the loaded config.
func (c *Config) applyEnv() {
	c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.Storage.DatabaseURL = os.Getenv("DATABASE_URL")

	if v := os.Getenv("DOCPROC_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("DOCPROC_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("DOCPROC_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.ChunkSize = n
		}
	}
	if v := os.Getenv("DOCPROC_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.ChunkOverlap = n
		}
	}
	if v := os.Getenv("DOCPROC_CHUNKING_STRATEGY"); v != "" {
		c.Chunking.Strategy = v
	}
	if v := os.Getenv("DOCPROC_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("DOCPROC_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embedding.Dimensions = n
		}
	}
}

// Validate checks configured values against their allowed ranges.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize < 100 || c.Chunking.ChunkSize > 4000 {
		return fmt.Errorf("%w: chunk_size %d outside [100, 4000]",
			domain.ErrInvalidConfig, c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap > 500 {
		return fmt.Errorf("%w: chunk_overlap %d outside [0, 500]",
			domain.ErrInvalidConfig, c.Chunking.ChunkOverlap)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be less than chunk_size %d",
			domain.ErrInvalidConfig, c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	switch c.Chunking.Strategy {
	case "fixed_size", "sentence", "paragraph":
	default:
		return fmt.Errorf("%w: unknown chunking strategy %q",
			domain.ErrInvalidConfig, c.Chunking.Strategy)
	}
	if c.Parsing.MaxFileSizeMB <= 0 {
		return fmt.Errorf("%w: max_file_size_mb must be positive",
			domain.ErrInvalidConfig)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("%w: embedding batch_size must be positive",
			domain.ErrInvalidConfig)
	}
	switch c.Storage.Backend {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown storage backend %q",
			domain.ErrInvalidConfig, c.Storage.Backend)
	}
	return nil
}

// MaxFileSizeBytes returns the parsing size ceiling in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Parsing.MaxFileSizeMB) * 1024 * 1024
}

// AllowsMIME reports whether the declared MIME type is permitted.
// An empty allowlist permits everything. Media type parameters such as
// charset are ignored.
func (c *Config) AllowsMIME(mime string) bool {
	if len(c.Parsing.AllowedMIMETypes) == 0 {
		return true
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	for _, allowed := range c.Parsing.AllowedMIMETypes {
		if strings.ToLower(allowed) == mime {
			return true
		}
	}
	return false
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".docproc", "data")
}
