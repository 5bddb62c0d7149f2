// Package cli implements the docproc command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	queuemem "github.com/tutorstack/docproc/internal/adapters/driven/queue/memory"
	"github.com/tutorstack/docproc/internal/adapters/driven/provider/openai"
	"github.com/tutorstack/docproc/internal/adapters/driven/storage/memory"
	"github.com/tutorstack/docproc/internal/adapters/driven/storage/postgres"
	"github.com/tutorstack/docproc/internal/adapters/driven/storage/sqlite"
	"github.com/tutorstack/docproc/internal/chunkers"
	"github.com/tutorstack/docproc/internal/config"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
	"github.com/tutorstack/docproc/internal/core/ports/driving"
	"github.com/tutorstack/docproc/internal/core/services"
	"github.com/tutorstack/docproc/internal/logger"
	"github.com/tutorstack/docproc/internal/parsers"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	cfgPath string
	verbose bool
)

// Wired services. Tests install fakes here; ensureServices leaves
// preinstalled values alone.
var (
	cfg            *config.Config
	store          driven.DocumentStore
	pipelineRunner driving.PipelineRunner
	retrieval      driving.Retriever

	closers []func() error
)

var rootCmd = &cobra.Command{
	Use:   "docproc",
	Short: "Document processing and retrieval pipeline",
	Long: `docproc ingests documents (PDF, DOCX, Markdown, plain text),
splits them into chunks, embeds the chunks and serves similarity
search over the result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.docproc/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command and releases wired resources.
func Execute() error {
	err := rootCmd.Execute()
	for i := len(closers) - 1; i >= 0; i-- {
		if cerr := closers[i](); cerr != nil {
			logger.Error("closing resource: %v", cerr)
		}
	}
	closers = nil
	return err
}

// ensureServices wires the storage backend, parser registry, provider
// client and pipeline services from configuration. Called by commands
// that need them; help and version stay wiring-free.
func ensureServices(ctx context.Context) error {
	if store != nil {
		return nil
	}

	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return err
	}

	switch cfg.Storage.Backend {
	case "memory":
		store = memory.NewStore()
	case "sqlite":
		s, err := sqlite.NewStore(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening sqlite store: %w", err)
		}
		store = s
	case "postgres":
		if cfg.Storage.DatabaseURL == "" {
			return errors.New("postgres backend requires DATABASE_URL")
		}
		s, err := postgres.NewStore(ctx, cfg.Storage.DatabaseURL, cfg.Embedding.Dimensions)
		if err != nil {
			return fmt.Errorf("opening postgres store: %w", err)
		}
		store = s
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	closers = append(closers, store.Close)

	registry := parsers.NewDefaultRegistry(parsers.WithMaxFileSize(cfg.MaxFileSizeBytes()))

	var orchestrator *services.Orchestrator
	if cfg.OpenAIAPIKey != "" {
		client, err := openai.New(openai.Config{
			APIKey:            cfg.OpenAIAPIKey,
			MaxConcurrency:    cfg.Embedding.MaxConcurrency,
			RequestsPerMinute: cfg.Embedding.RequestsPerMin,
		})
		if err != nil {
			return err
		}
		closers = append(closers, client.Close)

		orchestrator, err = services.NewOrchestrator(store, client,
			cfg.Embedding.Model, cfg.Embedding.Dimensions,
			services.WithBatchSize(cfg.Embedding.BatchSize))
		if err != nil {
			return err
		}
	} else {
		logger.Warn("OPENAI_API_KEY not set; embedding and search are unavailable")
	}

	queue := queuemem.NewQueue()
	closers = append(closers, queue.Close)

	pipelineRunner = services.NewPipeline(store, registry, newChunker, orchestrator,
		services.WithWorkQueue(queue),
		services.WithProgress(func(processed, total int, _ string) {
			logger.Debug("embedded %d/%d chunks", processed, total)
		}))

	if orchestrator != nil {
		retrieval = services.NewRetriever(store, orchestrator)
	}
	return nil
}

// newChunker is the pipeline's chunker factory. Zero values fall back
// to the configured defaults.
func newChunker(strategy string, chunkSize, chunkOverlap int) (driven.TextChunker, error) {
	if strategy == "" {
		strategy = cfg.Chunking.Strategy
	}
	if chunkSize == 0 {
		chunkSize = cfg.Chunking.ChunkSize
	}
	if chunkOverlap == 0 {
		chunkOverlap = cfg.Chunking.ChunkOverlap
	}
	return chunkers.New(chunkers.Config{
		Strategy:     strategy,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	})
}
