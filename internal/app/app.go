// Package app assembles the services from a config and a set of stores.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/todmy/docguard/internal/conflict"
	"github.com/todmy/docguard/internal/config"
	"github.com/todmy/docguard/internal/decompose"
	"github.com/todmy/docguard/internal/embeddings"
	"github.com/todmy/docguard/internal/ingest"
	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/internal/resolution"
	"github.com/todmy/docguard/internal/storage"
	"github.com/todmy/docguard/internal/storage/memstore"
)

const queryCacheSize = 1024

// Stores groups the repositories the services run on
type Stores struct {
	Documents   storage.DocumentRepository
	Modules     storage.ModuleRepository
	Embeddings  storage.EmbeddingRepository
	Conflicts   storage.ConflictRepository
	Resolutions storage.ResolutionRepository
}

// PostgresStores returns PostgreSQL-backed repositories sharing db
func PostgresStores(db *sql.DB) Stores {
	return Stores{
		Documents:   storage.NewPostgresDocumentRepository(db),
		Modules:     storage.NewPostgresModuleRepository(db),
		Embeddings:  storage.NewPostgresEmbeddingRepository(db),
		Conflicts:   storage.NewPostgresConflictRepository(db),
		Resolutions: storage.NewPostgresResolutionRepository(db),
	}
}

// MemoryStores returns repositories backed by one in-memory store
func MemoryStores() Stores {
	s := memstore.New()
	return Stores{
		Documents:   s.Documents(),
		Modules:     s.Modules(),
		Embeddings:  s.Embeddings(),
		Conflicts:   s.Conflicts(),
		Resolutions: s.Resolutions(),
	}
}

// App holds the wired services
type App struct {
	Stores     Stores
	Generator  llm.Generator
	Embedder   embeddings.Embedder
	Index      *embeddings.Index
	Decomposer *decompose.Decomposer
	Pipeline   *ingest.Pipeline
	Detector   *conflict.Detector
	Engine     *resolution.Engine
}

// Option overrides a provider, mostly for tests
type Option func(*App)

// WithGenerator skips building the configured generation client
func WithGenerator(g llm.Generator) Option {
	return func(a *App) { a.Generator = g }
}

// WithEmbedder skips building the configured embedding client
func WithEmbedder(e embeddings.Embedder) Option {
	return func(a *App) { a.Embedder = e }
}

// New builds every service. Generation and embedding share one limiter.
func New(ctx context.Context, cfg config.Config, stores Stores, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Stores: stores}
	for _, opt := range opts {
		opt(a)
	}

	limiter := llm.NewLimiter(cfg.OracleRPS, cfg.OracleBurst)

	if a.Generator == nil {
		gen, err := newGenerator(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Generator = llm.WithLimiter(gen, limiter)
	}
	if a.Embedder == nil {
		emb, err := newEmbedder(ctx, cfg, limiter)
		if err != nil {
			return nil, err
		}
		a.Embedder = emb
	}

	cache, err := embeddings.NewLRUCache(queryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	a.Index = embeddings.NewIndex(stores.Embeddings, a.Embedder,
		embeddings.WithQueryCache(cache),
		embeddings.WithLogger(logger.Named("index")),
	)
	a.Decomposer = decompose.New(a.Generator, logger.Named("decompose"))
	a.Pipeline = ingest.NewPipeline(stores.Documents, stores.Modules, a.Decomposer, a.Index, logger.Named("ingest"))

	detectorCfg := conflict.DefaultConfig()
	detectorCfg.Workers = cfg.ScanWorkers
	a.Detector = conflict.NewDetector(stores.Modules, stores.Conflicts, a.Index, a.Generator, detectorCfg, logger.Named("conflict"))
	a.Engine = resolution.NewEngine(stores.Modules, stores.Conflicts, stores.Resolutions, a.Index, a.Generator, logger.Named("resolution"))

	return a, nil
}

func newGenerator(ctx context.Context, cfg config.Config) (llm.Generator, error) {
	key := cfg.GenerationKey()
	if key == "" {
		return nil, fmt.Errorf("no API key for LLM provider %q", cfg.LLMProvider)
	}
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return llm.NewGeminiClient(ctx, key, cfg.GeminiModel)
	default:
		return llm.NewAnthropicClient(llm.AnthropicConfig{APIKey: key, Model: cfg.AnthropicModel}), nil
	}
}

func newEmbedder(ctx context.Context, cfg config.Config, limiter *rate.Limiter) (embeddings.Embedder, error) {
	key := cfg.EmbeddingKey()
	if key == "" {
		return nil, fmt.Errorf("no API key for embedding provider %q", cfg.EmbeddingProvider)
	}
	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		return embeddings.NewGenAIEmbedder(ctx, key, cfg.EmbeddingModel, limiter)
	default:
		opts := []embeddings.ClientOption{embeddings.WithLimiter(limiter)}
		if cfg.EmbeddingModel != "" {
			opts = append(opts, embeddings.WithModel(cfg.EmbeddingModel))
		}
		return embeddings.NewClient(key, opts...), nil
	}
}

// NewLogger builds a production zap logger at the given level
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
