package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exocortex/exocortex/internal/config"
	"github.com/exocortex/exocortex/internal/embedder"
	genkitembed "github.com/exocortex/exocortex/internal/embedder/genkit"
	"github.com/exocortex/exocortex/internal/embedder/mock"
	"github.com/exocortex/exocortex/internal/embedder/ollama"
	"github.com/exocortex/exocortex/internal/embedder/openai"
	"github.com/exocortex/exocortex/internal/memory"
	"github.com/exocortex/exocortex/internal/memory/postgres"
	"github.com/exocortex/exocortex/internal/tokens"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	emb, embCleanup, err := provideEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if embCleanup != nil {
		a.closers = append(a.closers, embCleanup)
	}
	a.Embedder = emb

	index, idxCleanup, err := provideIndex(ctx, cfg, emb, logger)
	if err != nil {
		return nil, err
	}
	if idxCleanup != nil {
		a.closers = append(a.closers, idxCleanup)
	}
	a.Index = index

	spec := memory.ChunkSpec{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}
	a.Ingester = memory.NewIngester(index, spec, logger)
	a.Identity = memory.NewIdentityLoader(index, logger)
	a.Conversations = memory.NewConversationLogger(index, logger)
	a.Assembler = memory.NewAssembler(index, tokens.NewCounter(), logger,
		memory.WithTopK(cfg.TopK))
	a.Bootstrapper = memory.NewBootstrapper(index, a.Ingester, a.Identity, memory.BootstrapConfig{
		FactsPath:         cfg.IdentityFactsFile,
		ProjectSources:    cfg.ProjectSources,
		ProjectExtensions: cfg.ProjectExtensions,
	}, logger)

	logger.Debug("application initialized",
		"backend", cfg.Backend,
		"provider", cfg.Provider,
		"embedder_model", cfg.EmbedderModel,
		"dimensions", cfg.Dimensions,
	)

	return a, nil
}

// provideEmbedder builds the embedding chain for the configured provider:
// base client, optional rate limiter, then the in-process vector cache.
func provideEmbedder(ctx context.Context, cfg *config.Config) (embedder.Embedder, func(), error) {
	var base embedder.Embedder

	switch cfg.Provider {
	case config.ProviderOllama:
		base = ollama.New(ollama.Config{
			BaseURL:    cfg.OllamaHost,
			Model:      cfg.EmbedderModel,
			Dimensions: cfg.Dimensions,
		})

	case config.ProviderOpenAI:
		client, err := openai.New(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.EmbedderModel,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating openai embedder: %w", err)
		}
		base = client

	case config.ProviderGemini:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.GeminiAPIKey}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		aiEmb := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		if aiEmb == nil {
			return nil, nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
		}
		base = genkitembed.New(aiEmb, cfg.Dimensions)

	case config.ProviderMock:
		base = mock.New(cfg.Dimensions)

	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}

	if cfg.EmbedRPS > 0 {
		burst := int(cfg.EmbedRPS)
		if burst < 1 {
			burst = 1
		}
		base = embedder.NewRateLimited(base, cfg.EmbedRPS, burst)
	}

	cached, err := embedder.NewCached(base, cfg.CacheBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding cache: %w", err)
	}

	return cached, cached.Close, nil
}

// provideIndex builds the configured vector index backend.
func provideIndex(ctx context.Context, cfg *config.Config, emb embedder.Embedder, logger *slog.Logger) (memory.Index, func(), error) {
	embedTimeout := time.Duration(cfg.EmbedTimeoutSec) * time.Second

	switch cfg.Backend {
	case config.BackendChromem:
		store, err := memory.New(emb, memory.Options{
			DataDir:      cfg.DataDir,
			Compress:     cfg.Compress,
			EmbedTimeout: embedTimeout,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening vector store: %w", err)
		}
		return store, nil, nil

	case config.BackendPostgres:
		pool, cleanup, err := provideDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := postgres.New(ctx, pool, emb, postgres.Options{
			EmbedTimeout: embedTimeout,
			Logger:       logger,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return store, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Backend)
	}
}

// provideDBPool creates a PostgreSQL connection pool with sensible
// defaults for connection management.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}
