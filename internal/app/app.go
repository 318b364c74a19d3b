// Package app monta o serviço RAG a partir da config; usado pelos três binários.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/josinaldojr/bedrock-rag/internal/config"
	"github.com/josinaldojr/bedrock-rag/internal/db"
	"github.com/josinaldojr/bedrock-rag/internal/llm"
	"github.com/josinaldojr/bedrock-rag/internal/rag"
)

type App struct {
	Config  *config.Config
	Service *rag.Service
	Repo    *rag.PgRepository // nil com vector_store=memory
	Logger  *zap.Logger

	catalog indexCatalog
	closers []func()
}

// indexCatalog é o que OpenLatest usa do repositório.
type indexCatalog interface {
	LatestIndex(ctx context.Context) (string, []string, time.Time, error)
	Factory() rag.StoreFactory
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	clients, err := llm.NewClients(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svcOpts := []rag.ServiceOption{rag.WithLogger(logger)}

	if cfg.VectorStore == config.StorePostgres {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := db.Migrate(ctx, pool); err != nil {
			a.Close()
			return nil, err
		}
		a.Repo = rag.NewPgRepository(pool)
		a.catalog = a.Repo
		svcOpts = append(svcOpts, rag.WithStoreFactory(a.Repo.Factory()), rag.WithPruner(a.Repo))
	}

	a.Service = rag.NewService(clients.Embeddings, clients.Completion, OptionsFromConfig(cfg), svcOpts...)
	return a, nil
}

func OptionsFromConfig(cfg *config.Config) rag.Options {
	return rag.Options{
		TopK:             cfg.TopK,
		DirectMode:       cfg.DirectMode,
		FallbackToDirect: cfg.NoContextFallback,
		Temperature:      cfg.Temperature,
		SystemPrompt:     cfg.SystemPrompt,
		ChunkSize:        cfg.ChunkSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		EmbedConcurrency: cfg.EmbedConcurrency,
	}
}

// OpenLatest reopens the newest index persisted in Postgres. It returns
// (nil, nil) when there is nothing stored or the store is in memory.
func (a *App) OpenLatest(ctx context.Context) (*rag.Index, error) {
	if a.catalog == nil {
		return nil, nil
	}
	id, files, created, err := a.catalog.LatestIndex(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("open latest index: %w", err)
	}
	store, err := a.catalog.Factory()(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", id, err)
	}
	n, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	return rag.NewIndex(id, a.Config.DataDir, files, n, created, store), nil
}
