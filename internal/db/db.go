package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

// schema sem dimensão fixa no vector: Titan v1 (1536) e v2 (256/512/1024)
// convivem na mesma tabela, separados por index_id.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS doc_chunk (
	id          TEXT PRIMARY KEY,
	index_id    TEXT NOT NULL,
	source_file TEXT NOT NULL,
	position    INTEGER NOT NULL,
	content     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS doc_chunk_index_id_idx ON doc_chunk (index_id);

CREATE TABLE IF NOT EXISTS doc_chunk_embedding (
	chunk_id  TEXT PRIMARY KEY REFERENCES doc_chunk (id) ON DELETE CASCADE,
	embedding vector NOT NULL
);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
