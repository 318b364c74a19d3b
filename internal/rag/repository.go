package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgRepository persiste chunks + embeddings no Postgres com pgvector.
// Cada índice construído ganha um index_id; buscas são sempre filtradas por ele.
type PgRepository struct {
	db *pgxpool.Pool
}

func NewPgRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

// Factory devolve um StoreFactory que grava no Postgres.
func (r *PgRepository) Factory() StoreFactory {
	return func(ctx context.Context, indexID string) (VectorStore, error) {
		return r.ForIndex(indexID), nil
	}
}

func (r *PgRepository) ForIndex(indexID string) *PgStore {
	return &PgStore{db: r.db, indexID: indexID}
}

// LatestIndex returns the most recently built index and its source files.
// It returns pgx.ErrNoRows wrapped when the database holds no index.
func (r *PgRepository) LatestIndex(ctx context.Context) (id string, files []string, created time.Time, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT index_id, created_at
		FROM doc_chunk
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&id, &created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, time.Time{}, fmt.Errorf("no index stored: %w", err)
		}
		return "", nil, time.Time{}, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT source_file
		FROM doc_chunk
		WHERE index_id = $1
		ORDER BY source_file
	`, id)
	if err != nil {
		return "", nil, time.Time{}, err
	}
	files, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", nil, time.Time{}, err
	}
	return id, files, created, nil
}

// DeleteIndex remove todos os chunks de um índice (embeddings caem em cascata).
func (r *PgRepository) DeleteIndex(ctx context.Context, indexID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM doc_chunk WHERE index_id = $1`, indexID)
	return err
}

type PgStore struct {
	db      *pgxpool.Pool
	indexID string
}

func (s *PgStore) Insert(ctx context.Context, chunks []DocChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, c := range chunks {
		_, err := tx.Exec(ctx, `
			INSERT INTO doc_chunk (id, index_id, source_file, position, content, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			c.ID,
			s.indexID,
			c.SourceFile,
			c.Position,
			c.Content,
			c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO doc_chunk_embedding (chunk_id, embedding)
			VALUES ($1, $2)
		`, c.ID, pgvector.NewVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("insert embedding %s: %w", c.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// Search faz a busca vetorial por distância de cosseno, filtrando pelo índice.
func (s *PgStore) Search(ctx context.Context, embedding []float32, limit int) ([]ScoredChunk, error) {
	if limit <= 0 {
		return nil, nil
	}

	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx, `
		SELECT
			c.id, c.index_id, c.source_file, c.position, c.content, c.created_at,
			1 - (e.embedding <=> $2) AS score
		FROM doc_chunk c
		JOIN doc_chunk_embedding e ON c.id = e.chunk_id
		WHERE c.index_id = $1
		ORDER BY e.embedding <=> $2
		LIMIT $3
	`, s.indexID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []ScoredChunk
	for rows.Next() {
		var c ScoredChunk
		if err := rows.Scan(
			&c.ID,
			&c.IndexID,
			&c.SourceFile,
			&c.Position,
			&c.Content,
			&c.CreatedAt,
			&c.Score,
		); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}

	return chunks, rows.Err()
}

func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM doc_chunk WHERE index_id = $1`, s.indexID).Scan(&n)
	return n, err
}

var _ VectorStore = (*PgStore)(nil)
var _ VectorStore = (*MemoryStore)(nil)
