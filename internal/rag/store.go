package rag

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
)

// VectorStore guarda os chunks de um único índice e faz a busca por similaridade.
type VectorStore interface {
	Insert(ctx context.Context, chunks []DocChunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, limit int) ([]ScoredChunk, error)
	Count(ctx context.Context) (int, error)
}

// StoreFactory cria o store vazio de um índice novo.
type StoreFactory func(ctx context.Context, indexID string) (VectorStore, error)

// MemoryStore is a brute-force cosine-similarity store.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	norms     []float64
	chunks    []DocChunk
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func MemoryStoreFactory(context.Context, string) (VectorStore, error) {
	return NewMemoryStore(), nil
}

func (s *MemoryStore) Insert(_ context.Context, chunks []DocChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) == 0 {
			return errors.New("empty vector")
		}
		if s.dimension == 0 {
			s.dimension = len(v)
		}
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for i, v := range vectors {
		s.chunks = append(s.chunks, chunks[i])
		s.vectors = append(s.vectors, v)
		s.norms = append(s.norms, norm(v))
	}
	return nil
}

func (s *MemoryStore) Search(_ context.Context, vector []float32, limit int) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || len(s.vectors) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, errors.New("query vector dimension mismatch")
	}

	qn := norm(vector)
	results := make([]ScoredChunk, len(s.vectors))
	for i := range s.vectors {
		score := 0.0
		if qn > 0 && s.norms[i] > 0 {
			score = dot(s.vectors[i], vector) / (qn * s.norms[i])
		}
		results[i] = ScoredChunk{DocChunk: s.chunks[i], Score: score}
	}
	// empate: mantém a ordem de inserção
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if limit > len(results) {
		limit = len(results)
	}
	return results[:limit], nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
