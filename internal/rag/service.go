package rag

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options são os knobs do orquestrador; vêm da config.
type Options struct {
	TopK             int
	DirectMode       bool
	FallbackToDirect bool // topK=0 ou índice vazio: responde sem contexto em vez de ErrNoContext
	Temperature      float64
	SystemPrompt     string
	ChunkSize        int
	ChunkOverlap     int
	EmbedConcurrency int
}

// Index é o handle devolvido por Initialize e passado a cada Ask.
type Index struct {
	ID        string
	Dir       string
	Documents []string
	Chunks    int
	CreatedAt time.Time

	store VectorStore
}

func (i *Index) empty() bool { return i == nil || i.store == nil || i.Chunks == 0 }

// NewIndex wraps an already populated store, e.g. one reopened from Postgres.
func NewIndex(id, dir string, documents []string, chunks int, created time.Time, store VectorStore) *Index {
	return &Index{ID: id, Dir: dir, Documents: documents, Chunks: chunks, CreatedAt: created, store: store}
}

// IndexPruner apaga do store persistente os dados de um índice já substituído.
type IndexPruner interface {
	DeleteIndex(ctx context.Context, indexID string) error
}

type Service struct {
	embeddings EmbeddingsClient
	llm        CompletionClient
	newStore   StoreFactory
	extractor  TextExtractor
	pruner     IndexPruner
	opts       Options
	logger     *zap.Logger
}

type ServiceOption func(*Service)

func WithStoreFactory(f StoreFactory) ServiceOption {
	return func(s *Service) { s.newStore = f }
}

func WithExtractor(e TextExtractor) ServiceOption {
	return func(s *Service) { s.extractor = e }
}

func WithPruner(p IndexPruner) ServiceOption {
	return func(s *Service) { s.pruner = p }
}

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(embeddings EmbeddingsClient, llm CompletionClient, opts Options, options ...ServiceOption) *Service {
	s := &Service{
		embeddings: embeddings,
		llm:        llm,
		newStore:   MemoryStoreFactory,
		extractor:  PDFExtractor{},
		opts:       opts,
		logger:     zap.NewNop(),
	}
	for _, o := range options {
		o(s)
	}
	if s.opts.EmbedConcurrency <= 0 {
		s.opts.EmbedConcurrency = 1
	}
	return s
}

func (s *Service) Options() Options { return s.opts }

// Release descarta um índice que saiu de uso. Sem pruner (store em memória)
// não há nada a fazer: o GC recolhe o store com o handle.
func (s *Service) Release(ctx context.Context, idx *Index) error {
	if idx == nil || s.pruner == nil {
		return nil
	}
	if err := s.pruner.DeleteIndex(ctx, idx.ID); err != nil {
		return fmt.Errorf("release index %s: %w", idx.ID, err)
	}
	s.logger.Info("previous index released", zap.String("index_id", idx.ID))
	return nil
}

// Initialize lê os PDFs de dir, quebra em chunks, gera embeddings e devolve
// o handle do índice. Erros de extração, embedding ou store sobem sem
// reclassificação.
func (s *Service) Initialize(ctx context.Context, dir string) (*Index, error) {
	files, err := ListPDFs(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}

	s.logger.Info("building index", zap.String("dir", dir), zap.Int("documents", len(files)))

	chunker := NewChunker(s.opts.ChunkSize, s.opts.ChunkOverlap)
	now := time.Now().UTC()
	idx := &Index{ID: uuid.NewString(), Dir: dir, CreatedAt: now}

	var chunks []DocChunk
	for _, path := range files {
		text, err := s.extractor.ExtractText(path)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
		}

		name := filepath.Base(path)
		idx.Documents = append(idx.Documents, name)

		parts := chunker.Split(text)
		if len(parts) == 0 {
			s.logger.Warn("pdf has no extractable text", zap.String("file", name))
			continue
		}
		for i, p := range parts {
			chunks = append(chunks, DocChunk{
				ID:         uuid.NewString(),
				IndexID:    idx.ID,
				SourceFile: name,
				Position:   i,
				Content:    p,
				CreatedAt:  now,
			})
		}
		s.logger.Debug("document chunked", zap.String("file", name), zap.Int("chunks", len(parts)))
	}

	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	store, err := s.newStore(ctx, idx.ID)
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	if len(chunks) > 0 {
		if err := store.Insert(ctx, chunks, vectors); err != nil {
			return nil, fmt.Errorf("store chunks: %w", err)
		}
	}
	idx.store = store
	idx.Chunks = len(chunks)

	s.logger.Info("index ready",
		zap.String("index_id", idx.ID),
		zap.Int("documents", len(idx.Documents)),
		zap.Int("chunks", idx.Chunks),
	)
	return idx, nil
}

func (s *Service) embedAll(ctx context.Context, chunks []DocChunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.EmbedConcurrency)
	for i := range chunks {
		g.Go(func() error {
			vec, err := s.embeddings.Embed(gctx, chunks[i].Content)
			if err != nil {
				return err
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *Service) Ask(ctx context.Context, idx *Index, req AskRequest) (*AskResponse, error) {
	q := strings.TrimSpace(req.Question)
	if q == "" {
		return nil, ErrEmptyQuestion
	}

	topK := s.opts.TopK
	if req.TopK != nil && *req.TopK >= 0 {
		topK = *req.TopK
	}
	if topK > maxContextChunks {
		topK = maxContextChunks
	}

	temperature := s.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	if req.Lang == "" || req.Lang == "auto" {
		req.Lang = detectLang(q)
	}

	if req.Direct || s.opts.DirectMode {
		return s.askDirect(ctx, q, temperature, req)
	}

	if topK == 0 || idx.empty() {
		if s.opts.FallbackToDirect {
			s.logger.Debug("no retrieval context, answering directly", zap.Int("top_k", topK))
			return s.askDirect(ctx, q, temperature, req)
		}
		return nil, ErrNoContext
	}

	vec, err := s.embeddings.Embed(ctx, q)
	if err != nil {
		return nil, err
	}

	chunks, err := idx.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search index %s: %w", idx.ID, err)
	}
	if len(chunks) == 0 {
		if s.opts.FallbackToDirect {
			return s.askDirect(ctx, q, temperature, req)
		}
		return nil, ErrNoContext
	}

	prompt := buildRAGPrompt(q, chunks, req.Lang)
	resp, err := s.llm.Generate(ctx, CompletionRequest{
		System:      s.opts.SystemPrompt,
		Messages:    withQuestion(req.History, prompt),
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}

	sources := make([]SourceRef, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, SourceRef{
			ChunkID:    c.ID,
			SourceFile: c.SourceFile,
			Position:   c.Position,
			Score:      math.Round(c.Score*10000) / 10000,
			Preview:    preview(c.Content),
		})
	}

	s.logger.Debug("answered with retrieval",
		zap.String("index_id", idx.ID),
		zap.Int("sources", len(sources)),
		zap.Int("total_tokens", resp.TotalTokens),
	)

	return &AskResponse{
		Answer:  resp.Text,
		Mode:    ModeRAG,
		Sources: sources,
		Usage:   *resp,
	}, nil
}

func (s *Service) askDirect(ctx context.Context, q string, temperature float64, req AskRequest) (*AskResponse, error) {
	resp, err := s.llm.Generate(ctx, CompletionRequest{
		System:      s.opts.SystemPrompt,
		Messages:    withQuestion(req.History, q),
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}
	return &AskResponse{
		Answer:  resp.Text,
		Mode:    ModeDirect,
		Sources: []SourceRef{},
		Usage:   *resp,
	}, nil
}

func withQuestion(history []Message, text string) []Message {
	msgs := make([]Message, 0, len(history)+1)
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, m)
	}
	return append(msgs, Message{Role: RoleUser, Content: text})
}
