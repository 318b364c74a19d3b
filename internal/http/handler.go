package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/josinaldojr/bedrock-rag/internal/config"
	"github.com/josinaldojr/bedrock-rag/internal/rag"
)

// ExampleQuestions alimenta a tela de boas-vindas do widget.
var ExampleQuestions = map[string][]string{
	"General Questions": {
		"Explain the main concepts in the documents",
		"Summarize the key points",
	},
	"Specific Queries": {
		"What are Authorised Dealers?",
		"List the BOP codes mentioned",
		"Show payment instruction formats",
	},
}

// Asker is the subset of *rag.Service the handlers need.
type Asker interface {
	Initialize(ctx context.Context, dir string) (*rag.Index, error)
	Ask(ctx context.Context, idx *rag.Index, req rag.AskRequest) (*rag.AskResponse, error)
	Release(ctx context.Context, idx *rag.Index) error
	Options() rag.Options
}

type Handler struct {
	ragService Asker
	dataDir    string
	region     string
	logger     *zap.Logger

	index  atomic.Pointer[rag.Index]
	initMu sync.Mutex // só um build de índice por vez

	askTimeout  time.Duration
	initTimeout time.Duration
}

func NewHandler(ragService Asker, cfg *config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ragService:  ragService,
		dataDir:     cfg.DataDir,
		region:      cfg.AWSRegion,
		logger:      logger,
		askTimeout:  2 * time.Minute,
		initTimeout: 30 * time.Minute,
	}
}

// SetIndex installs an index built outside the handler (startup, reopen).
func (h *Handler) SetIndex(idx *rag.Index) { h.index.Store(idx) }

// ErrBuildInProgress is returned by Rebuild while another build holds the lock.
var ErrBuildInProgress = errors.New("index build already in progress")

// Rebuild indexa dir e troca o índice atual; o anterior é liberado depois da
// troca. Em caso de erro o índice atual é mantido.
func (h *Handler) Rebuild(ctx context.Context, dir string) (*rag.Index, error) {
	if !h.initMu.TryLock() {
		return nil, ErrBuildInProgress
	}
	defer h.initMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, h.initTimeout)
	defer cancel()

	idx, err := h.ragService.Initialize(ctx, dir)
	if err != nil {
		h.logger.Error("initialize failed", zap.String("dir", dir), zap.Error(err))
		return nil, err
	}
	if old := h.index.Swap(idx); old != nil && old.ID != idx.ID {
		if err := h.ragService.Release(ctx, old); err != nil {
			h.logger.Warn("could not release previous index", zap.String("index_id", old.ID), zap.Error(err))
		}
	}
	return idx, nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	Initialized bool     `json:"initialized"`
	IndexID     string   `json:"indexId,omitempty"`
	DataDir     string   `json:"dataDir"`
	Documents   []string `json:"documents"`
	Chunks      int      `json:"chunks"`
	Region      string   `json:"region"`
	TopK        int      `json:"topK"`
	DirectMode  bool     `json:"directMode"`
	BuiltAt     string   `json:"builtAt,omitempty"`
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	opts := h.ragService.Options()
	resp := statusResponse{
		DataDir:    h.dataDir,
		Documents:  []string{},
		Region:     h.region,
		TopK:       opts.TopK,
		DirectMode: opts.DirectMode,
	}
	if idx := h.index.Load(); idx != nil {
		resp.Initialized = true
		resp.IndexID = idx.ID
		resp.DataDir = idx.Dir
		resp.Documents = idx.Documents
		resp.Chunks = idx.Chunks
		resp.BuiltAt = idx.CreatedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Examples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ExampleQuestions)
}

type initializeRequest struct {
	Directory string `json:"directory"`
}

func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	dir := strings.TrimSpace(req.Directory)
	if dir == "" {
		dir = h.dataDir
	}

	idx, err := h.Rebuild(r.Context(), dir)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"indexId":   idx.ID,
		"documents": idx.Documents,
		"chunks":    idx.Chunks,
	})
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req rag.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.askTimeout)
	defer cancel()

	resp, err := h.ragService.Ask(ctx, h.index.Load(), req)
	if err != nil {
		h.logger.Warn("ask failed", zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// statusFor mapeia a taxonomia de erros para status HTTP.
func statusFor(err error) int {
	var embErr *rag.EmbeddingError
	var compErr *rag.CompletionError
	switch {
	case config.IsConfigurationError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrBuildInProgress):
		return http.StatusConflict
	case errors.Is(err, rag.ErrNoDocuments):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rag.ErrNoContext):
		return http.StatusConflict
	case errors.As(err, &embErr), errors.As(err, &compErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrEmptyQuestion):
		return http.StatusBadRequest
	default:
		// extração, store, banco: falha do lado do servidor
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
