package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDocuments: o diretório não tem nenhum .pdf para indexar.
	ErrNoDocuments = errors.New("no pdf documents found")
	// ErrNoContext: pergunta em modo RAG sem chunks para recuperar.
	ErrNoContext = errors.New("no indexed context available for retrieval")
	// ErrEmptyQuestion: pergunta vazia ou só com espaços.
	ErrEmptyQuestion = errors.New("question is required")
)

// EmbeddingError wraps any failure of the embedding endpoint.
type EmbeddingError struct {
	Model string
	Err   error
}

func (e *EmbeddingError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("embedding failed: %v", e.Err)
	}
	return fmt.Sprintf("embedding failed (model=%s): %v", e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// CompletionError wraps any failure of the chat-completion endpoint.
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("completion failed: %v", e.Err)
	}
	return fmt.Sprintf("completion failed (model=%s): %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }
