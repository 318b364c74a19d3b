package rag

import "context"

type EmbeddingsClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type CompletionClient interface {
	Generate(ctx context.Context, req CompletionRequest) (*ChatResponse, error)
}

// EmbeddingResult é o valor entregue por EmbedAsync.
type EmbeddingResult struct {
	Vector []float32
	Err    error
}

// EmbedAsync runs e.Embed on its own goroutine. The channel is buffered and
// receives exactly one result before being closed.
func EmbedAsync(ctx context.Context, e EmbeddingsClient, text string) <-chan EmbeddingResult {
	out := make(chan EmbeddingResult, 1)
	go func() {
		defer close(out)
		vec, err := e.Embed(ctx, text)
		out <- EmbeddingResult{Vector: vec, Err: err}
	}()
	return out
}
