package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/josinaldojr/bedrock-rag/internal/config"
	"github.com/josinaldojr/bedrock-rag/internal/rag"
)

const (
	geminiEmbeddingModel = "models/text-embedding-004"
	geminiChatModel      = "gemini-2.5-flash"
	geminiEmbedDim       = 768
)

type GeminiOptions struct {
	MaxTokens int
	TopP      float64
}

// GeminiClient é o provider alternativo (LLM_PROVIDER=gemini).
type GeminiClient struct {
	client *genai.Client
	opts   GeminiOptions
}

func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, &config.ConfigurationError{Missing: []string{"GOOGLE_API_KEY"}}
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: c, opts: opts}, nil
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	fail := func(err error) ([]float32, error) {
		return nil, &rag.EmbeddingError{Model: geminiEmbeddingModel, Err: err}
	}

	clean := strings.Join(strings.Fields(text), " ")
	if clean == "" {
		return fail(errors.New("empty text for embedding"))
	}

	resp, err := g.client.Models.EmbedContent(
		ctx,
		geminiEmbeddingModel,
		genai.Text(clean),
		&genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(geminiEmbedDim)),
		},
	)
	if err != nil {
		return fail(err)
	}

	if len(resp.Embeddings) == 0 {
		return fail(errors.New("no embeddings returned"))
	}

	values := resp.Embeddings[0].Values
	if len(values) != geminiEmbedDim {
		return fail(fmt.Errorf("unexpected embedding size %d (expected %d)", len(values), geminiEmbedDim))
	}

	out := make([]float32, geminiEmbedDim)
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}

func (g *GeminiClient) Generate(ctx context.Context, req rag.CompletionRequest) (*rag.ChatResponse, error) {
	fail := func(err error) (*rag.ChatResponse, error) {
		return nil, &rag.CompletionError{Model: geminiChatModel, Err: err}
	}

	if len(req.Messages) == 0 || strings.TrimSpace(req.Messages[len(req.Messages)-1].Content) == "" {
		return fail(errors.New("prompt text is required"))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		TopP:            genai.Ptr(float32(g.opts.TopP)),
		MaxOutputTokens: int32(g.opts.MaxTokens),
	}
	system := req.System
	if strings.TrimSpace(system) == "" {
		system = defaultSystemPrompt
	}
	cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == rag.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	resp, err := g.client.Models.GenerateContent(ctx, geminiChatModel, contents, cfg)
	if err != nil {
		return fail(err)
	}
	if resp == nil {
		return fail(errors.New("empty response from gemini"))
	}

	txt := strings.TrimSpace(resp.Text())
	if txt == "" {
		return fail(errors.New("model returned empty text"))
	}
	if resp.UsageMetadata == nil {
		return fail(errors.New("response has no usage metadata"))
	}

	in := int(resp.UsageMetadata.PromptTokenCount)
	out := int(resp.UsageMetadata.CandidatesTokenCount)
	return &rag.ChatResponse{
		Text:         txt,
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
	}, nil
}

var _ rag.EmbeddingsClient = (*GeminiClient)(nil)
var _ rag.CompletionClient = (*GeminiClient)(nil)
