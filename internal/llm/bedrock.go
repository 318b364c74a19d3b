package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/josinaldojr/bedrock-rag/internal/config"
	"github.com/josinaldojr/bedrock-rag/internal/rag"
)

const (
	anthropicVersion = "bedrock-2023-05-31"
	contentTypeJSON  = "application/json"

	titanV1Dims = 1536
	titanV2Dims = 1024

	// persona usada quando o chamador não manda system prompt
	defaultSystemPrompt = "You are a helpful assistant."
)

type BedrockOptions struct {
	Region           string
	Endpoint         string // vazio = endpoint regional padrão
	ClaudeModelID    string
	EmbeddingModelID string
	EmbeddingDims    int
	MaxTokens        int
	TopP             float64
	MaxRetries       int
	Timeout          time.Duration
}

// BedrockOptionsFromConfig maps the application config onto adapter options.
func BedrockOptionsFromConfig(cfg *config.Config) BedrockOptions {
	return BedrockOptions{
		Region:           cfg.AWSRegion,
		Endpoint:         cfg.BedrockEndpoint,
		ClaudeModelID:    cfg.ClaudeModelID,
		EmbeddingModelID: cfg.EmbeddingModelID,
		EmbeddingDims:    cfg.EmbeddingDims,
		MaxTokens:        cfg.MaxTokens,
		TopP:             cfg.TopP,
		MaxRetries:       cfg.BedrockRetries,
		Timeout:          60 * time.Second,
	}
}

type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient fala com Claude (chat) e Titan (embeddings) via bedrock-runtime.
// Só guarda estado imutável; pode ser usado de várias goroutines.
type BedrockClient struct {
	runtime modelInvoker
	opts    BedrockOptions
}

func NewBedrockClient(ctx context.Context, creds config.Credentials, opts BedrockOptions) (*BedrockClient, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID(),
			creds.SecretAccessKey(),
			creds.SessionToken(),
		)),
	}
	if opts.MaxRetries > 0 {
		loadOpts = append(loadOpts, awsconfig.WithRetryMaxAttempts(opts.MaxRetries))
	}
	if opts.Timeout > 0 {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(opts.Timeout)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newBedrockClient(awsCfg, opts), nil
}

func newBedrockClient(awsCfg aws.Config, opts BedrockOptions) *BedrockClient {
	rt := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	if opts.EmbeddingDims <= 0 {
		opts.EmbeddingDims = titanV1Dims
		if isTitanV2(opts.EmbeddingModelID) {
			opts.EmbeddingDims = titanV2Dims
		}
	}

	return &BedrockClient{runtime: rt, opts: opts}
}

func (c *BedrockClient) invoke(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String(contentTypeJSON),
		Accept:      aws.String(contentTypeJSON),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%s: %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
		}
		return nil, err
	}
	return out.Body, nil
}

// -------- embeddings (Titan) --------

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize,omitempty"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

func isTitanV2(modelID string) bool {
	return strings.Contains(modelID, "titan-embed-text-v2")
}

func (c *BedrockClient) Dimension() int { return c.opts.EmbeddingDims }

func (c *BedrockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	model := c.opts.EmbeddingModelID
	fail := func(err error) ([]float32, error) {
		return nil, &rag.EmbeddingError{Model: model, Err: err}
	}

	if strings.TrimSpace(text) == "" {
		return fail(errors.New("empty text for embedding"))
	}

	req := titanRequest{InputText: text}
	if isTitanV2(model) {
		req.Dimensions = c.opts.EmbeddingDims
		req.Normalize = true
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fail(fmt.Errorf("marshal request: %w", err))
	}

	raw, err := c.invoke(ctx, model, body)
	if err != nil {
		return fail(err)
	}

	var resp titanResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fail(fmt.Errorf("decode response: %w", err))
	}
	if len(resp.Embedding) == 0 {
		return fail(errors.New("response has no embedding field"))
	}
	if len(resp.Embedding) != c.opts.EmbeddingDims {
		return fail(fmt.Errorf("unexpected embedding size %d (expected %d)", len(resp.Embedding), c.opts.EmbeddingDims))
	}

	return resp.Embedding, nil
}

// EmbedAsync é a variante não bloqueante de Embed.
func (c *BedrockClient) EmbedAsync(ctx context.Context, text string) <-chan rag.EmbeddingResult {
	return rag.EmbedAsync(ctx, c, text)
}

// -------- chat (Claude) --------

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"top_p"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeUsage struct {
	InputTokens  *int `json:"input_tokens"`
	OutputTokens *int `json:"output_tokens"`
}

type claudeResponse struct {
	Content    []claudeContent `json:"content"`
	Usage      *claudeUsage    `json:"usage"`
	StopReason string          `json:"stop_reason"`
}

func (c *BedrockClient) Generate(ctx context.Context, req rag.CompletionRequest) (*rag.ChatResponse, error) {
	model := c.opts.ClaudeModelID
	fail := func(err error) (*rag.ChatResponse, error) {
		return nil, &rag.CompletionError{Model: model, Err: err}
	}

	if len(req.Messages) == 0 || strings.TrimSpace(req.Messages[len(req.Messages)-1].Content) == "" {
		return fail(errors.New("prompt text is required"))
	}

	msgs := make([]claudeMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, claudeMessage{
			Role:    string(m.Role),
			Content: []claudeContent{{Type: "text", Text: m.Content}},
		})
	}

	system := req.System
	if strings.TrimSpace(system) == "" {
		system = defaultSystemPrompt
	}

	body, err := json.Marshal(claudeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        c.opts.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             c.opts.TopP,
		System:           system,
		Messages:         msgs,
	})
	if err != nil {
		return fail(fmt.Errorf("marshal request: %w", err))
	}

	raw, err := c.invoke(ctx, model, body)
	if err != nil {
		return fail(err)
	}

	out, err := parseClaudeResponse(raw)
	if err != nil {
		return fail(err)
	}
	return out, nil
}

// GeneratePrompt sends a single user prompt with the given persona.
func (c *BedrockClient) GeneratePrompt(ctx context.Context, prompt string, temperature float64, system string) (*rag.ChatResponse, error) {
	return c.Generate(ctx, rag.CompletionRequest{
		System:      system,
		Messages:    []rag.Message{{Role: rag.RoleUser, Content: prompt}},
		Temperature: temperature,
	})
}

func parseClaudeResponse(raw []byte) (*rag.ChatResponse, error) {
	var resp claudeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(resp.Content) == 0 {
		return nil, errors.New("response has no content block")
	}
	first := resp.Content[0]
	if first.Type != "text" {
		return nil, fmt.Errorf("first content block has type %q, expected text", first.Type)
	}

	if resp.Usage == nil || resp.Usage.InputTokens == nil || resp.Usage.OutputTokens == nil {
		return nil, errors.New("response has no usage counters")
	}
	in, out := *resp.Usage.InputTokens, *resp.Usage.OutputTokens
	if in < 0 || out < 0 {
		return nil, fmt.Errorf("invalid usage counters input=%d output=%d", in, out)
	}

	return &rag.ChatResponse{
		Text:         strings.TrimSpace(first.Text),
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
	}, nil
}

var _ rag.EmbeddingsClient = (*BedrockClient)(nil)
var _ rag.CompletionClient = (*BedrockClient)(nil)
