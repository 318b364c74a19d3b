package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"

	StoreMemory   = "memory"
	StorePostgres = "postgres"

	// MaxTopK é o teto de chunks recuperados (e enviados ao modelo) por pergunta.
	MaxTopK = 10
)

// SupportedRegions lista as regiões com Bedrock habilitado para Claude + Titan.
var SupportedRegions = []string{
	"us-east-1",
	"us-west-2",
	"eu-west-1",
	"eu-central-1",
	"ap-southeast-1",
	"ap-northeast-1",
}

type Config struct {
	Debug    bool   `yaml:"debug"`
	Port     string `yaml:"port"`
	DataDir  string `yaml:"data_dir"`
	AutoInit bool   `yaml:"auto_init"`
	Watch    bool   `yaml:"watch_data_dir"`

	AWSRegion        string `yaml:"aws_region"`
	BedrockEndpoint  string `yaml:"bedrock_endpoint"`
	BedrockRetries   int    `yaml:"bedrock_max_retries"`
	LLMProvider      string `yaml:"llm_provider"`
	ClaudeModelID    string `yaml:"claude_model_id"`
	EmbeddingModelID string `yaml:"embedding_model_id"`
	EmbeddingDims    int    `yaml:"embedding_dimensions"`

	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	TopP         float64 `yaml:"top_p"`
	SystemPrompt string  `yaml:"system_prompt"`

	TopK              int  `yaml:"top_k"`
	DirectMode        bool `yaml:"direct_mode"`
	NoContextFallback bool `yaml:"no_context_fallback"`

	ChunkSize        int `yaml:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap"`
	EmbedConcurrency int `yaml:"embed_concurrency"`

	VectorStore string `yaml:"vector_store"`
	DatabaseURL string `yaml:"database_url"`
}

// Load monta a config em camadas: defaults, arquivo YAML (opcional) e env.
// path vazio usa CONFIG_FILE, se definido.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		Port:             "8080",
		DataDir:          "./data",
		AWSRegion:        "eu-central-1",
		BedrockRetries:   10,
		LLMProvider:      ProviderBedrock,
		ClaudeModelID:    "anthropic.claude-3-5-sonnet-20240620-v1:0",
		EmbeddingModelID: "amazon.titan-embed-text-v1",
		MaxTokens:        5000,
		Temperature:      0.1,
		TopP:             0.9,
		SystemPrompt:     "You are a helpful assistant.",
		TopK:             3,
		ChunkSize:        2000,
		ChunkOverlap:     80,
		EmbedConcurrency: 4,
		VectorStore:      StoreMemory,
	}
}

func applyEnv(cfg *Config) {
	cfg.Debug = getBoolEnv("DEBUG", cfg.Debug)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.AutoInit = getBoolEnv("AUTO_INIT", cfg.AutoInit)
	cfg.Watch = getBoolEnv("WATCH_DATA_DIR", cfg.Watch)

	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.BedrockEndpoint = getEnv("BEDROCK_ENDPOINT", cfg.BedrockEndpoint)
	cfg.BedrockRetries = getIntEnv("BEDROCK_MAX_RETRIES", cfg.BedrockRetries)
	cfg.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLMProvider))
	cfg.ClaudeModelID = getEnv("CLAUDE_MODEL_ID", cfg.ClaudeModelID)
	cfg.EmbeddingModelID = getEnv("EMBEDDING_MODEL_ID", cfg.EmbeddingModelID)
	cfg.EmbeddingDims = getIntEnv("EMBEDDING_DIMENSIONS", cfg.EmbeddingDims)

	cfg.MaxTokens = getIntEnv("MAX_TOKENS", cfg.MaxTokens)
	cfg.Temperature = getFloatEnv("TEMPERATURE", cfg.Temperature)
	cfg.TopP = getFloatEnv("TOP_P", cfg.TopP)
	cfg.SystemPrompt = getEnv("SYSTEM_PROMPT", cfg.SystemPrompt)

	cfg.TopK = getIntEnv("TOP_K", cfg.TopK)
	cfg.DirectMode = getBoolEnv("DIRECT_MODE", cfg.DirectMode)
	cfg.NoContextFallback = getBoolEnv("NO_CONTEXT_FALLBACK", cfg.NoContextFallback)

	cfg.ChunkSize = getIntEnv("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = getIntEnv("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.EmbedConcurrency = getIntEnv("EMBED_CONCURRENCY", cfg.EmbedConcurrency)

	cfg.VectorStore = strings.ToLower(getEnv("VECTOR_STORE", cfg.VectorStore))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
}

// Validate checks settings that would otherwise only fail at the first remote call.
func (c *Config) Validate() error {
	var problems []string

	if !IsSupportedRegion(c.AWSRegion) && c.LLMProvider == ProviderBedrock {
		problems = append(problems, fmt.Sprintf("unsupported aws region %q", c.AWSRegion))
	}
	switch c.LLMProvider {
	case ProviderBedrock, ProviderGemini:
	default:
		problems = append(problems, fmt.Sprintf("unknown llm provider %q", c.LLMProvider))
	}
	switch c.VectorStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required with vector_store=postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown vector store %q", c.VectorStore))
	}
	if c.TopK < 0 || c.TopK > MaxTopK {
		problems = append(problems, fmt.Sprintf("top_k must be in [0, %d]", MaxTopK))
	}
	if c.ChunkSize <= 0 {
		problems = append(problems, "chunk_size must be > 0")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		problems = append(problems, "chunk_overlap must be in [0, chunk_size)")
	}
	if c.MaxTokens <= 0 {
		problems = append(problems, "max_tokens must be > 0")
	}

	if len(problems) > 0 {
		return &ConfigurationError{Reason: strings.Join(problems, "; ")}
	}
	return nil
}

func IsSupportedRegion(region string) bool {
	for _, r := range SupportedRegions {
		if r == region {
			return true
		}
	}
	return false
}

// ConfigurationError reporta settings ausentes ou inválidos.
// Missing traz os nomes exatos das chaves que faltaram.
type ConfigurationError struct {
	Missing []string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(parts) == 0 {
		return "configuration error"
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// IsConfigurationError reports whether err carries a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
