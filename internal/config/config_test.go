package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AWSRegion == "" || cfg.DataDir == "" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.LLMProvider != ProviderBedrock || cfg.VectorStore != StoreMemory {
		t.Errorf("unexpected provider/store: %s/%s", cfg.LLMProvider, cfg.VectorStore)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.TopK != 3 {
		t.Errorf("default top_k: got %d", cfg.TopK)
	}
	if cfg.MaxTokens != 5000 || cfg.TopP != 0.9 || cfg.Temperature != 0.1 {
		t.Errorf("default generation params: %+v", cfg)
	}
	if cfg.AWSRegion != "eu-central-1" {
		t.Errorf("default region: got %s", cfg.AWSRegion)
	}
	if cfg.EmbeddingModelID != "amazon.titan-embed-text-v1" {
		t.Errorf("default embedding model: got %s", cfg.EmbeddingModelID)
	}
	if cfg.DirectMode || cfg.NoContextFallback {
		t.Error("retrieval-required mode should be the default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
port: "9000"
data_dir: "/srv/pdfs"
top_k: 5
aws_region: "us-east-1"
direct_mode: true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TOP_K", "7")
	t.Setenv("NO_CONTEXT_FALLBACK", "true")
	t.Setenv("WATCH_DATA_DIR", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9000" || cfg.DataDir != "/srv/pdfs" || cfg.AWSRegion != "us-east-1" {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	if cfg.TopK != 7 {
		t.Errorf("env should override yaml: top_k = %d", cfg.TopK)
	}
	if !cfg.DirectMode || !cfg.NoContextFallback {
		t.Errorf("bool flags: direct=%v fallback=%v", cfg.DirectMode, cfg.NoContextFallback)
	}
	if !cfg.Watch {
		t.Error("WATCH_DATA_DIR should enable the watcher")
	}
	if cfg.ChunkSize != 2000 {
		t.Errorf("unset yaml keys keep defaults: chunk_size = %d", cfg.ChunkSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("top_k: [1, 2"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unsupported region", func(c *Config) { c.AWSRegion = "sa-east-1" }, "unsupported aws region"},
		{"unknown provider", func(c *Config) { c.LLMProvider = "openai" }, "unknown llm provider"},
		{"postgres without url", func(c *Config) { c.VectorStore = StorePostgres }, "DATABASE_URL"},
		{"negative top_k", func(c *Config) { c.TopK = -1 }, "top_k"},
		{"top_k above cap", func(c *Config) { c.TopK = MaxTopK + 1 }, "top_k"},
		{"overlap too large", func(c *Config) { c.ChunkOverlap = c.ChunkSize }, "chunk_overlap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !IsConfigurationError(err) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_GeminiIgnoresRegion(t *testing.T) {
	cfg := Defaults()
	cfg.LLMProvider = ProviderGemini
	cfg.AWSRegion = "nowhere-1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("gemini provider should not validate aws region: %v", err)
	}
}

func TestConfigurationError_Message(t *testing.T) {
	err := &ConfigurationError{Missing: []string{EnvAccessKeyID, EnvSessionToken}}
	want := "configuration error: missing aws_access_key_id, aws_session_token"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
