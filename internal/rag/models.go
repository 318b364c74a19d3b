package rag

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message é um turno da conversa: papel + texto literal.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest é o que o adapter de chat envia ao modelo.
// Messages termina sempre com o turno do usuário atual.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Temperature float64
}

// ChatResponse
// Texto gerado + contadores de tokens. TotalTokens == InputTokens + OutputTokens.
type ChatResponse struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	TotalTokens  int    `json:"totalTokens"`
}

// DocChunk
// Um pedaço contíguo de um PDF, unidade de indexação e recuperação.
type DocChunk struct {
	ID         string    `json:"id"`
	IndexID    string    `json:"indexId"`
	SourceFile string    `json:"sourceFile"`
	Position   int       `json:"position"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ScoredChunk é um chunk retornado pela busca vetorial.
type ScoredChunk struct {
	DocChunk
	Score float64 `json:"score"`
}

type Mode string

const (
	ModeRAG    Mode = "rag"
	ModeDirect Mode = "direct"
)

// AskRequest
// Payload do /ask. History é dono do chamador e vem inteiro a cada turno.
type AskRequest struct {
	Question    string    `json:"question"`
	TopK        *int      `json:"topK,omitempty"` // nil = default da config; 0 = sem retrieval
	Direct      bool      `json:"direct,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	History     []Message `json:"history,omitempty"`
	Lang        string    `json:"lang,omitempty"`
}

// SourceRef
// Metadados do trecho usado na resposta, para citação.
type SourceRef struct {
	ChunkID    string  `json:"chunkId"`
	SourceFile string  `json:"sourceFile"`
	Position   int     `json:"position"`
	Score      float64 `json:"score"`
	Preview    string  `json:"preview"`
}

// AskResponse
// Resposta: texto + fontes + uso de tokens.
type AskResponse struct {
	Answer  string       `json:"answer"`
	Mode    Mode         `json:"mode"`
	Sources []SourceRef  `json:"sources"`
	Usage   ChatResponse `json:"usage"`
}
