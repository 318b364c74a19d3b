package rag

import (
	"fmt"
	"strings"

	wl "github.com/abadojack/whatlanggo"

	"github.com/josinaldojr/bedrock-rag/internal/config"
)

// maxContextChunks limita quantos chunks entram no prompt; Ask corta topK
// nesse valor para que as fontes citadas sejam exatamente as enviadas.
const maxContextChunks = config.MaxTopK

var languageNames = map[string]string{
	"en": "English",
	"pt": "Brazilian Portuguese",
	"es": "Spanish",
	"de": "German",
	"fr": "French",
}

// buildRAGPrompt monta instruções + bloco de contexto + pergunta.
func buildRAGPrompt(question string, chunks []ScoredChunk, lang string) string {
	var b strings.Builder

	b.WriteString("Context information is below.\n")
	b.WriteString("---------------------\n")
	b.WriteString(contextBlock(chunks))
	b.WriteString("---------------------\n")
	b.WriteString("Given the context information and not prior knowledge, answer the query. ")
	b.WriteString("If the answer is not clearly present in the context, say that it is not available in the indexed documents. ")
	b.WriteString("Do not invent facts, figures or references.\n")
	if target, ok := languageNames[lang]; ok {
		b.WriteString(target)
		b.WriteString(" is the target language for the answer.\n")
	}
	b.WriteString("Query: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\nAnswer: ")

	return b.String()
}

func contextBlock(chunks []ScoredChunk) string {
	var b strings.Builder

	n := len(chunks)
	if n > maxContextChunks {
		n = maxContextChunks
	}

	for i := 0; i < n; i++ {
		c := chunks[i]
		b.WriteString(fmt.Sprintf("[DOC %d] file=%s position=%d\n", i+1, oneLine(c.SourceFile), c.Position))
		b.WriteString(strings.TrimSpace(c.Content))
		b.WriteString("\n\n")
	}
	return b.String()
}

func detectLang(s string) string {
	info := wl.Detect(s)
	switch info.Lang {
	case wl.Por:
		return "pt"
	case wl.Spa:
		return "es"
	case wl.Deu:
		return "de"
	case wl.Fra:
		return "fr"
	default:
		return "en"
	}
}
