package rag

import (
	"strings"
	"unicode/utf8"
)

const previewLen = 150

// Chunker empacota linhas de texto em chunks de até MaxLen bytes.
// Cada chunk novo começa com o final (Overlap bytes, cortado em palavra)
// do anterior.
type Chunker struct {
	MaxLen  int
	Overlap int
}

func NewChunker(maxLen, overlap int) Chunker {
	if maxLen <= 0 {
		maxLen = 2000
	}
	if overlap < 0 || overlap >= maxLen {
		overlap = 0
	}
	return Chunker{MaxLen: maxLen, Overlap: overlap}
}

func (c Chunker) Split(content string) []string {
	content = sanitizeUTF8(strings.TrimSpace(content))
	if content == "" {
		return nil
	}
	maxLen := c.MaxLen
	if maxLen <= 0 {
		maxLen = 2000
	}
	if len(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	var buf strings.Builder
	carry := 0 // bytes no buf que vieram do chunk anterior

	flush := func() {
		if buf.Len() <= carry {
			buf.Reset()
			carry = 0
			return
		}
		chunk := strings.TrimSpace(buf.String())
		buf.Reset()
		carry = 0
		if chunk == "" {
			return
		}
		chunks = append(chunks, chunk)
		if tail := overlapTail(chunk, c.Overlap); tail != "" {
			buf.WriteString(tail)
			buf.WriteByte('\n')
			carry = buf.Len()
		}
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		for len(line) > maxLen {
			cut := cutIndex(line, maxLen)
			part := line[:cut]
			line = strings.TrimSpace(line[cut:])

			flush()
			buf.Reset()
			carry = 0
			buf.WriteString(part)
			flush()
		}
		if line == "" {
			continue
		}

		if buf.Len()+len(line)+1 > maxLen {
			flush()
			if buf.Len()+len(line)+1 > maxLen {
				buf.Reset()
				carry = 0
			}
		}

		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	flush()
	return chunks
}

func overlapTail(chunk string, n int) string {
	if n <= 0 || len(chunk) <= n {
		return ""
	}
	start := len(chunk) - n
	for start < len(chunk) && !utf8.RuneStart(chunk[start]) {
		start++
	}
	if i := strings.IndexAny(chunk[start:], " \n"); i >= 0 {
		start += i + 1
	}
	return strings.TrimSpace(chunk[start:])
}

// cutIndex devolve o maior índice <= max que cai numa fronteira de rune.
func cutIndex(s string, max int) int {
	i := max
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	if i == 0 {
		return max
	}
	return i
}

// remove bytes inválidos para UTF-8 (evita erro 22021 no Postgres)
func sanitizeUTF8(s string) string {
	if s == "" || utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		b.WriteRune(r)
		s = s[size:]
	}
	return b.String()
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func preview(s string) string {
	s = normalizeWhitespace(s)
	if len(s) <= previewLen {
		return s
	}
	return s[:cutIndex(s, previewLen)] + "..."
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if len(s) > 160 {
		return s[:cutIndex(s, 160)] + "..."
	}
	return s
}
