package rag

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode"

	"github.com/josinaldojr/bedrock-rag/internal/config"
)

const fakeDims = 64

// fakeEmbedder gera um bag-of-words determinístico.
type fakeEmbedder struct {
	calls atomic.Int32
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, &EmbeddingError{Model: "fake", Err: f.err}
	}
	vec := make([]float32, fakeDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%fakeDims]++
	}
	return vec, nil
}

type fakeCompleter struct {
	mu   sync.Mutex
	reqs []CompletionRequest
	err  error
}

func (f *fakeCompleter) Generate(_ context.Context, req CompletionRequest) (*ChatResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, &CompletionError{Model: "fake", Err: f.err}
	}
	return &ChatResponse{Text: "generated answer", InputTokens: 42, OutputTokens: 8, TotalTokens: 50}, nil
}

func (f *fakeCompleter) last(t *testing.T) CompletionRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		t.Fatal("completion client was not called")
	}
	return f.reqs[len(f.reqs)-1]
}

func (f *fakeCompleter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

// fakeExtractor devolve texto por nome de arquivo, sem abrir o PDF.
type fakeExtractor map[string]string

func (f fakeExtractor) ExtractText(path string) (string, error) {
	text, ok := f[filepath.Base(path)]
	if !ok {
		return "", errors.New("unexpected file " + path)
	}
	return text, nil
}

type fixture struct {
	svc *Service
	emb *fakeEmbedder
	llm *fakeCompleter
	dir string
}

func newFixture(t *testing.T, docs map[string]string, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	for name := range docs {
		writeFile(t, filepath.Join(dir, name), "%PDF-1.4 fake")
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = "You are a helpful assistant."
	}
	emb := &fakeEmbedder{}
	llm := &fakeCompleter{}
	svc := NewService(emb, llm, opts, WithExtractor(fakeExtractor(docs)))
	return &fixture{svc: svc, emb: emb, llm: llm, dir: dir}
}

func intPtr(n int) *int { return &n }

func TestInitialize_NoDocuments(t *testing.T) {
	f := newFixture(t, nil, Options{TopK: 3})
	writeFile(t, filepath.Join(f.dir, "readme.txt"), "not a pdf")

	_, err := f.svc.Initialize(context.Background(), f.dir)
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}
	if f.emb.calls.Load() != 0 {
		t.Error("embedding client should not be called")
	}
}

func TestInitialize_MissingDirectory(t *testing.T) {
	f := newFixture(t, nil, Options{TopK: 3})
	_, err := f.svc.Initialize(context.Background(), filepath.Join(f.dir, "gone"))
	if !config.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestInitialize_BuildsIndex(t *testing.T) {
	f := newFixture(t, map[string]string{
		"rules.pdf": "Authorised Dealers may process foreign payments.",
		"faq.pdf":   "BOP codes classify cross-border transactions.",
	}, Options{TopK: 3, EmbedConcurrency: 2})

	idx, err := f.svc.Initialize(context.Background(), f.dir)
	if err != nil {
		t.Fatal(err)
	}
	if idx.ID == "" || idx.Chunks != 2 {
		t.Errorf("unexpected index: %+v", idx)
	}
	if len(idx.Documents) != 2 || idx.Documents[0] != "faq.pdf" || idx.Documents[1] != "rules.pdf" {
		t.Errorf("documents: %v", idx.Documents)
	}
	if n := f.emb.calls.Load(); n != 2 {
		t.Errorf("expected one embedding per chunk, got %d", n)
	}
}

func TestInitialize_EmbeddingFailure(t *testing.T) {
	f := newFixture(t, map[string]string{"a.pdf": "some text"}, Options{TopK: 3})
	f.emb.err = errors.New("throttled")

	_, err := f.svc.Initialize(context.Background(), f.dir)
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
}

func TestAsk_SingleDocumentCitesSource(t *testing.T) {
	f := newFixture(t, map[string]string{
		"rules.pdf": "Authorised Dealers may process foreign payments.",
	}, Options{TopK: 3})
	ctx := context.Background()

	idx, err := f.svc.Initialize(ctx, f.dir)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := f.svc.Ask(ctx, idx, AskRequest{Question: "Who may process foreign payments?", TopK: intPtr(1)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != ModeRAG {
		t.Errorf("mode: %s", resp.Mode)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].SourceFile != "rules.pdf" {
		t.Fatalf("sources: %+v", resp.Sources)
	}
	if resp.Sources[0].Position != 0 || resp.Sources[0].Preview == "" {
		t.Errorf("source metadata: %+v", resp.Sources[0])
	}
	if resp.Answer != "generated answer" {
		t.Errorf("answer: %q", resp.Answer)
	}
	if resp.Usage.TotalTokens <= 0 || resp.Usage.TotalTokens != resp.Usage.InputTokens+resp.Usage.OutputTokens {
		t.Errorf("usage: %+v", resp.Usage)
	}

	req := f.llm.last(t)
	if req.System != "You are a helpful assistant." {
		t.Errorf("system prompt: %q", req.System)
	}
	prompt := req.Messages[len(req.Messages)-1].Content
	if !strings.Contains(prompt, "Authorised Dealers may process foreign payments.") {
		t.Errorf("retrieved text missing from prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Who may process foreign payments?") {
		t.Errorf("question missing from prompt:\n%s", prompt)
	}
}

func TestAsk_RanksRelevantChunkFirst(t *testing.T) {
	f := newFixture(t, map[string]string{
		"payments.pdf": "Authorised Dealers may process foreign payments.",
		"weather.pdf":  "Spring weather here is mild and pleasant.",
	}, Options{TopK: 2})
	ctx := context.Background()

	idx, err := f.svc.Initialize(ctx, f.dir)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := f.svc.Ask(ctx, idx, AskRequest{Question: "Who may process foreign payments?"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(resp.Sources))
	}
	if resp.Sources[0].SourceFile != "payments.pdf" {
		t.Errorf("best source: %s", resp.Sources[0].SourceFile)
	}
	if resp.Sources[0].Score < resp.Sources[1].Score {
		t.Errorf("sources not ordered by score: %+v", resp.Sources)
	}
}

func TestAsk_TopKZeroWithoutFallback(t *testing.T) {
	f := newFixture(t, map[string]string{"a.pdf": "text"}, Options{TopK: 3})
	ctx := context.Background()
	idx, err := f.svc.Initialize(ctx, f.dir)
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.Ask(ctx, idx, AskRequest{Question: "anything?", TopK: intPtr(0)})
	if !errors.Is(err, ErrNoContext) {
		t.Fatalf("expected ErrNoContext, got %v", err)
	}
	if f.llm.count() != 0 {
		t.Error("completion should not be called without context")
	}
}

func TestAsk_TopKZeroWithFallback(t *testing.T) {
	f := newFixture(t, map[string]string{"a.pdf": "text"}, Options{TopK: 3, FallbackToDirect: true})
	ctx := context.Background()
	idx, err := f.svc.Initialize(ctx, f.dir)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := f.svc.Ask(ctx, idx, AskRequest{Question: "anything?", TopK: intPtr(0)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != ModeDirect || resp.Sources == nil || len(resp.Sources) != 0 {
		t.Errorf("fallback response: %+v", resp)
	}
}

func TestAsk_NilIndex(t *testing.T) {
	f := newFixture(t, nil, Options{TopK: 3})
	_, err := f.svc.Ask(context.Background(), nil, AskRequest{Question: "hello?"})
	if !errors.Is(err, ErrNoContext) {
		t.Fatalf("expected ErrNoContext, got %v", err)
	}
}

func TestAsk_EmptyTextIndex(t *testing.T) {
	f := newFixture(t, map[string]string{"scan.pdf": ""}, Options{TopK: 3})
	ctx := context.Background()
	idx, err := f.svc.Initialize(ctx, f.dir)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Chunks != 0 || len(idx.Documents) != 1 {
		t.Errorf("unexpected index: %+v", idx)
	}
	if _, err := f.svc.Ask(ctx, idx, AskRequest{Question: "what?"}); !errors.Is(err, ErrNoContext) {
		t.Fatalf("expected ErrNoContext, got %v", err)
	}
}

func TestAsk_DirectModeSkipsRetrieval(t *testing.T) {
	f := newFixture(t, map[string]string{"a.pdf": "Authorised Dealers may process foreign payments."}, Options{TopK: 3})
	ctx := context.Background()
	idx, err := f.svc.Initialize(ctx, f.dir)
	if err != nil {
		t.Fatal(err)
	}
	before := f.emb.calls.Load()

	resp, err := f.svc.Ask(ctx, idx, AskRequest{Question: "Tell me a joke", Direct: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != ModeDirect || len(resp.Sources) != 0 {
		t.Errorf("direct response: %+v", resp)
	}
	if f.emb.calls.Load() != before {
		t.Error("direct mode should not embed the question")
	}
	req := f.llm.last(t)
	if got := req.Messages[len(req.Messages)-1].Content; got != "Tell me a joke" {
		t.Errorf("direct prompt should be the question verbatim, got %q", got)
	}
}

func TestAsk_DirectModeOptionWithoutIndex(t *testing.T) {
	f := newFixture(t, nil, Options{TopK: 3, DirectMode: true})
	resp, err := f.svc.Ask(context.Background(), nil, AskRequest{Question: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != ModeDirect {
		t.Errorf("mode: %s", resp.Mode)
	}
}

func TestAsk_PassesHistory(t *testing.T) {
	f := newFixture(t, nil, Options{TopK: 3, DirectMode: true})
	history := []Message{
		{Role: RoleUser, Content: "My name is Ana."},
		{Role: RoleAssistant, Content: "Nice to meet you, Ana."},
		{Role: RoleUser, Content: "   "},
	}

	_, err := f.svc.Ask(context.Background(), nil, AskRequest{Question: "What is my name?", History: history})
	if err != nil {
		t.Fatal(err)
	}

	req := f.llm.last(t)
	if len(req.Messages) != 3 {
		t.Fatalf("expected 2 history turns + question, got %d", len(req.Messages))
	}
	if req.Messages[0] != history[0] || req.Messages[1] != history[1] {
		t.Errorf("history not forwarded in order: %+v", req.Messages)
	}
	if req.Messages[2].Role != RoleUser || req.Messages[2].Content != "What is my name?" {
		t.Errorf("last message: %+v", req.Messages[2])
	}
	if len(history) != 3 {
		t.Error("caller history must not be modified")
	}
}

func TestAsk_TemperatureOverride(t *testing.T) {
	f := newFixture(t, nil, Options{Temperature: 0.1, DirectMode: true})
	temp := 0.7
	if _, err := f.svc.Ask(context.Background(), nil, AskRequest{Question: "q", Temperature: &temp}); err != nil {
		t.Fatal(err)
	}
	if got := f.llm.last(t).Temperature; got != 0.7 {
		t.Errorf("temperature: %v", got)
	}
	if _, err := f.svc.Ask(context.Background(), nil, AskRequest{Question: "q"}); err != nil {
		t.Fatal(err)
	}
	if got := f.llm.last(t).Temperature; got != 0.1 {
		t.Errorf("default temperature: %v", got)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newFixture(t, nil, Options{TopK: 3})
	if _, err := f.svc.Ask(context.Background(), nil, AskRequest{Question: "  "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestAsk_SourcesMatchPromptWhenTopKAboveCap(t *testing.T) {
	docs := map[string]string{}
	for i := 0; i < 15; i++ {
		docs[fmt.Sprintf("doc%02d.pdf", i)] = fmt.Sprintf("Payments rule number %d for dealers.", i)
	}
	f := newFixture(t, docs, Options{TopK: 3})
	ctx := context.Background()
	idx, err := f.svc.Initialize(ctx, f.dir)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := f.svc.Ask(ctx, idx, AskRequest{Question: "Which payments rules apply to dealers?", TopK: intPtr(15)})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != maxContextChunks {
		t.Fatalf("expected %d sources, got %d", maxContextChunks, len(resp.Sources))
	}

	prompt := f.llm.last(t).Messages[0].Content
	if n := strings.Count(prompt, "[DOC "); n != len(resp.Sources) {
		t.Errorf("prompt has %d docs, response cites %d", n, len(resp.Sources))
	}
	for _, src := range resp.Sources {
		if !strings.Contains(prompt, "file="+src.SourceFile+" ") {
			t.Errorf("cited %s was not sent to the model", src.SourceFile)
		}
	}
}

func TestAsk_LongChunkReachesPromptWhole(t *testing.T) {
	body := strings.TrimSpace(strings.Repeat("foreign payments need approval ", 100))
	f := newFixture(t, map[string]string{"long.pdf": body}, Options{TopK: 1, ChunkSize: 4000})
	ctx := context.Background()
	idx, err := f.svc.Initialize(ctx, f.dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Ask(ctx, idx, AskRequest{Question: "What needs approval?"}); err != nil {
		t.Fatal(err)
	}
	if prompt := f.llm.last(t).Messages[0].Content; !strings.Contains(prompt, body) {
		t.Error("retrieved chunk was cut before reaching the model")
	}
}

func TestAsk_CompletionFailure(t *testing.T) {
	f := newFixture(t, map[string]string{"a.pdf": "some text"}, Options{TopK: 3})
	ctx := context.Background()
	idx, err := f.svc.Initialize(ctx, f.dir)
	if err != nil {
		t.Fatal(err)
	}
	f.llm.err = errors.New("ValidationException")

	_, err = f.svc.Ask(ctx, idx, AskRequest{Question: "some?"})
	var compErr *CompletionError
	if !errors.As(err, &compErr) {
		t.Fatalf("expected CompletionError, got %v", err)
	}
}

func TestAsk_ConcurrentCallsShareIndex(t *testing.T) {
	f := newFixture(t, map[string]string{
		"rules.pdf": "Authorised Dealers may process foreign payments.",
	}, Options{TopK: 1})
	ctx := context.Background()
	idx, err := f.svc.Initialize(ctx, f.dir)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Ask(ctx, idx, AskRequest{Question: "Who processes payments?"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if f.llm.count() != 8 {
		t.Errorf("expected 8 completions, got %d", f.llm.count())
	}
}

func TestEmbedAsync(t *testing.T) {
	emb := &fakeEmbedder{}
	ch := EmbedAsync(context.Background(), emb, "foreign payments")

	res, ok := <-ch
	if !ok || res.Err != nil || len(res.Vector) != fakeDims {
		t.Fatalf("unexpected result: %+v ok=%v", res, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after the result")
	}
}

func TestEmbedAsync_Error(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("boom")}
	res := <-EmbedAsync(context.Background(), emb, "x")
	var embErr *EmbeddingError
	if !errors.As(res.Err, &embErr) {
		t.Fatalf("expected EmbeddingError, got %v", res.Err)
	}
}

type fakePruner struct{ deleted []string }

func (p *fakePruner) DeleteIndex(_ context.Context, id string) error {
	p.deleted = append(p.deleted, id)
	return nil
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex("old-index", "/d", nil, 1, time.Now(), NewMemoryStore())

	// memória: nada a apagar
	plain := NewService(&fakeEmbedder{}, &fakeCompleter{}, Options{})
	if err := plain.Release(ctx, idx); err != nil {
		t.Fatalf("release without pruner: %v", err)
	}

	p := &fakePruner{}
	svc := NewService(&fakeEmbedder{}, &fakeCompleter{}, Options{}, WithPruner(p))
	if err := svc.Release(ctx, nil); err != nil {
		t.Fatalf("release nil index: %v", err)
	}
	if err := svc.Release(ctx, idx); err != nil {
		t.Fatal(err)
	}
	if len(p.deleted) != 1 || p.deleted[0] != "old-index" {
		t.Errorf("deleted: %v", p.deleted)
	}
}
