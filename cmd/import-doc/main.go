package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/josinaldojr/bedrock-rag/internal/app"
	"github.com/josinaldojr/bedrock-rag/internal/config"
	"github.com/josinaldojr/bedrock-rag/internal/logging"
	"github.com/josinaldojr/bedrock-rag/internal/rag"
)

type options struct {
	configPath string
	path       string
	question   string
	topK       int
	direct     bool
	prune      bool
	debug      bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("import-doc", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "YAML config file (opcional)")
	fs.StringVar(&o.path, "path", "", "diretório com os PDFs (default: DATA_DIR)")
	fs.StringVar(&o.question, "question", "", "pergunta opcional feita logo após a indexação")
	fs.IntVar(&o.topK, "top-k", -1, "chunks recuperados por pergunta (-1 = config)")
	fs.BoolVar(&o.direct, "direct", false, "pergunta direto ao modelo, sem retrieval")
	fs.BoolVar(&o.prune, "prune", true, "apaga do Postgres o índice anterior depois de indexar")
	fs.BoolVar(&o.debug, "debug", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	o.question = strings.TrimSpace(o.question)
	if o.topK > config.MaxTopK {
		return options{}, fmt.Errorf("-top-k must be <= %d", config.MaxTopK)
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Debug || opts.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	dir := opts.path
	if dir == "" {
		dir = cfg.DataDir
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init app", zap.Error(err))
	}
	defer a.Close()

	prev, err := a.OpenLatest(ctx)
	if err != nil {
		logger.Warn("could not look up previous index", zap.Error(err))
	}

	idx, err := a.Service.Initialize(ctx, dir)
	if err != nil {
		logger.Fatal("index build failed", zap.String("dir", dir), zap.Error(err))
	}
	printIndex(os.Stdout, idx, cfg.VectorStore)

	if opts.prune && prev != nil {
		if err := a.Service.Release(ctx, prev); err != nil {
			logger.Warn("could not prune previous index", zap.String("index_id", prev.ID), zap.Error(err))
		}
	}

	if opts.question == "" {
		return
	}

	resp, err := a.Service.Ask(ctx, idx, askRequest(opts))
	if err != nil {
		logger.Fatal("ask failed", zap.Error(err))
	}
	printAnswer(os.Stdout, resp)
}

func askRequest(o options) rag.AskRequest {
	req := rag.AskRequest{Question: o.question, Direct: o.direct}
	if o.topK >= 0 {
		k := o.topK
		req.TopK = &k
	}
	return req
}

func printIndex(w io.Writer, idx *rag.Index, store string) {
	fmt.Fprintf(w, "index %s: %d document(s), %d chunk(s), store=%s\n", idx.ID, len(idx.Documents), idx.Chunks, store)
	for _, d := range idx.Documents {
		fmt.Fprintf(w, "  - %s\n", d)
	}
}

func printAnswer(w io.Writer, resp *rag.AskResponse) {
	fmt.Fprintf(w, "\n%s\n\n", resp.Answer)
	for i, s := range resp.Sources {
		fmt.Fprintf(w, "[%d] %s #%d score=%.4f %s\n", i+1, s.SourceFile, s.Position, s.Score, s.Preview)
	}
	fmt.Fprintf(w, "tokens: input=%d output=%d total=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.TotalTokens)
}
