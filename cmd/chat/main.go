package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/josinaldojr/bedrock-rag/internal/app"
	"github.com/josinaldojr/bedrock-rag/internal/config"
	"github.com/josinaldojr/bedrock-rag/internal/logging"
	"github.com/josinaldojr/bedrock-rag/internal/rag"
	"github.com/josinaldojr/bedrock-rag/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (opcional)")
	pathFlag := flag.String("path", "", "diretório com os PDFs (default: DATA_DIR)")
	direct := flag.Bool("direct", false, "começa em modo direto (sem retrieval)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// o TUI ocupa o terminal; logs vão para arquivo
	logger, err := logging.NewFileLogger(cfg.Debug, "chat.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	dir := *pathFlag
	if dir == "" {
		dir = cfg.DataDir
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	fmt.Printf("Indexing %s ...\n", dir)
	idx, err := a.Service.Initialize(ctx, dir)
	if err != nil {
		if !errors.Is(err, rag.ErrNoDocuments) || !(*direct || cfg.DirectMode) {
			fmt.Fprintf(os.Stderr, "index build failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("No documents found, continuing in direct mode.")
	}

	m := tui.New(a.Service, idx, *direct)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
}
