package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/josinaldojr/bedrock-rag/internal/app"
	"github.com/josinaldojr/bedrock-rag/internal/config"
	apphttp "github.com/josinaldojr/bedrock-rag/internal/http"
	"github.com/josinaldojr/bedrock-rag/internal/logging"
	"github.com/josinaldojr/bedrock-rag/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (opcional; env tem precedência)")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init app", zap.Error(err))
	}
	defer a.Close()

	h := apphttp.NewHandler(a.Service, cfg, logger)

	if idx, err := a.OpenLatest(ctx); err != nil {
		logger.Warn("could not reopen stored index", zap.Error(err))
	} else if idx != nil {
		logger.Info("reopened stored index", zap.String("index_id", idx.ID), zap.Int("chunks", idx.Chunks))
		h.SetIndex(idx)
	}

	if cfg.AutoInit {
		// sem índice o widget continua disponível para /api/initialize
		if _, err := h.Rebuild(ctx, cfg.DataDir); err != nil {
			logger.Error("auto init failed", zap.String("dir", cfg.DataDir), zap.Error(err))
		}
	}

	if cfg.Watch {
		w, err := watch.New(2*time.Second, logger)
		if err != nil {
			logger.Fatal("failed to create watcher", zap.Error(err))
		}
		go func() {
			err := w.Run(ctx, cfg.DataDir, func(ctx context.Context) error {
				_, err := h.Rebuild(ctx, cfg.DataDir)
				if errors.Is(err, apphttp.ErrBuildInProgress) {
					// um /api/initialize manual está rodando; tenta de novo depois
					return fmt.Errorf("%w: %v", watch.ErrRetry, err)
				}
				return err
			})
			if err != nil {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
		logger.Info("watching data dir", zap.String("dir", cfg.DataDir))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apphttp.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("API listening", zap.String("addr", srv.Addr), zap.String("provider", cfg.LLMProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
