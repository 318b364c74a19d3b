// Package watch reconstrói o índice quando PDFs do diretório de dados mudam.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const pdfOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// ErrRetry, devolvido (ou embrulhado) por onChange, reagenda a mesma
// reconstrução para depois do próximo intervalo de debounce.
var ErrRetry = errors.New("rebuild should be retried")

type Watcher struct {
	fw       *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger
}

func New(debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{fw: fw, debounce: debounce, logger: logger}, nil
}

// Run observa dir até ctx ser cancelado. Uma rajada de eventos (cópia de
// vários arquivos, por exemplo) gera uma única chamada a onChange.
func (w *Watcher) Run(ctx context.Context, dir string, onChange func(ctx context.Context) error) error {
	defer w.fw.Close()

	if err := w.fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !isPDFEvent(ev) {
				continue
			}
			w.logger.Debug("pdf changed", zap.String("file", filepath.Base(ev.Name)), zap.String("op", ev.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			err := onChange(ctx)
			switch {
			case errors.Is(err, ErrRetry):
				w.logger.Debug("rebuild postponed", zap.Error(err))
				timer.Reset(w.debounce)
			case err != nil:
				w.logger.Warn("rebuild after change failed", zap.Error(err))
			}
		}
	}
}

func isPDFEvent(ev fsnotify.Event) bool {
	if ev.Op&pdfOps == 0 {
		return false
	}
	return strings.EqualFold(filepath.Ext(ev.Name), ".pdf")
}
