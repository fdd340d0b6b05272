package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Thangam2001/Utility-App/internal/compress"
	"github.com/Thangam2001/Utility-App/internal/config"
	"github.com/Thangam2001/Utility-App/internal/converter"
	"github.com/Thangam2001/Utility-App/internal/history"
	"github.com/Thangam2001/Utility-App/internal/logger"
	"github.com/Thangam2001/Utility-App/internal/ocr"
	"github.com/Thangam2001/Utility-App/internal/pipeline"
	"github.com/Thangam2001/Utility-App/internal/storage"
)

// cliHistoryFile is used by one-shot commands when neither a history file
// nor a database is configured, so the history command has something to show.
const cliHistoryFile = "history.json"

// components are the collaborators shared by the serve and operation commands
type components struct {
	processor *pipeline.Processor
	chain     *ocr.Chain
	store     *storage.FileStore
	ledger    history.Ledger
}

// buildComponents wires the pipeline, storage and history from cfg.
// persistHistory selects a snapshot file under the storage directory when
// no history backend is configured.
func buildComponents(ctx context.Context, cfg *config.Config, log *logger.Logger, persistHistory bool) (*components, error) {
	layout := converter.Layout{
		PageWidth:  cfg.Document.PageWidth,
		PageHeight: cfg.Document.PageHeight,
		Margin:     cfg.Document.Margin,
		FontSize:   cfg.Document.FontSize,
		LineGap:    cfg.Document.LineGap,
	}
	conv, err := converter.New(&converter.Config{Logger: log, Layout: &layout})
	if err != nil {
		return nil, fmt.Errorf("failed to create converter: %w", err)
	}

	chain := ocr.NewChainFromConfig(ctx, &cfg.OCR, log)

	proc, err := pipeline.New(&pipeline.Config{
		Logger:     log,
		Converter:  conv,
		Compressor: compress.New(&compress.Config{Logger: log}),
		Recognizer: chain,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}

	store, err := storage.NewFileStore(&storage.Config{Logger: log, Dir: cfg.Storage.Dir})
	if err != nil {
		return nil, err
	}

	historyCfg := cfg.History
	if persistHistory && historyCfg.File == "" && historyCfg.DatabaseURL == "" {
		historyCfg.File = filepath.Join(store.Dir(), cliHistoryFile)
	}
	ledger, err := history.NewFromConfig(ctx, &historyCfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	return &components{
		processor: proc,
		chain:     chain,
		store:     store,
		ledger:    ledger,
	}, nil
}

// Close releases the history backend
func (c *components) Close() error {
	return c.ledger.Close()
}
