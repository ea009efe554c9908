package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/glezrdg/contablebot-worker/internal/common"
	"github.com/glezrdg/contablebot-worker/internal/extract"
	"github.com/glezrdg/contablebot-worker/internal/metrics"
	"github.com/glezrdg/contablebot-worker/internal/store"
	"github.com/glezrdg/contablebot-worker/internal/worker"
)

func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log)

	logger.Info("--- Starting contablebot extraction worker ---")

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := store.NewClient(cfg.Store.BaseURL, cfg.Store.ServiceKey, cfg.Store.Timeout, logger)
	// an unreachable store is not fatal: the loop logs claim errors and
	// keeps polling until the store comes back
	if err := client.Ping(ctx); err != nil {
		logger.Warn("store unreachable at startup", "error", err)
	}
	invoices := store.NewInvoiceRepository(client)
	firms := store.NewFirmRepository(client)

	extractor := extract.NewClient(extract.Config{
		URL:         cfg.Extractor.URL,
		Instruction: extract.InstructionPrompt,
		Timeout:     cfg.Extractor.Timeout,
	}, logger)
	retrier := extract.NewRetrier(extractor, cfg.Extractor.MaxRetries, cfg.Extractor.InitialDelay, logger)

	committer := worker.NewCommitter(invoices, firms, logger)
	w := worker.New(worker.Config{
		BatchSize:     cfg.Worker.BatchSize,
		PollInterval:  cfg.Worker.PollInterval,
		ShutdownGrace: cfg.Worker.ShutdownGrace,
	}, invoices, retrier, committer, logger)

	if cfg.Metrics.Addr != "" {
		go metrics.ExposeMetrics(cfg.Metrics.Addr)
	}

	logger.Info("worker loop starting",
		"batch_size", cfg.Worker.BatchSize,
		"poll_interval", cfg.Worker.PollInterval.String(),
		"max_retries", cfg.Extractor.MaxRetries,
	)
	w.Run(ctx)
	logger.Info("worker stopped")
}
