package main

import (
	"context"
	"os"
	"time"

	"github.com/glezrdg/contablebot-worker/internal/common"
	"github.com/glezrdg/contablebot-worker/internal/store"
)

// Probe: verifies the store is reachable and reports how many rows are
// stuck in processing (claimed but never committed, e.g. after a crash).
func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := store.NewClient(cfg.Store.BaseURL, cfg.Store.ServiceKey, cfg.Store.Timeout, logger)
	if err := client.Ping(ctx); err != nil {
		logger.Error("store health failed", "error", err)
		os.Exit(1)
	}
	logger.Info("store health OK")

	invoices := store.NewInvoiceRepository(client)
	cutoff := time.Now().UTC().Add(-1 * time.Hour)
	stuck, err := invoices.CountStuckProcessing(ctx, cutoff)
	if err != nil {
		logger.Warn("could not count stuck processing rows", "error", err)
		return
	}
	if stuck > 0 {
		logger.Warn("rows stuck in processing", "count", stuck, "older_than", cutoff.Format(time.RFC3339))
	} else {
		logger.Info("no stuck processing rows")
	}
}
