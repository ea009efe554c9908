package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/glezrdg/contablebot-worker/internal/common"
	"github.com/glezrdg/contablebot-worker/internal/export"
	"github.com/glezrdg/contablebot-worker/internal/store"
)

func main() {
	firmID := flag.Int64("firm", 0, "firm id to export")
	month := flag.String("month", "", "month to export (yyyy-mm, default: current month)")
	out := flag.String("out", "", "output path (default: facturas-<firm>-<month>.xlsx)")
	flag.Parse()

	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *firmID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: export -firm <id> [-month yyyy-mm] [-out file.xlsx]")
		os.Exit(2)
	}

	when := time.Now().UTC()
	if *month != "" {
		var err error
		when, err = time.Parse("2006-01", *month)
		if err != nil {
			logger.Error("invalid -month, expected yyyy-mm", "value", *month)
			os.Exit(2)
		}
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("facturas-%d-%s.xlsx", *firmID, when.Format("2006-01"))
	}

	client := store.NewClient(cfg.Store.BaseURL, cfg.Store.ServiceKey, cfg.Store.Timeout, logger)
	svc := export.NewService(store.NewInvoiceRepository(client), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	data, err := svc.MonthlyReportXLSX(ctx, *firmID, when.Year(), when.Month())
	if err != nil {
		logger.Error("export failed", "firm_id", *firmID, "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Error("write failed", "path", path, "error", err)
		os.Exit(1)
	}
	logger.Info("export written", "path", path, "bytes", len(data))
}
