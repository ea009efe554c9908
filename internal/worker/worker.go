// Package worker ties the claim, extraction, and commit steps into the
// polling loop that drives the pipeline.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/glezrdg/contablebot-worker/internal/entity"
	"github.com/glezrdg/contablebot-worker/internal/extract"
	"github.com/glezrdg/contablebot-worker/internal/metrics"
	"github.com/glezrdg/contablebot-worker/internal/quality"
	"github.com/glezrdg/contablebot-worker/internal/store"
)

// Config holds the loop parameters.
type Config struct {
	BatchSize     int
	PollInterval  time.Duration
	ShutdownGrace time.Duration
}

// Worker owns one claim→extract→commit pipeline instance. Multiple worker
// processes may run the same loop against the same store; the server-side
// atomic claim is the only serialization point they need.
type Worker struct {
	cfg       Config
	invoices  store.InvoiceRepository
	extractor extract.BatchExtractor
	committer *Committer
	log       *slog.Logger

	shuttingDown atomic.Bool
}

func New(cfg Config, invoices store.InvoiceRepository, extractor extract.BatchExtractor, committer *Committer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:       cfg,
		invoices:  invoices,
		extractor: extractor,
		committer: committer,
		log:       logger,
	}
}

// Run executes the polling loop: one immediate cycle, then one per tick,
// until ctx is canceled. Cycles run on their own context so an in-flight
// HTTP call completes during shutdown; Run returns once the current cycle
// finishes or the grace window expires.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	cycleDone := make(chan struct{}, 1)
	runCycle := func() {
		defer func() { cycleDone <- struct{}{} }()
		w.SafeCycle(context.Background())
	}

	go runCycle()
	inFlight := true

	for {
		select {
		case <-ctx.Done():
			w.shuttingDown.Store(true)
			w.log.Info("worker.shutdown_signal", "grace", w.cfg.ShutdownGrace.String())
			if inFlight {
				select {
				case <-cycleDone:
					w.log.Info("worker.shutdown_clean")
				case <-time.After(w.cfg.ShutdownGrace):
					w.log.Warn("worker.shutdown_grace_expired")
				}
			}
			return
		case <-cycleDone:
			inFlight = false
		case <-ticker.C:
			if w.shuttingDown.Load() {
				continue
			}
			if inFlight {
				// cycles never overlap within one instance
				w.log.Debug("worker.tick_skipped_busy")
				continue
			}
			inFlight = true
			go runCycle()
		}
	}
}

// SafeCycle runs one cycle with panic isolation: the worker never exits
// because of a processing error, only on shutdown signals or a startup
// misconfiguration.
func (w *Worker) SafeCycle(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			metrics.CyclesTotal.WithLabelValues("panic").Inc()
			w.log.Error("worker.cycle_panic", "panic", fmt.Sprintf("%v", p))
		}
	}()
	w.RunCycle(ctx)
}

// RunCycle executes one claim→extract→commit pass.
func (w *Worker) RunCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	claimed, err := w.invoices.ClaimPending(ctx, w.cfg.BatchSize)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("claim_error").Inc()
		w.log.Error("worker.claim_failed", "error", err)
		return
	}
	if len(claimed) == 0 {
		metrics.CyclesTotal.WithLabelValues("empty").Inc()
		w.log.Debug("worker.queue_empty")
		return
	}

	metrics.InvoicesClaimed.Add(float64(len(claimed)))
	w.log.Info("worker.batch_claimed", "count", len(claimed))

	extractStart := time.Now()
	extracted, rawText, err := w.extractor.ExtractBatch(ctx, claimed)
	metrics.ExtractionDuration.Observe(time.Since(extractStart).Seconds())
	if err != nil {
		metrics.ExtractionAttempts.WithLabelValues("error").Inc()
		metrics.CyclesTotal.WithLabelValues("extract_error").Inc()
		metrics.InvoicesErrored.Add(float64(len(claimed)))
		w.log.Error("worker.extraction_exhausted", "count", len(claimed), "error", err)
		w.committer.MarkError(ctx, claimed, err)
		return
	}
	metrics.ExtractionAttempts.WithLabelValues("ok").Inc()
	w.log.Info("worker.extraction_ok",
		"records", len(extracted),
		"raw_bytes", len(rawText),
	)

	if err := w.committer.Commit(ctx, claimed, extracted); err != nil {
		metrics.CyclesTotal.WithLabelValues("commit_error").Inc()
		w.log.Error("worker.commit_failed", "error", err)
		return
	}
	metrics.InvoicesProcessed.Add(float64(len(extracted)))

	w.committer.RefreshUsage(ctx, claimed)

	summary := quality.ValidateBatch(applyExtraction(claimed, extracted))
	w.log.Info("worker.batch_quality",
		"total", summary.Total,
		"good", summary.Good,
		"review", summary.Review,
		"bad", summary.Bad,
		"flagged_by_ai", summary.FlaggedByAI,
		"math_errors", summary.MathErrors,
	)

	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	w.log.Info("worker.cycle_ok",
		"count", len(claimed),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// applyExtraction overlays extracted fields onto the claimed records so the
// batch quality summary reflects what was just committed.
func applyExtraction(claimed []entity.InvoiceRecord, extracted []extract.ExtractedFields) []entity.InvoiceRecord {
	byID := make(map[int64]extract.ExtractedFields, len(extracted))
	for _, f := range extracted {
		byID[f.ID] = f
	}

	out := make([]entity.InvoiceRecord, 0, len(claimed))
	for _, inv := range claimed {
		f, ok := byID[inv.ID]
		if !ok {
			out = append(out, inv)
			continue
		}
		inv.RNC = firstNonEmpty(f.RNC, inv.RNC)
		inv.NCF = f.NCF
		inv.Fecha = NormalizeFecha(f.Fecha)
		inv.ExentoTotal = f.ExentoTotal
		inv.ServicioExento = f.ServicioExento
		inv.BienExento = f.BienExento
		inv.GravadoTotal = f.GravadoTotal
		inv.ServicioGravado = f.ServicioGravado
		inv.BienGravado = f.BienGravado
		inv.ITBISTotal = f.ITBISTotal
		inv.ITBISServicio = f.ITBISServicio
		inv.ITBISBien = f.ITBISBien
		inv.ITBISRetenido = f.ITBISRetenido
		inv.Retencion30 = f.Retencion30
		inv.Retencion10 = f.Retencion10
		inv.Retencion2 = f.Retencion2
		inv.Propina = f.Propina
		inv.TotalFacturado = f.TotalFacturado
		inv.TotalACobrar = f.TotalACobrar
		inv.FlagDudoso = f.FlagDudoso
		inv.RazonDuda = f.RazonDuda
		inv.ExtraccionRaw = f.Raw
		out = append(out, inv)
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
