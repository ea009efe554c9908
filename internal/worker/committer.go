package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glezrdg/contablebot-worker/constants"
	"github.com/glezrdg/contablebot-worker/internal/entity"
	"github.com/glezrdg/contablebot-worker/internal/extract"
	"github.com/glezrdg/contablebot-worker/internal/store"
)

// usageRefreshLimit bounds the per-firm usage recompute fan-out.
const usageRefreshLimit = 4

// Committer applies extraction results back to claimed rows and keeps firm
// usage counters in sync.
type Committer struct {
	invoices store.InvoiceRepository
	firms    store.FirmRepository
	log      *slog.Logger
	now      func() time.Time
}

func NewCommitter(invoices store.InvoiceRepository, firms store.FirmRepository, logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{
		invoices: invoices,
		firms:    firms,
		log:      logger,
		now:      time.Now,
	}
}

// Commit writes extracted fields to each matching claimed row, one PATCH per
// row. A failing row aborts the whole call: earlier rows stay processed,
// later ones stay processing. The multi-row commit is not atomic; callers
// treat the batch as failed from the first row error onward.
func (c *Committer) Commit(ctx context.Context, claimed []entity.InvoiceRecord, extracted []extract.ExtractedFields) error {
	byID := make(map[int64]entity.InvoiceRecord, len(claimed))
	for _, inv := range claimed {
		byID[inv.ID] = inv
	}

	now := c.now().UTC()
	for _, f := range extracted {
		inv, ok := byID[f.ID]
		if !ok {
			c.log.Warn("commit.unmatched_record", "extracted_id", f.ID)
			continue
		}

		upd := buildUpdate(inv, f, now)
		if err := c.invoices.UpdateExtracted(ctx, inv.ID, upd); err != nil {
			return fmt.Errorf("commit invoice %d: %w", inv.ID, err)
		}
		c.log.Info("commit.row_ok", "invoice_id", inv.ID, "firm_id", inv.FirmID)
	}
	return nil
}

// MarkError best-effort transitions every row of a failed batch to error
// status. Failures are logged and swallowed; marking is advisory cleanup
// and must never stall the polling loop.
func (c *Committer) MarkError(ctx context.Context, invoices []entity.InvoiceRecord, cause error) {
	now := c.now().UTC()
	for _, inv := range invoices {
		if err := c.invoices.MarkError(ctx, inv.ID, now); err != nil {
			c.log.Error("mark_error.failed", "invoice_id", inv.ID, "error", err, "cause", cause)
			continue
		}
		c.log.Warn("mark_error.ok", "invoice_id", inv.ID, "cause", cause)
	}
}

// RefreshUsage recomputes used_this_month for every firm touched by a
// committed batch: a COUNT of processed invoices since the first of the
// current month, overwritten (not incremented) so replays are idempotent.
// Errors are logged only; counters self-heal on the next successful batch.
func (c *Committer) RefreshUsage(ctx context.Context, invoices []entity.InvoiceRecord) {
	firms := make(map[int64]struct{})
	for _, inv := range invoices {
		firms[inv.FirmID] = struct{}{}
	}
	if len(firms) == 0 {
		return
	}

	now := c.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(usageRefreshLimit)
	for firmID := range firms {
		firmID := firmID
		g.Go(func() error {
			count, err := c.invoices.CountProcessedSince(gctx, firmID, monthStart)
			if err != nil {
				c.log.Error("usage.count_failed", "firm_id", firmID, "error", err)
				return nil
			}
			if err := c.firms.SetMonthlyUsage(gctx, firmID, count); err != nil {
				c.log.Error("usage.update_failed", "firm_id", firmID, "error", err)
				return nil
			}
			c.log.Info("usage.refreshed", "firm_id", firmID, "used_this_month", count)
			return nil
		})
	}
	_ = g.Wait()
}

// buildUpdate maps extracted fields onto the row update. Missing numerics
// already arrive as 0 from the decode; the date is normalized here.
func buildUpdate(inv entity.InvoiceRecord, f extract.ExtractedFields, now time.Time) store.ExtractedUpdate {
	rnc := f.RNC
	if rnc == "" {
		rnc = inv.RNC
	}

	return store.ExtractedUpdate{
		Fecha: NormalizeFecha(f.Fecha),
		RNC:   rnc,
		NCF:   f.NCF,

		ExentoTotal:     f.ExentoTotal,
		ServicioExento:  f.ServicioExento,
		BienExento:      f.BienExento,
		GravadoTotal:    f.GravadoTotal,
		ServicioGravado: f.ServicioGravado,
		BienGravado:     f.BienGravado,
		ITBISTotal:      f.ITBISTotal,
		ITBISServicio:   f.ITBISServicio,
		ITBISBien:       f.ITBISBien,

		ITBISRetenido: f.ITBISRetenido,
		Retencion30:   f.Retencion30,
		Retencion10:   f.Retencion10,
		Retencion2:    f.Retencion2,

		Propina:        f.Propina,
		TotalFacturado: f.TotalFacturado,
		TotalACobrar:   f.TotalACobrar,

		FlagDudoso:    f.FlagDudoso,
		RazonDuda:     f.RazonDuda,
		ExtraccionRaw: f.Raw,

		Status:      constants.StatusProcessed,
		ProcessedAt: now,
	}
}

// NormalizeFecha converts the extractor's dd/mm/yyyy date to ISO
// yyyy-mm-dd. Malformed input, "null", and empty strings become nil —
// never an error.
func NormalizeFecha(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	t, err := time.Parse("02/01/2006", s)
	if err != nil {
		return nil
	}
	iso := t.Format("2006-01-02")
	return &iso
}
