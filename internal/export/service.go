package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/glezrdg/contablebot-worker/internal/quality"
	"github.com/glezrdg/contablebot-worker/internal/store"
)

// Service is a tiny façade over the invoice repository that produces XLSX
// bytes for monthly reports. Quality columns are recomputed on read.
type Service struct {
	invoices store.InvoiceRepository
	logger   *slog.Logger
}

func NewService(invoices store.InvoiceRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, logger: logger}
}

// MonthlyReportXLSX returns a workbook with one row per invoice the firm
// processed in the given month.
func (s *Service) MonthlyReportXLSX(ctx context.Context, firmID int64, year int, month time.Month) ([]byte, error) {
	start := time.Now()

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	recs, err := s.invoices.ListProcessedBetween(ctx, firmID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query processed invoices: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Facturas"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Fecha",
		"NCF",
		"RNC",
		"Cliente",
		"Exento",
		"Gravado",
		"ITBIS",
		"Retenciones",
		"Propina",
		"Total Facturado",
		"Total a Cobrar",
		"Calidad",
		"Observaciones",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		res := quality.Validate(r)

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		fecha := ""
		if r.Fecha != nil {
			fecha = *r.Fecha
		}
		retenciones := r.ITBISRetenido + r.Retencion30 + r.Retencion10 + r.Retencion2
		cobrar := ""
		if r.TotalACobrar != nil {
			cobrar = fmt.Sprintf("%.2f", *r.TotalACobrar)
		}

		write(1, fecha)
		write(2, r.NCF)
		write(3, r.RNC)
		write(4, r.ClientName)
		write(5, r.ExentoTotal)
		write(6, r.GravadoTotal)
		write(7, r.ITBISTotal)
		write(8, retenciones)
		write(9, r.Propina)
		write(10, r.TotalFacturado)
		write(11, cobrar)
		write(12, fmt.Sprintf("%d (%s)", res.QualityScore, res.Level))
		write(13, truncate(strings.Join(res.Issues, "; "), 140))

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 12) // fecha
	_ = f.SetColWidth(sheet, "B", "C", 16) // ncf/rnc
	_ = f.SetColWidth(sheet, "D", "D", 28) // cliente
	_ = f.SetColWidth(sheet, "E", "K", 14) // montos
	_ = f.SetColWidth(sheet, "L", "L", 14) // calidad
	_ = f.SetColWidth(sheet, "M", "M", 48) // observaciones

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"firm_id", firmID,
		"month", from.Format("2006-01"),
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
