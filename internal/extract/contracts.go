package extract

import (
	"context"

	"github.com/glezrdg/contablebot-worker/internal/entity"
)

// ExtractedFields is the normalized shape we want from the extraction
// service, one element per invoice. JSON keys are the display-style field
// names the extraction prompt asks for.
type ExtractedFields struct {
	ID int64 `json:"ID"`

	RNC   string `json:"RNC,omitempty"`
	NCF   string `json:"NCF,omitempty"`
	Fecha string `json:"FECHA,omitempty"` // dd/mm/yyyy as printed on the document

	ExentoTotal     float64 `json:"EXENTO TOTAL"`
	ServicioExento  float64 `json:"SERVICIO EXENTO"`
	BienExento      float64 `json:"BIEN EXENTO"`
	GravadoTotal    float64 `json:"GRAVADO TOTAL"`
	ServicioGravado float64 `json:"SERVICIO GRAVADO"`
	BienGravado     float64 `json:"BIEN GRAVADO"`
	ITBISTotal      float64 `json:"ITBIS TOTAL"`
	ITBISServicio   float64 `json:"ITBIS SERVICIO"`
	ITBISBien       float64 `json:"ITBIS BIEN"`

	ITBISRetenido float64 `json:"ITBIS RETENIDO"`
	Retencion30   float64 `json:"RETENCION 30"`
	Retencion10   float64 `json:"RETENCION 10"`
	Retencion2    float64 `json:"RETENCION 2"`

	Propina        float64  `json:"PROPINA"`
	TotalFacturado float64  `json:"TOTAL FACTURADO"`
	TotalACobrar   *float64 `json:"TOTAL A COBRAR,omitempty"`

	FlagDudoso       bool    `json:"FLAG_DUDOSO"`
	RazonDuda        string  `json:"RAZON_DUDA,omitempty"`
	ConfBienServicio float64 `json:"CONF_BIEN_SERVICIO"`

	// Raw is the sanitized JSON for this element, persisted alongside the
	// typed fields for audit and for later confidence reads.
	Raw []byte `json:"-"`
}

// BatchExtractor is the interface the worker depends on. The raw response
// text is returned even on parse success so it can be persisted for audit.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, invoices []entity.InvoiceRecord) ([]ExtractedFields, string, error)
}
