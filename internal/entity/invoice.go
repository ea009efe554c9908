package entity

import (
	"encoding/json"
	"time"

	"github.com/glezrdg/contablebot-worker/constants"
)

// InvoiceRecord is the unit of work: one uploaded fiscal document whose raw
// OCR text is pending AI extraction, plus the extracted fields once the
// pipeline has run. Numeric fields use display values in DOP.
type InvoiceRecord struct {
	ID       int64  `json:"id"`
	FirmID   int64  `json:"firm_id"`
	UserID   *int64 `json:"user_id,omitempty"`
	ClientID *int64 `json:"client_id,omitempty"`

	ClientName string `json:"client_name,omitempty"`
	RNC        string `json:"rnc,omitempty"`
	NCF        string `json:"ncf,omitempty"`

	RawOCRText string `json:"raw_ocr_text"`
	QAFeedback string `json:"qa_feedback,omitempty"`

	Status       constants.InvoiceStatus `json:"status"`
	ReviewStatus constants.ReviewStatus  `json:"review_status,omitempty"`

	// Fecha is the document date in ISO form (yyyy-mm-dd), nil until the
	// extractor produces a parseable one.
	Fecha *string `json:"fecha,omitempty"`

	// Nine-way amount split: exempt/taxed/ITBIS totals and their
	// goods/services sub-categories, per the DGII reporting layout.
	ExentoTotal     float64 `json:"exento_total"`
	ServicioExento  float64 `json:"servicio_exento"`
	BienExento      float64 `json:"bien_exento"`
	GravadoTotal    float64 `json:"gravado_total"`
	ServicioGravado float64 `json:"servicio_gravado"`
	BienGravado     float64 `json:"bien_gravado"`
	ITBISTotal      float64 `json:"itbis_total"`
	ITBISServicio   float64 `json:"itbis_servicio"`
	ITBISBien       float64 `json:"itbis_bien"`

	// Withholdings.
	ITBISRetenido float64 `json:"itbis_retenido"`
	Retencion30   float64 `json:"retencion_30"`
	Retencion10   float64 `json:"retencion_10"`
	Retencion2    float64 `json:"retencion_2"`

	Propina        float64  `json:"propina"`
	TotalFacturado float64  `json:"total_facturado"`
	TotalACobrar   *float64 `json:"total_a_cobrar,omitempty"`

	// AI metadata.
	FlagDudoso    bool            `json:"flag_dudoso"`
	RazonDuda     string          `json:"razon_duda,omitempty"`
	ExtraccionRaw json.RawMessage `json:"extraccion_raw,omitempty"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ConfidenceScore digs the extractor's CONF_BIEN_SERVICIO score (0..1) out
// of the raw extraction dump. Returns 0 when the dump is absent or the key
// is missing/unparseable.
func (inv *InvoiceRecord) ConfidenceScore() float64 {
	if len(inv.ExtraccionRaw) == 0 {
		return 0
	}
	var m map[string]any
	if err := json.Unmarshal(inv.ExtraccionRaw, &m); err != nil {
		return 0
	}
	if v, ok := m["CONF_BIEN_SERVICIO"].(float64); ok {
		return v
	}
	return 0
}

// FirmUsageCounter tracks per-firm monthly consumption. UsedThisMonth is
// always recomputed from a count of processed invoices, never incremented,
// so replays converge on the same value.
type FirmUsageCounter struct {
	FirmID        int64 `json:"firm_id"`
	UsedThisMonth int   `json:"used_this_month"`
}
