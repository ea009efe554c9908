package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/glezrdg/contablebot-worker/constants"
	"github.com/glezrdg/contablebot-worker/internal/entity"
)

// ExtractedUpdate is the full field set written back to a claimed row in a
// single PATCH. Every numeric carries a concrete value (0 fallback for
// anything the extractor omitted); Fecha stays nil for unparseable dates.
type ExtractedUpdate struct {
	Fecha *string `json:"fecha"`
	RNC   string  `json:"rnc"`
	NCF   string  `json:"ncf"`

	ExentoTotal     float64 `json:"exento_total"`
	ServicioExento  float64 `json:"servicio_exento"`
	BienExento      float64 `json:"bien_exento"`
	GravadoTotal    float64 `json:"gravado_total"`
	ServicioGravado float64 `json:"servicio_gravado"`
	BienGravado     float64 `json:"bien_gravado"`
	ITBISTotal      float64 `json:"itbis_total"`
	ITBISServicio   float64 `json:"itbis_servicio"`
	ITBISBien       float64 `json:"itbis_bien"`

	ITBISRetenido float64 `json:"itbis_retenido"`
	Retencion30   float64 `json:"retencion_30"`
	Retencion10   float64 `json:"retencion_10"`
	Retencion2    float64 `json:"retencion_2"`

	Propina        float64  `json:"propina"`
	TotalFacturado float64  `json:"total_facturado"`
	TotalACobrar   *float64 `json:"total_a_cobrar"`

	FlagDudoso    bool            `json:"flag_dudoso"`
	RazonDuda     string          `json:"razon_duda"`
	ExtraccionRaw json.RawMessage `json:"extraccion_raw,omitempty"`

	Status      constants.InvoiceStatus `json:"status"`
	ProcessedAt time.Time               `json:"processed_at"`
}

// InvoiceRepository is the store-side contract for invoice rows. ClaimPending
// is the only path that moves a row from pending to processing.
type InvoiceRepository interface {
	// ClaimPending atomically marks up to batchSize pending rows as
	// processing and returns them. Concurrent callers receive disjoint
	// sets; an empty queue yields an empty slice, not an error.
	ClaimPending(ctx context.Context, batchSize int) ([]entity.InvoiceRecord, error)

	// UpdateExtracted writes the extracted field set to one claimed row.
	UpdateExtracted(ctx context.Context, id int64, upd ExtractedUpdate) error

	// MarkError transitions one row to error status with a processed_at stamp.
	MarkError(ctx context.Context, id int64, processedAt time.Time) error

	// CountProcessedSince counts a firm's processed invoices with
	// processed_at >= since.
	CountProcessedSince(ctx context.Context, firmID int64, since time.Time) (int, error)

	// ListProcessedBetween returns a firm's processed invoices in a
	// processed_at window, ordered by processed_at.
	ListProcessedBetween(ctx context.Context, firmID int64, from, to time.Time) ([]entity.InvoiceRecord, error)

	// CountStuckProcessing counts rows that have sat in processing since
	// before the cutoff. Rows stuck after a crash are a known limitation;
	// this is the observability hook for them.
	CountStuckProcessing(ctx context.Context, before time.Time) (int, error)
}

type invoiceRepository struct {
	client *Client
}

func NewInvoiceRepository(client *Client) InvoiceRepository {
	return &invoiceRepository{client: client}
}

// claim RPC: a stored procedure does the row-locking read-and-mark so the
// pending→processing transition is a single atomic server-side step.
const claimRPCPath = "/rest/v1/rpc/claim_pending_invoices"

func (r *invoiceRepository) ClaimPending(ctx context.Context, batchSize int) ([]entity.InvoiceRecord, error) {
	body := map[string]int{"batch_size": batchSize}
	raw, _, _, err := r.client.do(ctx, http.MethodPost, claimRPCPath, body, nil)
	if err != nil {
		return nil, err
	}

	var rows []entity.InvoiceRecord
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode claim response: %w", err)
	}
	return rows, nil
}

func (r *invoiceRepository) UpdateExtracted(ctx context.Context, id int64, upd ExtractedUpdate) error {
	path := fmt.Sprintf("/rest/v1/invoices?id=eq.%d", id)
	_, _, _, err := r.client.do(ctx, http.MethodPatch, path, upd, nil)
	if err != nil {
		return fmt.Errorf("update invoice %d: %w", id, err)
	}
	return nil
}

func (r *invoiceRepository) MarkError(ctx context.Context, id int64, processedAt time.Time) error {
	path := fmt.Sprintf("/rest/v1/invoices?id=eq.%d", id)
	body := map[string]any{
		"status":       constants.StatusError,
		"processed_at": processedAt,
	}
	_, _, _, err := r.client.do(ctx, http.MethodPatch, path, body, nil)
	if err != nil {
		return fmt.Errorf("mark invoice %d as error: %w", id, err)
	}
	return nil
}

func (r *invoiceRepository) CountProcessedSince(ctx context.Context, firmID int64, since time.Time) (int, error) {
	path := fmt.Sprintf("/rest/v1/invoices?select=id&firm_id=eq.%d&status=eq.%s&processed_at=gte.%s",
		firmID, constants.StatusProcessed, since.UTC().Format(time.RFC3339))
	headers := map[string]string{
		"Prefer": "count=exact",
		"Range":  "0-0",
	}
	_, _, respHeaders, err := r.client.do(ctx, http.MethodGet, path, nil, headers)
	if err != nil {
		return 0, fmt.Errorf("count processed for firm %d: %w", firmID, err)
	}
	return parseContentRangeCount(respHeaders)
}

func (r *invoiceRepository) ListProcessedBetween(ctx context.Context, firmID int64, from, to time.Time) ([]entity.InvoiceRecord, error) {
	path := fmt.Sprintf("/rest/v1/invoices?firm_id=eq.%d&status=eq.%s&processed_at=gte.%s&processed_at=lt.%s&order=processed_at.asc",
		firmID, constants.StatusProcessed,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	raw, _, _, err := r.client.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list processed for firm %d: %w", firmID, err)
	}
	var rows []entity.InvoiceRecord
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode invoice list: %w", err)
	}
	return rows, nil
}

func (r *invoiceRepository) CountStuckProcessing(ctx context.Context, before time.Time) (int, error) {
	path := fmt.Sprintf("/rest/v1/invoices?select=id&status=eq.%s&created_at=lt.%s",
		constants.StatusProcessing, before.UTC().Format(time.RFC3339))
	headers := map[string]string{
		"Prefer": "count=exact",
		"Range":  "0-0",
	}
	_, _, respHeaders, err := r.client.do(ctx, http.MethodGet, path, nil, headers)
	if err != nil {
		return 0, fmt.Errorf("count stuck processing rows: %w", err)
	}
	return parseContentRangeCount(respHeaders)
}
