// Package extract builds batch prompts for the AI extraction service,
// calls it, and maps its JSON response into typed fields.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glezrdg/contablebot-worker/internal/entity"
)

// Config is the immutable client configuration. The instruction prompt is
// captured here once at construction and passed explicitly from then on.
type Config struct {
	URL         string
	Instruction string
	Timeout     time.Duration
}

// Client implements BatchExtractor over the AI batch endpoint.
type Client struct {
	cfg    Config
	httpc  *http.Client
	schema map[string]any
	log    *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Instruction == "" {
		cfg.Instruction = InstructionPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: cfg.Timeout},
		schema: BuildItemSchema(),
		log:    logger,
	}
}

// invoiceStub is the per-invoice payload sent alongside the prompt.
type invoiceStub struct {
	ID         int64  `json:"id"`
	RNC        string `json:"rnc,omitempty"`
	ClientName string `json:"client_name,omitempty"`
	QAFeedback string `json:"qa_feedback,omitempty"`
	RawOCRText string `json:"raw_ocr_text"`
}

// ExtractBatch sends one request for the whole batch and parses the
// response. Any parse or schema failure is a hard error for the entire
// batch; there is no partial recovery.
func (c *Client) ExtractBatch(ctx context.Context, invoices []entity.InvoiceRecord) ([]ExtractedFields, string, error) {
	rid := uuid.New().String()
	start := time.Now()

	stubs := make([]invoiceStub, len(invoices))
	for i, inv := range invoices {
		stubs[i] = invoiceStub{
			ID:         inv.ID,
			RNC:        inv.RNC,
			ClientName: inv.ClientName,
			QAFeedback: inv.QAFeedback,
			RawOCRText: inv.RawOCRText,
		}
	}

	body := map[string]any{
		"prompt":   BuildPrompt(c.cfg.Instruction, invoices),
		"invoices": stubs,
	}

	c.log.Info("extract.batch.start",
		"req_id", rid,
		"invoices", len(invoices),
	)

	raw, err := c.post(ctx, body)
	if err != nil {
		c.log.Error("extract.batch.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, "", err
	}

	var envelope struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.log.Error("extract.batch.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, "", fmt.Errorf("decode extractor response: %w", err)
	}

	fields, err := c.parseText(rid, envelope.Text)
	if err != nil {
		c.log.Error("extract.batch.parse_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, envelope.Text, err
	}

	c.log.Info("extract.batch.ok",
		"req_id", rid,
		"invoices", len(invoices),
		"records", len(fields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, envelope.Text, nil
}

// parseText decodes the extractor's text payload: a JSON array, or a single
// object which is normalized to a one-element list.
func (c *Client) parseText(rid, text string) ([]ExtractedFields, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty extractor text")
	}

	var items []map[string]any
	if strings.HasPrefix(trimmed, "{") {
		var one map[string]any
		if err := json.Unmarshal([]byte(trimmed), &one); err != nil {
			return nil, fmt.Errorf("parse extractor text: %w", err)
		}
		items = []map[string]any{one}
	} else {
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, fmt.Errorf("parse extractor text: %w", err)
		}
	}

	out := make([]ExtractedFields, 0, len(items))
	for i, item := range items {
		cleaned, dropped, err := SanitizeItem(item)
		if err != nil {
			return nil, fmt.Errorf("sanitize element %d: %w", i, err)
		}
		if len(dropped) > 0 {
			c.log.Warn("extract.batch.sanitized", "req_id", rid, "element", i, "dropped", dropped)
		}
		if err := ValidateAgainstSchema(c.schema, cleaned); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		var f ExtractedFields
		if err := json.Unmarshal(cleaned, &f); err != nil {
			return nil, fmt.Errorf("unmarshal element %d: %w", i, err)
		}
		f.Raw = cleaned
		out = append(out, f)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, body any) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("extractor non-2xx status %d: %s", resp.StatusCode, truncate(raw))
	}
	return raw, nil
}

func truncate(b []byte) string {
	const max = 512
	s := string(b)
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
