// Package store talks to the relational data store through its HTTP query
// interface (PostgREST conventions). The atomic claim lives server-side
// behind an RPC endpoint; everything else is row-scoped reads and patches.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is a thin PostgREST client carrying auth headers and logging.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// do sends a JSON request and returns the raw response body. Non-2xx
// statuses are errors; the body is still returned for diagnostics.
func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string) ([]byte, int, http.Header, error) {
	reqID := uuid.New().String()
	start := time.Now()

	var rdr io.Reader
	var size int
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			c.logger.Error("store.http.encode_error", "req_id", reqID, "error", err)
			return nil, 0, nil, fmt.Errorf("encode json: %w", err)
		}
		rdr = bytes.NewReader(bs)
		size = len(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		c.logger.Error("store.http.build_request_error", "req_id", reqID, "error", err)
		return nil, 0, nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("store.http.request",
		"req_id", reqID,
		"method", method,
		"path", path,
		"content_length", size,
	)

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Error("store.http.send_error", "req_id", reqID, "path", path, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("store.http.response_body_close_error", "req_id", reqID, "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)

	c.logger.Debug("store.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, resp.Header, fmt.Errorf("store %s %s: non-2xx status %d: %s",
			method, path, resp.StatusCode, truncateBody(raw))
	}
	return raw, resp.StatusCode, resp.Header, nil
}

// Ping verifies the store is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, _, _, err := c.do(ctx, http.MethodGet, "/rest/v1/", nil, nil)
	return err
}

// parseContentRangeCount extracts the total from a PostgREST Content-Range
// header ("0-4/27" or "*/0" when the page is empty).
func parseContentRangeCount(h http.Header) (int, error) {
	cr := h.Get("Content-Range")
	if cr == "" {
		return 0, fmt.Errorf("missing Content-Range header")
	}
	idx := strings.LastIndex(cr, "/")
	if idx < 0 || idx == len(cr)-1 {
		return 0, fmt.Errorf("malformed Content-Range %q", cr)
	}
	total := cr[idx+1:]
	if total == "*" {
		return 0, fmt.Errorf("store did not return an exact count")
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("malformed Content-Range %q: %w", cr, err)
	}
	return n, nil
}

func truncateBody(b []byte) string {
	const max = 512
	s := string(b)
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
