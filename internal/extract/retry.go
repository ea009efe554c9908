package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glezrdg/contablebot-worker/internal/entity"
)

// Retrier wraps a BatchExtractor with bounded exponential-backoff retries.
// Success and failure stay batch-atomic: on exhaustion the caller routes
// the whole claimed batch to the error path.
type Retrier struct {
	inner        BatchExtractor
	maxRetries   int
	initialDelay time.Duration
	log          *slog.Logger
}

func NewRetrier(inner BatchExtractor, maxRetries int, initialDelay time.Duration, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	return &Retrier{
		inner:        inner,
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		log:          logger,
	}
}

// ExtractBatch attempts the wrapped call up to maxRetries times, doubling
// the delay after each failure (1s, 2s, 4s, ...). The sleep is context
// aware; an in-flight attempt itself is never interrupted mid-call.
func (r *Retrier) ExtractBatch(ctx context.Context, invoices []entity.InvoiceRecord) ([]ExtractedFields, string, error) {
	var lastErr error
	var lastRaw string
	delay := r.initialDelay

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		fields, raw, err := r.inner.ExtractBatch(ctx, invoices)
		if err == nil {
			return fields, raw, nil
		}
		lastErr = err
		lastRaw = raw

		if attempt == r.maxRetries {
			break
		}
		r.log.Warn("extract.retry",
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"delay", delay.String(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, lastRaw, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, lastRaw, fmt.Errorf("extraction failed after %d attempts: %w", r.maxRetries, lastErr)
}
