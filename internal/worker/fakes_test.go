package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/glezrdg/contablebot-worker/constants"
	"github.com/glezrdg/contablebot-worker/internal/entity"
	"github.com/glezrdg/contablebot-worker/internal/extract"
	"github.com/glezrdg/contablebot-worker/internal/store"
)

// fakeInvoiceRepo is an in-memory stand-in for the store, tracking row
// status transitions the way the real claim/update/mark operations would.
type fakeInvoiceRepo struct {
	mu   sync.Mutex
	rows map[int64]*entity.InvoiceRecord

	claimErr  error
	updateErr map[int64]error
	markErr   map[int64]error
	countErr  error
}

func newFakeInvoiceRepo(rows ...entity.InvoiceRecord) *fakeInvoiceRepo {
	f := &fakeInvoiceRepo{
		rows:      make(map[int64]*entity.InvoiceRecord),
		updateErr: make(map[int64]error),
		markErr:   make(map[int64]error),
	}
	for _, r := range rows {
		r := r
		if r.Status == "" {
			r.Status = constants.StatusPending
		}
		f.rows[r.ID] = &r
	}
	return f
}

func (f *fakeInvoiceRepo) ClaimPending(ctx context.Context, batchSize int) ([]entity.InvoiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	var out []entity.InvoiceRecord
	for _, r := range f.rows {
		if len(out) >= batchSize {
			break
		}
		if r.Status == constants.StatusPending {
			r.Status = constants.StatusProcessing
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeInvoiceRepo) UpdateExtracted(ctx context.Context, id int64, upd store.ExtractedUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[id]; err != nil {
		return err
	}
	r, ok := f.rows[id]
	if !ok {
		return errors.New("row not found")
	}
	r.Status = upd.Status
	r.Fecha = upd.Fecha
	r.NCF = upd.NCF
	r.RNC = upd.RNC
	r.TotalFacturado = upd.TotalFacturado
	r.TotalACobrar = upd.TotalACobrar
	r.Propina = upd.Propina
	r.ExtraccionRaw = upd.ExtraccionRaw
	t := upd.ProcessedAt
	r.ProcessedAt = &t
	return nil
}

func (f *fakeInvoiceRepo) MarkError(ctx context.Context, id int64, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.markErr[id]; err != nil {
		return err
	}
	r, ok := f.rows[id]
	if !ok {
		return errors.New("row not found")
	}
	r.Status = constants.StatusError
	r.ProcessedAt = &processedAt
	return nil
}

func (f *fakeInvoiceRepo) CountProcessedSince(ctx context.Context, firmID int64, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	n := 0
	for _, r := range f.rows {
		if r.FirmID == firmID && r.Status == constants.StatusProcessed &&
			r.ProcessedAt != nil && !r.ProcessedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeInvoiceRepo) ListProcessedBetween(ctx context.Context, firmID int64, from, to time.Time) ([]entity.InvoiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.InvoiceRecord
	for _, r := range f.rows {
		if r.FirmID == firmID && r.Status == constants.StatusProcessed {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeInvoiceRepo) CountStuckProcessing(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}

func (f *fakeInvoiceRepo) status(id int64) constants.InvoiceStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Status
}

// fakeFirmRepo records usage overwrites.
type fakeFirmRepo struct {
	mu    sync.Mutex
	usage map[int64]int
	calls int
	err   error
}

func newFakeFirmRepo() *fakeFirmRepo {
	return &fakeFirmRepo{usage: make(map[int64]int)}
}

func (f *fakeFirmRepo) SetMonthlyUsage(ctx context.Context, firmID int64, used int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.usage[firmID] = used
	return nil
}

func (f *fakeFirmRepo) usageFor(firmID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage[firmID]
}

// stubExtractor returns canned results or errors.
type stubExtractor struct {
	fields []extract.ExtractedFields
	raw    string
	err    error
	calls  int
	panics bool
}

func (s *stubExtractor) ExtractBatch(ctx context.Context, invs []entity.InvoiceRecord) ([]extract.ExtractedFields, string, error) {
	s.calls++
	if s.panics {
		panic("extractor blew up")
	}
	return s.fields, s.raw, s.err
}
