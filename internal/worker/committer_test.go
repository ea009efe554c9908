package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glezrdg/contablebot-worker/constants"
	"github.com/glezrdg/contablebot-worker/internal/entity"
	"github.com/glezrdg/contablebot-worker/internal/extract"
)

func TestNormalizeFecha(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *string
	}{
		{"normal date", "05/03/2024", strp("2024-03-05")},
		{"end of year", "31/12/2023", strp("2023-12-31")},
		{"literal null", "null", nil},
		{"uppercase null", "NULL", nil},
		{"empty", "", nil},
		{"whitespace", "   ", nil},
		{"malformed", "2024-03-05", nil},
		{"nonsense", "pronto", nil},
		{"impossible day", "32/01/2024", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeFecha(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func strp(s string) *string { return &s }

func TestCommitWritesAllRows(t *testing.T) {
	repo := newFakeInvoiceRepo(
		entity.InvoiceRecord{ID: 1, FirmID: 10, Status: constants.StatusProcessing},
		entity.InvoiceRecord{ID: 2, FirmID: 10, Status: constants.StatusProcessing},
	)
	c := NewCommitter(repo, newFakeFirmRepo(), nil)

	claimed := []entity.InvoiceRecord{*repo.rows[1], *repo.rows[2]}
	extracted := []extract.ExtractedFields{
		{ID: 1, NCF: "B0100000001", Fecha: "05/03/2024", TotalFacturado: 690, Raw: []byte(`{"ID":1}`)},
		{ID: 2, NCF: "B0200000002", Fecha: "null", TotalFacturado: 118, Raw: []byte(`{"ID":2}`)},
	}

	require.NoError(t, c.Commit(context.Background(), claimed, extracted))

	assert.Equal(t, constants.StatusProcessed, repo.status(1))
	assert.Equal(t, constants.StatusProcessed, repo.status(2))
	require.NotNil(t, repo.rows[1].Fecha)
	assert.Equal(t, "2024-03-05", *repo.rows[1].Fecha)
	assert.Nil(t, repo.rows[2].Fecha)
	assert.NotNil(t, repo.rows[1].ProcessedAt)
}

func TestCommitMidLoopFailureAborts(t *testing.T) {
	repo := newFakeInvoiceRepo(
		entity.InvoiceRecord{ID: 1, Status: constants.StatusProcessing},
		entity.InvoiceRecord{ID: 2, Status: constants.StatusProcessing},
		entity.InvoiceRecord{ID: 3, Status: constants.StatusProcessing},
	)
	repo.updateErr[2] = errors.New("row update failed")
	c := NewCommitter(repo, newFakeFirmRepo(), nil)

	claimed := []entity.InvoiceRecord{*repo.rows[1], *repo.rows[2], *repo.rows[3]}
	extracted := []extract.ExtractedFields{{ID: 1}, {ID: 2}, {ID: 3}}

	err := c.Commit(context.Background(), claimed, extracted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoice 2")

	// earlier row committed, failing and later rows untouched: the
	// multi-row commit is documented as non-atomic
	assert.Equal(t, constants.StatusProcessed, repo.status(1))
	assert.Equal(t, constants.StatusProcessing, repo.status(2))
	assert.Equal(t, constants.StatusProcessing, repo.status(3))
}

func TestCommitSkipsUnmatchedRecords(t *testing.T) {
	repo := newFakeInvoiceRepo(entity.InvoiceRecord{ID: 1, Status: constants.StatusProcessing})
	c := NewCommitter(repo, newFakeFirmRepo(), nil)

	claimed := []entity.InvoiceRecord{*repo.rows[1]}
	extracted := []extract.ExtractedFields{{ID: 1}, {ID: 999}}

	require.NoError(t, c.Commit(context.Background(), claimed, extracted))
	assert.Equal(t, constants.StatusProcessed, repo.status(1))
}

func TestMarkErrorBestEffort(t *testing.T) {
	repo := newFakeInvoiceRepo(
		entity.InvoiceRecord{ID: 1, Status: constants.StatusProcessing},
		entity.InvoiceRecord{ID: 2, Status: constants.StatusProcessing},
		entity.InvoiceRecord{ID: 3, Status: constants.StatusProcessing},
	)
	repo.markErr[2] = errors.New("store hiccup")
	c := NewCommitter(repo, newFakeFirmRepo(), nil)

	claimed := []entity.InvoiceRecord{*repo.rows[1], *repo.rows[2], *repo.rows[3]}
	// never returns or panics even when a row fails to mark
	c.MarkError(context.Background(), claimed, errors.New("extraction exhausted"))

	assert.Equal(t, constants.StatusError, repo.status(1))
	assert.Equal(t, constants.StatusProcessing, repo.status(2))
	assert.Equal(t, constants.StatusError, repo.status(3))
}

func TestRefreshUsageRecomputesPerFirm(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeInvoiceRepo(
		entity.InvoiceRecord{ID: 1, FirmID: 10, Status: constants.StatusProcessed, ProcessedAt: &now},
		entity.InvoiceRecord{ID: 2, FirmID: 10, Status: constants.StatusProcessed, ProcessedAt: &now},
		entity.InvoiceRecord{ID: 3, FirmID: 20, Status: constants.StatusProcessed, ProcessedAt: &now},
		entity.InvoiceRecord{ID: 4, FirmID: 10, Status: constants.StatusError, ProcessedAt: &now},
	)
	firms := newFakeFirmRepo()
	c := NewCommitter(repo, firms, nil)

	batch := []entity.InvoiceRecord{{ID: 1, FirmID: 10}, {ID: 2, FirmID: 10}, {ID: 3, FirmID: 20}}
	c.RefreshUsage(context.Background(), batch)

	assert.Equal(t, 2, firms.usageFor(10))
	assert.Equal(t, 1, firms.usageFor(20))
	// one overwrite per distinct firm
	assert.Equal(t, 2, firms.calls)
}

func TestRefreshUsageIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeInvoiceRepo(
		entity.InvoiceRecord{ID: 1, FirmID: 10, Status: constants.StatusProcessed, ProcessedAt: &now},
	)
	firms := newFakeFirmRepo()
	c := NewCommitter(repo, firms, nil)

	batch := []entity.InvoiceRecord{{ID: 1, FirmID: 10}}
	c.RefreshUsage(context.Background(), batch)
	first := firms.usageFor(10)
	c.RefreshUsage(context.Background(), batch)

	assert.Equal(t, first, firms.usageFor(10))
	assert.Equal(t, 1, first)
}

func TestRefreshUsageSwallowsErrors(t *testing.T) {
	repo := newFakeInvoiceRepo()
	repo.countErr = errors.New("store down")
	firms := newFakeFirmRepo()
	c := NewCommitter(repo, firms, nil)

	// must not propagate or panic
	c.RefreshUsage(context.Background(), []entity.InvoiceRecord{{ID: 1, FirmID: 10}})
	assert.Zero(t, firms.calls)
}

func TestBuildUpdateZeroFallbacks(t *testing.T) {
	inv := entity.InvoiceRecord{ID: 5, RNC: "130999999"}
	upd := buildUpdate(inv, extract.ExtractedFields{ID: 5}, time.Now().UTC())

	assert.Zero(t, upd.TotalFacturado)
	assert.Zero(t, upd.Propina)
	assert.Zero(t, upd.ITBISRetenido)
	assert.Nil(t, upd.TotalACobrar)
	assert.Nil(t, upd.Fecha)
	// extractor returned no RNC: keep the one already on the row
	assert.Equal(t, "130999999", upd.RNC)
	assert.Equal(t, constants.StatusProcessed, upd.Status)
}
