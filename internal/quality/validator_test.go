package quality

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glezrdg/contablebot-worker/internal/entity"
)

func rawConf(conf float64) json.RawMessage {
	b, _ := json.Marshal(map[string]float64{"CONF_BIEN_SERVICIO": conf})
	return b
}

func ptr(v float64) *float64 { return &v }

func strPtr(s string) *string { return &s }

// cleanInvoice returns a record with no deductions: consistent amounts,
// confident extraction, all identifiers present.
func cleanInvoice() entity.InvoiceRecord {
	return entity.InvoiceRecord{
		ID:             1,
		FirmID:         10,
		RNC:            "130123456",
		NCF:            "B0100000001",
		Fecha:          strPtr("2024-03-05"),
		ExentoTotal:    100,
		GravadoTotal:   500,
		ITBISTotal:     90,
		TotalFacturado: 690,
		ExtraccionRaw:  rawConf(0.95),
	}
}

func TestValidateCleanInvoice(t *testing.T) {
	res := Validate(cleanInvoice())

	assert.Equal(t, 100, res.QualityScore)
	assert.Empty(t, res.Issues)
	assert.True(t, res.MathValid)
	assert.True(t, res.HasRequiredFields)
	assert.True(t, res.IsValid)
	assert.Equal(t, LevelGood, res.Level)
	assert.InDelta(t, 0.95, res.ConfidenceScore, 1e-9)
}

func TestValidateDeterministic(t *testing.T) {
	inv := cleanInvoice()
	inv.FlagDudoso = true
	inv.RazonDuda = "monto ilegible"

	first := Validate(inv)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Validate(inv))
	}
}

func TestMathToleranceBoundary(t *testing.T) {
	tests := []struct {
		name           string
		totalFacturado float64
		wantValid      bool
	}{
		{"exact sum", 690.00, true},
		{"one peso under", 689.00, true},
		{"one peso over", 691.00, true},
		{"just past tolerance", 691.01, false},
		{"just under tolerance low side", 688.99, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := cleanInvoice()
			inv.TotalFacturado = tt.totalFacturado
			assert.Equal(t, tt.wantValid, MathConsistent(inv))
		})
	}
}

func TestMathAllZeroIsConsistent(t *testing.T) {
	inv := entity.InvoiceRecord{ExtraccionRaw: rawConf(0.9)}
	assert.True(t, MathConsistent(inv))
}

func TestMathTotalACobrarIdentity(t *testing.T) {
	inv := cleanInvoice()
	inv.Propina = 69
	inv.ITBISRetenido = 27
	inv.Retencion30 = 10
	// expected: 690 + 69 - 37 = 722
	inv.TotalACobrar = ptr(722.00)
	assert.True(t, MathConsistent(inv))

	inv.TotalACobrar = ptr(724.50)
	assert.False(t, MathConsistent(inv))

	// absent total_a_cobrar skips the second identity entirely
	inv.TotalACobrar = nil
	assert.True(t, MathConsistent(inv))
}

func TestScoreFloorClampsAtZero(t *testing.T) {
	inv := entity.InvoiceRecord{
		ID:             2,
		FlagDudoso:     true,
		ExtraccionRaw:  rawConf(0.3),
		ExentoTotal:    100,
		GravadoTotal:   100,
		ITBISTotal:     36,
		TotalFacturado: 500, // way off: math deduction applies
	}

	res := Validate(inv)
	// 100 - 30 - 20 - 25 - 10 - 10 - 5 = 0, clamped, never negative
	assert.Equal(t, 0, res.QualityScore)
	assert.Equal(t, LevelBad, res.Level)
	assert.False(t, res.IsValid)
	assert.False(t, res.HasRequiredFields)
	assert.Len(t, res.Issues, 6)
}

func TestDeductionsAndIssues(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*entity.InvoiceRecord)
		wantScore int
		wantIssue string
	}{
		{
			name:      "flag dudoso with reason",
			mutate:    func(inv *entity.InvoiceRecord) { inv.FlagDudoso = true; inv.RazonDuda = "sello tapa el NCF" },
			wantScore: 70,
			wantIssue: "sello tapa el NCF",
		},
		{
			name:      "flag dudoso without reason gets generic issue",
			mutate:    func(inv *entity.InvoiceRecord) { inv.FlagDudoso = true },
			wantScore: 70,
			wantIssue: "La IA marcó esta extracción como dudosa",
		},
		{
			name:      "low confidence rounds percentage",
			mutate:    func(inv *entity.InvoiceRecord) { inv.ExtraccionRaw = rawConf(0.456) },
			wantScore: 80,
			wantIssue: "Confianza de extracción baja (46%)",
		},
		{
			name:      "missing rnc",
			mutate:    func(inv *entity.InvoiceRecord) { inv.RNC = "" },
			wantScore: 90,
			wantIssue: "Falta el RNC",
		},
		{
			name:      "missing ncf",
			mutate:    func(inv *entity.InvoiceRecord) { inv.NCF = "" },
			wantScore: 90,
			wantIssue: "Falta el NCF",
		},
		{
			name:      "missing fecha",
			mutate:    func(inv *entity.InvoiceRecord) { inv.Fecha = nil },
			wantScore: 95,
			wantIssue: "Falta la fecha del comprobante",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := cleanInvoice()
			tt.mutate(&inv)
			res := Validate(inv)
			assert.Equal(t, tt.wantScore, res.QualityScore)
			require.NotEmpty(t, res.Issues)
			assert.Contains(t, res.Issues, tt.wantIssue)
		})
	}
}

func TestLevelMapping(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{100, LevelGood},
		{90, LevelGood},
		{89, LevelReview},
		{70, LevelReview},
		{69, LevelBad},
		{0, LevelBad},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levelFor(tt.score), "score %d", tt.score)
	}
}

func TestValidateBatch(t *testing.T) {
	good := cleanInvoice()

	review := cleanInvoice()
	review.FlagDudoso = true // -30 => 70

	bad := cleanInvoice()
	bad.FlagDudoso = true
	bad.TotalFacturado = 9999 // -30 -25 => 45

	s := ValidateBatch([]entity.InvoiceRecord{good, review, bad})
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Good)
	assert.Equal(t, 1, s.Review)
	assert.Equal(t, 1, s.Bad)
	assert.Equal(t, 2, s.FlaggedByAI)
	assert.Equal(t, 1, s.MathErrors)
}

func TestFeedbackFromIssues(t *testing.T) {
	assert.Empty(t, FeedbackFromIssues(ValidationResult{}))

	res := ValidationResult{Issues: []string{"Falta el RNC", "Falta el NCF"}}
	assert.Equal(t, "Revisión previa: Falta el RNC; Falta el NCF", FeedbackFromIssues(res))
}

func TestConfidenceScoreFromRawDump(t *testing.T) {
	inv := entity.InvoiceRecord{}
	assert.Zero(t, inv.ConfidenceScore())

	inv.ExtraccionRaw = json.RawMessage(`not json`)
	assert.Zero(t, inv.ConfidenceScore())

	inv.ExtraccionRaw = json.RawMessage(`{"CONF_BIEN_SERVICIO":"high"}`)
	assert.Zero(t, inv.ConfidenceScore())

	inv.ExtraccionRaw = rawConf(0.82)
	assert.InDelta(t, 0.82, inv.ConfidenceScore(), 1e-9)
}
