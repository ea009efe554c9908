// Package quality scores extracted invoices for the human QA triage. All
// functions are pure: results are recomputed on every read, never cached.
package quality

import (
	"fmt"
	"math"
	"strings"

	"github.com/glezrdg/contablebot-worker/internal/entity"
)

// Tolerance absorbs rounding noise in the extractor's arithmetic: sums are
// considered consistent within one peso.
const Tolerance = 1.00

// ConfidenceFloor is the extraction confidence below which a deduction applies.
const ConfidenceFloor = 0.7

// Level is the triage bucket derived from the quality score.
type Level string

const (
	LevelGood   Level = "good"   // score >= 90
	LevelReview Level = "review" // 70 <= score < 90
	LevelBad    Level = "bad"    // score < 70
)

// Deduction weights.
const (
	deductFlagDudoso    = 30
	deductLowConfidence = 20
	deductMathError     = 25
	deductMissingRNC    = 10
	deductMissingNCF    = 10
	deductMissingFecha  = 5
)

// ValidationResult summarizes every check applied to one invoice.
type ValidationResult struct {
	QualityScore      int      `json:"qualityScore"`
	Issues            []string `json:"issues"`
	MathValid         bool     `json:"mathValid"`
	HasRequiredFields bool     `json:"hasRequiredFields"`
	ConfidenceScore   float64  `json:"confidenceScore"`
	Level             Level    `json:"level"`
	IsValid           bool     `json:"isValid"`
}

// BatchSummary aggregates validation results across a processed batch.
// Reporting only; nothing in the pipeline branches on it.
type BatchSummary struct {
	Total       int `json:"total"`
	Good        int `json:"good"`
	Review      int `json:"review"`
	Bad         int `json:"bad"`
	FlaggedByAI int `json:"flaggedByAI"`
	MathErrors  int `json:"mathErrors"`
}

// Validate scores one invoice. Base 100 with fixed deductions per issue,
// clamped to [0, 100].
func Validate(inv entity.InvoiceRecord) ValidationResult {
	score := 100
	var issues []string

	if inv.FlagDudoso {
		score -= deductFlagDudoso
		if strings.TrimSpace(inv.RazonDuda) != "" {
			issues = append(issues, inv.RazonDuda)
		} else {
			issues = append(issues, "La IA marcó esta extracción como dudosa")
		}
	}

	conf := inv.ConfidenceScore()
	if conf < ConfidenceFloor {
		score -= deductLowConfidence
		issues = append(issues, fmt.Sprintf("Confianza de extracción baja (%d%%)", int(math.Round(conf*100))))
	}

	mathValid := MathConsistent(inv)
	if !mathValid {
		score -= deductMathError
		issues = append(issues, "Los montos no cuadran matemáticamente")
	}

	hasRNC := strings.TrimSpace(inv.RNC) != ""
	hasNCF := strings.TrimSpace(inv.NCF) != ""
	if !hasRNC {
		score -= deductMissingRNC
		issues = append(issues, "Falta el RNC")
	}
	if !hasNCF {
		score -= deductMissingNCF
		issues = append(issues, "Falta el NCF")
	}

	hasFecha := inv.Fecha != nil && strings.TrimSpace(*inv.Fecha) != ""
	if !hasFecha {
		score -= deductMissingFecha
		issues = append(issues, "Falta la fecha del comprobante")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return ValidationResult{
		QualityScore:      score,
		Issues:            issues,
		MathValid:         mathValid,
		HasRequiredFields: hasRNC && hasNCF && hasFecha,
		ConfidenceScore:   conf,
		Level:             levelFor(score),
		IsValid:           score >= 70,
	}
}

// MathConsistent checks the two dependent identities within Tolerance.
// Each is enforced only when its calculated side is positive: an all-zero
// record counts as consistent.
func MathConsistent(inv entity.InvoiceRecord) bool {
	sum := inv.ExentoTotal + inv.GravadoTotal + inv.ITBISTotal
	if sum > 0 && math.Abs(inv.TotalFacturado-sum) > Tolerance {
		return false
	}

	if inv.TotalACobrar != nil {
		retenciones := inv.ITBISRetenido + inv.Retencion30 + inv.Retencion10 + inv.Retencion2
		expected := inv.TotalFacturado + inv.Propina - retenciones
		if expected > 0 && math.Abs(*inv.TotalACobrar-expected) > Tolerance {
			return false
		}
	}
	return true
}

// ValidateBatch summarizes a set of records for reporting.
func ValidateBatch(invs []entity.InvoiceRecord) BatchSummary {
	s := BatchSummary{Total: len(invs)}
	for _, inv := range invs {
		res := Validate(inv)
		switch res.Level {
		case LevelGood:
			s.Good++
		case LevelReview:
			s.Review++
		case LevelBad:
			s.Bad++
		}
		if inv.FlagDudoso {
			s.FlaggedByAI++
		}
		if !res.MathValid {
			s.MathErrors++
		}
	}
	return s
}

// FeedbackFromIssues builds the qa_feedback string carried into a
// re-extraction pass when QA resets an invoice to pending.
func FeedbackFromIssues(res ValidationResult) string {
	if len(res.Issues) == 0 {
		return ""
	}
	return "Revisión previa: " + strings.Join(res.Issues, "; ")
}

func levelFor(score int) Level {
	switch {
	case score >= 90:
		return LevelGood
	case score >= 70:
		return LevelReview
	default:
		return LevelBad
	}
}
