package extract

import (
	"fmt"
	"strings"

	"github.com/glezrdg/contablebot-worker/internal/entity"
)

// InstructionPrompt is the fixed extraction instruction. It is loaded once
// into the client's immutable config at construction; nothing mutates it at
// runtime.
const InstructionPrompt = `Eres un extractor de datos de comprobantes fiscales dominicanos (DGII). ` +
	`Para cada factura del bloque de entrada devuelve un objeto JSON con las claves: ` +
	`"ID", "RNC", "NCF", "FECHA" (dd/mm/yyyy tal como aparece), ` +
	`"EXENTO TOTAL", "SERVICIO EXENTO", "BIEN EXENTO", ` +
	`"GRAVADO TOTAL", "SERVICIO GRAVADO", "BIEN GRAVADO", ` +
	`"ITBIS TOTAL", "ITBIS SERVICIO", "ITBIS BIEN", ` +
	`"ITBIS RETENIDO", "RETENCION 30", "RETENCION 10", "RETENCION 2", ` +
	`"PROPINA", "TOTAL FACTURADO", "TOTAL A COBRAR", ` +
	`"FLAG_DUDOSO", "RAZON_DUDA", "CONF_BIEN_SERVICIO". ` +
	`"ID" debe repetir el id indicado en el bloque. Montos como números, sin separadores de miles. ` +
	`Si el texto es ilegible o ambiguo marca "FLAG_DUDOSO": true y explica en "RAZON_DUDA". ` +
	`"CONF_BIEN_SERVICIO" es tu confianza (0 a 1) en la clasificación bien/servicio. ` +
	`Devuelve SOLO un arreglo JSON, un elemento por factura, sin texto adicional.`

// BuildInvoiceBlock renders one compact pipe-joined line per invoice. Field
// order is significant: the prompt expects index tag, id, RNC, client name,
// qa feedback, then the raw OCR text. Empty fields are omitted to keep the
// payload small.
func BuildInvoiceBlock(invoices []entity.InvoiceRecord) string {
	var b strings.Builder
	for i, inv := range invoices {
		parts := []string{
			fmt.Sprintf("FACTURA %d", i+1),
			fmt.Sprintf("id=%d", inv.ID),
		}
		if rnc := strings.TrimSpace(inv.RNC); rnc != "" {
			parts = append(parts, "rnc="+rnc)
		}
		if name := strings.TrimSpace(inv.ClientName); name != "" {
			parts = append(parts, "cliente="+name)
		}
		if fb := strings.TrimSpace(inv.QAFeedback); fb != "" {
			parts = append(parts, "feedback="+fb)
		}
		parts = append(parts, strings.TrimSpace(inv.RawOCRText))

		b.WriteString(strings.Join(parts, " | "))
		b.WriteString("\n")
	}
	return b.String()
}

// BuildPrompt concatenates the fixed instruction with the invoice block.
func BuildPrompt(instruction string, invoices []entity.InvoiceRecord) string {
	return instruction + "\n\n" + BuildInvoiceBlock(invoices)
}
