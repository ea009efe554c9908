package constants

// InvoiceStatus is the canonical processing status for invoice rows.
type InvoiceStatus string

// Stable values (store these exact strings in the invoices table).
const (
	StatusPending    InvoiceStatus = "pending"    // queued for extraction
	StatusProcessing InvoiceStatus = "processing" // claimed by a worker
	StatusProcessed  InvoiceStatus = "processed"  // extraction committed
	StatusError      InvoiceStatus = "error"      // terminal failure, visible to QA
)

// ReviewStatus is the human QA verdict, maintained independently of the
// processing status. QA resets a reviewed invoice back to pending for
// another extraction pass, optionally carrying feedback forward.
type ReviewStatus string

const (
	ReviewPending ReviewStatus = "pending"
	ReviewOK      ReviewStatus = "OK"
	ReviewReview  ReviewStatus = "REVIEW"
	ReviewError   ReviewStatus = "ERROR"
)
