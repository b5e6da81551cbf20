package entity

// LineItem is one ordered row on an invoice or receipt.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
	Confidence  float32 `json:"confidence,omitempty"`
}

// Party is the vendor or client block on a document.
type Party struct {
	Name       string  `json:"name"`
	Address    string  `json:"address,omitempty"`
	TaxID      string  `json:"tax_id,omitempty"`
	Email      string  `json:"email,omitempty"`
	Confidence float32 `json:"confidence,omitempty"`
}

// FinancialSummary is the monetary roll-up of a document.
type FinancialSummary struct {
	Subtotal   float64 `json:"subtotal"`
	Tax        float64 `json:"tax"`
	Discount   float64 `json:"discount"`
	GrandTotal float64 `json:"grand_total"`
	Currency   string  `json:"currency"`
}

// CanonicalSchema is the normalized, document-type-agnostic representation
// of an extracted financial document. Produced by the transformer; consumed
// by the financial validator and the loaders.
type CanonicalSchema struct {
	InvoiceNumber string           `json:"invoice_number,omitempty"`
	DocumentType  string           `json:"document_type,omitempty"`
	Vendor        Party            `json:"vendor"`
	Client        Party            `json:"client"`
	LineItems     []LineItem       `json:"line_items"`
	Summary       FinancialSummary `json:"summary"`
	IssueDate     string           `json:"issue_date,omitempty"` // YYYY-MM-DD
	DueDate       string           `json:"due_date,omitempty"`   // YYYY-MM-DD
	RawText       string           `json:"-"`
}

// IssueSeverity ranks a validation issue.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Validation issue kinds.
const (
	IssueSubtotalMismatch = "SUBTOTAL_MISMATCH"
	IssueTotalMismatch    = "TOTAL_MISMATCH"
	IssueNegativeAmount   = "NEGATIVE_AMOUNT"
	IssueMissingField     = "MISSING_FIELD"
	IssueDateOrder        = "DATE_ORDER"
	IssueUnparsableDate   = "UNPARSABLE_DATE"
)

// ValidationIssue is one finding from the financial validator.
type ValidationIssue struct {
	Field    string        `json:"field"`
	Kind     string        `json:"kind"`
	Message  string        `json:"message"`
	Severity IssueSeverity `json:"severity"`
}

// ValidationResult is derived once and never mutated afterwards.
type ValidationResult struct {
	IsValid     bool                `json:"is_valid"`
	Issues      []ValidationIssue   `json:"issues,omitempty"`
	Confidence  map[string]float32  `json:"confidence,omitempty"`
	Overall     float32             `json:"overall_confidence"`
	NeedsReview bool                `json:"needs_review"`
}

// HasIssue reports whether the result contains an issue of the given kind.
func (r ValidationResult) HasIssue(kind string) bool {
	for _, iss := range r.Issues {
		if iss.Kind == kind {
			return true
		}
	}
	return false
}
