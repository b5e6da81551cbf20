package constants

import (
	"strings"
)

// DocumentType is the classified kind of a financial document.
type DocumentType string

const (
	Invoice      DocumentType = "Invoice"
	Receipt      DocumentType = "Receipt"
	CreditNote   DocumentType = "CreditNote"
	PurchaseOrder DocumentType = "PurchaseOrder"
	Statement    DocumentType = "Statement"
	Unknown      DocumentType = "Unknown"
)

var allDocumentTypes = []DocumentType{
	Invoice,
	Receipt,
	CreditNote,
	PurchaseOrder,
	Statement,
	Unknown,
}

func DocumentTypesAsStrings() []string {
	result := make([]string, len(allDocumentTypes))
	for i, dt := range allDocumentTypes {
		result[i] = string(dt)
	}
	return result
}

// CanonicalizeDocumentType maps a free-form label to a known document type.
func CanonicalizeDocumentType(input string) (DocumentType, bool) {
	if input == "" {
		return Unknown, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]DocumentType{
		"tax invoice":    Invoice,
		"bill":           Invoice,
		"proforma":       Invoice,
		"sales receipt":  Receipt,
		"till receipt":   Receipt,
		"credit memo":    CreditNote,
		"refund":         CreditNote,
		"po":             PurchaseOrder,
		"purchase order": PurchaseOrder,
		"account statement": Statement,
	}

	if dt, ok := synonyms[normalized]; ok {
		return dt, true
	}

	for _, dt := range allDocumentTypes {
		if normalized == strings.ToLower(string(dt)) {
			return dt, true
		}
	}

	return Unknown, false
}
