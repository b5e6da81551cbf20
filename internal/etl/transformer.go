package etl

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledgerline/docpipe/internal/collab"
	"github.com/ledgerline/docpipe/internal/entity"
)

// Schema defaults applied when a field is absent from the raw payload:
// total -> 0.0, currency -> "USD", line_items -> empty list.
const defaultCurrency = "USD"

var (
	reInvoiceNo = regexp.MustCompile(`(?i)\b(?:invoice|receipt)\s*(?:no\.?|number|#)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{2,})`)
	reISODate   = regexp.MustCompile(`\b(20\d{2}-\d{2}-\d{2})\b`)
	reLabeled   = regexp.MustCompile(`(?i)^\s*(subtotal|sub-total|tax|vat|gst|discount|total|amount due|grand total)\b[^0-9-]*(-?[\d,]+(?:\.\d{1,2})?)`)
	reCurrency  = regexp.MustCompile(`\b(USD|EUR|GBP|CAD|AUD|INR|JPY)\b`)
	reLineItem  = regexp.MustCompile(`^(.+?)\s{2,}(\d+(?:\.\d+)?)\s{2,}([\d,]+(?:\.\d{1,2})?)\s{2,}([\d,]+(?:\.\d{1,2})?)\s*$`)
)

// Transform maps a raw OCR payload, optionally enriched by the VLM
// collaborator, into the canonical schema. Missing fields take the
// documented defaults; the transformer never fails on sparse input.
func Transform(ocr collab.OCRResult, enrich *collab.EnrichmentResult) entity.CanonicalSchema {
	text := joinBlocks(ocr)

	rec := entity.CanonicalSchema{
		Summary:   entity.FinancialSummary{Currency: defaultCurrency},
		LineItems: []entity.LineItem{},
		RawText:   text,
	}

	// Structured VLM output wins over text heuristics when present.
	if enrich != nil && enrich.StructuredData != nil {
		applyStructured(&rec, enrich)
	}

	lines := strings.Split(text, "\n")
	applyTextHeuristics(&rec, lines, text)

	// Per-field confidences: carried from OCR when the collaborator gave
	// nothing more specific.
	if rec.Vendor.Confidence == 0 && rec.Vendor.Name != "" {
		rec.Vendor.Confidence = ocr.Confidence
	}
	return rec
}

// JoinText flattens an OCR payload into reading-order text.
func JoinText(ocr collab.OCRResult) string {
	return joinBlocks(ocr)
}

func joinBlocks(ocr collab.OCRResult) string {
	if len(ocr.TextBlocks) == 0 {
		return string(ocr.Raw)
	}
	blocks := make([]collab.TextBlock, len(ocr.TextBlocks))
	copy(blocks, ocr.TextBlocks)
	sort.SliceStable(blocks, func(a, b int) bool {
		if blocks[a].Page != blocks[b].Page {
			return blocks[a].Page < blocks[b].Page
		}
		return blocks[a].Y < blocks[b].Y
	})
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Text
	}
	return strings.Join(parts, "\n")
}

func applyStructured(rec *entity.CanonicalSchema, enrich *collab.EnrichmentResult) {
	data := enrich.StructuredData
	if v, ok := stringField(data, "invoice_number"); ok {
		rec.InvoiceNumber = v
	}
	if v, ok := stringField(data, "document_type"); ok {
		rec.DocumentType = v
	}
	if v, ok := stringField(data, "vendor_name"); ok {
		rec.Vendor.Name = v
	}
	if v, ok := stringField(data, "client_name"); ok {
		rec.Client.Name = v
	}
	if v, ok := stringField(data, "issue_date"); ok {
		rec.IssueDate = v
	}
	if v, ok := stringField(data, "due_date"); ok {
		rec.DueDate = v
	}
	if v, ok := stringField(data, "currency"); ok && v != "" {
		rec.Summary.Currency = strings.ToUpper(v)
	}
	if v, ok := numberField(data, "subtotal"); ok {
		rec.Summary.Subtotal = v
	}
	if v, ok := numberField(data, "tax"); ok {
		rec.Summary.Tax = v
	}
	if v, ok := numberField(data, "discount"); ok {
		rec.Summary.Discount = v
	}
	if v, ok := numberField(data, "total"); ok {
		rec.Summary.GrandTotal = v
	}
	if items, ok := data["line_items"].([]any); ok {
		for _, raw := range items {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			li := entity.LineItem{}
			li.Description, _ = stringField(m, "description")
			li.Quantity, _ = numberField(m, "quantity")
			li.UnitPrice, _ = numberField(m, "unit_price")
			li.Total, _ = numberField(m, "total")
			if c, ok := numberField(m, "confidence"); ok {
				li.Confidence = float32(c)
			}
			rec.LineItems = append(rec.LineItems, li)
		}
	}
	for field, score := range enrich.ConfidenceScores {
		switch field {
		case "vendor", "vendor_name":
			rec.Vendor.Confidence = score
		case "client", "client_name":
			rec.Client.Confidence = score
		}
	}
}

// applyTextHeuristics fills any field still missing after structured
// enrichment using keyword/regex matching over OCR text lines.
func applyTextHeuristics(rec *entity.CanonicalSchema, lines []string, text string) {
	if rec.Vendor.Name == "" {
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line != "" {
				rec.Vendor.Name = line
				break
			}
		}
	}
	if rec.InvoiceNumber == "" {
		if m := reInvoiceNo.FindStringSubmatch(text); m != nil {
			rec.InvoiceNumber = m[1]
		}
	}
	if rec.IssueDate == "" {
		if m := reISODate.FindString(text); m != "" {
			rec.IssueDate = m
		}
	}
	if rec.Summary.Currency == defaultCurrency {
		if m := reCurrency.FindString(strings.ToUpper(text)); m != "" {
			rec.Summary.Currency = m
		}
	}

	var haveSubtotal, haveTax, haveDiscount, haveTotal bool
	haveSubtotal = rec.Summary.Subtotal != 0
	haveTax = rec.Summary.Tax != 0
	haveDiscount = rec.Summary.Discount != 0
	haveTotal = rec.Summary.GrandTotal != 0
	for _, line := range lines {
		m := reLabeled.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		amount, ok := ParseMoney(m[2])
		if !ok {
			continue
		}
		switch strings.ToLower(m[1]) {
		case "subtotal", "sub-total":
			if !haveSubtotal {
				rec.Summary.Subtotal = amount
				haveSubtotal = true
			}
		case "tax", "vat", "gst":
			if !haveTax {
				rec.Summary.Tax = amount
				haveTax = true
			}
		case "discount":
			if !haveDiscount {
				// discounts show up signed either way on receipts
				if amount < 0 {
					amount = -amount
				}
				rec.Summary.Discount = amount
				haveDiscount = true
			}
		case "total", "amount due", "grand total":
			if !haveTotal {
				rec.Summary.GrandTotal = amount
				haveTotal = true
			}
		}
	}

	if len(rec.LineItems) == 0 {
		for _, line := range lines {
			m := reLineItem.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			qty, _ := ParseMoney(m[2])
			unit, unitOK := ParseMoney(m[3])
			total, totalOK := ParseMoney(m[4])
			if !unitOK || !totalOK {
				continue
			}
			rec.LineItems = append(rec.LineItems, entity.LineItem{
				Description: strings.TrimSpace(m[1]),
				Quantity:    qty,
				UnitPrice:   unit,
				Total:       total,
			})
		}
	}
}

// ParseMoney normalizes a money-ish string ("1,234.50", "$12", "7") to a
// float value. Returns false for anything unparsable.
func ParseMoney(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$£€")
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return 0, false
	}
	cleaned := strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func stringField(m map[string]any, key string) (string, bool) {
	if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	return "", false
}

func numberField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		return ParseMoney(v)
	default:
		return 0, false
	}
}
