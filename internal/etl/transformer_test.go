package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docpipe/internal/collab"
)

func ocrFromText(text string) collab.OCRResult {
	return collab.OCRResult{
		Status:     collab.StatusOK,
		TextBlocks: []collab.TextBlock{{Text: text, Page: 1}},
		Confidence: 0.9,
	}
}

func TestTransformDefaults(t *testing.T) {
	rec := Transform(collab.OCRResult{}, nil)

	assert.Equal(t, "USD", rec.Summary.Currency)
	assert.NotNil(t, rec.LineItems)
	assert.Empty(t, rec.LineItems)
	assert.Zero(t, rec.Summary.GrandTotal)
}

func TestTransformTextHeuristics(t *testing.T) {
	text := `ACME Corp
Invoice No: INV-2026-042
2026-01-15
Widget A  2  100.00  200.00
Subtotal 200.00
Tax 20.00
Total 220.00
Payable in EUR`
	rec := Transform(ocrFromText(text), nil)

	assert.Equal(t, "ACME Corp", rec.Vendor.Name)
	assert.Equal(t, "INV-2026-042", rec.InvoiceNumber)
	assert.Equal(t, "2026-01-15", rec.IssueDate)
	assert.Equal(t, "EUR", rec.Summary.Currency)
	assert.InDelta(t, 200, rec.Summary.Subtotal, 1e-9)
	assert.InDelta(t, 20, rec.Summary.Tax, 1e-9)
	assert.InDelta(t, 220, rec.Summary.GrandTotal, 1e-9)
	require.Len(t, rec.LineItems, 1)
	assert.Equal(t, "Widget A", rec.LineItems[0].Description)
	assert.InDelta(t, 2, rec.LineItems[0].Quantity, 1e-9)
	assert.InDelta(t, 100, rec.LineItems[0].UnitPrice, 1e-9)
	assert.InDelta(t, 200, rec.LineItems[0].Total, 1e-9)
}

func TestTransformStructuredWinsOverHeuristics(t *testing.T) {
	enrich := &collab.EnrichmentResult{
		Status: collab.StatusOK,
		StructuredData: map[string]any{
			"vendor_name":    "Globex GmbH",
			"invoice_number": "GX-7",
			"currency":       "gbp",
			"subtotal":       150.0,
			"tax":            15.0,
			"total":          165.0,
			"line_items": []any{
				map[string]any{"description": "consulting", "quantity": 1.0, "unit_price": 150.0, "total": 150.0},
			},
		},
		ConfidenceScores: map[string]float32{"vendor_name": 0.97},
	}
	rec := Transform(ocrFromText("ACME Corp\nTotal 999.00"), enrich)

	assert.Equal(t, "Globex GmbH", rec.Vendor.Name)
	assert.Equal(t, "GX-7", rec.InvoiceNumber)
	assert.Equal(t, "GBP", rec.Summary.Currency)
	assert.InDelta(t, 165, rec.Summary.GrandTotal, 1e-9)
	require.Len(t, rec.LineItems, 1)
	assert.Equal(t, "consulting", rec.LineItems[0].Description)
	assert.InDelta(t, 0.97, float64(rec.Vendor.Confidence), 1e-6)
}

func TestJoinTextOrdersByPageAndPosition(t *testing.T) {
	ocr := collab.OCRResult{
		TextBlocks: []collab.TextBlock{
			{Text: "third", Page: 2, Y: 10},
			{Text: "first", Page: 1, Y: 5},
			{Text: "second", Page: 1, Y: 50},
		},
	}
	assert.Equal(t, "first\nsecond\nthird", JoinText(ocr))
}

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,234.50", 1234.50, true},
		{"$12", 12, true},
		{"€ 7.25", 7.25, true},
		{"7", 7, true},
		{"-3.50", -3.50, true},
		{"", 0, false},
		{"null", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseMoney(tc.in)
		assert.Equalf(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.InDeltaf(t, tc.want, got, 1e-9, "input %q", tc.in)
		}
	}
}
