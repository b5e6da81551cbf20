package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/entity"
)

func TestClassifyTextInvoice(t *testing.T) {
	sf := entity.StagedFile{
		Filename: "inv-2026-001.txt",
		Content: []byte(`INVOICE #2026-001
ACME Corp
Description    Qty    Unit Price    Total
Widget         2      100.00        200.00
Subtotal 200.00
Tax 20.00
Total 220.00`),
	}
	flags := Classify(sf)

	assert.Equal(t, constants.Invoice, flags.DocumentType)
	assert.True(t, flags.HasTextLayer)
	assert.True(t, flags.ContainsTables)
	assert.False(t, flags.IsScanned)
}

func TestClassifyScannedImage(t *testing.T) {
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 64)...)
	flags := Classify(entity.StagedFile{Filename: "receipt-scan.jpg", Content: jpeg})

	assert.True(t, flags.IsScanned)
	assert.False(t, flags.HasTextLayer)
	// type still inferred from the filename
	assert.Equal(t, constants.Receipt, flags.DocumentType)
}

func TestClassifyDocumentTypeKeywords(t *testing.T) {
	cases := []struct {
		text string
		want constants.DocumentType
	}{
		{"credit note for returned goods", constants.CreditNote},
		{"purchase order PO-991", constants.PurchaseOrder},
		{"monthly account statement", constants.Statement},
		{"nothing recognizable here", constants.Unknown},
	}
	for _, tc := range cases {
		flags := Classify(entity.StagedFile{Filename: "doc.txt", Content: []byte(tc.text)})
		assert.Equalf(t, tc.want, flags.DocumentType, "text %q", tc.text)
	}
}

func TestHeuristicConfidenceSignals(t *testing.T) {
	// bare text only scores the base
	assert.InDelta(t, 0.2, float64(heuristicConfidence("hello")), 1e-6)

	// date + currency + amount + length all present
	rich := `Invoice date 2026-01-15, amount due $1,234.56 payable in USD.
Please remit payment within thirty days of the issue date above.`
	assert.InDelta(t, 0.8, float64(heuristicConfidence(rich)), 1e-6)
}
