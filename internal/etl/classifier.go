// Package etl contains the document pipeline: classification,
// transformation to the canonical schema, and the orchestrator that
// sequences the stages and fans out to the load targets.
package etl

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/entity"
)

var (
	reDate   = regexp.MustCompile(`\b(20\d{2}[-/]\d{2}[-/]\d{2})\b`)
	reCurr   = regexp.MustCompile(`\b(usd|eur|gbp|cad|aud|inr|jpy)\b|[$£€]`)
	reAmount = regexp.MustCompile(`\b\d{1,3}(,\d{3})*(\.\d{2})\b|\b\d+\.\d{2}\b`)
	reTable  = regexp.MustCompile(`(?i)\b(qty|quantity|unit price|description|line total)\b`)
)

func hasDatePattern(s string) bool     { return reDate.MatchString(s) }
func hasCurrencyPattern(s string) bool { return reCurr.MatchString(s) }
func hasAmountPattern(s string) bool   { return reAmount.MatchString(s) }

// heuristicConfidence scores decoded text on common financial-document
// artifacts. Each signal adds a fixed boost; capped at 1.0.
func heuristicConfidence(txt string) float32 {
	txtL := strings.ToLower(txt)
	score := float32(0.2) // base
	if hasDatePattern(txtL) {
		score += 0.2
	}
	if hasCurrencyPattern(txtL) {
		score += 0.15
	}
	if hasAmountPattern(txtL) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Classify derives advisory layout and document-type flags from a staged
// file. The result never gates the pipeline.
func Classify(sf entity.StagedFile) entity.ClassificationFlags {
	flags := entity.ClassificationFlags{DocumentType: constants.Unknown}

	isPDF := bytes.HasPrefix(sf.Content, []byte("%PDF"))
	text := extractableText(sf.Content, isPDF)
	flags.HasTextLayer = len(strings.TrimSpace(text)) > 0
	flags.IsScanned = isPDF && !flags.HasTextLayer || looksLikeImage(sf.Content)
	flags.ContainsTables = reTable.MatchString(strings.ToLower(text))
	if isPDF {
		flags.IsMultiPage = bytes.Count(sf.Content, []byte("/Type /Page")) > 1 ||
			bytes.Count(sf.Content, []byte("/Type/Page")) > 1
	}

	lower := strings.ToLower(text + " " + sf.Filename)
	switch {
	case strings.Contains(lower, "invoice"):
		flags.DocumentType = constants.Invoice
	case strings.Contains(lower, "receipt"):
		flags.DocumentType = constants.Receipt
	case strings.Contains(lower, "credit note"), strings.Contains(lower, "credit memo"):
		flags.DocumentType = constants.CreditNote
	case strings.Contains(lower, "purchase order"):
		flags.DocumentType = constants.PurchaseOrder
	case strings.Contains(lower, "statement"):
		flags.DocumentType = constants.Statement
	}

	return flags
}

func looksLikeImage(b []byte) bool {
	return bytes.HasPrefix(b, []byte{0xFF, 0xD8}) || // JPEG
		bytes.HasPrefix(b, []byte{0x89, 'P', 'N', 'G'}) ||
		bytes.HasPrefix(b, []byte("II*\x00")) || bytes.HasPrefix(b, []byte("MM\x00*")) // TIFF
}

// extractableText pulls whatever printable text the raw bytes expose
// without running OCR. For scanned images this is empty.
func extractableText(b []byte, isPDF bool) string {
	if isPDF {
		// cheap text-layer sniff: printable runs inside the raw PDF
		var sb strings.Builder
		run := 0
		for _, c := range b {
			if c >= 0x20 && c < 0x7f {
				run++
				if run > 3 {
					sb.WriteByte(c)
				}
			} else {
				run = 0
				sb.WriteByte(' ')
			}
		}
		return sb.String()
	}
	if looksLikeImage(b) {
		return ""
	}
	return string(b)
}
