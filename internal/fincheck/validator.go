// Package fincheck validates the arithmetic, date and business
// consistency of a canonical financial document record. Validate is pure:
// identical input always yields identical output.
package fincheck

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ledgerline/docpipe/internal/entity"
)

const (
	// DefaultTolerance is the absolute currency-unit delta allowed between
	// a declared and a computed monetary value.
	DefaultTolerance = 0.01

	// reviewThreshold is the overall confidence below which a record is
	// flagged for human review even when arithmetically valid.
	reviewThreshold = 0.85
)

// Validate checks rec against the given absolute tolerance. A tolerance
// of 0 or less falls back to DefaultTolerance.
func Validate(rec entity.CanonicalSchema, tolerance float64) entity.ValidationResult {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var issues []entity.ValidationIssue
	addError := func(field, kind, msg string) {
		issues = append(issues, entity.ValidationIssue{Field: field, Kind: kind, Message: msg, Severity: entity.SeverityError})
	}
	addWarning := func(field, kind, msg string) {
		issues = append(issues, entity.ValidationIssue{Field: field, Kind: kind, Message: msg, Severity: entity.SeverityWarning})
	}

	sum := rec.Summary

	// Required fields.
	if sum.GrandTotal == 0 && len(rec.LineItems) == 0 && sum.Subtotal == 0 {
		addError("summary.grand_total", entity.IssueMissingField, "total is missing")
	}
	if sum.Currency == "" {
		addError("summary.currency", entity.IssueMissingField, "currency is missing")
	}

	// Non-negativity.
	if sum.GrandTotal < 0 {
		addError("summary.grand_total", entity.IssueNegativeAmount, "grand total is negative")
	}
	if sum.Subtotal < 0 {
		addError("summary.subtotal", entity.IssueNegativeAmount, "subtotal is negative")
	}
	if sum.Tax < 0 {
		addError("summary.tax", entity.IssueNegativeAmount, "tax is negative")
	}

	// Arithmetic: line items against declared subtotal.
	if len(rec.LineItems) > 0 {
		var lineSum float64
		for _, li := range rec.LineItems {
			lineSum += li.Total
		}
		if math.Abs(lineSum-sum.Subtotal) > tolerance {
			addError("summary.subtotal", entity.IssueSubtotalMismatch,
				fmt.Sprintf("line items sum to %.2f, subtotal declared %.2f", lineSum, sum.Subtotal))
		}
	}

	// Arithmetic: subtotal + tax - discount against grand total.
	expected := sum.Subtotal + sum.Tax - sum.Discount
	if math.Abs(expected-sum.GrandTotal) > tolerance {
		addError("summary.grand_total", entity.IssueTotalMismatch,
			fmt.Sprintf("expected %.2f, declared %.2f", expected, sum.GrandTotal))
	}

	// Dates: only order-check when both parse; unparsable is a warning.
	issueDate, issueOK := parseDate(rec.IssueDate)
	dueDate, dueOK := parseDate(rec.DueDate)
	if rec.IssueDate != "" && !issueOK {
		addWarning("issue_date", entity.IssueUnparsableDate, "issue date could not be parsed")
	}
	if rec.DueDate != "" && !dueOK {
		addWarning("due_date", entity.IssueUnparsableDate, "due date could not be parsed")
	}
	if issueOK && dueOK && dueDate.Before(issueDate) {
		addError("due_date", entity.IssueDateOrder, "due date precedes issue date")
	}

	isValid := true
	for _, iss := range issues {
		if iss.Severity == entity.SeverityError {
			isValid = false
			break
		}
	}

	confidence := fieldConfidence(rec)
	overall := aggregateConfidence(confidence)

	return entity.ValidationResult{
		IsValid:     isValid,
		Issues:      issues,
		Confidence:  confidence,
		Overall:     overall,
		NeedsReview: !isValid || overall < reviewThreshold,
	}
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006", "Jan 2, 2006", "2 Jan 2006"}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// fieldConfidence collects the per-field confidence scores present on the
// vendor, client and line-item blocks.
func fieldConfidence(rec entity.CanonicalSchema) map[string]float32 {
	out := make(map[string]float32)
	if rec.Vendor.Confidence > 0 {
		out["vendor"] = rec.Vendor.Confidence
	}
	if rec.Client.Confidence > 0 {
		out["client"] = rec.Client.Confidence
	}
	var liSum float32
	var liCount int
	for _, li := range rec.LineItems {
		if li.Confidence > 0 {
			liSum += li.Confidence
			liCount++
		}
	}
	if liCount > 0 {
		out["line_items"] = liSum / float32(liCount)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func aggregateConfidence(scores map[string]float32) float32 {
	if len(scores) == 0 {
		return 1.0
	}
	// iterate in sorted key order so float accumulation is reproducible
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float32
	for _, k := range keys {
		sum += scores[k]
	}
	return sum / float32(len(scores))
}
