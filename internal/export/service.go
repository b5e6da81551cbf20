package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ledgerline/docpipe/internal/entity"
	"github.com/ledgerline/docpipe/internal/repository"
)

// Service is a tiny façade over the record repository that produces XLSX
// bytes for exports.
type Service struct {
	records repository.RecordRepository
	logger  *slog.Logger
}

func NewService(records repository.RecordRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, logger: logger}
}

// ExportRecordsXLSX returns an XLSX workbook (as bytes) for the given
// date window on issue date.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all records.
func (s *Service) ExportRecordsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	// Normalize dates (date-only, UTC)
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}

	recs, err := s.records.List(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Issue Date",
		"Due Date",
		"Invoice Number",
		"Vendor",
		"Client",
		"Subtotal",
		"Tax",
		"Discount",
		"Grand Total",
		"Currency",
		"Line Items",
		"Document ID",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.IssueDate)
		write(2, r.DueDate)
		write(3, r.InvoiceNumber)
		write(4, r.VendorName)
		write(5, r.ClientName)
		write(6, r.Subtotal)
		write(7, r.Tax)
		write(8, r.Discount)
		write(9, r.GrandTotal)
		write(10, r.Currency)
		write(11, lineItemCount(r.LineItems))
		write(12, r.DocumentID.String())

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "B", 12) // dates
	_ = f.SetColWidth(sheet, "C", "C", 18) // invoice number
	_ = f.SetColWidth(sheet, "D", "E", 26) // parties
	_ = f.SetColWidth(sheet, "F", "I", 12) // amounts
	_ = f.SetColWidth(sheet, "L", "L", 38) // document id

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func lineItemCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var items []entity.LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0
	}
	return len(items)
}
