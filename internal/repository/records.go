package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/docpipe/internal/common"
	"github.com/ledgerline/docpipe/internal/entity"
)

// InvoiceRecord is the persisted OLTP row for a loaded document.
type InvoiceRecord struct {
	ID            uuid.UUID       `json:"id"`
	DocumentID    uuid.UUID       `json:"document_id"`
	PipelineID    uuid.UUID       `json:"pipeline_id"`
	Checksum      string          `json:"checksum"`
	InvoiceNumber string          `json:"invoice_number"`
	VendorName    string          `json:"vendor_name"`
	ClientName    string          `json:"client_name"`
	Subtotal      float64         `json:"subtotal"`
	Tax           float64         `json:"tax"`
	Discount      float64         `json:"discount"`
	GrandTotal    float64         `json:"grand_total"`
	Currency      string          `json:"currency"`
	IssueDate     string          `json:"issue_date,omitempty"`
	DueDate       string          `json:"due_date,omitempty"`
	LineItems     json.RawMessage `json:"line_items,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// UpsertRecordRequest wraps parameters for writing a canonical record.
type UpsertRecordRequest struct {
	DocumentID uuid.UUID
	PipelineID uuid.UUID
	Checksum   string
	Record     entity.CanonicalSchema
}

type RecordRepository interface {
	UpsertFromCanonical(ctx context.Context, req *UpsertRecordRequest) (*InvoiceRecord, error)
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*InvoiceRecord, error)
	List(ctx context.Context, from, to *time.Time) ([]*InvoiceRecord, error)
}

type pgRecordRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewRecordRepository(pool *pgxpool.Pool, logger *slog.Logger) RecordRepository {
	return &pgRecordRepository{pool: pool, logger: logger}
}

func (r *pgRecordRepository) UpsertFromCanonical(ctx context.Context, req *UpsertRecordRequest) (*InvoiceRecord, error) {
	rec := req.Record
	items, err := json.Marshal(rec.LineItems)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	row := &InvoiceRecord{
		DocumentID:    req.DocumentID,
		PipelineID:    req.PipelineID,
		Checksum:      req.Checksum,
		InvoiceNumber: rec.InvoiceNumber,
		VendorName:    rec.Vendor.Name,
		ClientName:    rec.Client.Name,
		Subtotal:      rec.Summary.Subtotal,
		Tax:           rec.Summary.Tax,
		Discount:      rec.Summary.Discount,
		GrandTotal:    rec.Summary.GrandTotal,
		Currency:      rec.Summary.Currency,
		IssueDate:     rec.IssueDate,
		DueDate:       rec.DueDate,
		LineItems:     items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	const q = `
INSERT INTO invoice_records
	(id, document_id, pipeline_id, checksum, invoice_number, vendor_name, client_name,
	 subtotal, tax, discount, grand_total, currency, issue_date, due_date, line_items,
	 created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (document_id) DO UPDATE SET
	pipeline_id = EXCLUDED.pipeline_id,
	invoice_number = EXCLUDED.invoice_number,
	vendor_name = EXCLUDED.vendor_name,
	client_name = EXCLUDED.client_name,
	subtotal = EXCLUDED.subtotal,
	tax = EXCLUDED.tax,
	discount = EXCLUDED.discount,
	grand_total = EXCLUDED.grand_total,
	currency = EXCLUDED.currency,
	issue_date = EXCLUDED.issue_date,
	due_date = EXCLUDED.due_date,
	line_items = EXCLUDED.line_items,
	updated_at = EXCLUDED.updated_at
RETURNING id`

	id := uuid.New()
	err = r.pool.QueryRow(ctx, q,
		id, row.DocumentID, row.PipelineID, row.Checksum, row.InvoiceNumber,
		row.VendorName, row.ClientName, row.Subtotal, row.Tax, row.Discount,
		row.GrandTotal, row.Currency, nullable(row.IssueDate), nullable(row.DueDate),
		items, row.CreatedAt, row.UpdatedAt,
	).Scan(&row.ID)
	if err != nil {
		r.logger.Error("invoice record upsert failed", "document_id", row.DocumentID, "error", err)
		return nil, err
	}
	r.logger.Info("invoice record upserted", "record_id", row.ID, "document_id", row.DocumentID)
	return row, nil
}

func (r *pgRecordRepository) GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*InvoiceRecord, error) {
	const q = `
SELECT id, document_id, pipeline_id, checksum, invoice_number, vendor_name, client_name,
       subtotal, tax, discount, grand_total, currency,
       COALESCE(issue_date::text, ''), COALESCE(due_date::text, ''), line_items, created_at, updated_at
FROM invoice_records WHERE document_id = $1`

	row := &InvoiceRecord{}
	err := r.pool.QueryRow(ctx, q, documentID).Scan(
		&row.ID, &row.DocumentID, &row.PipelineID, &row.Checksum, &row.InvoiceNumber,
		&row.VendorName, &row.ClientName, &row.Subtotal, &row.Tax, &row.Discount,
		&row.GrandTotal, &row.Currency, &row.IssueDate, &row.DueDate, &row.LineItems,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *pgRecordRepository) List(ctx context.Context, from, to *time.Time) ([]*InvoiceRecord, error) {
	q := `
SELECT id, document_id, pipeline_id, checksum, invoice_number, vendor_name, client_name,
       subtotal, tax, discount, grand_total, currency,
       COALESCE(issue_date::text, ''), COALESCE(due_date::text, ''), line_items, created_at, updated_at
FROM invoice_records`
	var args []any
	switch {
	case from != nil && to != nil:
		q += ` WHERE created_at BETWEEN $1 AND $2`
		args = append(args, *from, *to)
	case from != nil:
		q += ` WHERE created_at >= $1`
		args = append(args, *from)
	case to != nil:
		q += ` WHERE created_at <= $1`
		args = append(args, *to)
	}
	q += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.logger.Error("invoice record list failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*InvoiceRecord
	for rows.Next() {
		row := &InvoiceRecord{}
		if err := rows.Scan(
			&row.ID, &row.DocumentID, &row.PipelineID, &row.Checksum, &row.InvoiceNumber,
			&row.VendorName, &row.ClientName, &row.Subtotal, &row.Tax, &row.Discount,
			&row.GrandTotal, &row.Currency, &row.IssueDate, &row.DueDate, &row.LineItems,
			&row.CreatedAt, &row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// MemoryRecordRepository is an in-process RecordRepository used by the
// batch CLI and tests.
type MemoryRecordRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*InvoiceRecord
}

func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{rows: make(map[uuid.UUID]*InvoiceRecord)}
}

func (r *MemoryRecordRepository) UpsertFromCanonical(_ context.Context, req *UpsertRecordRequest) (*InvoiceRecord, error) {
	rec := req.Record
	items, err := json.Marshal(rec.LineItems)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[req.DocumentID]
	if !ok {
		row = &InvoiceRecord{ID: uuid.New(), DocumentID: req.DocumentID, CreatedAt: now}
		r.rows[req.DocumentID] = row
	}
	row.PipelineID = req.PipelineID
	row.Checksum = req.Checksum
	row.InvoiceNumber = rec.InvoiceNumber
	row.VendorName = rec.Vendor.Name
	row.ClientName = rec.Client.Name
	row.Subtotal = rec.Summary.Subtotal
	row.Tax = rec.Summary.Tax
	row.Discount = rec.Summary.Discount
	row.GrandTotal = rec.Summary.GrandTotal
	row.Currency = rec.Summary.Currency
	row.IssueDate = rec.IssueDate
	row.DueDate = rec.DueDate
	row.LineItems = items
	row.UpdatedAt = now

	cp := *row
	return &cp, nil
}

func (r *MemoryRecordRepository) GetByDocumentID(_ context.Context, documentID uuid.UUID) (*InvoiceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[documentID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *MemoryRecordRepository) List(_ context.Context, from, to *time.Time) ([]*InvoiceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*InvoiceRecord
	for _, row := range r.rows {
		if from != nil && row.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && row.CreatedAt.After(*to) {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}
