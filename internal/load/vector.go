package load

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/entity"
)

// VectorStoreLoader batches the document's text representation into a
// weaviate class for semantic retrieval.
type VectorStoreLoader struct {
	client *weaviate.Client
	class  string
	logger *slog.Logger
}

func NewVectorStoreLoader(client *weaviate.Client, class string, logger *slog.Logger) *VectorStoreLoader {
	if logger == nil {
		logger = slog.Default()
	}
	if class == "" {
		class = "FinancialDocument"
	}
	return &VectorStoreLoader{client: client, class: class, logger: logger}
}

func (l *VectorStoreLoader) Target() constants.LoadTarget { return constants.TargetVectorStore }

func (l *VectorStoreLoader) Load(ctx context.Context, meta entity.PipelineMetadata, rec entity.CanonicalSchema) error {
	properties := map[string]any{
		"document_id":    meta.DocumentID.String(),
		"pipeline_id":    meta.PipelineID.String(),
		"vendor_name":    rec.Vendor.Name,
		"invoice_number": rec.InvoiceNumber,
		"document_type":  rec.DocumentType,
		"currency":       rec.Summary.Currency,
		"grand_total":    rec.Summary.GrandTotal,
		"content":        rec.RawText,
	}

	batcher := l.client.Batch().ObjectsBatcher()
	batcher = batcher.WithObjects(&models.Object{
		Class:      l.class,
		ID:         strfmt.UUID(meta.DocumentID.String()),
		Properties: properties,
	})
	if _, err := batcher.Do(ctx); err != nil {
		l.logger.Error("vector store write failed", "class", l.class, "document_id", meta.DocumentID, "error", err)
		return fmt.Errorf("vector batch insert: %w", err)
	}
	l.logger.Info("vector object written", "class", l.class, "document_id", meta.DocumentID)
	return nil
}
