package load

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/entity"
)

// FeatureStoreLoader writes the numeric features of a document as a redis
// hash keyed by document id, for downstream model serving.
type FeatureStoreLoader struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewFeatureStoreLoader(client redis.UniversalClient, logger *slog.Logger) *FeatureStoreLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeatureStoreLoader{client: client, logger: logger}
}

func (l *FeatureStoreLoader) Target() constants.LoadTarget { return constants.TargetFeatureStore }

func (l *FeatureStoreLoader) Load(ctx context.Context, meta entity.PipelineMetadata, rec entity.CanonicalSchema) error {
	key := "features:doc:" + meta.DocumentID.String()
	fields := map[string]any{
		"subtotal":       rec.Summary.Subtotal,
		"tax":            rec.Summary.Tax,
		"discount":       rec.Summary.Discount,
		"grand_total":    rec.Summary.GrandTotal,
		"currency":       rec.Summary.Currency,
		"line_items":     len(rec.LineItems),
		"document_type":  rec.DocumentType,
		"ocr_confidence": fmt.Sprintf("%.4f", meta.OCRConfidence),
	}
	if err := l.client.HSet(ctx, key, fields).Err(); err != nil {
		l.logger.Error("feature store write failed", "key", key, "error", err)
		return err
	}
	l.logger.Info("feature hash written", "key", key, "fields", len(fields))
	return nil
}
