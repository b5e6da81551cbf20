package load

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/entity"
	"github.com/ledgerline/docpipe/internal/storage"
)

// DataLakeLoader appends the full canonical record as a JSON object under
// a date-partitioned key layout, one object per document.
type DataLakeLoader struct {
	store  storage.Store
	logger *slog.Logger
	clock  func() time.Time
}

func NewDataLakeLoader(store storage.Store, logger *slog.Logger) *DataLakeLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataLakeLoader{store: store, logger: logger, clock: time.Now}
}

func (l *DataLakeLoader) Target() constants.LoadTarget { return constants.TargetDataLake }

func (l *DataLakeLoader) Load(ctx context.Context, meta entity.PipelineMetadata, rec entity.CanonicalSchema) error {
	envelope := struct {
		Meta   entity.PipelineMetadata `json:"meta"`
		Record entity.CanonicalSchema  `json:"record"`
	}{Meta: meta, Record: rec}

	b, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	key := fmt.Sprintf("lake/date=%s/%s.json", l.clock().UTC().Format("2006-01-02"), meta.DocumentID)
	if err := l.store.PutBytes(ctx, key, b); err != nil {
		l.logger.Error("data lake write failed", "key", key, "error", err)
		return err
	}
	l.logger.Info("data lake object written", "key", key, "bytes", len(b))
	return nil
}
