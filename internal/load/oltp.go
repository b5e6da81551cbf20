package load

import (
	"context"
	"log/slog"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/entity"
	"github.com/ledgerline/docpipe/internal/repository"
)

// OLTPLoader upserts the canonical record into the relational store.
type OLTPLoader struct {
	records repository.RecordRepository
	logger  *slog.Logger
}

func NewOLTPLoader(records repository.RecordRepository, logger *slog.Logger) *OLTPLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &OLTPLoader{records: records, logger: logger}
}

func (l *OLTPLoader) Target() constants.LoadTarget { return constants.TargetOLTP }

func (l *OLTPLoader) Load(ctx context.Context, meta entity.PipelineMetadata, rec entity.CanonicalSchema) error {
	row, err := l.records.UpsertFromCanonical(ctx, &repository.UpsertRecordRequest{
		DocumentID: meta.DocumentID,
		PipelineID: meta.PipelineID,
		Checksum:   meta.Checksum,
		Record:     rec,
	})
	if err != nil {
		l.logger.Error("oltp load failed", "document_id", meta.DocumentID, "error", err)
		return err
	}
	l.logger.Info("oltp record upserted", "document_id", meta.DocumentID, "record_id", row.ID)
	return nil
}
