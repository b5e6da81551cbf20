package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/internal/collab"
	"github.com/ledgerline/docpipe/internal/common"
	"github.com/ledgerline/docpipe/internal/entity"
	"github.com/ledgerline/docpipe/internal/etl"
	"github.com/ledgerline/docpipe/internal/export"
	"github.com/ledgerline/docpipe/internal/ingest"
	"github.com/ledgerline/docpipe/internal/load"
	"github.com/ledgerline/docpipe/internal/lock"
	"github.com/ledgerline/docpipe/internal/metrics"
	"github.com/ledgerline/docpipe/internal/repository"
	"github.com/ledgerline/docpipe/internal/storage"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory to process documents from (required)")
		out     = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		fromStr = flag.String("from", "", "from date YYYY-MM-DD")
		toStr   = flag.String("to", "", "to date YYYY-MM-DD")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		parentDir := filepath.Dir(*dir)
		*out = filepath.Join(parentDir, "documents.xlsx")
	}

	var from, to *time.Time
	if *fromStr != "" {
		if parsed, err := time.Parse("2006-01-02", *fromStr); err != nil {
			printError("Error: invalid --from date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		} else {
			from = &parsed
		}
	}
	if *toStr != "" {
		if parsed, err := time.Parse("2006-01-02", *toStr); err != nil {
			printError("Error: invalid --to date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		} else {
			to = &parsed
		}
	}

	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()

	// All-local backends: in-memory staging, lock and record sink.
	store := storage.NewMemoryStore()
	locks := lock.NewMemoryLock()
	records := repository.NewMemoryRecordRepository()
	collector := metrics.NewCollector()

	var ocrClient collab.OCRClient
	var vlmClient collab.VLMClient
	if cfg.Collaborator.UseMock || cfg.Collaborator.OCRURL == "" {
		logger.Info("no OCR_URL configured, using mock collaborators")
		ocrClient = &collab.MockOCRClient{}
		vlmClient = &collab.MockVLMClient{}
	} else {
		ocrClient = collab.NewHTTPOCRClient(cfg.Collaborator.OCRURL, cfg.Collaborator.APIKey, cfg.Collaborator.Timeout, logger)
		if cfg.Collaborator.VLMURL != "" {
			vlmClient = collab.NewHTTPVLMClient(cfg.Collaborator.VLMURL, cfg.Collaborator.APIKey, cfg.Collaborator.Timeout, logger)
		}
	}

	factory := load.NewFactory(
		load.NewOLTPLoader(records, logger),
		load.NewDataLakeLoader(store, logger),
	)
	pipe := etl.NewPipeline(etl.Config{
		EnableClassification: cfg.Pipeline.EnableClassification,
		EnableValidation:     cfg.Pipeline.EnableValidation,
		EnableLoading:        true,
		LoadTargets:          []constants.LoadTarget{constants.TargetOLTP, constants.TargetDataLake},
		Tolerance:            cfg.Pipeline.Tolerance,
	}, store, locks, ocrClient, vlmClient, factory, collector, logger)

	// Ingest directory
	stager := ingest.NewStager(store, logger)
	logger.Info("starting ingestion", "dir", *dir)
	results, stats, err := stager.StageDirectory(ctx, *dir, true)
	if err != nil {
		logger.Error("failed to ingest directory", "error", err)
		os.Exit(1)
	}
	logger.Info("ingestion complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"deduplicated", stats.Deduplicated)

	// Run the pipeline for each staged document
	processed := 0
	failures := 0
	for _, r := range results {
		if r.Err != "" || r.Deduplicated {
			continue
		}
		content, err := store.GetBytes(ctx, ingest.StagingKey(r.DocumentID, filepath.Base(r.SourcePath)))
		if err != nil {
			logger.Error("staged bytes missing", "document_id", r.DocumentID, "error", err)
			failures++
			continue
		}
		sf := entity.StagedFile{
			SourceType: "filesystem",
			Filename:   filepath.Base(r.SourcePath),
			Content:    content,
			Checksum:   r.Checksum,
			IngestedAt: r.StagedAt,
		}
		res, err := pipe.Execute(ctx, sf)
		if err != nil {
			logger.Error("pipeline failed", "source", r.SourcePath, "error", err)
			failures++
			continue
		}
		processed++
		if res.Validation != nil && res.Validation.NeedsReview {
			logger.Warn("document flagged for review",
				"source", r.SourcePath,
				"confidence", res.Validation.Overall,
				"issues", len(res.Validation.Issues))
		}
	}

	// Export to XLSX
	logger.Info("exporting to XLSX", "output", *out)
	exportService := export.NewService(records, logger)
	xlsxBytes, err := exportService.ExportRecordsXLSX(ctx, from, to)
	if err != nil {
		logger.Error("failed to export records", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	summary := collector.Summarize(time.Time{}, time.Now().UTC())
	logger.Info("batch processing complete",
		"files_processed", processed,
		"failures", failures,
		"success_rate", summary.SuccessRate,
		"mean_ms", summary.MeanProcessingMS,
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files staged: %d\n", stats.Succeeded)
	fmt.Printf("- Files processed: %d\n", processed)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
}
