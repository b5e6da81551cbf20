package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/ledgerline/docpipe/internal/collab"
	"github.com/ledgerline/docpipe/internal/common"
	"github.com/ledgerline/docpipe/internal/core"
	"github.com/ledgerline/docpipe/internal/ingest"
	"github.com/ledgerline/docpipe/internal/job"
	"github.com/ledgerline/docpipe/internal/load"
	"github.com/ledgerline/docpipe/internal/lock"
	"github.com/ledgerline/docpipe/internal/metrics"
	"github.com/ledgerline/docpipe/internal/repository"
	"github.com/ledgerline/docpipe/internal/storage"
	"github.com/ledgerline/docpipe/internal/task"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Staging area
	store, err := storage.NewFSStore(cfg.Pipeline.StagingRoot)
	if err != nil {
		logger.Error("staging store init failed", "root", cfg.Pipeline.StagingRoot, "error", err)
		os.Exit(1)
	}

	// Redis: stage locks, task queue, feature-store sink
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}

	// Job store
	jobStore, err := job.OpenSQLiteStore(getEnv("JOB_DB_PATH", "docpipe-jobs.db"))
	if err != nil {
		logger.Error("job store init failed", "error", err)
		os.Exit(1)
	}
	defer jobStore.Close()
	machine := job.NewStateMachine(jobStore, logger)

	// Loaders
	var loaders []load.Loader
	if cfg.Database.DSN != "" {
		pool, err := repository.Open(ctx, repository.Config(cfg.Database), logger)
		if err != nil {
			logger.Error("database connect failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := repository.HealthCheck(ctx, pool, 3*time.Second, logger); err != nil {
			logger.Error("database health check failed", "error", err)
			os.Exit(1)
		}
		records := repository.NewRecordRepository(pool, logger)
		loaders = append(loaders, load.NewOLTPLoader(records, logger))
	} else {
		logger.Warn("DB_URL not set, OLTP loading disabled")
	}
	loaders = append(loaders,
		load.NewDataLakeLoader(store, logger),
		load.NewFeatureStoreLoader(rdb, logger),
	)
	wv, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Vector.Host,
		Scheme: cfg.Vector.Scheme,
	})
	if err != nil {
		logger.Warn("weaviate client init failed, vector loading disabled", "error", err)
	} else {
		loaders = append(loaders, load.NewVectorStoreLoader(wv, cfg.Vector.Class, logger))
	}
	factory := load.NewFactory(loaders...)

	// Collaborators
	var ocrClient collab.OCRClient
	var vlmClient collab.VLMClient
	if cfg.Collaborator.UseMock {
		logger.Warn("using mock collaborators")
		ocrClient = &collab.MockOCRClient{}
		vlmClient = &collab.MockVLMClient{}
	} else {
		ocrClient = collab.NewHTTPOCRClient(cfg.Collaborator.OCRURL, cfg.Collaborator.APIKey, cfg.Collaborator.Timeout, logger)
		if cfg.Collaborator.VLMURL != "" {
			vlmClient = collab.NewHTTPVLMClient(cfg.Collaborator.VLMURL, cfg.Collaborator.APIKey, cfg.Collaborator.Timeout, logger)
		}
	}

	// Queue + runner
	queue := task.NewRedisQueue(rdb, logger)
	if n, err := queue.Recover(ctx); err != nil {
		logger.Error("task recovery failed", "error", err)
		os.Exit(1)
	} else if n > 0 {
		logger.Info("recovered in-flight tasks", "count", n)
	}
	locks := lock.NewRedisLock(rdb, logger)
	runner := task.NewRunner(queue, machine, locks, logger,
		task.WithConcurrency(cfg.Worker.Workers),
		task.WithLockTTL(cfg.Collaborator.LockTTL),
	)

	collector := metrics.NewCollector()
	stager := ingest.NewStager(store, logger)
	worker := core.NewWorker(machine, queue, stager, store, ocrClient, vlmClient, factory, collector, cfg.Pipeline, logger)
	worker.Register(runner)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Start(ctx)
	}()

	// Optional inbox watcher: every matching file becomes a job.
	if inbox := os.Getenv("WATCH_DIR"); inbox != "" {
		evCh, errCh, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       []string{inbox},
			InitialScan: true,
			Debounce:    500 * time.Millisecond,
		}, logger)
		if err != nil {
			logger.Error("watcher start failed", "dir", inbox, "error", err)
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case path, ok := <-evCh:
					if !ok {
						return
					}
					if _, err := worker.Submit(ctx, path); err != nil {
						logger.Error("submit failed", "path", path, "error", err)
					}
				case werr, ok := <-errCh:
					if ok && werr != nil {
						logger.Warn("watcher error", "error", werr)
					}
				}
			}
		}()
		logger.Info("watching inbox", "dir", inbox)
	}

	logger.Info("docpiped started", "workers", cfg.Worker.Workers, "targets", cfg.Pipeline.LoadTargets)
	<-ctx.Done()
	logger.Info("shutting down...")
	wg.Wait()
	queue.Shutdown(context.Background())
	fmt.Println("stopped.")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
