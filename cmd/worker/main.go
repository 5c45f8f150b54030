package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/config"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/db"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/documents"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/jobs"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/orders"
)

func main() {
	once := flag.Bool("once", false, "drain the queue and exit")
	sweepOnly := flag.Bool("sweep", false, "run one repair pass over stuck jobs and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.AppEnv)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}

	ordersSvc := &orders.Service{DB: gdb}
	jobsRepo := &jobs.Repo{DB: gdb}
	docs := &documents.Pipeline{
		DB:       gdb,
		Renderer: documents.PDFShellRenderer{},
		Blobs:    &documents.DirBlobStore{Root: cfg.DocumentDir},
		Events:   &documents.LogSink{Log: logger},
	}

	worker := &jobs.Worker{
		ID:           workerID(cfg),
		Repo:         jobsRepo,
		Log:          logger,
		PollInterval: cfg.WorkerPollInterval,
		Handlers: jobs.Handlers{
			UpsertOrder:            ordersSvc.HandleUpsert,
			GenerateDocument:       docs.Generate,
			GenerateDocumentFailed: docs.RecordFailure,
		},
	}
	sweeper := &jobs.Sweeper{
		DB:         gdb,
		Repo:       jobsRepo,
		Log:        logger,
		StuckAfter: cfg.SweepStuckAfter,
		Mode:       jobs.SweepMode(cfg.SweepMode),
	}

	if *sweepOnly {
		n, err := sweeper.Sweep()
		if err != nil {
			logger.Fatal("sweep failed", zap.Error(err))
		}
		if flipped, err := docs.SweepStuck(cfg.SweepStuckAfter); err != nil {
			logger.Error("document sweep failed", zap.Error(err))
		} else {
			logger.Info("sweep done", zap.Int("jobs", n), zap.Int64("documents", flipped))
		}
		return
	}

	if *once {
		if err := worker.RunOnce(context.Background()); err != nil {
			logger.Fatal("drain failed", zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	go worker.Run(ctx)
	go sweeper.Run(ctx, cfg.SweepInterval)
	go func() {
		// stuck creating documents age out on the same cadence as stuck jobs
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := docs.SweepStuck(cfg.SweepStuckAfter); err != nil {
					logger.Error("document sweep failed", zap.Error(err))
				}
			}
		}
	}()

	logger.Info("worker running",
		zap.String("worker_id", worker.ID),
		zap.Duration("poll", cfg.WorkerPollInterval),
		zap.Duration("sweep_every", cfg.SweepInterval),
	)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	cancel()
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func workerID(cfg config.Config) string {
	if cfg.WorkerID != "" {
		return cfg.WorkerID
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
