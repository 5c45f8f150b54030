package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/auth"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/config"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/db"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/documents"
	httpx "github.com/nyroxsystems-boop/autoteile-assistent/internal/http"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/jobs"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/orders"
)

func main() {
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

	jwtSvc := auth.NewJWT(cfg.JWTSecret)

	ordersSvc := &orders.Service{DB: gdb}
	jobsRepo := &jobs.Repo{DB: gdb}
	docs := &documents.Pipeline{
		DB:       gdb,
		Renderer: documents.PDFShellRenderer{},
		Blobs:    &documents.DirBlobStore{Root: cfg.DocumentDir},
		Events:   &documents.LogSink{Log: logger},
	}

	r := httpx.NewRouter(cfg, httpx.Deps{
		DB:     gdb,
		JWT:    jwtSvc,
		Orders: ordersSvc,
		Jobs:   jobsRepo,
		Docs:   docs,
	})

	// embedded worker; the standalone worker binary is preferred in prod
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

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("serve failed", zap.Error(err))
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
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
