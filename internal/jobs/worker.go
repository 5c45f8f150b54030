package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

// HandlerFunc executes one job attempt under the owning tenant's scope.
type HandlerFunc func(ctx context.Context, scope tenant.Scope, payload json.RawMessage) error

// Handlers binds every job type to its handler. The set of types is closed;
// dispatch is an exhaustive switch, so adding a type without wiring a
// handler is caught at review, not at runtime lookup.
type Handlers struct {
	UpsertOrder      HandlerFunc
	GenerateDocument HandlerFunc

	// GenerateDocumentFailed records the artifact outcome after a failed
	// generate-document attempt. terminal means the job will not run again.
	GenerateDocumentFailed func(scope tenant.Scope, payload json.RawMessage, terminal bool, msg string)
}

// Worker polls the queue, claims one job at a time and writes the outcome
// back. Handler failures never propagate to the loop.
type Worker struct {
	ID       string
	Repo     *Repo
	Handlers Handlers
	Log      *zap.Logger

	// PollInterval bounds how long a freshly eligible job waits for an idle
	// worker.
	PollInterval time.Duration
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				job, err := w.Repo.Claim(w.ID)
				if err != nil {
					w.Log.Warn("claim failed", zap.String("worker", w.ID), zap.Error(err))
					break
				}
				if job == nil {
					break
				}
				w.handle(ctx, job)
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// RunOnce drains the queue until empty. Used by the worker binary's
// --once mode and by tests.
func (w *Worker) RunOnce(ctx context.Context) error {
	for {
		job, err := w.Repo.Claim(w.ID)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		w.handle(ctx, job)
	}
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	scope := tenant.NewScope(job.TenantID)
	log := w.Log.With(
		zap.String("job_id", job.ID),
		zap.String("tenant_id", job.TenantID),
		zap.String("type", string(job.Type)),
	)
	log.Info("job start")

	err := w.execute(ctx, scope, job)
	if err == nil {
		if mErr := w.Repo.MarkSucceeded(job.ID); mErr != nil {
			log.Error("mark succeeded failed", zap.Error(mErr))
			return
		}
		log.Info("job succeeded", zap.Int("attempts", job.Attempts))
		return
	}

	attempts := job.Attempts + 1
	retry := ShouldRetry(err) && attempts < job.MaxAttempts
	msg := err.Error()

	if job.Type == TypeGenerateDocument && w.Handlers.GenerateDocumentFailed != nil {
		w.Handlers.GenerateDocumentFailed(scope, job.Payload, !retry, msg)
	}

	log.Warn("job error",
		zap.Int("attempts", attempts),
		zap.Int("max_attempts", job.MaxAttempts),
		zap.Bool("retry", retry),
		zap.Error(err),
	)

	if retry {
		runAt := time.Now().Add(BackoffDelay(attempts))
		if rErr := w.Repo.RetryLater(job.ID, attempts, runAt, msg); rErr != nil {
			log.Error("retry writeback failed", zap.Error(rErr))
		}
		return
	}
	if dErr := w.Repo.MarkDead(job.ID, attempts, msg); dErr != nil {
		log.Error("dead writeback failed", zap.Error(dErr))
	}
}

// execute dispatches on the job type and converts panics into failures so a
// broken handler cannot kill the polling loop.
func (w *Worker) execute(ctx context.Context, scope tenant.Scope, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	switch job.Type {
	case TypeUpsertOrder:
		return w.Handlers.UpsertOrder(ctx, scope, job.Payload)
	case TypeGenerateDocument:
		return w.Handlers.GenerateDocument(ctx, scope, job.Payload)
	default:
		return NonRetryable(errors.New("unknown job type: " + string(job.Type)))
	}
}
