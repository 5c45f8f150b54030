package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/jobs"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

func TestWorkerTransientThenSuccess(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	scope := newTestTenant(t, gdb)

	j, err := jobs.New(scope, jobs.TypeUpsertOrder, nil, jobs.UpsertOrderPayload{OrderID: "o1"})
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(gdb, j))

	fail := true
	w := &jobs.Worker{
		ID:   "test-worker",
		Repo: repo,
		Log:  zap.NewNop(),
		Handlers: jobs.Handlers{
			UpsertOrder: func(ctx context.Context, s tenant.Scope, payload json.RawMessage) error {
				if s.TenantID != scope.TenantID {
					return nil // job from another test run, ignore
				}
				if fail {
					return jobs.WithStatus(503, errors.New("dashboard unavailable"))
				}
				return nil
			},
			GenerateDocument: func(ctx context.Context, s tenant.Scope, payload json.RawMessage) error {
				return nil
			},
		},
	}

	require.NoError(t, w.RunOnce(context.Background()))

	got, err := repo.Get(scope, j.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.LastError, "503")
	assert.True(t, got.RunAt.After(time.Now().Add(5*time.Second)), "first retry is deferred")

	// make the retry due and let it succeed
	fail = false
	require.NoError(t, gdb.Exec(`update jobs set run_at = now() where id = ?`, j.ID).Error)
	require.NoError(t, w.RunOnce(context.Background()))

	got, err = repo.Get(scope, j.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSucceeded, got.Status)
	assert.Empty(t, got.LastError)
}

func TestWorkerNonRetryableGoesDead(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	scope := newTestTenant(t, gdb)

	j, err := jobs.New(scope, jobs.TypeUpsertOrder, nil, jobs.UpsertOrderPayload{OrderID: "gone"})
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(gdb, j))

	w := &jobs.Worker{
		ID:   "test-worker",
		Repo: repo,
		Log:  zap.NewNop(),
		Handlers: jobs.Handlers{
			UpsertOrder: func(ctx context.Context, s tenant.Scope, payload json.RawMessage) error {
				return jobs.NonRetryable(errors.New("order not found"))
			},
			GenerateDocument: func(ctx context.Context, s tenant.Scope, payload json.RawMessage) error {
				return nil
			},
		},
	}

	require.NoError(t, w.RunOnce(context.Background()))

	got, err := repo.Get(scope, j.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusDead, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "order not found", got.LastError)
}

func TestWorkerPanicDoesNotKillLoop(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	scope := newTestTenant(t, gdb)

	j, err := jobs.New(scope, jobs.TypeUpsertOrder, nil, jobs.UpsertOrderPayload{OrderID: "boom"})
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(gdb, j))

	w := &jobs.Worker{
		ID:   "test-worker",
		Repo: repo,
		Log:  zap.NewNop(),
		Handlers: jobs.Handlers{
			UpsertOrder: func(ctx context.Context, s tenant.Scope, payload json.RawMessage) error {
				panic("handler bug")
			},
			GenerateDocument: func(ctx context.Context, s tenant.Scope, payload json.RawMessage) error {
				return nil
			},
		},
	}

	require.NoError(t, w.RunOnce(context.Background()))

	got, err := repo.Get(scope, j.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, got.Status)
	assert.Contains(t, got.LastError, "handler panic")
}
