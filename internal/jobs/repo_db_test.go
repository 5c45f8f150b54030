package jobs_test

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/db"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/jobs"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

// openTestDB connects to the database named by TEST_DATABASE_URL and runs
// migrations. Tests that need Postgres are skipped when the variable is
// unset.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	gdb, err := db.Connect(dsn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAndIndexes(gdb))
	return gdb
}

// newTestTenant returns a fresh scope and registers cleanup of its job rows.
func newTestTenant(t *testing.T, gdb *gorm.DB) tenant.Scope {
	t.Helper()

	id := uuid.NewString()
	t.Cleanup(func() {
		gdb.Exec(`delete from jobs where tenant_id = ?`, id)
	})
	return tenant.NewScope(id)
}

func strPtr(s string) *string { return &s }

func TestEnqueueDedupe(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	scope := newTestTenant(t, gdb)

	j1, err := jobs.New(scope, jobs.TypeUpsertOrder, strPtr("key-1"), map[string]any{"order_id": "o1"})
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(gdb, j1))

	// same key, same tenant
	j2, err := jobs.New(scope, jobs.TypeUpsertOrder, strPtr("key-1"), map[string]any{"order_id": "o1"})
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Enqueue(gdb, j2), jobs.ErrDuplicateKey)

	// same key, different tenant
	other := newTestTenant(t, gdb)
	j3, err := jobs.New(other, jobs.TypeUpsertOrder, strPtr("key-1"), map[string]any{"order_id": "o1"})
	require.NoError(t, err)
	assert.NoError(t, repo.Enqueue(gdb, j3))

	// nil dedupe keys never collide
	j4, err := jobs.New(scope, jobs.TypeUpsertOrder, nil, map[string]any{})
	require.NoError(t, err)
	j5, err := jobs.New(scope, jobs.TypeUpsertOrder, nil, map[string]any{})
	require.NoError(t, err)
	assert.NoError(t, repo.Enqueue(gdb, j4))
	assert.NoError(t, repo.Enqueue(gdb, j5))
}

func TestFindByDedupeKeyScoped(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	scope := newTestTenant(t, gdb)
	other := newTestTenant(t, gdb)

	j, err := jobs.New(scope, jobs.TypeUpsertOrder, strPtr("key-x"), map[string]any{})
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(gdb, j))

	found, err := repo.FindByDedupeKey(scope, "key-x")
	require.NoError(t, err)
	assert.Equal(t, j.ID, found.ID)

	_, err = repo.FindByDedupeKey(other, "key-x")
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	_, err = repo.Get(other, j.ID)
	assert.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestClaimExclusive(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	scope := newTestTenant(t, gdb)

	j, err := jobs.New(scope, jobs.TypeUpsertOrder, nil, map[string]any{"order_id": "o1"})
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(gdb, j))

	claimed, err := repo.Claim("w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, j.ID, claimed.ID)
	assert.Equal(t, jobs.StatusRunning, claimed.Status)
	require.NotNil(t, claimed.LockedBy)
	assert.Equal(t, "w1", *claimed.LockedBy)

	// second claim finds nothing; the only job is running
	again, err := repo.Claim("w2")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestClaimHonorsRunAt(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	scope := newTestTenant(t, gdb)

	j, err := jobs.New(scope, jobs.TypeUpsertOrder, nil, map[string]any{})
	require.NoError(t, err)
	j.RunAt = time.Now().Add(1 * time.Hour)
	require.NoError(t, repo.Enqueue(gdb, j))

	claimed, err := repo.Claim("w1")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestRetryAndDeadWritebacks(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	scope := newTestTenant(t, gdb)

	j, err := jobs.New(scope, jobs.TypeUpsertOrder, nil, map[string]any{})
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(gdb, j))

	claimed, err := repo.Claim("w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	runAt := time.Now().Add(30 * time.Second)
	require.NoError(t, repo.RetryLater(claimed.ID, 1, runAt, "upstream 503"))

	got, err := repo.Get(scope, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "upstream 503", got.LastError)
	assert.Nil(t, got.LockedBy)

	require.NoError(t, repo.MarkDead(claimed.ID, 8, "gave up"))
	got, err = repo.Get(scope, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusDead, got.Status)
	assert.Equal(t, "gave up", got.LastError)
}

func TestSweepRequeuesStuck(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	scope := newTestTenant(t, gdb)

	j, err := jobs.New(scope, jobs.TypeUpsertOrder, nil, map[string]any{})
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(gdb, j))

	claimed, err := repo.Claim("dead-worker")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// age the lock past the threshold
	require.NoError(t, gdb.Exec(
		`update jobs set locked_at = now() - interval '2 hours' where id = ?`, claimed.ID).Error)

	sweeper := &jobs.Sweeper{
		DB:         gdb,
		Repo:       repo,
		Log:        zap.NewNop(),
		StuckAfter: 30 * time.Minute,
		Mode:       jobs.SweepRequeue,
	}
	n, err := sweeper.Sweep()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	got, err := repo.Get(scope, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.LockedBy)

	// a live claim is left alone
	live, err := repo.Claim("w-live")
	require.NoError(t, err)
	require.NotNil(t, live)
	_, err = sweeper.Sweep()
	require.NoError(t, err)
	got, err = repo.Get(scope, live.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, got.Status)
}

func TestClaimConcurrentWorkers(t *testing.T) {
	gdb := openTestDB(t)
	repo := &jobs.Repo{DB: gdb}
	scope := newTestTenant(t, gdb)

	const jobCount = 20
	const workers = 8

	mine := make(map[string]bool, jobCount)
	for i := 0; i < jobCount; i++ {
		j, err := jobs.New(scope, jobs.TypeUpsertOrder, nil, jobs.UpsertOrderPayload{OrderID: fmt.Sprintf("o-%d", i)})
		require.NoError(t, err)
		require.NoError(t, repo.Enqueue(gdb, j))
		mine[j.ID] = true
	}

	var mu sync.Mutex
	claims := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for {
				job, err := repo.Claim(fmt.Sprintf("cw-%d", w))
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				if mine[job.ID] {
					claims[job.ID]++
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	// every job claimed exactly once across all workers
	assert.Len(t, claims, jobCount)
	for id, n := range claims {
		assert.Equal(t, 1, n, "job %s claimed %d times", id, n)
	}
}
