package jobs

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

// ErrDuplicateKey surfaces the (tenant_id, dedupe_key) uniqueness violation.
var ErrDuplicateKey = errors.New("dedupe key already used")

type Repo struct {
	DB *gorm.DB
}

// New builds a queued job for a tenant. RunAt defaults to now.
func New(scope tenant.Scope, typ Type, dedupeKey *string, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:          uuid.NewString(),
		TenantID:    scope.TenantID,
		Type:        typ,
		DedupeKey:   dedupeKey,
		Payload:     raw,
		Status:      StatusQueued,
		MaxAttempts: DefaultMaxAttempts,
		RunAt:       time.Now(),
	}, nil
}

// Enqueue inserts the job on the given handle, normally the same transaction
// that performs the domain write, so the work and its trigger commit or roll
// back together.
func (r *Repo) Enqueue(tx *gorm.DB, j *Job) error {
	if err := tx.Create(j).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *Repo) FindByDedupeKey(scope tenant.Scope, key string) (*Job, error) {
	var j Job
	err := scope.DB(r.DB).Where("dedupe_key = ?", key).First(&j).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenant.ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (r *Repo) Get(scope tenant.Scope, id string) (*Job, error) {
	var j Job
	err := scope.DB(r.DB).Where("id = ?", id).First(&j).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenant.ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// Claim atomically takes ownership of the oldest eligible job. Competing
// workers skip rows another transaction already locked instead of blocking,
// so N pollers never double-claim and never serialize on each other. Returns
// nil when no work is due.
func (r *Repo) Claim(workerID string) (*Job, error) {
	var job Job
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		q := tx.Raw(`
with cte as (
  select id
  from jobs
  where status = 'queued' and run_at <= now()
  order by run_at asc, created_at asc
  for update skip locked
  limit 1
)
update jobs
set status = 'running', locked_by = ?, locked_at = now(), updated_at = now()
where id in (select id from cte)
returning *;
`, workerID)

		return q.Scan(&job).Error
	})
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, nil
	}
	return &job, nil
}

func (r *Repo) MarkSucceeded(id string) error {
	return r.DB.Exec(`
update jobs
set status = 'succeeded', last_error = '', locked_by = null, locked_at = null, updated_at = now()
where id = ?`, id).Error
}

// RetryLater returns a job to the queue with an incremented attempt count
// and a deferred run time.
func (r *Repo) RetryLater(id string, attempts int, runAt time.Time, errMsg string) error {
	return r.DB.Exec(`
update jobs
set status = 'queued',
    attempts = ?,
    run_at = ?,
    locked_by = null,
    locked_at = null,
    last_error = ?,
    updated_at = now()
where id = ?`, attempts, runAt, errMsg, id).Error
}

func (r *Repo) MarkDead(id string, attempts int, errMsg string) error {
	return r.DB.Exec(`
update jobs
set status = 'dead',
    attempts = ?,
    locked_by = null,
    locked_at = null,
    last_error = ?,
    updated_at = now()
where id = ?`, attempts, errMsg, id).Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// pgx wraps unique violations with SQLSTATE 23505
	return err != nil && strings.Contains(err.Error(), "23505")
}
