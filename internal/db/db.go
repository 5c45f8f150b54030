package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/auth"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/documents"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/jobs"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/orders"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&tenant.Tenant{},
		&tenant.Membership{},
		&tenant.ServiceToken{},
		&auth.User{},
		&jobs.Job{},
		&orders.Order{},
		&documents.Document{},
		&documents.NumberSequence{},
	); err != nil {
		return err
	}

	// Idempotent enqueue: at most one job per (tenant, dedupe_key)
	if err := gdb.Exec(`
create unique index if not exists uq_jobs_tenant_dedupe
on jobs(tenant_id, dedupe_key)
where dedupe_key is not null;
`).Error; err != nil {
		return err
	}

	// One counter row per (tenant, series)
	if err := gdb.Exec(`create unique index if not exists uq_sequences_tenant_name on number_sequences(tenant_id, name);`).Error; err != nil {
		return err
	}

	// One membership per (user, tenant)
	if err := gdb.Exec(`create unique index if not exists uq_memberships_user_tenant on memberships(user_id, tenant_id);`).Error; err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
		`create index if not exists idx_orders_tenant_updated on orders(tenant_id, updated_at desc);`,
		`create index if not exists idx_orders_skus on orders using gin (skus);`,
		`create index if not exists idx_docs_tenant_status on documents(tenant_id, status);`,
		`create index if not exists idx_docs_tenant_order on documents(tenant_id, order_id);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
