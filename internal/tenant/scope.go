package tenant

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrUnscopedAccess = errors.New("no tenant scope established")
var ErrNotFound = errors.New("not found")

// Scope names the tenant every store operation runs under. It is threaded
// explicitly through service and repo calls; there is no package-level
// current tenant.
type Scope struct {
	TenantID string
}

func NewScope(tenantID string) Scope {
	return Scope{TenantID: tenantID}
}

func (s Scope) Valid() bool {
	return s.TenantID != ""
}

// DB narrows a query to the scope's tenant partition. Every tenant-scoped
// read and write goes through this.
func (s Scope) DB(db *gorm.DB) *gorm.DB {
	return db.Where("tenant_id = ?", s.TenantID)
}

type ctxKey string

const scopeKey ctxKey = "tenant_scope"

// With returns a context carrying the scope for the duration of a request
// or worker iteration. The value is immutable; concurrent requests each
// carry their own.
func With(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// FromContext retrieves the active scope. Reading before a scope has been
// established is a programming error and fails loudly.
func FromContext(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(scopeKey).(Scope)
	if !ok || !s.Valid() {
		return Scope{}, ErrUnscopedAccess
	}
	return s, nil
}
