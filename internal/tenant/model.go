package tenant

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Tenant struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	Name   string `gorm:"type:text;not null"`
	Slug   string `gorm:"uniqueIndex;not null"`
	Status string `gorm:"not null;default:'active'"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (t *Tenant) Active() bool { return t.Status == StatusActive }

// Membership links a dashboard user to a tenant with a role.
type Membership struct {
	ID       uint64 `gorm:"primaryKey"`
	UserID   uint64 `gorm:"index;not null"`
	TenantID string `gorm:"type:uuid;index;not null"`

	Role   string `gorm:"not null"` // OWNER_ADMIN/TENANT_ADMIN/TENANT_USER
	Active bool   `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

const (
	RoleOwnerAdmin  = "OWNER_ADMIN"
	RoleTenantAdmin = "TENANT_ADMIN"
	RoleTenantUser  = "TENANT_USER"
)

func ValidRole(r string) bool {
	return r == RoleOwnerAdmin || r == RoleTenantAdmin || r == RoleTenantUser
}

const tokenPrefix = "svc_"

// ServiceToken is a machine-to-machine credential. Only the hash is stored.
// A token may be bound to a single tenant; unbound tokens select the tenant
// via the X-Tenant header.
type ServiceToken struct {
	ID        uint64          `gorm:"primaryKey"`
	Name      string          `gorm:"not null"`
	TokenHash string          `gorm:"uniqueIndex;not null"`
	Scopes    json.RawMessage `gorm:"type:jsonb;not null;default:'[]'::jsonb"`
	TenantID  *string         `gorm:"type:uuid;index"`
	Active    bool            `gorm:"not null;default:true"`

	CreatedAt  time.Time `gorm:"not null;default:now()"`
	LastUsedAt *time.Time
}

func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func IsServiceToken(raw string) bool {
	return strings.HasPrefix(raw, tokenPrefix)
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (t *ServiceToken) Matches(raw string) bool {
	return subtle.ConstantTimeCompare([]byte(t.TokenHash), []byte(HashToken(raw))) == 1
}

// HasScope reports whether the token grants the given scope. An empty
// required scope always passes; "*" grants everything.
func (t *ServiceToken) HasScope(scope string) bool {
	if scope == "" {
		return true
	}
	var scopes []string
	if err := json.Unmarshal(t.Scopes, &scopes); err != nil {
		return false
	}
	for _, s := range scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}
