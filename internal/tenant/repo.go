package tenant

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct {
	DB *gorm.DB
}

func (r *Repo) Create(name, slug string) (*Tenant, error) {
	t := Tenant{
		ID:     uuid.NewString(),
		Name:   name,
		Slug:   slug,
		Status: StatusActive,
	}
	if err := r.DB.Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repo) BySlug(slug string) (*Tenant, error) {
	var t Tenant
	if err := r.DB.Where("slug = ?", slug).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repo) ByID(id string) (*Tenant, error) {
	var t Tenant
	if err := r.DB.Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// TokenByRaw resolves an active service token from its raw credential. The
// lookup goes by hash; the constant-time compare afterwards guards against a
// hash column that was tampered with or truncated.
func (r *Repo) TokenByRaw(raw string) (*ServiceToken, error) {
	var tok ServiceToken
	err := r.DB.Where("token_hash = ? AND active", HashToken(raw)).First(&tok).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !tok.Matches(raw) {
		return nil, ErrNotFound
	}
	return &tok, nil
}

func (r *Repo) MarkTokenUsed(tok *ServiceToken) {
	now := time.Now()
	_ = r.DB.Model(&ServiceToken{}).Where("id = ?", tok.ID).
		Update("last_used_at", now).Error
}

// MembershipFor returns the active membership of a user in a tenant.
func (r *Repo) MembershipFor(userID uint64, tenantID string) (*Membership, error) {
	var m Membership
	err := r.DB.Where("user_id = ? AND tenant_id = ? AND active", userID, tenantID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// MembershipsForUser returns the user's active memberships in active tenants
// as a slug -> role map, the shape embedded into session tokens.
func (r *Repo) MembershipsForUser(userID uint64) (map[string]string, error) {
	var rows []struct {
		Slug string
		Role string
	}
	err := r.DB.Table("memberships").
		Select("tenants.slug, memberships.role").
		Joins("join tenants on tenants.id = memberships.tenant_id").
		Where("memberships.user_id = ? AND memberships.active AND tenants.status = ?", userID, StatusActive).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Slug] = row.Role
	}
	return out, nil
}
